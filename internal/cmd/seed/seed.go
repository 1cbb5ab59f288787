// Package seed parses seed command flags and writes the participant and
// charge directories into the ledger store.
package seed

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	ledgerapp "github.com/mojaloop/central-ledger-sub000/internal/services/ledger/app"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage/integrity"
	ledgersqlite "github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage/sqlite"
)

const defaultSeedFile = "fixtures/ledger-seed.json"

// Config holds seed command configuration.
type Config struct {
	DBPath   string
	SeedPath string
	Verbose  bool
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config. Without an explicit file the
// repository fixture is used.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		DBPath:   envOrDefault(lookup, []string{"LEDGER_DB_PATH"}, "data/ledger.db"),
		SeedPath: envOrDefault(lookup, []string{"LEDGER_SEED_PATH"}, ""),
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The ledger SQLite database path")
	fs.StringVar(&cfg.SeedPath, "file", cfg.SeedPath, "Seed file (default: repository fixture)")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose output")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.SeedPath) == "" {
		root, err := repoRoot()
		if err != nil {
			return Config{}, err
		}
		cfg.SeedPath = filepath.Join(root, defaultSeedFile)
	}
	return cfg, nil
}

// Run applies the seed file to the ledger store.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) (err error) {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	seed, err := ledgerapp.ReadSeedFile(cfg.SeedPath)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger storage dir: %w", err)
		}
	}
	keyring, err := integrity.KeyringFromEnv()
	if err != nil {
		return fmt.Errorf("load event keyring: %w", err)
	}
	store, err := ledgersqlite.Open(cfg.DBPath, keyring)
	if err != nil {
		return fmt.Errorf("open ledger sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			fmt.Fprintf(errOut, "close ledger store: %v\n", closeErr)
		}
	}()

	summary, err := ledgerapp.ApplySeed(ctx, store, seed)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		for _, p := range seed.Participants {
			fmt.Fprintf(out, "  participant %s %s\n", strings.TrimSpace(p.Name), strings.ToUpper(strings.TrimSpace(p.Currency)))
		}
		for _, c := range seed.Charges {
			fmt.Fprintf(out, "  charge %s %s\n", strings.TrimSpace(c.Name), strings.ToLower(strings.TrimSpace(c.RateType)))
		}
	}
	fmt.Fprintf(out, "Seeded %d participants and %d charges into %s\n", summary.Participants, summary.Charges, cfg.DBPath)
	return nil
}

func repoRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to resolve runtime caller")
	}

	dir := filepath.Dir(filename)
	for {
		candidate := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("go.mod not found from %s", filename)
}

func envOrDefault(lookup EnvLookup, keys []string, fallback string) string {
	for _, key := range keys {
		if lookup == nil {
			break
		}
		value, ok := lookup(key)
		if ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return trimmed
			}
		}
	}
	return fallback
}
