package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestLedgerMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(LedgerFS, LedgerRoot)
	if err != nil {
		t.Fatalf("read ledger migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected embedded ledger migrations")
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".sql") {
			t.Fatalf("unexpected migration file %s", entry.Name())
		}
	}
}
