package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/platform/storage/sqlitemigrate"
	"github.com/mojaloop/central-ledger-sub000/internal/platform/timeouts"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/settlement"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage/integrity"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage/sqlite/migrations"
	"github.com/shopspring/decimal"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis reverses toMillis for persisted millisecond timestamps.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func toNullDecimal(value decimal.NullDecimal) sql.NullString {
	if !value.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: value.Decimal.String(), Valid: true}
}

func fromNullDecimal(value sql.NullString) (decimal.NullDecimal, error) {
	if !value.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(value.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides a SQLite-backed store implementing all ledger storage
// interfaces.
type Store struct {
	sqlDB   *sql.DB
	q       querier
	keyring *integrity.Keyring
	now     func() time.Time
}

// withTx returns a copy of s whose queries run inside tx.
func (s *Store) withTx(tx *sql.Tx) *Store {
	if s == nil || tx == nil {
		return s
	}
	cloned := *s
	cloned.q = tx
	return &cloned
}

// Option configures store behavior.
type Option func(*Store)

// WithClock overrides the clock used for bookkeeping timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens the ledger database at path and applies embedded migrations.
// The keyring signs appended events and verifies the journal.
func Open(path string, keyring *integrity.Keyring, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if keyring == nil {
		return nil, fmt.Errorf("event integrity keyring is required")
	}

	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.LedgerFS, migrations.LedgerRoot); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	store := &Store{
		sqlDB:   sqlDB,
		q:       sqlDB,
		keyring: keyring,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func dsn(path string) string {
	busy := timeouts.SQLiteBusy.Milliseconds()
	return fmt.Sprintf(
		"%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		filepath.Clean(path),
		busy,
	)
}

// Close closes the underlying SQLite database. It is nil-safe so callers
// can defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

// inTx runs fn against a transaction-bound copy of s and commits on success.
func (s *Store) inTx(ctx context.Context, fn func(*Store) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(s.withTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var (
	_ storage.EventStore         = (*Store)(nil)
	_ storage.TransferStore      = (*Store)(nil)
	_ storage.ParticipantStore   = (*Store)(nil)
	_ storage.ChargeStore        = (*Store)(nil)
	_ storage.FeeStore           = (*Store)(nil)
	_ storage.SettlementStore    = (*Store)(nil)
	_ storage.ProjectionStore    = (*Store)(nil)
	_ storage.ProjectionApplier  = (*Store)(nil)
	_ storage.NotificationOutbox = (*Store)(nil)
	_ settlement.FeeLedger       = (*Store)(nil)
)
