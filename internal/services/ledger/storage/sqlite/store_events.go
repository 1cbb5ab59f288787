package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage/integrity"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const eventColumns = `aggregate_id, seq, event_type, timestamp, actor_id, request_id, payload_json,
	event_hash, prev_event_hash, chain_hash, signature_key_id, event_signature`

// AppendEvents appends events to aggregateID's journal provided its last
// sequence is still expectedSeq. Sequences are allocated contiguously and
// each event is hashed, chained to its predecessor and signed. A moved
// sequence or a lost write race returns storage.ErrSequenceConflict.
func (s *Store) AppendEvents(ctx context.Context, aggregateID string, expectedSeq uint64, events []event.Event) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return nil, fmt.Errorf("aggregate id is required")
	}
	if len(events) == 0 {
		return nil, nil
	}
	if s.keyring == nil {
		return nil, fmt.Errorf("event integrity keyring is required")
	}

	// Validate everything before taking the write lock.
	prepared := make([]event.Event, len(events))
	for i, evt := range events {
		if evt.AggregateID != aggregateID {
			return nil, fmt.Errorf("event %d: aggregate %q does not match %q", i, evt.AggregateID, aggregateID)
		}
		if !evt.Type.Known() {
			return nil, fmt.Errorf("event %d: %w: %s", i, event.ErrTypeUnknown, evt.Type)
		}
		if evt.Timestamp.IsZero() {
			evt.Timestamp = s.clock()
		}
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
		prepared[i] = evt
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		if isSQLiteBusyError(err) {
			return nil, fmt.Errorf("begin append tx: %w", storage.ErrSequenceConflict)
		}
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentSeq int64
	err = tx.QueryRowContext(ctx, `SELECT last_seq FROM event_seq WHERE aggregate_id = ?`, aggregateID).Scan(&currentSeq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get event seq: %w", err)
	}
	if uint64(currentSeq) != expectedSeq {
		return nil, fmt.Errorf("aggregate %s at seq %d, expected %d: %w", aggregateID, currentSeq, expectedSeq, storage.ErrSequenceConflict)
	}

	prevChainHash := ""
	if currentSeq > 0 {
		if err := tx.QueryRowContext(ctx,
			`SELECT chain_hash FROM events WHERE aggregate_id = ? AND seq = ?`,
			aggregateID, currentSeq,
		).Scan(&prevChainHash); err != nil {
			return nil, fmt.Errorf("load previous event: %w", err)
		}
	}

	stored := make([]event.Event, len(prepared))
	for i, evt := range prepared {
		evt.Seq = expectedSeq + uint64(i) + 1
		sealed, err := s.keyring.Seal(evt, prevChainHash)
		if err != nil {
			return nil, fmt.Errorf("event %d seal: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sealed.AggregateID,
			int64(sealed.Seq),
			string(sealed.Type),
			toMillis(sealed.Timestamp),
			sealed.ActorID,
			sealed.RequestID,
			sealed.PayloadJSON,
			sealed.Hash,
			sealed.PrevHash,
			sealed.ChainHash,
			sealed.SignatureKeyID,
			sealed.Signature,
		); err != nil {
			if isConstraintError(err) {
				return nil, fmt.Errorf("append event %d: %w", i, storage.ErrSequenceConflict)
			}
			return nil, fmt.Errorf("append event %d: %w", i, err)
		}
		prevChainHash = sealed.ChainHash
		stored[i] = sealed
	}

	if err := advanceEventSeq(ctx, tx, aggregateID, expectedSeq, expectedSeq+uint64(len(stored))); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if isSQLiteBusyError(err) {
			return nil, fmt.Errorf("commit append: %w", storage.ErrSequenceConflict)
		}
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// advanceEventSeq moves the aggregate counter from expected to next, failing
// with a conflict when another writer moved it first.
func advanceEventSeq(ctx context.Context, tx *sql.Tx, aggregateID string, expected, next uint64) error {
	if expected == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_seq (aggregate_id, last_seq) VALUES (?, ?)`,
			aggregateID, int64(next),
		); err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("init event seq: %w", storage.ErrSequenceConflict)
			}
			return fmt.Errorf("init event seq: %w", err)
		}
		return nil
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE event_seq SET last_seq = ? WHERE aggregate_id = ? AND last_seq = ?`,
		int64(next), aggregateID, int64(expected),
	)
	if err != nil {
		return fmt.Errorf("update event seq: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event seq rows affected: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("update event seq: %w", storage.ErrSequenceConflict)
	}
	return nil
}

// GetEventBySeq retrieves a specific event by sequence number.
func (s *Store) GetEventBySeq(ctx context.Context, aggregateID string, seq uint64) (event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return event.Event{}, err
	}
	if strings.TrimSpace(aggregateID) == "" {
		return event.Event{}, fmt.Errorf("aggregate id is required")
	}

	row := s.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE aggregate_id = ? AND seq = ?`,
		aggregateID, int64(seq),
	)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("get event by seq: %w", err)
	}
	return evt, nil
}

// ListEvents returns events ordered by sequence ascending.
func (s *Store) ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(aggregateID) == "" {
		return nil, fmt.Errorf("aggregate id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE aggregate_id = ? AND seq > ?
		 ORDER BY seq
		 LIMIT ?`,
		aggregateID, int64(afterSeq), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows)
}

// ListUnprojectedEvents returns committed events that have no projection
// checkpoint, in aggregate and sequence order.
func (s *Store) ListUnprojectedEvents(ctx context.Context, limit int) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT e.aggregate_id, e.seq, e.event_type, e.timestamp, e.actor_id, e.request_id, e.payload_json,
		        e.event_hash, e.prev_event_hash, e.chain_hash, e.signature_key_id, e.event_signature
		 FROM events e
		 LEFT JOIN projection_checkpoints p ON p.aggregate_id = e.aggregate_id AND p.seq = e.seq
		 WHERE p.seq IS NULL
		 ORDER BY e.aggregate_id, e.seq
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unprojected events: %w", err)
	}
	return collectEvents(rows)
}

// VerifyEventIntegrity validates the event chain and signatures for all
// aggregates.
func (s *Store) VerifyEventIntegrity(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if s.keyring == nil {
		return fmt.Errorf("event integrity keyring is required")
	}

	aggregateIDs, err := s.listEventAggregateIDs(ctx)
	if err != nil {
		return err
	}
	for _, aggregateID := range aggregateIDs {
		if err := s.verifyAggregateEvents(ctx, aggregateID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) listEventAggregateIDs(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT DISTINCT aggregate_id FROM events ORDER BY aggregate_id")
	if err != nil {
		return nil, fmt.Errorf("list aggregate ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan aggregate id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate ids: %w", err)
	}
	return ids, nil
}

func (s *Store) verifyAggregateEvents(ctx context.Context, aggregateID string) error {
	var lastSeq uint64
	prevChainHash := ""
	for {
		events, err := s.ListEvents(ctx, aggregateID, lastSeq, 200)
		if err != nil {
			return fmt.Errorf("list events aggregate_id=%s: %w", aggregateID, err)
		}
		if len(events) == 0 {
			return nil
		}
		for _, evt := range events {
			if evt.Seq != lastSeq+1 {
				return fmt.Errorf("event sequence gap aggregate_id=%s expected=%d got=%d", aggregateID, lastSeq+1, evt.Seq)
			}
			if evt.PrevHash != prevChainHash {
				return fmt.Errorf("prev hash mismatch aggregate_id=%s seq=%d", aggregateID, evt.Seq)
			}

			hash, err := integrity.EventHash(evt)
			if err != nil {
				return fmt.Errorf("compute event hash aggregate_id=%s seq=%d: %w", aggregateID, evt.Seq, err)
			}
			if hash != evt.Hash {
				return fmt.Errorf("event hash mismatch aggregate_id=%s seq=%d", aggregateID, evt.Seq)
			}

			chainHash, err := integrity.ChainHash(evt, prevChainHash)
			if err != nil {
				return fmt.Errorf("compute chain hash aggregate_id=%s seq=%d: %w", aggregateID, evt.Seq, err)
			}
			if chainHash != evt.ChainHash {
				return fmt.Errorf("chain hash mismatch aggregate_id=%s seq=%d", aggregateID, evt.Seq)
			}

			if err := s.keyring.VerifyChainHash(aggregateID, chainHash, evt.Signature, evt.SignatureKeyID); err != nil {
				return fmt.Errorf("signature mismatch aggregate_id=%s seq=%d: %w", aggregateID, evt.Seq, err)
			}

			prevChainHash = evt.ChainHash
			lastSeq = evt.Seq
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		evt       event.Event
		seq       int64
		eventType string
		timestamp int64
	)
	if err := row.Scan(
		&evt.AggregateID,
		&seq,
		&eventType,
		&timestamp,
		&evt.ActorID,
		&evt.RequestID,
		&evt.PayloadJSON,
		&evt.Hash,
		&evt.PrevHash,
		&evt.ChainHash,
		&evt.SignatureKeyID,
		&evt.Signature,
	); err != nil {
		return event.Event{}, err
	}
	evt.Seq = uint64(seq)
	evt.Type = event.Type(eventType)
	evt.Timestamp = fromMillis(timestamp)
	return evt, nil
}

func collectEvents(rows *sql.Rows) ([]event.Event, error) {
	defer rows.Close()
	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isSQLiteBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
