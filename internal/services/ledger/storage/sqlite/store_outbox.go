package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
)

const (
	outboxDeadLetterThreshold = 8
	outboxProcessingLease     = 2 * time.Minute
)

// EnqueueNotification queues evt for delivery. Enqueueing the same event
// twice is a no-op.
func (s *Store) EnqueueNotification(ctx context.Context, evt event.Event) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	enqueuedAt := s.clock()
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO notification_outbox (
		    aggregate_id, seq, event_type, status, attempt_count, next_attempt_at, last_error, updated_at
		) VALUES (?, ?, ?, 'pending', 0, ?, '', ?)
		ON CONFLICT (aggregate_id, seq) DO NOTHING`,
		evt.AggregateID,
		int64(evt.Seq),
		string(evt.Type),
		toMillis(enqueuedAt),
		toMillis(enqueuedAt),
	); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// GetNotificationOutboxSummary returns queue depth by status.
func (s *Store) GetNotificationOutboxSummary(ctx context.Context) (storage.OutboxSummary, error) {
	if err := s.ready(ctx); err != nil {
		return storage.OutboxSummary{}, err
	}
	rows, err := s.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM notification_outbox GROUP BY status`)
	if err != nil {
		return storage.OutboxSummary{}, fmt.Errorf("query outbox summary counts: %w", err)
	}
	defer rows.Close()

	summary := storage.OutboxSummary{}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return storage.OutboxSummary{}, fmt.Errorf("scan outbox summary count: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(status)) {
		case "pending":
			summary.Pending = count
		case "processing":
			summary.Processing = count
		case "failed":
			summary.Failed = count
		case "dead":
			summary.Dead = count
		}
	}
	if err := rows.Err(); err != nil {
		return storage.OutboxSummary{}, fmt.Errorf("iterate outbox summary counts: %w", err)
	}
	return summary, nil
}

// ProcessNotificationOutbox claims due notifications and hands each stored
// event to deliver. Delivered rows are removed; failures are rescheduled
// with backoff until they dead-letter.
func (s *Store) ProcessNotificationOutbox(
	ctx context.Context,
	now time.Time,
	limit int,
	deliver func(context.Context, event.Event) error,
) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if deliver == nil {
		return 0, fmt.Errorf("notification deliver callback is required")
	}
	if limit <= 0 {
		return 0, nil
	}
	if now.IsZero() {
		now = s.clock()
	}

	rows, err := s.claimNotificationsDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, row := range rows {
		storedEvent, loadErr := s.GetEventBySeq(ctx, row.AggregateID, row.Seq)
		if loadErr != nil {
			if err := s.markNotificationRetry(ctx, row, now, fmt.Sprintf("load event: %v", loadErr)); err != nil {
				return processed, err
			}
			processed++
			continue
		}
		if deliverErr := deliver(ctx, storedEvent); deliverErr != nil {
			if err := s.markNotificationRetry(ctx, row, now, fmt.Sprintf("deliver: %v", deliverErr)); err != nil {
				return processed, err
			}
			processed++
			continue
		}
		if err := s.completeNotification(ctx, row); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (s *Store) claimNotificationsDue(ctx context.Context, now time.Time, limit int) ([]storage.Notification, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin outbox claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	staleBefore := now.Add(-outboxProcessingLease)
	rows, err := tx.QueryContext(ctx,
		`SELECT aggregate_id, seq, event_type, attempt_count
		 FROM notification_outbox
		 WHERE (
			 status IN ('pending', 'failed') AND next_attempt_at <= ?
		 ) OR (
			 status = 'processing' AND updated_at <= ?
		 )
		 ORDER BY next_attempt_at, aggregate_id, seq
		 LIMIT ?`,
		toMillis(now),
		toMillis(staleBefore),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due outbox rows: %w", err)
	}

	candidates := make([]storage.Notification, 0, limit)
	for rows.Next() {
		var (
			row       storage.Notification
			seq       int64
			eventType string
		)
		if err := rows.Scan(&row.AggregateID, &seq, &eventType, &row.AttemptCount); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan due outbox row: %w", err)
		}
		row.Seq = uint64(seq)
		row.EventType = event.Type(eventType)
		candidates = append(candidates, row)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate due outbox rows: %w", err)
	}
	_ = rows.Close()

	claimed := make([]storage.Notification, 0, len(candidates))
	for _, candidate := range candidates {
		result, err := tx.ExecContext(ctx,
			`UPDATE notification_outbox
			 SET status = 'processing', updated_at = ?
			 WHERE aggregate_id = ? AND seq = ?
			   AND (
			   	(status IN ('pending', 'failed') AND next_attempt_at <= ?)
			   	OR (status = 'processing' AND updated_at <= ?)
			   )`,
			toMillis(now),
			candidate.AggregateID,
			int64(candidate.Seq),
			toMillis(now),
			toMillis(staleBefore),
		)
		if err != nil {
			return nil, fmt.Errorf("claim outbox row %s/%d: %w", candidate.AggregateID, candidate.Seq, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim outbox row rows affected %s/%d: %w", candidate.AggregateID, candidate.Seq, err)
		}
		if affected == 1 {
			claimed = append(claimed, candidate)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox claim tx: %w", err)
	}
	return claimed, nil
}

func (s *Store) markNotificationRetry(ctx context.Context, row storage.Notification, now time.Time, lastError string) error {
	attempt := row.AttemptCount + 1
	status := "failed"
	if attempt >= outboxDeadLetterThreshold {
		status = "dead"
	}
	result, err := s.q.ExecContext(ctx,
		`UPDATE notification_outbox
		 SET status = ?,
		     attempt_count = ?,
		     next_attempt_at = ?,
		     last_error = ?,
		     updated_at = ?
		 WHERE aggregate_id = ? AND seq = ? AND status = 'processing'`,
		status,
		attempt,
		toMillis(now.Add(outboxRetryBackoff(attempt))),
		lastError,
		toMillis(now),
		row.AggregateID,
		int64(row.Seq),
	)
	if err != nil {
		return fmt.Errorf("mark outbox retry for row %s/%d: %w", row.AggregateID, row.Seq, err)
	}
	return ensureOutboxSingleRow(result, row, "mark outbox retry for row", "updated")
}

func (s *Store) completeNotification(ctx context.Context, row storage.Notification) error {
	result, err := s.q.ExecContext(ctx,
		`DELETE FROM notification_outbox WHERE aggregate_id = ? AND seq = ? AND status = 'processing'`,
		row.AggregateID,
		int64(row.Seq),
	)
	if err != nil {
		return fmt.Errorf("complete outbox row %s/%d: %w", row.AggregateID, row.Seq, err)
	}
	return ensureOutboxSingleRow(result, row, "complete outbox row", "deleted")
}

func ensureOutboxSingleRow(result sql.Result, row storage.Notification, operation, verb string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected %s/%d: %w", operation, row.AggregateID, row.Seq, err)
	}
	if affected != 1 {
		return fmt.Errorf("%s %s/%d: expected 1 row %s, got %d", operation, row.AggregateID, row.Seq, verb, affected)
	}
	return nil
}

func outboxRetryBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	backoff := time.Second << (attempt - 1)
	if backoff > 5*time.Minute {
		return 5 * time.Minute
	}
	return backoff
}
