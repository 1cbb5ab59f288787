package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/transfer"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
)

// ApplyProjectionEventExactlyOnce applies one projection event inside a
// transaction and records a per-(aggregate, seq) checkpoint to dedupe
// retries. It reports false without calling apply when the checkpoint
// already exists.
func (s *Store) ApplyProjectionEventExactlyOnce(
	ctx context.Context,
	evt event.Event,
	apply func(context.Context, event.Event, storage.ProjectionStore) error,
) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if apply == nil {
		return false, fmt.Errorf("projection apply callback is required")
	}
	if strings.TrimSpace(evt.AggregateID) == "" {
		return false, fmt.Errorf("aggregate id is required")
	}
	if evt.Seq == 0 {
		return false, fmt.Errorf("event sequence must be greater than zero")
	}

	const (
		maxBusyRetries = 8
		retryBaseDelay = 10 * time.Millisecond
	)

	waitForRetry := func(attempt int) error {
		delay := time.Duration(attempt+1) * retryBaseDelay
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}

	var lastBusyErr error
	for attempt := 0; ; attempt++ {
		tx, err := s.sqlDB.BeginTx(ctx, nil)
		if err != nil {
			if isSQLiteBusyError(err) && attempt < maxBusyRetries {
				lastBusyErr = err
				if waitErr := waitForRetry(attempt); waitErr != nil {
					return false, waitErr
				}
				continue
			}
			return false, fmt.Errorf("begin projection apply tx: %w", err)
		}

		applied, retry, err := func() (bool, bool, error) {
			defer func() { _ = tx.Rollback() }()

			checkpointResult, err := tx.ExecContext(
				ctx,
				`INSERT OR IGNORE INTO projection_checkpoints (aggregate_id, seq, event_type, applied_at)
				 VALUES (?, ?, ?, ?)`,
				evt.AggregateID,
				int64(evt.Seq),
				string(evt.Type),
				toMillis(s.clock()),
			)
			if err != nil {
				if isSQLiteBusyError(err) {
					lastBusyErr = err
					return false, true, nil
				}
				return false, false, fmt.Errorf("reserve projection checkpoint %s/%d: %w", evt.AggregateID, evt.Seq, err)
			}

			rowsAffected, err := checkpointResult.RowsAffected()
			if err != nil {
				return false, false, fmt.Errorf("inspect projection checkpoint reservation %s/%d: %w", evt.AggregateID, evt.Seq, err)
			}
			if rowsAffected == 0 {
				return false, false, nil
			}

			if err := apply(ctx, evt, s.withTx(tx)); err != nil {
				return false, false, err
			}

			if err := tx.Commit(); err != nil {
				if isSQLiteBusyError(err) {
					lastBusyErr = err
					return false, true, nil
				}
				return false, false, fmt.Errorf("commit projection apply tx: %w", err)
			}
			return true, false, nil
		}()
		if retry {
			if attempt < maxBusyRetries {
				if waitErr := waitForRetry(attempt); waitErr != nil {
					return false, waitErr
				}
				continue
			}
			return false, fmt.Errorf("projection checkpoint %s/%d remained busy: %w", evt.AggregateID, evt.Seq, lastBusyErr)
		}
		return applied, err
	}
}

// InsertTransfer stores a newly prepared transfer.
func (s *Store) InsertTransfer(ctx context.Context, t storage.Transfer) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transfer id is required")
	}
	var fulfillment any
	if t.Fulfillment != nil {
		fulfillment = *t.Fulfillment
	}
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO transfers (
		    id, payer, payee, amount, currency, condition, expires_at, ilp_packet, status,
		    fulfillment, rejection_reason, rejection_message, payee_rejected, settlement_id,
		    last_seq, prepared_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Payer,
		t.Payee,
		t.Amount.Value.String(),
		t.Amount.Currency,
		t.Condition,
		toNullMillis(t.ExpiresAt),
		t.ILPPacket,
		string(t.Status),
		fulfillment,
		t.RejectionReason,
		t.RejectionMessage,
		boolToInt(t.PayeeRejected),
		t.SettlementID,
		int64(t.LastSeq),
		toMillis(t.PreparedAt),
		toMillis(t.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert transfer %s: %w", t.ID, err)
	}
	if !t.Conditional() {
		return nil
	}
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO transfer_conditions (transfer_id, condition, expires_at) VALUES (?, ?, ?)`,
		t.ID, t.Condition, toNullMillis(t.ExpiresAt),
	); err != nil {
		return fmt.Errorf("insert transfer condition %s: %w", t.ID, err)
	}
	return nil
}

// MarkTransferExecuted commits a transfer and records its fulfillment.
func (s *Store) MarkTransferExecuted(ctx context.Context, id, fulfillment string, seq uint64, at time.Time) error {
	return s.updateTransfer(ctx, id, seq,
		`UPDATE transfers SET status = ?, fulfillment = ?, last_seq = ?, updated_at = ? WHERE id = ? AND last_seq = ?`,
		string(transfer.StatusCommitted), fulfillment, int64(seq), toMillis(at), id, int64(seq)-1,
	)
}

// MarkTransferRejected aborts a transfer with its reason.
func (s *Store) MarkTransferRejected(ctx context.Context, id, reason, message string, payeeRejected bool, seq uint64, at time.Time) error {
	return s.updateTransfer(ctx, id, seq,
		`UPDATE transfers
		 SET status = ?, rejection_reason = ?, rejection_message = ?, payee_rejected = ?, last_seq = ?, updated_at = ?
		 WHERE id = ? AND last_seq = ?`,
		string(transfer.StatusAborted), reason, message, boolToInt(payeeRejected), int64(seq), toMillis(at), id, int64(seq)-1,
	)
}

// MarkTransferSettled links a transfer to the settlement that paid it out.
func (s *Store) MarkTransferSettled(ctx context.Context, id, settlementID string, seq uint64, at time.Time) error {
	if err := s.updateTransfer(ctx, id, seq,
		`UPDATE transfers SET status = ?, settlement_id = ?, last_seq = ?, updated_at = ? WHERE id = ? AND last_seq = ?`,
		string(transfer.StatusSettled), settlementID, int64(seq), toMillis(at), id, int64(seq)-1,
	); err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO settled_transfers (transfer_id, settlement_id) VALUES (?, ?)
		 ON CONFLICT (transfer_id) DO NOTHING`,
		id, settlementID,
	); err != nil {
		return fmt.Errorf("link settled transfer %s: %w", id, err)
	}
	return nil
}

// updateTransfer applies an event's change only on top of the row's previous
// sequence. A row that is already at or past seq is left alone; a row that
// lags behind seq-1 reports storage.ErrProjectionGap so the caller can apply
// the missing events first.
func (s *Store) updateTransfer(ctx context.Context, id string, seq uint64, query string, args ...any) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update transfer %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transfer %s rows affected: %w", id, err)
	}
	if affected > 0 {
		return nil
	}
	var lastSeq int64
	if err := s.q.QueryRowContext(ctx, `SELECT last_seq FROM transfers WHERE id = ?`, id).Scan(&lastSeq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update transfer %s: %w", id, storage.ErrNotFound)
		}
		return fmt.Errorf("read transfer %s sequence: %w", id, err)
	}
	if uint64(lastSeq) >= seq {
		return nil
	}
	return fmt.Errorf("update transfer %s to seq %d from seq %d: %w", id, seq, lastSeq, storage.ErrProjectionGap)
}

// AppendStateChange adds one entry to a transfer's timeline. Replaying the
// same sequence is a no-op.
func (s *Store) AppendStateChange(ctx context.Context, transferID string, change storage.StateChange) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO transfer_state_changes (transfer_id, seq, status, reason, changed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		transferID,
		int64(change.Seq),
		string(change.Status),
		change.Reason,
		toMillis(change.ChangedAt),
	); err != nil {
		return fmt.Errorf("append state change %s/%d: %w", transferID, change.Seq, err)
	}
	return nil
}

// InsertFeeIfAbsent stores f unless a fee for its transfer and charge exists.
func (s *Store) InsertFeeIfAbsent(ctx context.Context, f fee.Fee) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	result, err := s.q.ExecContext(ctx,
		`INSERT INTO fees (transfer_id, charge_id, amount, currency, payer_account, payee_account, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (transfer_id, charge_id) DO NOTHING`,
		f.TransferID,
		f.ChargeID,
		f.Amount.Value.String(),
		f.Amount.Currency,
		f.PayerAccount,
		f.PayeeAccount,
		toMillis(f.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert fee %s/%d: %w", f.TransferID, f.ChargeID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert fee rows affected: %w", err)
	}
	return affected == 1, nil
}
