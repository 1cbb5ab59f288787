package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/transfer"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
	"github.com/shopspring/decimal"
)

const transferColumns = `id, payer, payee, amount, currency, condition, expires_at, ilp_packet, status,
	fulfillment, rejection_reason, rejection_message, payee_rejected, settlement_id,
	last_seq, prepared_at, updated_at`

// GetTransfer returns a transfer with its timeline.
func (s *Store) GetTransfer(ctx context.Context, id string) (storage.Transfer, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Transfer{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Transfer{}, fmt.Errorf("transfer id is required")
	}

	t, err := scanTransfer(s.q.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Transfer{}, storage.ErrNotFound
		}
		return storage.Transfer{}, fmt.Errorf("get transfer %s: %w", id, err)
	}

	timeline, err := s.listStateChanges(ctx, id)
	if err != nil {
		return storage.Transfer{}, err
	}
	t.Timeline = timeline
	return t, nil
}

// ListExpiredTransfers returns conditional RECEIVED transfers whose
// expiration is before now, soonest expiry first.
func (s *Store) ListExpiredTransfers(ctx context.Context, now time.Time, limit int) ([]storage.Transfer, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		 WHERE status = ? AND condition != '' AND expires_at IS NOT NULL AND expires_at < ?
		 ORDER BY expires_at, id
		 LIMIT ?`,
		string(transfer.StatusReceived), toMillis(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired transfers: %w", err)
	}
	return collectTransfers(rows)
}

// ListUnsettledExecutedTransfers returns COMMITTED transfers that no
// settlement paid out yet, oldest first.
func (s *Store) ListUnsettledExecutedTransfers(ctx context.Context, limit int) ([]storage.Transfer, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		 WHERE status = ? AND settlement_id = ''
		 ORDER BY updated_at, id
		 LIMIT ?`,
		string(transfer.StatusCommitted), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unsettled transfers: %w", err)
	}
	return collectTransfers(rows)
}

func (s *Store) listStateChanges(ctx context.Context, transferID string) ([]storage.StateChange, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT seq, status, reason, changed_at FROM transfer_state_changes
		 WHERE transfer_id = ?
		 ORDER BY seq`,
		transferID,
	)
	if err != nil {
		return nil, fmt.Errorf("list state changes %s: %w", transferID, err)
	}
	defer rows.Close()

	var changes []storage.StateChange
	for rows.Next() {
		var (
			change    storage.StateChange
			seq       int64
			status    string
			changedAt int64
		)
		if err := rows.Scan(&seq, &status, &change.Reason, &changedAt); err != nil {
			return nil, fmt.Errorf("scan state change: %w", err)
		}
		change.Seq = uint64(seq)
		change.Status = transfer.Status(status)
		change.ChangedAt = fromMillis(changedAt)
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state changes: %w", err)
	}
	return changes, nil
}

func scanTransfer(row rowScanner) (storage.Transfer, error) {
	var (
		t             storage.Transfer
		amount        string
		expiresAt     sql.NullInt64
		status        string
		fulfillment   sql.NullString
		payeeRejected int
		lastSeq       int64
		preparedAt    int64
		updatedAt     int64
	)
	if err := row.Scan(
		&t.ID,
		&t.Payer,
		&t.Payee,
		&amount,
		&t.Amount.Currency,
		&t.Condition,
		&expiresAt,
		&t.ILPPacket,
		&status,
		&fulfillment,
		&t.RejectionReason,
		&t.RejectionMessage,
		&payeeRejected,
		&t.SettlementID,
		&lastSeq,
		&preparedAt,
		&updatedAt,
	); err != nil {
		return storage.Transfer{}, err
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return storage.Transfer{}, fmt.Errorf("parse transfer amount %q: %w", amount, err)
	}
	t.Amount = money.Amount{Value: value, Currency: t.Amount.Currency}
	t.ExpiresAt = fromNullMillis(expiresAt)
	t.Status = transfer.Status(status)
	if fulfillment.Valid {
		f := fulfillment.String
		t.Fulfillment = &f
	}
	t.PayeeRejected = payeeRejected != 0
	t.LastSeq = uint64(lastSeq)
	t.PreparedAt = fromMillis(preparedAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return t, nil
}

func collectTransfers(rows *sql.Rows) ([]storage.Transfer, error) {
	defer rows.Close()
	var transfers []storage.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return transfers, nil
}
