package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/settlement"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
	"github.com/shopspring/decimal"
)

const feeColumns = `f.id, f.transfer_id, f.charge_id, f.amount, f.currency, f.payer_account, f.payee_account, f.created_at`

// ListFeesForTransfer returns the fees levied on a transfer in creation order.
func (s *Store) ListFeesForTransfer(ctx context.Context, transferID string) ([]fee.Fee, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(transferID) == "" {
		return nil, fmt.Errorf("transfer id is required")
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+feeColumns+` FROM fees f WHERE f.transfer_id = ? ORDER BY f.id`,
		transferID,
	)
	if err != nil {
		return nil, fmt.Errorf("list fees for %s: %w", transferID, err)
	}
	return collectFees(rows)
}

// ListUnsettledFees returns every fee not yet linked to a settlement.
func (s *Store) ListUnsettledFees(ctx context.Context) ([]fee.Fee, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+feeColumns+` FROM fees f
		 LEFT JOIN settled_fees sf ON sf.fee_id = f.id
		 WHERE sf.fee_id IS NULL
		 ORDER BY f.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list unsettled fees: %w", err)
	}
	return collectFees(rows)
}

// ListSettleableFees returns a transfer's fees not yet linked to a
// settlement.
func (s *Store) ListSettleableFees(ctx context.Context, transferID string) ([]fee.Fee, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+feeColumns+` FROM fees f
		 LEFT JOIN settled_fees sf ON sf.fee_id = f.id
		 WHERE f.transfer_id = ? AND sf.fee_id IS NULL
		 ORDER BY f.id`,
		transferID,
	)
	if err != nil {
		return nil, fmt.Errorf("list settleable fees for %s: %w", transferID, err)
	}
	return collectFees(rows)
}

// SettleFee links a fee to a settlement unless it is already linked.
func (s *Store) SettleFee(ctx context.Context, settlementID string, feeID int64) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	result, err := s.q.ExecContext(ctx,
		`INSERT INTO settled_fees (fee_id, settlement_id) VALUES (?, ?)
		 ON CONFLICT (fee_id) DO NOTHING`,
		feeID, settlementID,
	)
	if err != nil {
		return false, fmt.Errorf("settle fee %d: %w", feeID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("settle fee %d rows affected: %w", feeID, err)
	}
	return affected == 1, nil
}

// CreateSettlement records a settlement run.
func (s *Store) CreateSettlement(ctx context.Context, st settlement.Settlement) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO settlements (id, settlement_type, created_at) VALUES (?, ?, ?)`,
		st.ID, string(st.Type), toMillis(st.CreatedAt),
	); err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: settlement %s already exists", settlement.ErrInvalidSettlement, st.ID)
		}
		return fmt.Errorf("create settlement %s: %w", st.ID, err)
	}
	return nil
}

// GetSettlement returns a settlement run by id.
func (s *Store) GetSettlement(ctx context.Context, id string) (settlement.Settlement, error) {
	if err := s.ready(ctx); err != nil {
		return settlement.Settlement{}, err
	}
	var (
		st        settlement.Settlement
		typ       string
		createdAt int64
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, settlement_type, created_at FROM settlements WHERE id = ?`,
		strings.TrimSpace(id),
	).Scan(&st.ID, &typ, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return settlement.Settlement{}, storage.ErrNotFound
		}
		return settlement.Settlement{}, fmt.Errorf("get settlement %s: %w", id, err)
	}
	st.Type = settlement.Type(typ)
	st.CreatedAt = fromMillis(createdAt)
	return st, nil
}

// InSettlementTx runs fn against a fee ledger bound to one transaction.
func (s *Store) InSettlementTx(ctx context.Context, fn func(settlement.FeeLedger) error) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("settlement callback is required")
	}
	return s.inTx(ctx, func(tx *Store) error {
		return fn(tx)
	})
}

// ListSettledTransferFlows returns payer to payee flows of the transfers a
// settlement paid out.
func (s *Store) ListSettledTransferFlows(ctx context.Context, settlementID string) ([]settlement.Flow, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT t.payer, t.payee, t.amount, t.currency
		 FROM settled_transfers st
		 JOIN transfers t ON t.id = st.transfer_id
		 WHERE st.settlement_id = ?
		 ORDER BY t.id`,
		strings.TrimSpace(settlementID),
	)
	if err != nil {
		return nil, fmt.Errorf("list settled transfers %s: %w", settlementID, err)
	}
	defer rows.Close()

	var flows []settlement.Flow
	for rows.Next() {
		var (
			flow   settlement.Flow
			amount string
		)
		if err := rows.Scan(&flow.From, &flow.To, &amount, &flow.Amount.Currency); err != nil {
			return nil, fmt.Errorf("scan settled transfer: %w", err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse settled amount %q: %w", amount, err)
		}
		flow.Amount = money.Amount{Value: value, Currency: flow.Amount.Currency}
		flows = append(flows, flow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settled transfers: %w", err)
	}
	return flows, nil
}

func collectFees(rows *sql.Rows) ([]fee.Fee, error) {
	defer rows.Close()
	var fees []fee.Fee
	for rows.Next() {
		var (
			f         fee.Fee
			amount    string
			createdAt int64
		)
		if err := rows.Scan(
			&f.ID,
			&f.TransferID,
			&f.ChargeID,
			&amount,
			&f.Amount.Currency,
			&f.PayerAccount,
			&f.PayeeAccount,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan fee: %w", err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse fee amount %q: %w", amount, err)
		}
		f.Amount = money.Amount{Value: value, Currency: f.Amount.Currency}
		f.CreatedAt = fromMillis(createdAt)
		fees = append(fees, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fees: %w", err)
	}
	return fees, nil
}
