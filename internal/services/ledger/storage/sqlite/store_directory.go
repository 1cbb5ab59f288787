package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
	"github.com/shopspring/decimal"
)

// GetParticipant looks a participant up by its account name.
func (s *Store) GetParticipant(ctx context.Context, name string) (storage.Participant, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Participant{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Participant{}, fmt.Errorf("participant name is required")
	}

	var (
		p         storage.Participant
		active    int
		createdAt int64
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, currency, active, created_at FROM participants WHERE name = ?`,
		name,
	).Scan(&p.ID, &p.Name, &p.Currency, &active, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Participant{}, storage.ErrNotFound
		}
		return storage.Participant{}, fmt.Errorf("get participant %s: %w", name, err)
	}
	p.Active = active != 0
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}

// PutParticipant inserts or updates a participant keyed by name. The id and
// creation time of an existing participant are preserved.
func (s *Store) PutParticipant(ctx context.Context, p storage.Participant) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("participant id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("participant name is required")
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock()
	}
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO participants (id, name, currency, active, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET currency = excluded.currency, active = excluded.active`,
		p.ID, p.Name, p.Currency, boolToInt(p.Active), toMillis(createdAt),
	); err != nil {
		return fmt.Errorf("put participant %s: %w", p.Name, err)
	}
	return nil
}

const chargeColumns = `id, name, code, charge_type, rate_type, rate, minimum, maximum, payer_role, payee_role, active`

// ListActiveCharges returns active charges ordered by name.
func (s *Store) ListActiveCharges(ctx context.Context) ([]fee.Charge, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+chargeColumns+` FROM charges WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list active charges: %w", err)
	}
	defer rows.Close()

	var charges []fee.Charge
	for rows.Next() {
		charge, err := scanCharge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan charge: %w", err)
		}
		charges = append(charges, charge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate charges: %w", err)
	}
	return charges, nil
}

// PutCharge inserts or updates a charge keyed by name and returns its id.
func (s *Store) PutCharge(ctx context.Context, charge fee.Charge) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if err := charge.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO charges (name, code, charge_type, rate_type, rate, minimum, maximum, payer_role, payee_role, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
		     code = excluded.code,
		     charge_type = excluded.charge_type,
		     rate_type = excluded.rate_type,
		     rate = excluded.rate,
		     minimum = excluded.minimum,
		     maximum = excluded.maximum,
		     payer_role = excluded.payer_role,
		     payee_role = excluded.payee_role,
		     active = excluded.active
		 RETURNING id`,
		charge.Name,
		charge.Code,
		charge.ChargeType,
		string(charge.RateType),
		charge.Rate.String(),
		toNullDecimal(charge.Minimum),
		toNullDecimal(charge.Maximum),
		string(charge.PayerRole),
		string(charge.PayeeRole),
		boolToInt(charge.Active),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("put charge %s: %w", charge.Name, err)
	}
	return id, nil
}

func scanCharge(row rowScanner) (fee.Charge, error) {
	var (
		charge    fee.Charge
		rateType  string
		rate      string
		minimum   sql.NullString
		maximum   sql.NullString
		payerRole string
		payeeRole string
		active    int
	)
	if err := row.Scan(
		&charge.ID,
		&charge.Name,
		&charge.Code,
		&charge.ChargeType,
		&rateType,
		&rate,
		&minimum,
		&maximum,
		&payerRole,
		&payeeRole,
		&active,
	); err != nil {
		return fee.Charge{}, err
	}
	parsedRate, err := decimal.NewFromString(rate)
	if err != nil {
		return fee.Charge{}, fmt.Errorf("parse rate of %s: %w", charge.Name, err)
	}
	charge.Rate = parsedRate
	if charge.Minimum, err = fromNullDecimal(minimum); err != nil {
		return fee.Charge{}, fmt.Errorf("parse minimum of %s: %w", charge.Name, err)
	}
	if charge.Maximum, err = fromNullDecimal(maximum); err != nil {
		return fee.Charge{}, fmt.Errorf("parse maximum of %s: %w", charge.Name, err)
	}
	charge.RateType = fee.RateType(rateType)
	charge.PayerRole = fee.Role(payerRole)
	charge.PayeeRole = fee.Role(payeeRole)
	charge.Active = active != 0
	return charge, nil
}
