package fee

import (
	"fmt"
	"strings"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
)

// Fee is a charge levied on one executed transfer. At most one exists per
// (TransferID, ChargeID).
type Fee struct {
	ID           int64
	TransferID   string
	ChargeID     int64
	Amount       money.Amount
	PayerAccount string
	PayeeAccount string
	CreatedAt    time.Time
}

// Parties are the concrete accounts fee roles resolve to.
type Parties struct {
	Payer string
	Payee string
	Hub   string
}

// Resolve maps role to an account.
func (p Parties) Resolve(role Role) (string, error) {
	var account string
	switch role {
	case RoleSender:
		account = p.Payer
	case RoleReceiver:
		account = p.Payee
	case RoleLedger:
		account = p.Hub
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if strings.TrimSpace(account) == "" {
		return "", fmt.Errorf("no account configured for fee role %s", role)
	}
	return account, nil
}

// Generate computes one fee per active charge that admits the transfer's
// amount. It is pure; persisting each fee exactly once is the caller's job.
func Generate(transferID string, amount money.Amount, parties Parties, charges []Charge, scale int32, at time.Time) ([]Fee, error) {
	fees := make([]Fee, 0, len(charges))
	for _, charge := range charges {
		if !charge.Active || !charge.Admits(amount.Value) {
			continue
		}
		if err := charge.Validate(); err != nil {
			return nil, err
		}
		payer, err := parties.Resolve(charge.PayerRole)
		if err != nil {
			return nil, fmt.Errorf("charge %s payer: %w", charge.Name, err)
		}
		payee, err := parties.Resolve(charge.PayeeRole)
		if err != nil {
			return nil, fmt.Errorf("charge %s payee: %w", charge.Name, err)
		}
		fees = append(fees, Fee{
			TransferID:   transferID,
			ChargeID:     charge.ID,
			Amount:       money.Amount{Value: charge.Compute(amount.Value, scale), Currency: amount.Currency},
			PayerAccount: payer,
			PayeeAccount: payee,
			CreatedAt:    at,
		})
	}
	return fees, nil
}
