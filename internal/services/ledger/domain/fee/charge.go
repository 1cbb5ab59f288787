// Package fee matches charge definitions against executed transfers and
// computes the resulting fees.
package fee

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultScale is the number of decimal places percentage fees round to.
const DefaultScale = 2

// RateType selects how a charge computes its amount.
type RateType string

const (
	// RateFlat charges the rate itself.
	RateFlat RateType = "flat"
	// RatePercent charges rate x amount; a rate of 0.5 is fifty percent.
	RatePercent RateType = "percent"
)

// Role names a party of a transfer that pays or receives a fee.
type Role string

const (
	// RoleSender is the transfer's payer.
	RoleSender Role = "sender"
	// RoleReceiver is the transfer's payee.
	RoleReceiver Role = "receiver"
	// RoleLedger is the hub account operating the ledger.
	RoleLedger Role = "ledger"
)

var (
	// ErrInvalidCharge marks a charge definition that cannot be evaluated.
	ErrInvalidCharge = errors.New("invalid charge")
	// ErrUnknownRole marks a role outside sender, receiver and ledger.
	ErrUnknownRole = errors.New("unknown fee role")
)

// Charge is a rate rule read from the charge directory.
type Charge struct {
	ID         int64
	Name       string
	Code       string
	ChargeType string
	RateType   RateType
	Rate       decimal.Decimal
	Minimum    decimal.NullDecimal
	Maximum    decimal.NullDecimal
	PayerRole  Role
	PayeeRole  Role
	Active     bool
}

// Validate checks the charge can be evaluated.
func (c Charge) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCharge)
	}
	switch c.RateType {
	case RateFlat, RatePercent:
	default:
		return fmt.Errorf("%w: %s has rate type %q", ErrInvalidCharge, c.Name, c.RateType)
	}
	if c.Rate.IsNegative() {
		return fmt.Errorf("%w: %s has negative rate", ErrInvalidCharge, c.Name)
	}
	if c.Minimum.Valid && c.Maximum.Valid && c.Minimum.Decimal.GreaterThan(c.Maximum.Decimal) {
		return fmt.Errorf("%w: %s minimum exceeds maximum", ErrInvalidCharge, c.Name)
	}
	for _, role := range []Role{c.PayerRole, c.PayeeRole} {
		if !role.Known() {
			return fmt.Errorf("%w: %s: %q", ErrUnknownRole, c.Name, role)
		}
	}
	return nil
}

// Known reports whether r is one of the defined roles.
func (r Role) Known() bool {
	switch r {
	case RoleSender, RoleReceiver, RoleLedger:
		return true
	default:
		return false
	}
}

// Admits reports whether amount falls within the charge's inclusive bounds.
func (c Charge) Admits(amount decimal.Decimal) bool {
	if c.Minimum.Valid && amount.LessThan(c.Minimum.Decimal) {
		return false
	}
	if c.Maximum.Valid && amount.GreaterThan(c.Maximum.Decimal) {
		return false
	}
	return true
}

// Compute returns the fee the charge levies on amount. Percentage fees are
// rounded half away from zero to scale decimal places.
func (c Charge) Compute(amount decimal.Decimal, scale int32) decimal.Decimal {
	if c.RateType == RatePercent {
		return c.Rate.Mul(amount).Round(scale)
	}
	return c.Rate
}

// Quote is a charge's computed amount for a prospective transfer.
type Quote struct {
	Name       string
	Code       string
	ChargeType string
	Amount     decimal.Decimal
}

// QuoteCharges returns quotes for the active sender-paid charges that admit
// amount, ordered by charge name. Like Generate, it fails on any active
// charge in range that cannot be evaluated.
func QuoteCharges(charges []Charge, amount decimal.Decimal, scale int32) ([]Quote, error) {
	candidates := make([]Charge, 0, len(charges))
	for _, charge := range charges {
		if !charge.Active || !charge.Admits(amount) {
			continue
		}
		if err := charge.Validate(); err != nil {
			return nil, err
		}
		if charge.PayerRole == RoleSender {
			candidates = append(candidates, charge)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Name < candidates[j].Name
	})
	quotes := make([]Quote, 0, len(candidates))
	for _, charge := range candidates {
		quotes = append(quotes, Quote{
			Name:       charge.Name,
			Code:       charge.Code,
			ChargeType: charge.ChargeType,
			Amount:     charge.Compute(amount, scale),
		})
	}
	return quotes, nil
}
