// Package settlement models settlement batches and the netting of settled
// flows between participants.
package settlement

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
)

// Type distinguishes what a settlement batch pays out.
type Type string

const (
	// TypeFee settles fees.
	TypeFee Type = "fee"
	// TypeTransfer settles executed transfers.
	TypeTransfer Type = "transfer"
)

// ErrInvalidSettlement marks a settlement that cannot be recorded.
var ErrInvalidSettlement = errors.New("invalid settlement")

// Settlement is one settlement run.
type Settlement struct {
	ID        string
	Type      Type
	CreatedAt time.Time
}

// New validates and builds a settlement.
func New(id string, typ Type, at time.Time) (Settlement, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Settlement{}, fmt.Errorf("%w: id is required", ErrInvalidSettlement)
	}
	if typ != TypeFee && typ != TypeTransfer {
		return Settlement{}, fmt.Errorf("%w: type %q", ErrInvalidSettlement, typ)
	}
	return Settlement{ID: id, Type: typ, CreatedAt: at.UTC()}, nil
}

// DedupeFees drops repeated fees by id, keeping first-seen order.
func DedupeFees(fees []fee.Fee) []fee.Fee {
	seen := make(map[int64]struct{}, len(fees))
	out := make([]fee.Fee, 0, len(fees))
	for _, f := range fees {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Flow is an amount owed by one participant to another.
type Flow struct {
	From   string
	To     string
	Amount money.Amount
}

type pairKey struct {
	from, to, currency string
}

// NetPositions sums flows per (from, to, currency) and nets each pair
// against its inverse, leaving at most one flow per participant pair and
// currency. Pairs that cancel out are dropped. The result is ordered by
// currency, then from, then to.
func NetPositions(flows []Flow) []Flow {
	totals := make(map[pairKey]decimal.Decimal)
	for _, flow := range flows {
		key := pairKey{from: flow.From, to: flow.To, currency: flow.Amount.Currency}
		totals[key] = totals[key].Add(flow.Amount.Value)
	}

	visited := make(map[pairKey]struct{}, len(totals))
	net := make([]Flow, 0, len(totals))
	for key, forward := range totals {
		if _, ok := visited[key]; ok {
			continue
		}
		inverse := pairKey{from: key.to, to: key.from, currency: key.currency}
		visited[key] = struct{}{}
		visited[inverse] = struct{}{}

		backward := totals[inverse]
		diff := forward.Sub(backward)
		switch diff.Sign() {
		case 1:
			net = append(net, Flow{From: key.from, To: key.to, Amount: money.Amount{Value: diff, Currency: key.currency}})
		case -1:
			net = append(net, Flow{From: key.to, To: key.from, Amount: money.Amount{Value: diff.Neg(), Currency: key.currency}})
		}
	}
	sort.Slice(net, func(i, j int) bool {
		a, b := net[i], net[j]
		if a.Amount.Currency != b.Amount.Currency {
			return a.Amount.Currency < b.Amount.Currency
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	return net
}
