// Package transfer holds the transfer aggregate: its states, the fold that
// rebuilds state from events, and the decider that turns commands into
// events.
package transfer

import (
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
)

// Status is the lifecycle state of a transfer.
type Status string

const (
	// StatusReceived is a prepared transfer awaiting fulfillment.
	StatusReceived Status = "RECEIVED"
	// StatusCommitted is a fulfilled (executed) transfer.
	StatusCommitted Status = "COMMITTED"
	// StatusAborted is a rejected or expired transfer.
	StatusAborted Status = "ABORTED"
	// StatusSettled is a transfer whose funds were paid out.
	StatusSettled Status = "SETTLED"
)

// Rejection reasons with read-model meaning.
const (
	ReasonCancelled = "cancelled"
	ReasonExpired   = "expired"
)

// State is the transfer aggregate folded from its events.
type State struct {
	ID          string
	Created     bool
	Payer       string
	Payee       string
	Amount      money.Amount
	Condition   string
	ExpiresAt   *time.Time
	ILPPacket   string
	Status      Status
	Fulfillment string

	RejectionReason  string
	RejectionMessage string
	RejectedBy       string
	SettlementID     string

	PreparedAt time.Time
	ExecutedAt time.Time
	RejectedAt time.Time
	SettledAt  time.Time

	LastSeq uint64
}

// Conditional reports whether the transfer escrows funds behind a condition.
func (s State) Conditional() bool {
	return s.Condition != ""
}

// Executed reports whether the transfer has released escrow.
func (s State) Executed() bool {
	return s.Status == StatusCommitted || s.Status == StatusSettled
}

// Expired reports whether the transfer's expiration is before now.
func (s State) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusReceived:
		return to == StatusCommitted || to == StatusAborted
	case StatusCommitted:
		return to == StatusSettled
	default:
		return false
	}
}
