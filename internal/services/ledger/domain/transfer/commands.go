package transfer

import (
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/command"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
)

// Command types handled by the transfer decider.
const (
	CommandTypePrepare command.Type = "transfer.prepare"
	CommandTypeFulfill command.Type = "transfer.fulfill"
	CommandTypeReject  command.Type = "transfer.reject"
	CommandTypeSettle  command.Type = "transfer.settle"
)

// Prepare proposes a new transfer. A non-empty Condition makes the transfer
// conditional and requires ExpiresAt.
type Prepare struct {
	Payer     string
	Payee     string
	Amount    money.Amount
	Condition string
	ExpiresAt *time.Time
	ILPPacket string
}

// Fulfill presents the preimage for a conditional transfer.
type Fulfill struct {
	Fulfillment string
}

// Reject aborts a prepared conditional transfer. RequestedBy, when set,
// must name the payee.
type Reject struct {
	Reason      string
	Message     string
	RequestedBy string
}

// Settle links an executed transfer to a settlement.
type Settle struct {
	SettlementID string
}

// NewCommand wraps payload in an envelope for transferID.
func NewCommand(transferID, actorID, requestID string, payload any) command.Command {
	var typ command.Type
	switch payload.(type) {
	case Prepare:
		typ = CommandTypePrepare
	case Fulfill:
		typ = CommandTypeFulfill
	case Reject:
		typ = CommandTypeReject
	case Settle:
		typ = CommandTypeSettle
	}
	return command.Command{
		AggregateID: transferID,
		Type:        typ,
		ActorID:     actorID,
		RequestID:   requestID,
		Payload:     payload,
	}
}
