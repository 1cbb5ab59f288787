package event

import (
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
)

// TransferPrepared carries the terms of a new transfer.
type TransferPrepared struct {
	TransferID string       `json:"transfer_id"`
	Payer      string       `json:"payer"`
	Payee      string       `json:"payee"`
	Amount     money.Amount `json:"amount"`
	Condition  string       `json:"condition,omitempty"`
	ExpiresAt  *time.Time   `json:"expires_at,omitempty"`
	ILPPacket  string       `json:"ilp_packet,omitempty"`
}

// TransferExecuted carries the fulfillment that released escrow. The
// fulfillment is empty for unconditional transfers.
type TransferExecuted struct {
	Fulfillment string `json:"fulfillment"`
}

// TransferRejected carries why a transfer was aborted.
type TransferRejected struct {
	Reason      string `json:"reason"`
	Message     string `json:"message,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// TransferSettled names the settlement that paid the transfer out.
type TransferSettled struct {
	SettlementID string `json:"settlement_id"`
}
