package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
)

// Message is the wire form of a transfer notification.
type Message struct {
	AggregateID string          `json:"aggregate_id"`
	Seq         uint64          `json:"seq"`
	Type        event.Type      `json:"type"`
	Timestamp   time.Time       `json:"timestamp"`
	ActorID     string          `json:"actor_id,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	ChainHash   string          `json:"chain_hash"`
}

// NewMessage builds the notification for a stored event.
func NewMessage(evt event.Event) Message {
	payload := json.RawMessage(evt.PayloadJSON)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Message{
		AggregateID: evt.AggregateID,
		Seq:         evt.Seq,
		Type:        evt.Type,
		Timestamp:   evt.Timestamp.UTC(),
		ActorID:     evt.ActorID,
		RequestID:   evt.RequestID,
		Payload:     payload,
		ChainHash:   evt.ChainHash,
	}
}

// ID identifies the message for consumer-side deduplication.
func (m Message) ID() string {
	return fmt.Sprintf("%s:%d", m.AggregateID, m.Seq)
}

// RoutingKey derives the topic routing key, e.g. "transfer.TransferExecuted".
func (m Message) RoutingKey() string {
	return "transfer." + string(m.Type)
}
