// Package event defines the transfer event envelope, its tagged payloads, and
// the canonical hashes that bind events into a per-aggregate chain.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type identifies a domain event.
type Type string

const (
	// TypeTransferPrepared records a new transfer and its escrow terms.
	TypeTransferPrepared Type = "TransferPrepared"
	// TypeTransferExecuted records the fulfillment that released escrow.
	TypeTransferExecuted Type = "TransferExecuted"
	// TypeTransferRejected records an aborted transfer.
	TypeTransferRejected Type = "TransferRejected"
	// TypeTransferSettled records the settlement that paid out a transfer.
	TypeTransferSettled Type = "TransferSettled"
)

var (
	// ErrAggregateIDRequired indicates a missing aggregate id.
	ErrAggregateIDRequired = errors.New("aggregate id is required")
	// ErrTypeUnknown indicates an event type outside the transfer union.
	ErrTypeUnknown = errors.New("event type is not known")
	// ErrPayloadInvalid indicates a payload that does not decode.
	ErrPayloadInvalid = errors.New("event payload is invalid")
	// ErrHashRequired indicates a chain hash requested before the event hash.
	ErrHashRequired = errors.New("event hash is required")
)

// Event is one immutable entry of an aggregate's history. Seq and the
// integrity fields are assigned by the event store at append time.
type Event struct {
	AggregateID string
	Seq         uint64
	Type        Type
	Timestamp   time.Time
	ActorID     string
	RequestID   string
	PayloadJSON []byte

	Hash           string
	PrevHash       string
	ChainHash      string
	Signature      string
	SignatureKeyID string
}

// New builds an unsequenced event carrying payload.
func New(aggregateID string, typ Type, at time.Time, payload any) (Event, error) {
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return Event{}, ErrAggregateIDRequired
	}
	if !typ.Known() {
		return Event{}, fmt.Errorf("%w: %s", ErrTypeUnknown, typ)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{
		AggregateID: aggregateID,
		Type:        typ,
		Timestamp:   at.UTC(),
		PayloadJSON: data,
	}, nil
}

// Known reports whether t is one of the transfer event types.
func (t Type) Known() bool {
	switch t {
	case TypeTransferPrepared, TypeTransferExecuted, TypeTransferRejected, TypeTransferSettled:
		return true
	default:
		return false
	}
}

// WithActor returns a copy of e attributed to actorID and requestID.
func (e Event) WithActor(actorID, requestID string) Event {
	e.ActorID = strings.TrimSpace(actorID)
	e.RequestID = strings.TrimSpace(requestID)
	return e
}

// Decode unmarshals the payload into its typed form. The result is one of
// TransferPrepared, TransferExecuted, TransferRejected or TransferSettled.
func Decode(evt Event) (any, error) {
	var (
		payload any
		err     error
	)
	switch evt.Type {
	case TypeTransferPrepared:
		var p TransferPrepared
		err = json.Unmarshal(evt.PayloadJSON, &p)
		payload = p
	case TypeTransferExecuted:
		var p TransferExecuted
		err = json.Unmarshal(evt.PayloadJSON, &p)
		payload = p
	case TypeTransferRejected:
		var p TransferRejected
		err = json.Unmarshal(evt.PayloadJSON, &p)
		payload = p
	case TypeTransferSettled:
		var p TransferSettled
		err = json.Unmarshal(evt.PayloadJSON, &p)
		payload = p
	default:
		return nil, fmt.Errorf("%w: %s", ErrTypeUnknown, evt.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadInvalid, evt.Type, err)
	}
	return payload, nil
}

type hashEnvelope struct {
	AggregateID string          `json:"aggregate_id"`
	Type        string          `json:"type"`
	Timestamp   string          `json:"timestamp"`
	ActorID     string          `json:"actor_id,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

type chainEnvelope struct {
	AggregateID string `json:"aggregate_id"`
	Seq         uint64 `json:"seq"`
	EventHash   string `json:"event_hash"`
	PrevHash    string `json:"prev_hash"`
}

// EventHash returns the hex SHA-256 of the event's canonical content. It
// excludes Seq so a hash can be computed before the store assigns one.
func EventHash(evt Event) (string, error) {
	payload := evt.PayloadJSON
	if len(payload) == 0 {
		payload = []byte("null")
	}
	if !json.Valid(payload) {
		return "", fmt.Errorf("%w: %s payload is not json", ErrPayloadInvalid, evt.Type)
	}
	return hashJSON(hashEnvelope{
		AggregateID: evt.AggregateID,
		Type:        string(evt.Type),
		Timestamp:   evt.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorID:     evt.ActorID,
		RequestID:   evt.RequestID,
		Payload:     payload,
	})
}

// ChainHash links evt to the chain hash of its predecessor.
func ChainHash(evt Event, prevHash string) (string, error) {
	if strings.TrimSpace(evt.Hash) == "" {
		return "", ErrHashRequired
	}
	return hashJSON(chainEnvelope{
		AggregateID: evt.AggregateID,
		Seq:         evt.Seq,
		EventHash:   evt.Hash,
		PrevHash:    prevHash,
	})
}

func hashJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal hash envelope: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
