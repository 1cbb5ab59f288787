package transfer

import (
	"errors"
	"fmt"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
)

// ErrUnsupportedState indicates a fold over a state value of the wrong type.
var ErrUnsupportedState = errors.New("unsupported transfer state type")

// Apply folds one event into state. It is pure: the same history always
// produces the same state.
func Apply(state State, evt event.Event) (State, error) {
	payload, err := event.Decode(evt)
	if err != nil {
		return state, err
	}
	switch p := payload.(type) {
	case event.TransferPrepared:
		if state.Created {
			return state, fmt.Errorf("transfer %s prepared twice at seq %d", evt.AggregateID, evt.Seq)
		}
		state.ID = evt.AggregateID
		state.Created = true
		state.Payer = p.Payer
		state.Payee = p.Payee
		state.Amount = p.Amount
		state.Condition = p.Condition
		state.ExpiresAt = p.ExpiresAt
		state.ILPPacket = p.ILPPacket
		state.Status = StatusReceived
		state.PreparedAt = evt.Timestamp
	case event.TransferExecuted:
		if err := transition(&state, StatusCommitted, evt); err != nil {
			return state, err
		}
		state.Fulfillment = p.Fulfillment
		state.ExecutedAt = evt.Timestamp
	case event.TransferRejected:
		if err := transition(&state, StatusAborted, evt); err != nil {
			return state, err
		}
		state.RejectionReason = p.Reason
		state.RejectionMessage = p.Message
		state.RejectedBy = p.RequestedBy
		state.RejectedAt = evt.Timestamp
	case event.TransferSettled:
		if err := transition(&state, StatusSettled, evt); err != nil {
			return state, err
		}
		state.SettlementID = p.SettlementID
		state.SettledAt = evt.Timestamp
	}
	if evt.Seq > 0 {
		state.LastSeq = evt.Seq
	}
	return state, nil
}

func transition(state *State, to Status, evt event.Event) error {
	if !state.Created {
		return fmt.Errorf("transfer %s: %s before prepare", evt.AggregateID, evt.Type)
	}
	if !CanTransition(state.Status, to) {
		return fmt.Errorf("transfer %s: illegal transition %s -> %s at seq %d", evt.AggregateID, state.Status, to, evt.Seq)
	}
	state.Status = to
	return nil
}

// Fold replays events over an empty state.
func Fold(events []event.Event) (State, error) {
	var state State
	for _, evt := range events {
		next, err := Apply(state, evt)
		if err != nil {
			return state, err
		}
		state = next
	}
	return state, nil
}

// Folder adapts Apply to the engine's untyped applier contract.
type Folder struct{}

// Apply implements the engine applier.
func (Folder) Apply(state any, evt event.Event) (any, error) {
	current, err := asState(state)
	if err != nil {
		return nil, err
	}
	return Apply(current, evt)
}

func asState(state any) (State, error) {
	switch typed := state.(type) {
	case nil:
		return State{}, nil
	case State:
		return typed, nil
	case *State:
		if typed == nil {
			return State{}, nil
		}
		return *typed, nil
	default:
		return State{}, fmt.Errorf("%w: %T", ErrUnsupportedState, state)
	}
}
