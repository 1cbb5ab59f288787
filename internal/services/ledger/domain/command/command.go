// Package command defines the command envelope and the decision a decider
// returns for it.
package command

import (
	"errors"
	"strings"
)

var (
	// ErrAggregateIDRequired indicates a missing aggregate id.
	ErrAggregateIDRequired = errors.New("aggregate id is required")
	// ErrTypeRequired indicates a missing command type.
	ErrTypeRequired = errors.New("command type is required")
	// ErrPayloadRequired indicates a command without a payload.
	ErrPayloadRequired = errors.New("command payload is required")
)

// Type identifies the command type string.
type Type string

// Command captures the canonical command envelope. Payload holds the typed
// command body that the decider dispatches on.
type Command struct {
	AggregateID string
	Type        Type
	ActorID     string
	RequestID   string
	Payload     any
}

// Normalize trims identifiers and checks the envelope is complete.
func Normalize(cmd Command) (Command, error) {
	cmd.AggregateID = strings.TrimSpace(cmd.AggregateID)
	cmd.ActorID = strings.TrimSpace(cmd.ActorID)
	cmd.RequestID = strings.TrimSpace(cmd.RequestID)
	cmd.Type = Type(strings.TrimSpace(string(cmd.Type)))
	if cmd.AggregateID == "" {
		return Command{}, ErrAggregateIDRequired
	}
	if cmd.Type == "" {
		return Command{}, ErrTypeRequired
	}
	if cmd.Payload == nil {
		return Command{}, ErrPayloadRequired
	}
	return cmd, nil
}
