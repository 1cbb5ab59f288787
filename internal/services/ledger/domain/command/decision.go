package command

import (
	apperrors "github.com/mojaloop/central-ledger-sub000/internal/platform/errors"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
)

// Decision represents the pure outcome of handling a command.
type Decision struct {
	Events     []event.Event
	Rejections []Rejection
	// Replayed marks a command that repeats an outcome already recorded. It
	// emits no events and is not an error.
	Replayed bool
}

// Rejection captures a domain-level reason a command was declined.
type Rejection struct {
	Code     apperrors.Code
	Message  string
	Metadata map[string]string
}

// Accept returns a decision that emits the provided events.
func Accept(events ...event.Event) Decision {
	return Decision{Events: append([]event.Event(nil), events...)}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// Replay returns a decision for an idempotent repeat.
func Replay() Decision {
	return Decision{Replayed: true}
}

// Err converts the first rejection into a domain error, or nil when the
// decision was not rejected.
func (d Decision) Err() error {
	if len(d.Rejections) == 0 {
		return nil
	}
	first := d.Rejections[0]
	return apperrors.WithMetadata(first.Code, first.Message, first.Metadata)
}
