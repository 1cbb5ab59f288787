package engine

import (
	"context"
	"strings"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/command"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
)

const defaultPageSize = 200

// EventStore lists an aggregate's events in sequence order.
type EventStore interface {
	ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error)
}

// Applier folds events into state.
type Applier interface {
	Apply(state any, evt event.Event) (any, error)
}

// ReplayStateLoader rebuilds aggregate state from the full event history.
type ReplayStateLoader struct {
	Events       EventStore
	Applier      Applier
	StateFactory func() any
	PageSize     int
}

// Load replays every event of the aggregate and returns the folded state
// with the last applied sequence number.
func (l ReplayStateLoader) Load(ctx context.Context, aggregateID string) (any, uint64, error) {
	if l.Events == nil {
		return nil, 0, ErrEventStoreRequired
	}
	if l.Applier == nil {
		return nil, 0, ErrApplierRequired
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return nil, 0, command.ErrAggregateIDRequired
	}
	pageSize := l.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var state any
	if l.StateFactory != nil {
		state = l.StateFactory()
	}
	var lastSeq uint64
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		events, err := l.Events.ListEvents(ctx, aggregateID, lastSeq, pageSize)
		if err != nil {
			return nil, 0, err
		}
		for _, evt := range events {
			state, err = l.Applier.Apply(state, evt)
			if err != nil {
				return nil, 0, err
			}
			lastSeq = evt.Seq
		}
		if len(events) < pageSize {
			return state, lastSeq, nil
		}
	}
}
