package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
)

// Projector applies committed events to the read model exactly once.
//
// Events of one aggregate must reach the read model in sequence order. When
// Events is set, an event that arrives ahead of its predecessors first pulls
// the earlier events from the journal; otherwise it fails with
// storage.ErrProjectionGap and stays pending for CatchUp.
type Projector struct {
	Store   storage.ProjectionApplier
	Events  storage.EventStore
	Applier Applier
}

// Project applies evt unless its checkpoint already exists.
func (p Projector) Project(ctx context.Context, evt event.Event) error {
	if p.Store == nil {
		return fmt.Errorf("projection store is required")
	}
	_, err := p.Store.ApplyProjectionEventExactlyOnce(ctx, evt, p.Applier.Apply)
	if err == nil || !errors.Is(err, storage.ErrProjectionGap) || p.Events == nil || evt.Seq <= 1 {
		return err
	}
	earlier, listErr := p.Events.ListEvents(ctx, evt.AggregateID, 0, int(evt.Seq-1))
	if listErr != nil {
		return fmt.Errorf("list events before %s/%d: %w", evt.AggregateID, evt.Seq, listErr)
	}
	for _, prior := range earlier {
		if prior.Seq >= evt.Seq {
			break
		}
		if _, err := p.Store.ApplyProjectionEventExactlyOnce(ctx, prior, p.Applier.Apply); err != nil {
			return fmt.Errorf("project %s/%d: %w", prior.AggregateID, prior.Seq, err)
		}
	}
	_, err = p.Store.ApplyProjectionEventExactlyOnce(ctx, evt, p.Applier.Apply)
	return err
}

// CatchUp projects committed events that have no checkpoint yet, in pages of
// limit, and returns how many it applied.
func (p Projector) CatchUp(ctx context.Context, events storage.EventStore, limit int) (int, error) {
	if events == nil {
		return 0, fmt.Errorf("event store is required")
	}
	if limit <= 0 {
		limit = 200
	}
	applied := 0
	for {
		pending, err := events.ListUnprojectedEvents(ctx, limit)
		if err != nil {
			return applied, err
		}
		if len(pending) == 0 {
			return applied, nil
		}
		for _, evt := range pending {
			if err := p.Project(ctx, evt); err != nil {
				return applied, fmt.Errorf("project %s/%d: %w", evt.AggregateID, evt.Seq, err)
			}
			applied++
		}
	}
}
