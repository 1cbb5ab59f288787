package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	apperrors "github.com/mojaloop/central-ledger-sub000/internal/platform/errors"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/command"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
)

// DefaultMaxAttempts bounds how often a command is re-decided after losing
// a sequence race.
const DefaultMaxAttempts = 8

// StateLoader loads domain state and the sequence it reflects.
type StateLoader interface {
	Load(ctx context.Context, aggregateID string) (state any, lastSeq uint64, err error)
}

// Decider returns a decision for a command.
type Decider interface {
	Decide(state any, cmd command.Command, now func() time.Time) command.Decision
}

// EventJournal appends events atomically after expectedSeq. It returns
// ErrSequenceConflict when the aggregate moved past expectedSeq.
type EventJournal interface {
	AppendEvents(ctx context.Context, aggregateID string, expectedSeq uint64, events []event.Event) ([]event.Event, error)
}

// Projector applies a committed event to the read model.
type Projector interface {
	Project(ctx context.Context, evt event.Event) error
}

// Handler validates, decides, persists, and projects commands.
type Handler struct {
	Loader      StateLoader
	Decider     Decider
	Journal     EventJournal
	Applier     Applier
	Projector   Projector
	Logger      *zap.Logger
	Tracer      trace.Tracer
	Now         func() time.Time
	MaxAttempts int
}

// Result captures execution outcomes.
type Result struct {
	Decision command.Decision
	State    any
}

// Execute runs cmd to completion.
//
// Rejections are returned as domain errors alongside the loaded state. A
// projection failure is returned as PROJECTION_FAILED marked non-retryable:
// the events are committed and the result still carries the folded state.
func (h Handler) Execute(ctx context.Context, cmd command.Command) (result Result, err error) {
	cmd, err = command.Normalize(cmd)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeValidation, err.Error(), err)
	}
	if h.Loader == nil {
		return Result{}, ErrLoaderRequired
	}
	if h.Decider == nil {
		return Result{}, ErrDeciderRequired
	}
	if h.Journal == nil {
		return Result{}, ErrJournalRequired
	}
	if h.Applier == nil {
		return Result{}, ErrApplierRequired
	}

	ctx, span := h.tracer().Start(ctx, "ledger.engine/Execute", trace.WithAttributes(
		attribute.String("ledger.command", string(cmd.Type)),
		attribute.String("ledger.aggregate_id", cmd.AggregateID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	maxAttempts := h.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := h.Now
	if now == nil {
		now = time.Now
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		state, lastSeq, err := h.Loader.Load(ctx, cmd.AggregateID)
		if err != nil {
			return Result{}, fmt.Errorf("load %s: %w", cmd.AggregateID, err)
		}
		decision := h.Decider.Decide(state, cmd, now)
		if rejection := decision.Err(); rejection != nil {
			return Result{Decision: decision, State: state}, rejection
		}
		if len(decision.Events) == 0 {
			return Result{Decision: decision, State: state}, nil
		}

		stored, err := h.Journal.AppendEvents(ctx, cmd.AggregateID, lastSeq, decision.Events)
		if errors.Is(err, ErrSequenceConflict) {
			span.AddEvent("sequence conflict", trace.WithAttributes(attribute.Int("attempt", attempt)))
			h.logger().Debug("sequence conflict, retrying",
				zap.String("aggregate_id", cmd.AggregateID),
				zap.Uint64("expected_seq", lastSeq),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("append %s: %w", cmd.AggregateID, err)
		}
		decision.Events = stored

		for _, evt := range stored {
			state, err = h.Applier.Apply(state, evt)
			if err != nil {
				return Result{Decision: decision}, wrapNonRetryable(fmt.Errorf("fold %s seq %d: %w", evt.Type, evt.Seq, err))
			}
		}
		result := Result{Decision: decision, State: state}
		if err := h.project(ctx, stored); err != nil {
			return result, err
		}
		return result, nil
	}
	return Result{}, apperrors.WithMetadata(apperrors.CodeConcurrentModification,
		fmt.Sprintf("aggregate %s kept changing after %d attempts", cmd.AggregateID, maxAttempts),
		map[string]string{"AggregateID": cmd.AggregateID})
}

func (h Handler) project(ctx context.Context, events []event.Event) error {
	if h.Projector == nil {
		return nil
	}
	for _, evt := range events {
		if err := h.Projector.Project(ctx, evt); err != nil {
			h.logger().Error("projection failed; event is committed and the read model is behind",
				zap.String("event_type", string(evt.Type)),
				zap.String("aggregate_id", evt.AggregateID),
				zap.Uint64("seq", evt.Seq),
				zap.Error(err))
			return wrapNonRetryable(apperrors.WrapWithMetadata(apperrors.CodeProjectionFailed,
				fmt.Sprintf("project %s for %s seq %d", evt.Type, evt.AggregateID, evt.Seq),
				map[string]string{
					"EventType":   string(evt.Type),
					"AggregateID": evt.AggregateID,
					"Seq":         fmt.Sprintf("%d", evt.Seq),
				},
				err))
		}
	}
	return nil
}

func (h Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h Handler) tracer() trace.Tracer {
	if h.Tracer == nil {
		return noop.NewTracerProvider().Tracer("ledger.engine")
	}
	return h.Tracer
}
