package projection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/transfer"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
)

// Applier writes transfer events into the read model.
type Applier struct {
	// HubAccount receives fees whose role is the ledger itself.
	HubAccount string
	// FeeScale is the rounding scale of percentage fees.
	FeeScale int32
}

// Apply projects one event through store. store must be bound to the
// transaction that also records the event's checkpoint.
func (a Applier) Apply(ctx context.Context, evt event.Event, store storage.ProjectionStore) error {
	if store == nil {
		return fmt.Errorf("projection store is required")
	}
	if strings.TrimSpace(evt.AggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	payload, err := event.Decode(evt)
	if err != nil {
		return err
	}
	at := ensureTimestamp(evt.Timestamp)

	var change storage.StateChange
	switch p := payload.(type) {
	case event.TransferPrepared:
		change, err = a.applyPrepared(ctx, store, evt, p, at)
	case event.TransferExecuted:
		change, err = a.applyExecuted(ctx, store, evt, p, at)
	case event.TransferRejected:
		change, err = a.applyRejected(ctx, store, evt, p, at)
	case event.TransferSettled:
		change, err = a.applySettled(ctx, store, evt, p, at)
	default:
		return fmt.Errorf("unhandled projection event type: %s", evt.Type)
	}
	if err != nil {
		return err
	}
	if err := store.AppendStateChange(ctx, evt.AggregateID, change); err != nil {
		return err
	}
	return store.EnqueueNotification(ctx, evt)
}

func (a Applier) applyPrepared(ctx context.Context, store storage.ProjectionStore, evt event.Event, p event.TransferPrepared, at time.Time) (storage.StateChange, error) {
	record := storage.Transfer{
		ID:         evt.AggregateID,
		Payer:      p.Payer,
		Payee:      p.Payee,
		Amount:     p.Amount,
		Condition:  p.Condition,
		ExpiresAt:  p.ExpiresAt,
		ILPPacket:  p.ILPPacket,
		Status:     transfer.StatusReceived,
		LastSeq:    evt.Seq,
		PreparedAt: at,
		UpdatedAt:  at,
	}
	if err := store.InsertTransfer(ctx, record); err != nil {
		return storage.StateChange{}, err
	}
	return storage.StateChange{Seq: evt.Seq, Status: transfer.StatusReceived, ChangedAt: at}, nil
}

func (a Applier) applyExecuted(ctx context.Context, store storage.ProjectionStore, evt event.Event, p event.TransferExecuted, at time.Time) (storage.StateChange, error) {
	if err := store.MarkTransferExecuted(ctx, evt.AggregateID, p.Fulfillment, evt.Seq, at); err != nil {
		return storage.StateChange{}, err
	}
	if err := a.levyFees(ctx, store, evt.AggregateID, at); err != nil {
		return storage.StateChange{}, err
	}
	return storage.StateChange{Seq: evt.Seq, Status: transfer.StatusCommitted, ChangedAt: at}, nil
}

// levyFees stores the fees every active charge levies on an executed
// transfer. Fees already present for a charge are kept as they are.
func (a Applier) levyFees(ctx context.Context, store storage.ProjectionStore, transferID string, at time.Time) error {
	record, err := store.GetTransfer(ctx, transferID)
	if err != nil {
		return fmt.Errorf("load executed transfer %s: %w", transferID, err)
	}
	charges, err := store.ListActiveCharges(ctx)
	if err != nil {
		return err
	}
	scale := a.FeeScale
	if scale <= 0 {
		scale = fee.DefaultScale
	}
	fees, err := fee.Generate(transferID, record.Amount, fee.Parties{
		Payer: record.Payer,
		Payee: record.Payee,
		Hub:   a.HubAccount,
	}, charges, scale, at)
	if err != nil {
		return fmt.Errorf("generate fees for %s: %w", transferID, err)
	}
	for _, f := range fees {
		if _, err := store.InsertFeeIfAbsent(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (a Applier) applyRejected(ctx context.Context, store storage.ProjectionStore, evt event.Event, p event.TransferRejected, at time.Time) (storage.StateChange, error) {
	payeeRejected := p.Reason == transfer.ReasonCancelled
	if err := store.MarkTransferRejected(ctx, evt.AggregateID, p.Reason, p.Message, payeeRejected, evt.Seq, at); err != nil {
		return storage.StateChange{}, err
	}
	return storage.StateChange{Seq: evt.Seq, Status: transfer.StatusAborted, Reason: p.Reason, ChangedAt: at}, nil
}

func (a Applier) applySettled(ctx context.Context, store storage.ProjectionStore, evt event.Event, p event.TransferSettled, at time.Time) (storage.StateChange, error) {
	if err := store.MarkTransferSettled(ctx, evt.AggregateID, p.SettlementID, evt.Seq, at); err != nil {
		return storage.StateChange{}, err
	}
	return storage.StateChange{Seq: evt.Seq, Status: transfer.StatusSettled, ChangedAt: at}, nil
}

// ensureTimestamp normalizes timestamps so projections always persist UTC.
func ensureTimestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}
