package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/transfer"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
)

func TestApplyProjectionEventExactlyOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	stored, err := store.AppendEvents(ctx, "t-1", 0, []event.Event{preparedEvent(t, "t-1")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	calls := 0
	apply := func(ctx context.Context, evt event.Event, tx storage.ProjectionStore) error {
		calls++
		return tx.InsertTransfer(ctx, storage.Transfer{
			ID:         evt.AggregateID,
			Payer:      "dfsp1",
			Payee:      "dfsp2",
			Amount:     mustAmount(t, "100", "USD"),
			Status:     transfer.StatusReceived,
			LastSeq:    evt.Seq,
			PreparedAt: evt.Timestamp,
			UpdatedAt:  evt.Timestamp,
		})
	}

	applied, err := store.ApplyProjectionEventExactlyOnce(ctx, stored[0], apply)
	if err != nil || !applied {
		t.Fatalf("first apply: applied=%v err=%v", applied, err)
	}
	applied, err = store.ApplyProjectionEventExactlyOnce(ctx, stored[0], apply)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if applied || calls != 1 {
		t.Fatalf("expected duplicate to be skipped, applied=%v calls=%d", applied, calls)
	}
}

func TestApplyProjectionEventRollsBackOnError(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	stored, err := store.AppendEvents(ctx, "t-1", 0, []event.Event{preparedEvent(t, "t-1")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	boom := errors.New("boom")
	_, err = store.ApplyProjectionEventExactlyOnce(ctx, stored[0], func(ctx context.Context, evt event.Event, tx storage.ProjectionStore) error {
		if err := tx.EnqueueNotification(ctx, evt); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected apply error, got %v", err)
	}

	pending, err := store.ListUnprojectedEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list unprojected: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected checkpoint to roll back, got %d pending", len(pending))
	}
	summary, err := store.GetNotificationOutboxSummary(ctx)
	if err != nil {
		t.Fatalf("outbox summary: %v", err)
	}
	if summary.Pending != 0 {
		t.Fatalf("expected notification to roll back, got %+v", summary)
	}
}

func TestTransferLifecycleWrites(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	expires := testNow.Add(time.Minute)
	seedTransfer(t, store, "t-1", transfer.StatusReceived, &expires)
	if err := store.AppendStateChange(ctx, "t-1", storage.StateChange{Seq: 1, Status: transfer.StatusReceived, ChangedAt: testNow}); err != nil {
		t.Fatalf("append state change: %v", err)
	}

	got, err := store.GetTransfer(ctx, "t-1")
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if got.Fulfillment != nil {
		t.Fatal("expected no fulfillment before execution")
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("expected expiration %v, got %v", expires, got.ExpiresAt)
	}

	if err := store.MarkTransferExecuted(ctx, "t-1", "ful", 2, testNow); err != nil {
		t.Fatalf("mark executed: %v", err)
	}
	if err := store.AppendStateChange(ctx, "t-1", storage.StateChange{Seq: 2, Status: transfer.StatusCommitted, ChangedAt: testNow}); err != nil {
		t.Fatalf("append state change: %v", err)
	}
	if err := store.MarkTransferSettled(ctx, "t-1", "s-1", 3, testNow); err != nil {
		t.Fatalf("mark settled: %v", err)
	}

	got, err = store.GetTransfer(ctx, "t-1")
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if got.Status != transfer.StatusSettled || got.SettlementID != "s-1" || got.LastSeq != 3 {
		t.Fatalf("unexpected transfer %+v", got)
	}
	if got.Fulfillment == nil || *got.Fulfillment != "ful" {
		t.Fatalf("expected fulfillment ful, got %v", got.Fulfillment)
	}
	if len(got.Timeline) != 2 || got.Timeline[1].Status != transfer.StatusCommitted {
		t.Fatalf("unexpected timeline %+v", got.Timeline)
	}
}

func TestTransferUpdatesFollowSequence(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	seedTransfer(t, store, "t-1", transfer.StatusReceived, nil)

	err := store.MarkTransferSettled(ctx, "t-1", "s-1", 3, testNow)
	if !errors.Is(err, storage.ErrProjectionGap) {
		t.Fatalf("expected gap for seq 3 on seq 1, got %v", err)
	}
	got, err := store.GetTransfer(ctx, "t-1")
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if got.Status != transfer.StatusReceived || got.SettlementID != "" || got.LastSeq != 1 {
		t.Fatalf("expected untouched transfer, got %+v", got)
	}

	if err := store.MarkTransferExecuted(ctx, "t-1", "ful", 2, testNow); err != nil {
		t.Fatalf("mark executed: %v", err)
	}
	if err := store.MarkTransferSettled(ctx, "t-1", "s-1", 3, testNow); err != nil {
		t.Fatalf("mark settled: %v", err)
	}
	// A stale event arriving after the row moved on leaves it alone.
	if err := store.MarkTransferExecuted(ctx, "t-1", "other", 2, testNow); err != nil {
		t.Fatalf("replay executed: %v", err)
	}

	got, err = store.GetTransfer(ctx, "t-1")
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if got.Status != transfer.StatusSettled || got.SettlementID != "s-1" || got.LastSeq != 3 {
		t.Fatalf("unexpected transfer %+v", got)
	}
	if got.Fulfillment == nil || *got.Fulfillment != "ful" {
		t.Fatalf("expected fulfillment ful, got %v", got.Fulfillment)
	}
}

func TestMarkTransferRejectedMissing(t *testing.T) {
	store := openTestStore(t)
	err := store.MarkTransferRejected(t.Context(), "missing", transfer.ReasonCancelled, "", true, 2, testNow)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetTransferNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetTransfer(t.Context(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListExpiredTransfers(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	past := testNow.Add(-time.Minute)
	future := testNow.Add(time.Minute)
	seedTransfer(t, store, "expired", transfer.StatusReceived, &past)
	seedTransfer(t, store, "pending", transfer.StatusReceived, &future)
	seedTransfer(t, store, "done", transfer.StatusCommitted, &past)

	expired, err := store.ListExpiredTransfers(ctx, testNow, 10)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "expired" {
		t.Fatalf("expected only expired transfer, got %+v", expired)
	}
}

func TestListUnsettledExecutedTransfers(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	seedTransfer(t, store, "a", transfer.StatusCommitted, nil)
	seedTransfer(t, store, "b", transfer.StatusCommitted, nil)
	seedTransfer(t, store, "c", transfer.StatusReceived, nil)
	if err := store.MarkTransferSettled(ctx, "b", "s-1", 2, testNow); err != nil {
		t.Fatalf("mark settled: %v", err)
	}

	unsettled, err := store.ListUnsettledExecutedTransfers(ctx, 10)
	if err != nil {
		t.Fatalf("list unsettled: %v", err)
	}
	if len(unsettled) != 1 || unsettled[0].ID != "a" {
		t.Fatalf("expected only a, got %+v", unsettled)
	}
}
