package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
)

type fakeOutbox struct {
	pending []event.Event
	now     time.Time
	limit   int
	failed  int
}

func (o *fakeOutbox) ProcessNotificationOutbox(ctx context.Context, now time.Time, limit int, deliver func(context.Context, event.Event) error) (int, error) {
	o.now = now
	o.limit = limit
	processed := 0
	for _, evt := range o.pending {
		if err := deliver(ctx, evt); err != nil {
			o.failed++
		}
		processed++
	}
	return processed, nil
}

func (o *fakeOutbox) GetNotificationOutboxSummary(context.Context) (storage.OutboxSummary, error) {
	return storage.OutboxSummary{}, nil
}

type recordingPublisher struct {
	published []event.Event
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, evt event.Event) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, evt)
	return nil
}

func TestRelayFlushDeliversBatch(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	outbox := &fakeOutbox{pending: []event.Event{testEvent(), testEvent()}}
	publisher := &recordingPublisher{}
	relay := Relay{Outbox: outbox, Publisher: publisher, Now: func() time.Time { return now }}

	processed, err := relay.Flush(t.Context())
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if processed != 2 || len(publisher.published) != 2 {
		t.Fatalf("expected two deliveries, processed=%d published=%d", processed, len(publisher.published))
	}
	if outbox.limit != defaultBatchSize || !outbox.now.Equal(now) {
		t.Fatalf("unexpected batch parameters limit=%d now=%v", outbox.limit, outbox.now)
	}
}

func TestRelayFlushCountsFailedDeliveries(t *testing.T) {
	outbox := &fakeOutbox{pending: []event.Event{testEvent()}}
	relay := Relay{Outbox: outbox, Publisher: &recordingPublisher{err: errors.New("down")}, BatchSize: 5}

	processed, err := relay.Flush(t.Context())
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if processed != 1 || outbox.failed != 1 || outbox.limit != 5 {
		t.Fatalf("unexpected flush processed=%d failed=%d limit=%d", processed, outbox.failed, outbox.limit)
	}
}

func TestRelayRequiresDependencies(t *testing.T) {
	if _, err := (Relay{}).Flush(t.Context()); err == nil {
		t.Fatal("expected error without outbox")
	}
	if _, err := (Relay{Outbox: &fakeOutbox{}}).Flush(t.Context()); err == nil {
		t.Fatal("expected error without publisher")
	}
}
