package app

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
)

func TestServeReportsHealthyUntilCancelled(t *testing.T) {
	f := newFixture(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, listener, f.service, Schedules{Expiry: "@every 1h"}, zap.NewNop())
	}()

	if err := CheckHealth(ctx, listener.Addr().String(), 2*time.Second); err != nil {
		t.Fatalf("health check: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestServeRequiresListener(t *testing.T) {
	f := newFixture(t)
	if err := Serve(t.Context(), nil, f.service, Schedules{}, nil); err == nil {
		t.Fatal("expected error for nil listener")
	}
}

func TestOpenPublisherFallsBackToLog(t *testing.T) {
	publisher, closeFn, err := openPublisher(RuntimeConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("open publisher: %v", err)
	}
	defer closeFn()
	if publisher == nil {
		t.Fatal("expected a publisher")
	}
	if err := publisher.Publish(t.Context(), event.Event{AggregateID: transferA, Seq: 1, Type: event.TypeTransferPrepared}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestOpenPublisherRejectsBadURL(t *testing.T) {
	if _, _, err := openPublisher(RuntimeConfig{AMQPURL: "http://broker"}, zap.NewNop()); err == nil {
		t.Fatal("expected error for non-amqp url")
	}
}

func TestCheckHealthFailsWithoutServer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	if err := CheckHealth(t.Context(), addr, 300*time.Millisecond); err == nil {
		t.Fatal("expected health check error for closed port")
	}
}
