package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/mojaloop/central-ledger-sub000/internal/platform/errors"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/condition"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage/integrity"
	ledgersqlite "github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage/sqlite"
)

const (
	transferA = "9c1b1f5e-0d7a-4a53-9c55-1f3e2b8e7a01"
	transferB = "2f4a7c3d-5b6e-4f80-a1b2-c3d4e5f6a7b8"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) published() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]event.Event(nil), p.events...)
}

type fixture struct {
	store     *ledgersqlite.Store
	service   *Service
	clock     *testClock
	publisher *recordingPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := &testClock{now: testStart}
	keyring, err := integrity.NewKeyring(map[string][]byte{"k1": []byte("0123456789abcdef0123456789abcdef")}, "k1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	store, err := ledgersqlite.Open(filepath.Join(t.TempDir(), "ledger.sqlite"), keyring, ledgersqlite.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	seed, err := DecodeSeed(strings.NewReader(`{
		"participants": [
			{"name": "dfsp1", "currency": "USD"},
			{"name": "dfsp2", "currency": "USD"},
			{"name": "dfsp3", "currency": "USD", "active": false},
			{"name": "dfsp4", "currency": "EUR"},
			{"name": "hub"}
		]
	}`))
	if err != nil {
		t.Fatalf("decode seed: %v", err)
	}
	if _, err := ApplySeed(t.Context(), store, seed); err != nil {
		t.Fatalf("apply seed: %v", err)
	}

	var settlements int
	publisher := &recordingPublisher{}
	service, err := NewService(store, Config{HubAccount: "hub", FeeScale: 2},
		WithClock(clock.Now),
		WithPublisher(publisher),
		WithIDGenerator(func() (string, error) {
			settlements++
			return fmt.Sprintf("settlement-%d", settlements), nil
		}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return fixture{store: store, service: service, clock: clock, publisher: publisher}
}

// seedCharges installs the charges used by fee tests: two sender-paid
// charges that admit 20.00, one bounded away from it, and one receiver-paid.
func (f fixture) seedCharges(t *testing.T) {
	t.Helper()
	seed, err := DecodeSeed(strings.NewReader(`{
		"charges": [
			{"name": "a-flat", "code": "001", "charge_type": "fee", "rate_type": "flat", "rate": "1.00", "payer": "sender", "payee": "ledger"},
			{"name": "b-percent", "code": "002", "charge_type": "tax", "rate_type": "percent", "rate": "0.5", "payer": "sender", "payee": "receiver"},
			{"name": "c-bounded", "code": "003", "charge_type": "fee", "rate_type": "flat", "rate": "5", "minimum": "100", "payer": "sender", "payee": "ledger"},
			{"name": "d-receiver", "code": "004", "charge_type": "fee", "rate_type": "flat", "rate": "2", "payer": "receiver", "payee": "ledger"}
		]
	}`))
	if err != nil {
		t.Fatalf("decode charges: %v", err)
	}
	if _, err := ApplySeed(t.Context(), f.store, seed); err != nil {
		t.Fatalf("apply charges: %v", err)
	}
}

func (f fixture) prepareConditional(t *testing.T, transferID, amount string) (fulfillment string) {
	t.Helper()
	fulfillment, cond := condition.FromPreimage([]byte("preimage-" + transferID))
	expires := f.clock.Now().Add(time.Minute)
	result, err := f.service.Prepare(t.Context(), PrepareInput{
		TransferID: transferID,
		Payer:      "dfsp1",
		Payee:      "dfsp2",
		Amount:     amount,
		Currency:   "USD",
		Condition:  cond,
		ExpiresAt:  &expires,
	})
	if err != nil {
		t.Fatalf("prepare conditional: %v", err)
	}
	if result.Existing {
		t.Fatal("expected a new transfer")
	}
	return fulfillment
}

func (f fixture) prepareUnconditional(t *testing.T, transferID, amount string) PrepareResult {
	t.Helper()
	result, err := f.service.Prepare(t.Context(), PrepareInput{
		TransferID: transferID,
		Payer:      "dfsp1",
		Payee:      "dfsp2",
		Amount:     amount,
		Currency:   "USD",
	})
	if err != nil {
		t.Fatalf("prepare unconditional: %v", err)
	}
	return result
}

func (f fixture) eventTypes(t *testing.T, transferID string) []event.Type {
	t.Helper()
	events, err := f.store.ListEvents(t.Context(), transferID, 0, 100)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	types := make([]event.Type, 0, len(events))
	for _, evt := range events {
		types = append(types, evt.Type)
	}
	return types
}

func assertCode(t *testing.T, err error, want apperrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := apperrors.CodeOf(err); got != want {
		t.Fatalf("error code = %s, want %s (%v)", got, want, err)
	}
}

func mustDecimal(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}
