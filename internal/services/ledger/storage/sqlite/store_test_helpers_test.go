package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/transfer"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage/integrity"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testKeyring(t *testing.T) *integrity.Keyring {
	t.Helper()
	keyring, err := integrity.NewKeyring(
		map[string][]byte{"test-key-1": []byte("0123456789abcdef0123456789abcdef")},
		"test-key-1",
	)
	if err != nil {
		t.Fatalf("create test keyring: %v", err)
	}
	return keyring
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.sqlite")
	store, err := Open(path, testKeyring(t), WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func mustAmount(t *testing.T, value, currency string) money.Amount {
	t.Helper()
	amount, err := money.Parse(value, currency)
	if err != nil {
		t.Fatalf("parse amount %s %s: %v", value, currency, err)
	}
	return amount
}

func preparedEvent(t *testing.T, transferID string) event.Event {
	t.Helper()
	evt, err := event.New(transferID, event.TypeTransferPrepared, testNow, event.TransferPrepared{
		TransferID: transferID,
		Payer:      "dfsp1",
		Payee:      "dfsp2",
		Amount:     mustAmount(t, "100.00", "USD"),
	})
	if err != nil {
		t.Fatalf("new prepared event: %v", err)
	}
	return evt
}

func executedEvent(t *testing.T, transferID string) event.Event {
	t.Helper()
	evt, err := event.New(transferID, event.TypeTransferExecuted, testNow, event.TransferExecuted{Fulfillment: "f"})
	if err != nil {
		t.Fatalf("new executed event: %v", err)
	}
	return evt
}

func seedTransfer(t *testing.T, store *Store, id string, status transfer.Status, expiresAt *time.Time) storage.Transfer {
	t.Helper()
	record := storage.Transfer{
		ID:         id,
		Payer:      "dfsp1",
		Payee:      "dfsp2",
		Amount:     mustAmount(t, "20.00", "USD"),
		Condition:  "cond",
		ExpiresAt:  expiresAt,
		Status:     status,
		LastSeq:    1,
		PreparedAt: testNow,
		UpdatedAt:  testNow,
	}
	if err := store.InsertTransfer(t.Context(), record); err != nil {
		t.Fatalf("insert transfer %s: %v", id, err)
	}
	return record
}
