package sqlite

import (
	"errors"
	"testing"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/settlement"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/transfer"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
	"github.com/shopspring/decimal"
)

func putTestCharge(t *testing.T, store *Store, name string) int64 {
	t.Helper()
	id, err := store.PutCharge(t.Context(), fee.Charge{
		Name:      name,
		RateType:  fee.RateFlat,
		Rate:      decimal.RequireFromString("1.00"),
		Minimum:   decimal.NewNullDecimal(decimal.RequireFromString("10")),
		PayerRole: fee.RoleSender,
		PayeeRole: fee.RoleLedger,
		Active:    true,
	})
	if err != nil {
		t.Fatalf("put charge %s: %v", name, err)
	}
	return id
}

func insertTestFee(t *testing.T, store *Store, transferID string, chargeID int64) {
	t.Helper()
	inserted, err := store.InsertFeeIfAbsent(t.Context(), fee.Fee{
		TransferID:   transferID,
		ChargeID:     chargeID,
		Amount:       mustAmount(t, "1.00", "USD"),
		PayerAccount: "dfsp1",
		PayeeAccount: "hub",
		CreatedAt:    testNow,
	})
	if err != nil || !inserted {
		t.Fatalf("insert fee: inserted=%v err=%v", inserted, err)
	}
}

func TestPutChargeUpsertsByName(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	first := putTestCharge(t, store, "flat")
	second := putTestCharge(t, store, "flat")
	if first != second {
		t.Fatalf("expected upsert to keep id %d, got %d", first, second)
	}
	charges, err := store.ListActiveCharges(ctx)
	if err != nil {
		t.Fatalf("list charges: %v", err)
	}
	if len(charges) != 1 || !charges[0].Minimum.Valid || charges[0].Maximum.Valid {
		t.Fatalf("unexpected charges %+v", charges)
	}
	if !charges[0].Rate.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("expected rate 1, got %s", charges[0].Rate)
	}
}

func TestPutChargeRejectsInvalid(t *testing.T) {
	store := openTestStore(t)
	_, err := store.PutCharge(t.Context(), fee.Charge{Name: "bad", RateType: "weird"})
	if !errors.Is(err, fee.ErrInvalidCharge) {
		t.Fatalf("expected invalid charge, got %v", err)
	}
}

func TestInsertFeeIfAbsentIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	seedTransfer(t, store, "t-1", transfer.StatusCommitted, nil)
	chargeID := putTestCharge(t, store, "flat")
	insertTestFee(t, store, "t-1", chargeID)

	again, err := store.InsertFeeIfAbsent(ctx, fee.Fee{
		TransferID: "t-1", ChargeID: chargeID, Amount: mustAmount(t, "1.00", "USD"),
		PayerAccount: "dfsp1", PayeeAccount: "hub", CreatedAt: testNow,
	})
	if err != nil {
		t.Fatalf("insert duplicate fee: %v", err)
	}
	if again {
		t.Fatal("expected duplicate fee to be skipped")
	}
	fees, err := store.ListFeesForTransfer(ctx, "t-1")
	if err != nil {
		t.Fatalf("list fees: %v", err)
	}
	if len(fees) != 1 {
		t.Fatalf("expected one fee, got %d", len(fees))
	}
}

func TestSettleFeesInTransaction(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	seedTransfer(t, store, "t-1", transfer.StatusCommitted, nil)
	seedTransfer(t, store, "t-2", transfer.StatusCommitted, nil)
	chargeID := putTestCharge(t, store, "flat")
	insertTestFee(t, store, "t-1", chargeID)
	insertTestFee(t, store, "t-2", chargeID)

	run, err := settlement.New("s-1", settlement.TypeFee, testNow)
	if err != nil {
		t.Fatalf("new settlement: %v", err)
	}
	var settled []fee.Fee
	err = store.InSettlementTx(ctx, func(ledger settlement.FeeLedger) error {
		var err error
		settled, err = settlement.SettleFees(ctx, ledger, run, []string{"t-1", "t-2", "t-1"})
		return err
	})
	if err != nil {
		t.Fatalf("settle fees: %v", err)
	}
	if len(settled) != 2 {
		t.Fatalf("expected two settled fees, got %d", len(settled))
	}

	unsettled, err := store.ListUnsettledFees(ctx)
	if err != nil {
		t.Fatalf("list unsettled fees: %v", err)
	}
	if len(unsettled) != 0 {
		t.Fatalf("expected no unsettled fees, got %d", len(unsettled))
	}
	if _, err := store.GetSettlement(ctx, "s-1"); err != nil {
		t.Fatalf("get settlement: %v", err)
	}
}

func TestSettlementTxRollsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	boom := errors.New("boom")
	err := store.InSettlementTx(ctx, func(ledger settlement.FeeLedger) error {
		run, err := settlement.New("s-1", settlement.TypeFee, testNow)
		if err != nil {
			return err
		}
		if err := ledger.CreateSettlement(ctx, run); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.GetSettlement(ctx, "s-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected settlement to roll back, got %v", err)
	}
}

func TestListSettledTransferFlows(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	run, err := settlement.New("s-1", settlement.TypeTransfer, testNow)
	if err != nil {
		t.Fatalf("new settlement: %v", err)
	}
	if err := store.CreateSettlement(ctx, run); err != nil {
		t.Fatalf("create settlement: %v", err)
	}
	seedTransfer(t, store, "t-1", transfer.StatusCommitted, nil)
	if err := store.MarkTransferSettled(ctx, "t-1", "s-1", 2, testNow); err != nil {
		t.Fatalf("mark settled: %v", err)
	}

	flows, err := store.ListSettledTransferFlows(ctx, "s-1")
	if err != nil {
		t.Fatalf("list flows: %v", err)
	}
	if len(flows) != 1 || flows[0].From != "dfsp1" || flows[0].To != "dfsp2" {
		t.Fatalf("unexpected flows %+v", flows)
	}
	if !flows[0].Amount.Value.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("expected amount 20, got %s", flows[0].Amount.Value)
	}
}

func TestParticipantDirectory(t *testing.T) {
	store := openTestStore(t)
	ctx := t.Context()

	if err := store.PutParticipant(ctx, storage.Participant{ID: "p-1", Name: "dfsp1", Currency: "USD", Active: true}); err != nil {
		t.Fatalf("put participant: %v", err)
	}
	if err := store.PutParticipant(ctx, storage.Participant{ID: "p-other", Name: "dfsp1", Currency: "USD", Active: false}); err != nil {
		t.Fatalf("update participant: %v", err)
	}
	got, err := store.GetParticipant(ctx, "dfsp1")
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	if got.ID != "p-1" || got.Active {
		t.Fatalf("expected id kept and inactive, got %+v", got)
	}
	if _, err := store.GetParticipant(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
