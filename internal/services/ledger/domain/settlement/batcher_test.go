package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
)

type fakeFeeLedger struct {
	settlements []Settlement
	byTransfer  map[string][]fee.Fee
	links       map[int64]string
}

func (f *fakeFeeLedger) CreateSettlement(_ context.Context, s Settlement) error {
	f.settlements = append(f.settlements, s)
	return nil
}

func (f *fakeFeeLedger) ListSettleableFees(_ context.Context, transferID string) ([]fee.Fee, error) {
	var out []fee.Fee
	for _, candidate := range f.byTransfer[transferID] {
		if _, ok := f.links[candidate.ID]; !ok {
			out = append(out, candidate)
		}
	}
	return out, nil
}

func (f *fakeFeeLedger) SettleFee(_ context.Context, settlementID string, feeID int64) (bool, error) {
	if _, ok := f.links[feeID]; ok {
		return false, nil
	}
	f.links[feeID] = settlementID
	return true, nil
}

func TestSettleFeesReportsEachFeeOnce(t *testing.T) {
	shared := fee.Fee{ID: 7, TransferID: "t-1"}
	ledger := &fakeFeeLedger{
		byTransfer: map[string][]fee.Fee{
			"t-1": {shared, {ID: 8, TransferID: "t-1"}},
			// A fee wrongly reachable from a second transfer.
			"t-2": {shared, {ID: 9, TransferID: "t-2"}},
		},
		links: map[int64]string{},
	}
	s, _ := New("s-1", TypeFee, time.Now())

	settled, err := SettleFees(context.Background(), ledger, s, []string{"t-1", "t-2", "t-1"})
	if err != nil {
		t.Fatalf("settle fees: %v", err)
	}
	if len(settled) != 3 {
		t.Fatalf("settled %d fees, want 3: %+v", len(settled), settled)
	}
	if len(ledger.settlements) != 1 {
		t.Fatalf("created %d settlements, want 1", len(ledger.settlements))
	}

	again, _ := New("s-2", TypeFee, time.Now())
	settled, err = SettleFees(context.Background(), ledger, again, []string{"t-1", "t-2"})
	if err != nil {
		t.Fatalf("settle again: %v", err)
	}
	if len(settled) != 0 {
		t.Fatalf("second run settled %d fees, want 0", len(settled))
	}
	if ledger.links[7] != "s-1" {
		t.Fatalf("fee 7 linked to %q, want s-1", ledger.links[7])
	}
}

func TestSettleFeesRequiresFeeSettlement(t *testing.T) {
	s, _ := New("s-1", TypeTransfer, time.Now())
	_, err := SettleFees(context.Background(), &fakeFeeLedger{}, s, nil)
	if !errors.Is(err, ErrInvalidSettlement) {
		t.Fatalf("err = %v, want ErrInvalidSettlement", err)
	}
}
