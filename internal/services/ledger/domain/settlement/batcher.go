package settlement

import (
	"context"
	"fmt"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
)

// FeeLedger is the storage a fee settlement run writes through. Callers
// supply an implementation bound to one transaction.
type FeeLedger interface {
	CreateSettlement(ctx context.Context, s Settlement) error
	ListSettleableFees(ctx context.Context, transferID string) ([]fee.Fee, error)
	// SettleFee links feeID to settlementID and reports whether a new link
	// was written. A fee that is already linked is left alone.
	SettleFee(ctx context.Context, settlementID string, feeID int64) (bool, error)
}

// SettleFees records s and links every settleable fee of transferIDs to it.
// The returned fees are the ones newly linked, each reported once even when
// reachable from several transfers.
func SettleFees(ctx context.Context, ledger FeeLedger, s Settlement, transferIDs []string) ([]fee.Fee, error) {
	if s.Type != TypeFee {
		return nil, fmt.Errorf("%w: fee run needs a %s settlement, got %q", ErrInvalidSettlement, TypeFee, s.Type)
	}
	if err := ledger.CreateSettlement(ctx, s); err != nil {
		return nil, fmt.Errorf("create settlement %s: %w", s.ID, err)
	}
	var settled []fee.Fee
	for _, transferID := range transferIDs {
		fees, err := ledger.ListSettleableFees(ctx, transferID)
		if err != nil {
			return nil, fmt.Errorf("list settleable fees for %s: %w", transferID, err)
		}
		for _, f := range fees {
			linked, err := ledger.SettleFee(ctx, s.ID, f.ID)
			if err != nil {
				return nil, fmt.Errorf("settle fee %d: %w", f.ID, err)
			}
			if linked {
				settled = append(settled, f)
			}
		}
	}
	return DedupeFees(settled), nil
}
