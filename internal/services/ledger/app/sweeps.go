package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/mojaloop/central-ledger-sub000/internal/platform/errors"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/settlement"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/transfer"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/notify"
)

// ExpireTransfers rejects conditional transfers whose expiration passed
// while they were still awaiting fulfillment. A transfer fulfilled or
// rejected concurrently is skipped. It returns how many transfers it
// expired.
func (s *Service) ExpireTransfers(ctx context.Context) (int, error) {
	due, err := s.store.ListExpiredTransfers(ctx, s.clock(), s.cfg.SweepLimit)
	if err != nil {
		return 0, fmt.Errorf("list expired transfers: %w", err)
	}

	expired := 0
	var errs []error
	for _, candidate := range due {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		result, err := s.Reject(ctx, RejectInput{
			TransferID: candidate.ID,
			Reason:     transfer.ReasonExpired,
			Message:    "transfer expired before fulfillment",
			ActorID:    SystemActor,
		})
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeInvalidModification) {
				s.logger.Debug("transfer left escrow before expiry sweep",
					zap.String("transfer_id", candidate.ID), zap.Error(err))
				continue
			}
			s.logger.Warn("expire transfer", zap.String("transfer_id", candidate.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("expire %s: %w", candidate.ID, err))
			continue
		}
		if !result.AlreadyRejected {
			expired++
		}
	}
	if expired > 0 || len(errs) > 0 {
		s.logger.Info("expiry sweep finished",
			zap.Int("candidates", len(due)),
			zap.Int("expired", expired),
			zap.Int("failed", len(errs)))
	}
	return expired, errors.Join(errs...)
}

// SettleFeesForTransfers records a fee settlement and links every unsettled
// fee of transferIDs to it in one transaction. Each fee is reported once.
func (s *Service) SettleFeesForTransfers(ctx context.Context, transferIDs []string) (settlement.Settlement, []fee.Fee, error) {
	ids := make([]string, 0, len(transferIDs))
	for _, transferID := range transferIDs {
		normalized, err := normalizeTransferID(transferID)
		if err != nil {
			return settlement.Settlement{}, nil, err
		}
		ids = append(ids, normalized)
	}
	st, err := s.newSettlement(settlement.TypeFee)
	if err != nil {
		return settlement.Settlement{}, nil, err
	}

	var settled []fee.Fee
	err = s.store.InSettlementTx(ctx, func(ledger settlement.FeeLedger) error {
		fees, err := settlement.SettleFees(ctx, ledger, st, ids)
		if err != nil {
			return err
		}
		settled = fees
		return nil
	})
	if err != nil {
		return settlement.Settlement{}, nil, fmt.Errorf("settle fees: %w", err)
	}
	return st, settled, nil
}

// SettlementRun is the outcome of one transfer settlement sweep.
type SettlementRun struct {
	Transfers     settlement.Settlement
	TransferIDs   []string
	FeeSettlement settlement.Settlement
	Fees          []fee.Fee
}

// SettleTransfers pays out every executed transfer that no settlement
// covers yet, then settles those transfers' fees. A run with nothing to
// settle records no settlement.
func (s *Service) SettleTransfers(ctx context.Context) (SettlementRun, error) {
	pending, err := s.store.ListUnsettledExecutedTransfers(ctx, s.cfg.SweepLimit)
	if err != nil {
		return SettlementRun{}, fmt.Errorf("list unsettled transfers: %w", err)
	}
	if len(pending) == 0 {
		return SettlementRun{}, nil
	}

	st, err := s.newSettlement(settlement.TypeTransfer)
	if err != nil {
		return SettlementRun{}, err
	}
	if err := s.store.CreateSettlement(ctx, st); err != nil {
		return SettlementRun{}, fmt.Errorf("create settlement: %w", err)
	}

	run := SettlementRun{Transfers: st}
	var errs []error
	for _, candidate := range pending {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		if _, err := s.Settle(ctx, SettleInput{
			TransferID:   candidate.ID,
			SettlementID: st.ID,
			ActorID:      SystemActor,
		}); err != nil {
			if apperrors.HasCode(err, apperrors.CodeInvalidModification) {
				s.logger.Debug("transfer settled concurrently",
					zap.String("transfer_id", candidate.ID), zap.Error(err))
				continue
			}
			s.logger.Warn("settle transfer",
				zap.String("transfer_id", candidate.ID),
				zap.String("settlement_id", st.ID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("settle %s: %w", candidate.ID, err))
			continue
		}
		run.TransferIDs = append(run.TransferIDs, candidate.ID)
	}

	if len(run.TransferIDs) > 0 {
		feeSettlement, fees, err := s.SettleFeesForTransfers(ctx, run.TransferIDs)
		if err != nil {
			errs = append(errs, err)
		} else {
			run.FeeSettlement = feeSettlement
			run.Fees = fees
		}
	}
	s.logger.Info("settlement sweep finished",
		zap.String("settlement_id", st.ID),
		zap.Int("transfers", len(run.TransferIDs)),
		zap.Int("fees", len(run.Fees)),
		zap.Int("failed", len(errs)))
	return run, errors.Join(errs...)
}

// ReprojectPending applies committed events the read model missed and
// returns how many it applied.
func (s *Service) ReprojectPending(ctx context.Context) (int, error) {
	applied, err := s.projector.CatchUp(ctx, s.store, s.cfg.SweepLimit)
	if applied > 0 {
		s.logger.Info("re-projected pending events", zap.Int("applied", applied))
	}
	if err != nil {
		return applied, fmt.Errorf("re-project pending events: %w", err)
	}
	return applied, nil
}

// VerifyEventIntegrity re-walks every aggregate's hash chain and signature.
func (s *Service) VerifyEventIntegrity(ctx context.Context) error {
	return s.store.VerifyEventIntegrity(ctx)
}

// FlushNotifications delivers one batch of due outbox notifications.
func (s *Service) FlushNotifications(ctx context.Context) (int, error) {
	relay := notify.Relay{
		Outbox:    s.store,
		Publisher: s.publisher,
		Logger:    s.logger.Named("notify"),
		BatchSize: s.cfg.SweepLimit,
		Now:       s.clock,
	}
	return relay.Flush(ctx)
}

func (s *Service) newSettlement(typ settlement.Type) (settlement.Settlement, error) {
	settlementID, err := s.newID()
	if err != nil {
		return settlement.Settlement{}, fmt.Errorf("new settlement id: %w", err)
	}
	st, err := settlement.New(strings.TrimSpace(settlementID), typ, s.clock())
	if err != nil {
		return settlement.Settlement{}, err
	}
	return st, nil
}
