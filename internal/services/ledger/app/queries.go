package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/mojaloop/central-ledger-sub000/internal/platform/errors"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/settlement"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/transfer"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
)

// GetByID returns the projected transfer with its timeline. A transfer whose
// events are committed but not yet projected is read from the journal.
func (s *Service) GetByID(ctx context.Context, transferID string) (storage.Transfer, error) {
	normalized, err := normalizeTransferID(transferID)
	if err != nil {
		return storage.Transfer{}, err
	}
	view, err := s.store.GetTransfer(ctx, normalized)
	if err == nil {
		return view, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Transfer{}, fmt.Errorf("get transfer %s: %w", normalized, err)
	}
	state, _, err := s.handler.Loader.Load(ctx, normalized)
	if err != nil {
		return storage.Transfer{}, fmt.Errorf("load transfer %s: %w", normalized, err)
	}
	folded, ok := state.(transfer.State)
	if !ok || !folded.Created {
		return storage.Transfer{}, transferNotFound(normalized)
	}
	return viewFromState(folded), nil
}

// GetFulfillment returns the fulfillment recorded for a conditional
// transfer.
func (s *Service) GetFulfillment(ctx context.Context, transferID string) (string, error) {
	view, err := s.GetByID(ctx, transferID)
	if err != nil {
		return "", err
	}
	if !view.Conditional() {
		return "", apperrors.WithMetadata(apperrors.CodeTransferNotConditional,
			fmt.Sprintf("transfer %s is not conditional", view.ID),
			map[string]string{"TransferID": view.ID})
	}
	if view.Status == transfer.StatusAborted {
		return "", apperrors.WithMetadata(apperrors.CodeAlreadyRolledBack,
			fmt.Sprintf("transfer %s has already been rolled back", view.ID),
			map[string]string{"TransferID": view.ID})
	}
	if view.Fulfillment == nil {
		return "", apperrors.WithMetadata(apperrors.CodeMissingFulfillment,
			fmt.Sprintf("transfer %s has no fulfillment", view.ID),
			map[string]string{"TransferID": view.ID})
	}
	return *view.Fulfillment, nil
}

// Quote returns the sender-paid charges a transfer of amount would incur.
func (s *Service) Quote(ctx context.Context, amount, currency string) ([]fee.Quote, error) {
	parsed, err := money.Parse(amount, currency)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err.Error(), err)
	}
	charges, err := s.store.ListActiveCharges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active charges: %w", err)
	}
	quotes, err := fee.QuoteCharges(charges, parsed.Value, s.cfg.FeeScale)
	if err != nil {
		return nil, fmt.Errorf("quote charges: %w", err)
	}
	return quotes, nil
}

// FeesForTransfer returns the fees levied on a transfer.
func (s *Service) FeesForTransfer(ctx context.Context, transferID string) ([]fee.Fee, error) {
	view, err := s.GetByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	return s.store.ListFeesForTransfer(ctx, view.ID)
}

// UnsettledFees returns every fee not yet paid out by a settlement.
func (s *Service) UnsettledFees(ctx context.Context) ([]fee.Fee, error) {
	return s.store.ListUnsettledFees(ctx)
}

// NetPositions returns the netted payer to payee positions of the transfers
// a settlement paid out.
func (s *Service) NetPositions(ctx context.Context, settlementID string) ([]settlement.Flow, error) {
	settlementID = strings.TrimSpace(settlementID)
	if settlementID == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "settlement id is required")
	}
	if _, err := s.store.GetSettlement(ctx, settlementID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("settlement %s not found", settlementID),
				map[string]string{"SettlementID": settlementID})
		}
		return nil, fmt.Errorf("get settlement %s: %w", settlementID, err)
	}
	flows, err := s.store.ListSettledTransferFlows(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	return settlement.NetPositions(flows), nil
}

// OutboxSummary reports notification queue depth by status.
func (s *Service) OutboxSummary(ctx context.Context) (storage.OutboxSummary, error) {
	return s.store.GetNotificationOutboxSummary(ctx)
}
