package transfer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/mojaloop/central-ledger-sub000/internal/platform/errors"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/command"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/condition"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
)

// Decider validates transfer commands against folded state.
type Decider struct {
	// HubAccount is the ledger-internal account that may not appear as payer
	// or payee.
	HubAccount string
	Limits     money.Limits
}

// Decide returns the decision for cmd given the folded state.
func (d Decider) Decide(state any, cmd command.Command, now func() time.Time) command.Decision {
	current, err := asState(state)
	if err != nil {
		return reject(apperrors.CodeUnknown, err.Error(), nil)
	}
	if now == nil {
		now = time.Now
	}
	at := now().UTC()

	switch payload := cmd.Payload.(type) {
	case Prepare:
		return d.decidePrepare(current, cmd, payload, at)
	case Fulfill:
		return decideFulfill(current, cmd, payload, at)
	case Reject:
		return decideReject(current, cmd, payload, at)
	case Settle:
		return decideSettle(current, cmd, payload, at)
	default:
		return reject(apperrors.CodeValidation, fmt.Sprintf("unsupported command payload %T", cmd.Payload), nil)
	}
}

func (d Decider) decidePrepare(state State, cmd command.Command, p Prepare, at time.Time) command.Decision {
	if state.Created {
		return decideRepeatPrepare(state, p)
	}
	if rejected := d.validatePrepare(p, at); rejected != nil {
		return rejected.decision()
	}

	prepared, err := newEvent(cmd, event.TypeTransferPrepared, at, event.TransferPrepared{
		TransferID: cmd.AggregateID,
		Payer:      strings.TrimSpace(p.Payer),
		Payee:      strings.TrimSpace(p.Payee),
		Amount:     p.Amount,
		Condition:  strings.TrimSpace(p.Condition),
		ExpiresAt:  utcPtr(p.ExpiresAt),
		ILPPacket:  p.ILPPacket,
	})
	if err != nil {
		return reject(apperrors.CodeValidation, err.Error(), nil)
	}
	if strings.TrimSpace(p.Condition) != "" {
		return command.Accept(prepared)
	}
	executed, err := newEvent(cmd, event.TypeTransferExecuted, at, event.TransferExecuted{})
	if err != nil {
		return reject(apperrors.CodeValidation, err.Error(), nil)
	}
	return command.Accept(prepared, executed)
}

func (d Decider) validatePrepare(p Prepare, at time.Time) *rejection {
	payer := strings.TrimSpace(p.Payer)
	payee := strings.TrimSpace(p.Payee)
	switch {
	case payer == "" || payee == "":
		return validation("payer and payee are required")
	case strings.EqualFold(payer, payee):
		return validation("payer and payee should be different")
	case d.HubAccount != "" && (strings.EqualFold(payer, d.HubAccount) || strings.EqualFold(payee, d.HubAccount)):
		return validation(fmt.Sprintf("participant %s is reserved for the ledger", d.HubAccount))
	}

	if !p.Amount.Value.IsPositive() {
		return validation(fmt.Sprintf("amount %s must be positive", p.Amount.Value.String()))
	}
	if _, err := money.ParseCurrency(p.Amount.Currency); err != nil {
		return validation(err.Error())
	}
	limits := d.Limits
	if limits == (money.Limits{}) {
		limits = money.DefaultLimits()
	}
	if err := limits.Check(p.Amount); err != nil {
		return validation(err.Error())
	}

	cond := strings.TrimSpace(p.Condition)
	if cond == "" {
		return nil
	}
	if err := condition.Validate(cond); err != nil {
		return validation(fmt.Sprintf("condition validation failed: %v", err))
	}
	if p.ExpiresAt == nil {
		return validation("expiration is required for conditional transfer")
	}
	if !p.ExpiresAt.After(at) {
		return validation(fmt.Sprintf("expiration date %s is already in the past", p.ExpiresAt.UTC().Format(time.RFC3339)))
	}
	return nil
}

func decideRepeatPrepare(state State, p Prepare) command.Decision {
	if state.Conditional() && state.Status != StatusReceived {
		return reject(apperrors.CodeInvalidModification,
			fmt.Sprintf("transfer %s is already %s", state.ID, state.Status),
			map[string]string{"State": string(state.Status)})
	}
	if !samePrepare(state, p) {
		return reject(apperrors.CodeInvalidModification,
			fmt.Sprintf("transfer %s already exists with different terms", state.ID),
			map[string]string{"State": string(state.Status)})
	}
	return command.Replay()
}

func samePrepare(state State, p Prepare) bool {
	return state.Payer == strings.TrimSpace(p.Payer) &&
		state.Payee == strings.TrimSpace(p.Payee) &&
		state.Amount.Equal(p.Amount) &&
		state.Condition == strings.TrimSpace(p.Condition) &&
		state.ILPPacket == p.ILPPacket &&
		sameInstant(state.ExpiresAt, p.ExpiresAt)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UnixMilli() == b.UnixMilli()
}

func decideFulfill(state State, cmd command.Command, p Fulfill, at time.Time) command.Decision {
	if !state.Created {
		return notFound(cmd.AggregateID)
	}
	if !state.Conditional() {
		return reject(apperrors.CodeTransferNotConditional,
			fmt.Sprintf("transfer %s is not conditional", state.ID), nil)
	}
	if state.Executed() && p.Fulfillment == state.Fulfillment {
		return command.Replay()
	}
	if state.Status != StatusReceived {
		return invalidModification(state, StatusCommitted)
	}
	if state.Expired(at) {
		return reject(apperrors.CodeTransferExpired,
			fmt.Sprintf("transfer %s expired at %s", state.ID, state.ExpiresAt.UTC().Format(time.RFC3339)),
			map[string]string{"ExpiresAt": state.ExpiresAt.UTC().Format(time.RFC3339Nano)})
	}
	if err := condition.Verify(p.Fulfillment, state.Condition); err != nil {
		if errors.Is(err, condition.ErrUnmet) {
			return reject(apperrors.CodeUnmetCondition,
				fmt.Sprintf("fulfillment does not match the condition of transfer %s", state.ID), nil)
		}
		return validation(err.Error()).decision()
	}
	executed, err := newEvent(cmd, event.TypeTransferExecuted, at, event.TransferExecuted{Fulfillment: p.Fulfillment})
	if err != nil {
		return reject(apperrors.CodeValidation, err.Error(), nil)
	}
	return command.Accept(executed)
}

func decideReject(state State, cmd command.Command, p Reject, at time.Time) command.Decision {
	if !state.Created {
		return notFound(cmd.AggregateID)
	}
	reason := strings.TrimSpace(p.Reason)
	if reason == "" {
		return validation("rejection reason is required").decision()
	}
	if !state.Conditional() {
		return reject(apperrors.CodeTransferNotConditional,
			fmt.Sprintf("transfer %s is not conditional", state.ID), nil)
	}
	requester := strings.TrimSpace(p.RequestedBy)
	if requester != "" && !strings.EqualFold(requester, state.Payee) {
		return reject(apperrors.CodeUnauthorized,
			fmt.Sprintf("%s is not a credit-side participant of transfer %s", requester, state.ID), nil)
	}
	if state.Status == StatusAborted && reason == state.RejectionReason {
		return command.Replay()
	}
	if state.Status != StatusReceived {
		return invalidModification(state, StatusAborted)
	}
	rejected, err := newEvent(cmd, event.TypeTransferRejected, at, event.TransferRejected{
		Reason:      reason,
		Message:     p.Message,
		RequestedBy: requester,
	})
	if err != nil {
		return reject(apperrors.CodeValidation, err.Error(), nil)
	}
	return command.Accept(rejected)
}

func decideSettle(state State, cmd command.Command, p Settle, at time.Time) command.Decision {
	if !state.Created {
		return notFound(cmd.AggregateID)
	}
	settlementID := strings.TrimSpace(p.SettlementID)
	if settlementID == "" {
		return validation("settlement id is required").decision()
	}
	if state.Status == StatusSettled {
		if state.SettlementID == settlementID {
			return command.Replay()
		}
		return reject(apperrors.CodeInvalidModification,
			fmt.Sprintf("transfer %s is already settled by %s", state.ID, state.SettlementID),
			map[string]string{"State": string(state.Status), "SettlementID": state.SettlementID})
	}
	if state.Status != StatusCommitted {
		return reject(apperrors.CodeUnexecutedTransfer,
			fmt.Sprintf("transfer %s is %s and has not been executed", state.ID, state.Status),
			map[string]string{"State": string(state.Status)})
	}
	settled, err := newEvent(cmd, event.TypeTransferSettled, at, event.TransferSettled{SettlementID: settlementID})
	if err != nil {
		return reject(apperrors.CodeValidation, err.Error(), nil)
	}
	return command.Accept(settled)
}

func newEvent(cmd command.Command, typ event.Type, at time.Time, payload any) (event.Event, error) {
	evt, err := event.New(cmd.AggregateID, typ, at, payload)
	if err != nil {
		return event.Event{}, err
	}
	return evt.WithActor(cmd.ActorID, cmd.RequestID), nil
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}

type rejection command.Rejection

func (r *rejection) decision() command.Decision {
	return command.Reject(command.Rejection(*r))
}

func validation(message string) *rejection {
	return &rejection{Code: apperrors.CodeValidation, Message: message}
}

func reject(code apperrors.Code, message string, metadata map[string]string) command.Decision {
	return command.Reject(command.Rejection{Code: code, Message: message, Metadata: metadata})
}

func notFound(id string) command.Decision {
	return reject(apperrors.CodeNotFound, fmt.Sprintf("transfer %s not found", id), map[string]string{"TransferID": id})
}

func invalidModification(state State, target Status) command.Decision {
	return reject(apperrors.CodeInvalidModification,
		fmt.Sprintf("transfer %s cannot move from %s to %s", state.ID, state.Status, target),
		map[string]string{"State": string(state.Status), "Target": string(target)})
}
