package transfer

import (
	"testing"
	"time"

	apperrors "github.com/mojaloop/central-ledger-sub000/internal/platform/errors"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/command"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/condition"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
)

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func mustAmount(t *testing.T, value string) money.Amount {
	t.Helper()
	amount, err := money.Parse(value, "USD")
	if err != nil {
		t.Fatalf("parse amount: %v", err)
	}
	return amount
}

func conditionalPrepare(t *testing.T) (Prepare, string) {
	t.Helper()
	fulfillment, cond := condition.FromPreimage([]byte("preimage-for-transfer-tests"))
	expires := testNow.Add(time.Hour)
	return Prepare{
		Payer:     "dfsp1",
		Payee:     "dfsp2",
		Amount:    mustAmount(t, "100.00"),
		Condition: cond,
		ExpiresAt: &expires,
	}, fulfillment
}

func decide(t *testing.T, state State, payload any) command.Decision {
	t.Helper()
	d := Decider{HubAccount: "Hub", Limits: money.DefaultLimits()}
	return d.Decide(state, NewCommand("t-1", "actor", "req", payload), fixedNow)
}

func foldDecision(t *testing.T, state State, decision command.Decision) State {
	t.Helper()
	for i, evt := range decision.Events {
		evt.Seq = state.LastSeq + uint64(i) + 1
		next, err := Apply(state, evt)
		if err != nil {
			t.Fatalf("apply %s: %v", evt.Type, err)
		}
		state = next
	}
	return state
}

func requireCode(t *testing.T, decision command.Decision, code apperrors.Code) {
	t.Helper()
	if len(decision.Rejections) == 0 {
		t.Fatalf("expected rejection %s, got %d events replayed=%v", code, len(decision.Events), decision.Replayed)
	}
	if got := decision.Rejections[0].Code; got != code {
		t.Fatalf("rejection = %s (%s), want %s", got, decision.Rejections[0].Message, code)
	}
}

func preparedState(t *testing.T) (State, string) {
	t.Helper()
	prepare, fulfillment := conditionalPrepare(t)
	decision := decide(t, State{}, prepare)
	if len(decision.Events) != 1 {
		t.Fatalf("prepare emitted %d events, want 1", len(decision.Events))
	}
	return foldDecision(t, State{}, decision), fulfillment
}

func TestPrepareConditionalEmitsPrepared(t *testing.T) {
	state, _ := preparedState(t)
	if state.Status != StatusReceived {
		t.Fatalf("status = %s, want %s", state.Status, StatusReceived)
	}
	if state.LastSeq != 1 {
		t.Fatalf("last seq = %d, want 1", state.LastSeq)
	}
}

func TestPrepareUnconditionalExecutesImmediately(t *testing.T) {
	decision := decide(t, State{}, Prepare{Payer: "dfsp1", Payee: "dfsp2", Amount: mustAmount(t, "50")})
	if len(decision.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(decision.Events))
	}
	if decision.Events[1].Type != event.TypeTransferExecuted {
		t.Fatalf("second event = %s, want %s", decision.Events[1].Type, event.TypeTransferExecuted)
	}
	payload, err := event.Decode(decision.Events[1])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.(event.TransferExecuted).Fulfillment != "" {
		t.Fatal("expected empty fulfillment")
	}
	state := foldDecision(t, State{}, decision)
	if state.Status != StatusCommitted {
		t.Fatalf("status = %s, want %s", state.Status, StatusCommitted)
	}
}

func TestPrepareValidation(t *testing.T) {
	valid, _ := conditionalPrepare(t)
	past := testNow.Add(-time.Minute)

	tests := []struct {
		name   string
		mutate func(*Prepare)
	}{
		{"same participants", func(p *Prepare) { p.Payee = "DFSP1" }},
		{"hub payer", func(p *Prepare) { p.Payer = "hub" }},
		{"hub payee", func(p *Prepare) { p.Payee = "Hub" }},
		{"missing payee", func(p *Prepare) { p.Payee = "" }},
		{"scale", func(p *Prepare) { p.Amount = mustAmount(t, "1.23456") }},
		{"precision", func(p *Prepare) { p.Amount = mustAmount(t, "1234567890123456789") }},
		{"malformed condition", func(p *Prepare) { p.Condition = "not-a-condition" }},
		{"missing expiration", func(p *Prepare) { p.ExpiresAt = nil }},
		{"past expiration", func(p *Prepare) { p.ExpiresAt = &past }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			requireCode(t, decide(t, State{}, p), apperrors.CodeValidation)
		})
	}
}

func TestPrepareRepeatIsIdempotent(t *testing.T) {
	state, _ := preparedState(t)
	prepare, _ := conditionalPrepare(t)
	prepare.Amount = mustAmount(t, "100")

	decision := decide(t, state, prepare)
	if !decision.Replayed || len(decision.Events) != 0 || len(decision.Rejections) != 0 {
		t.Fatalf("expected replay, got %+v", decision)
	}
}

func TestPrepareRepeatWithDifferentTermsFails(t *testing.T) {
	state, _ := preparedState(t)
	prepare, _ := conditionalPrepare(t)
	prepare.Amount = mustAmount(t, "100.01")

	requireCode(t, decide(t, state, prepare), apperrors.CodeInvalidModification)
}

func TestPrepareRepeatAfterTerminalConditionalFails(t *testing.T) {
	state, fulfillment := preparedState(t)
	state = foldDecision(t, state, decide(t, state, Fulfill{Fulfillment: fulfillment}))
	prepare, _ := conditionalPrepare(t)

	requireCode(t, decide(t, state, prepare), apperrors.CodeInvalidModification)
}

func TestPrepareRepeatUnconditionalIsIdempotent(t *testing.T) {
	prepare := Prepare{Payer: "dfsp1", Payee: "dfsp2", Amount: mustAmount(t, "50")}
	state := foldDecision(t, State{}, decide(t, State{}, prepare))

	decision := decide(t, state, prepare)
	if !decision.Replayed {
		t.Fatalf("expected replay, got %+v", decision)
	}
}

func TestFulfillExecutesOnce(t *testing.T) {
	state, fulfillment := preparedState(t)

	first := decide(t, state, Fulfill{Fulfillment: fulfillment})
	if len(first.Events) != 1 || first.Events[0].Type != event.TypeTransferExecuted {
		t.Fatalf("expected executed event, got %+v", first)
	}
	state = foldDecision(t, state, first)
	if state.Status != StatusCommitted || state.Fulfillment != fulfillment {
		t.Fatalf("unexpected state %+v", state)
	}

	second := decide(t, state, Fulfill{Fulfillment: fulfillment})
	if !second.Replayed || len(second.Events) != 0 {
		t.Fatalf("expected replay, got %+v", second)
	}
}

func TestFulfillWithDifferentValueAfterCommitFails(t *testing.T) {
	state, fulfillment := preparedState(t)
	state = foldDecision(t, state, decide(t, state, Fulfill{Fulfillment: fulfillment}))
	other, _ := condition.FromPreimage([]byte("other"))

	requireCode(t, decide(t, state, Fulfill{Fulfillment: other}), apperrors.CodeInvalidModification)
}

func TestFulfillWrongPreimageIsUnmet(t *testing.T) {
	state, _ := preparedState(t)
	for _, input := range []string{"", "garbage!!", "AAAA", "ni:///sha-256;abc"} {
		requireCode(t, decide(t, state, Fulfill{Fulfillment: input}), apperrors.CodeUnmetCondition)
	}
}

func TestFulfillAfterExpirationFails(t *testing.T) {
	state, fulfillment := preparedState(t)
	expired := testNow.Add(-time.Second)
	state.ExpiresAt = &expired

	requireCode(t, decide(t, state, Fulfill{Fulfillment: fulfillment}), apperrors.CodeTransferExpired)
}

func TestFulfillRejectsUnconditionalAndUnknown(t *testing.T) {
	requireCode(t, decide(t, State{}, Fulfill{Fulfillment: "x"}), apperrors.CodeNotFound)

	state := foldDecision(t, State{}, decide(t, State{}, Prepare{Payer: "dfsp1", Payee: "dfsp2", Amount: mustAmount(t, "5")}))
	requireCode(t, decide(t, state, Fulfill{Fulfillment: "x"}), apperrors.CodeTransferNotConditional)
}

func TestFulfillAbortedFails(t *testing.T) {
	state, fulfillment := preparedState(t)
	state = foldDecision(t, state, decide(t, state, Reject{Reason: ReasonExpired}))

	requireCode(t, decide(t, state, Fulfill{Fulfillment: fulfillment}), apperrors.CodeInvalidModification)
}

func TestRejectIsIdempotentForSameReason(t *testing.T) {
	state, _ := preparedState(t)

	first := decide(t, state, Reject{Reason: ReasonCancelled, Message: "payee declined", RequestedBy: "dfsp2"})
	if len(first.Events) != 1 {
		t.Fatalf("expected rejected event, got %+v", first)
	}
	state = foldDecision(t, state, first)
	if state.Status != StatusAborted {
		t.Fatalf("status = %s, want %s", state.Status, StatusAborted)
	}

	again := decide(t, state, Reject{Reason: ReasonCancelled})
	if !again.Replayed {
		t.Fatalf("expected replay, got %+v", again)
	}

	requireCode(t, decide(t, state, Reject{Reason: ReasonExpired}), apperrors.CodeInvalidModification)
}

func TestRejectAuthorization(t *testing.T) {
	state, _ := preparedState(t)

	requireCode(t, decide(t, state, Reject{Reason: ReasonCancelled, RequestedBy: "dfsp1"}), apperrors.CodeUnauthorized)
	decision := decide(t, state, Reject{Reason: ReasonCancelled, RequestedBy: "DFSP2"})
	if len(decision.Events) != 1 {
		t.Fatalf("expected payee rejection to be accepted, got %+v", decision)
	}
}

func TestRejectCommittedFails(t *testing.T) {
	state, fulfillment := preparedState(t)
	state = foldDecision(t, state, decide(t, state, Fulfill{Fulfillment: fulfillment}))

	requireCode(t, decide(t, state, Reject{Reason: ReasonExpired}), apperrors.CodeInvalidModification)
}

func TestRejectRequiresReasonAndCondition(t *testing.T) {
	state, _ := preparedState(t)
	requireCode(t, decide(t, state, Reject{}), apperrors.CodeValidation)

	unconditional := foldDecision(t, State{}, decide(t, State{}, Prepare{Payer: "dfsp1", Payee: "dfsp2", Amount: mustAmount(t, "5")}))
	requireCode(t, decide(t, unconditional, Reject{Reason: ReasonCancelled}), apperrors.CodeTransferNotConditional)
}

func TestSettleRequiresExecution(t *testing.T) {
	state, fulfillment := preparedState(t)
	requireCode(t, decide(t, state, Settle{SettlementID: "s-1"}), apperrors.CodeUnexecutedTransfer)

	state = foldDecision(t, state, decide(t, state, Fulfill{Fulfillment: fulfillment}))
	settled := decide(t, state, Settle{SettlementID: "s-1"})
	if len(settled.Events) != 1 {
		t.Fatalf("expected settled event, got %+v", settled)
	}
	state = foldDecision(t, state, settled)
	if state.Status != StatusSettled || state.SettlementID != "s-1" {
		t.Fatalf("unexpected state %+v", state)
	}

	if again := decide(t, state, Settle{SettlementID: "s-1"}); !again.Replayed {
		t.Fatalf("expected replay, got %+v", again)
	}
	requireCode(t, decide(t, state, Settle{SettlementID: "s-2"}), apperrors.CodeInvalidModification)
}

func TestSettleAbortedIsUnexecuted(t *testing.T) {
	state, _ := preparedState(t)
	state = foldDecision(t, state, decide(t, state, Reject{Reason: ReasonExpired}))

	requireCode(t, decide(t, state, Settle{SettlementID: "s-1"}), apperrors.CodeUnexecutedTransfer)
}

func TestDecideRejectsUnknownPayload(t *testing.T) {
	d := Decider{}
	decision := d.Decide(State{}, command.Command{AggregateID: "t-1", Type: "x", Payload: 42}, fixedNow)
	requireCode(t, decision, apperrors.CodeValidation)
}
