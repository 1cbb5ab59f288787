package command

import (
	"errors"
	"testing"

	apperrors "github.com/mojaloop/central-ledger-sub000/internal/platform/errors"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
)

func TestDecisionErr(t *testing.T) {
	if err := Accept(event.Event{AggregateID: "t-1"}).Err(); err != nil {
		t.Fatalf("accept err = %v, want nil", err)
	}
	if err := Replay().Err(); err != nil {
		t.Fatalf("replay err = %v, want nil", err)
	}

	err := Reject(Rejection{Code: apperrors.CodeTransferExpired, Message: "expired"}).Err()
	if !apperrors.HasCode(err, apperrors.CodeTransferExpired) {
		t.Fatalf("reject err = %v, want expired code", err)
	}
}

func TestAcceptCopiesEvents(t *testing.T) {
	events := []event.Event{{AggregateID: "t-1"}}
	decision := Accept(events...)
	events[0].AggregateID = "changed"
	if decision.Events[0].AggregateID != "t-1" {
		t.Fatal("expected decision to own its events")
	}
}

func TestNormalize(t *testing.T) {
	cmd, err := Normalize(Command{AggregateID: " t-1 ", Type: " transfer.fulfill ", Payload: struct{}{}})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cmd.AggregateID != "t-1" || cmd.Type != "transfer.fulfill" {
		t.Fatalf("unexpected command %+v", cmd)
	}

	if _, err := Normalize(Command{Type: "x", Payload: 1}); !errors.Is(err, ErrAggregateIDRequired) {
		t.Fatalf("normalize = %v, want ErrAggregateIDRequired", err)
	}
	if _, err := Normalize(Command{AggregateID: "t-1", Payload: 1}); !errors.Is(err, ErrTypeRequired) {
		t.Fatalf("normalize = %v, want ErrTypeRequired", err)
	}
	if _, err := Normalize(Command{AggregateID: "t-1", Type: "x"}); !errors.Is(err, ErrPayloadRequired) {
		t.Fatalf("normalize = %v, want ErrPayloadRequired", err)
	}
}
