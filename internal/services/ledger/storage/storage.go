// Package storage defines the persistence contracts of the ledger: the event
// journal, the read model the projection maintains, and the directories the
// engine reads.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/engine"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/event"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/settlement"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/transfer"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrSequenceConflict indicates the aggregate moved past the expected
	// sequence before the append committed.
	ErrSequenceConflict = engine.ErrSequenceConflict
	// ErrProjectionGap indicates an event reached the read model before an
	// earlier event of the same aggregate.
	ErrProjectionGap = errors.New("projection sequence gap")
)

// EventStore is the append-only event journal.
type EventStore interface {
	AppendEvents(ctx context.Context, aggregateID string, expectedSeq uint64, events []event.Event) ([]event.Event, error)
	ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error)
	GetEventBySeq(ctx context.Context, aggregateID string, seq uint64) (event.Event, error)
	// ListUnprojectedEvents returns committed events without a projection
	// checkpoint, oldest first.
	ListUnprojectedEvents(ctx context.Context, limit int) ([]event.Event, error)
	VerifyEventIntegrity(ctx context.Context) error
}

// Transfer is the read-model view of a transfer.
type Transfer struct {
	ID               string
	Payer            string
	Payee            string
	Amount           money.Amount
	Condition        string
	ExpiresAt        *time.Time
	ILPPacket        string
	Status           transfer.Status
	Fulfillment      *string
	RejectionReason  string
	RejectionMessage string
	PayeeRejected    bool
	SettlementID     string
	LastSeq          uint64
	PreparedAt       time.Time
	UpdatedAt        time.Time
	Timeline         []StateChange
}

// Conditional reports whether the transfer is escrowed behind a condition.
func (t Transfer) Conditional() bool {
	return t.Condition != ""
}

// StateChange is one entry of a transfer's timeline.
type StateChange struct {
	Seq       uint64
	Status    transfer.Status
	Reason    string
	ChangedAt time.Time
}

// TransferStore reads the transfer read model.
type TransferStore interface {
	GetTransfer(ctx context.Context, id string) (Transfer, error)
	// ListExpiredTransfers returns conditional RECEIVED transfers whose
	// expiration is before now.
	ListExpiredTransfers(ctx context.Context, now time.Time, limit int) ([]Transfer, error)
	// ListUnsettledExecutedTransfers returns COMMITTED transfers not linked
	// to any settlement.
	ListUnsettledExecutedTransfers(ctx context.Context, limit int) ([]Transfer, error)
}

// Participant is an entry of the participant directory.
type Participant struct {
	ID        string
	Name      string
	Currency  string
	Active    bool
	CreatedAt time.Time
}

// ParticipantStore reads and seeds the participant directory.
type ParticipantStore interface {
	GetParticipant(ctx context.Context, name string) (Participant, error)
	PutParticipant(ctx context.Context, p Participant) error
}

// ChargeStore reads and seeds the charge directory.
type ChargeStore interface {
	ListActiveCharges(ctx context.Context) ([]fee.Charge, error)
	PutCharge(ctx context.Context, charge fee.Charge) (int64, error)
}

// FeeStore reads persisted fees.
type FeeStore interface {
	ListFeesForTransfer(ctx context.Context, transferID string) ([]fee.Fee, error)
	ListUnsettledFees(ctx context.Context) ([]fee.Fee, error)
}

// SettlementStore persists settlement runs.
type SettlementStore interface {
	CreateSettlement(ctx context.Context, s settlement.Settlement) error
	GetSettlement(ctx context.Context, id string) (settlement.Settlement, error)
	// InSettlementTx runs fn against a fee ledger bound to one transaction.
	InSettlementTx(ctx context.Context, fn func(settlement.FeeLedger) error) error
	ListSettledTransferFlows(ctx context.Context, settlementID string) ([]settlement.Flow, error)
}

// ProjectionStore is the transactional view the projection writes through.
type ProjectionStore interface {
	GetTransfer(ctx context.Context, id string) (Transfer, error)
	InsertTransfer(ctx context.Context, t Transfer) error
	MarkTransferExecuted(ctx context.Context, id, fulfillment string, seq uint64, at time.Time) error
	MarkTransferRejected(ctx context.Context, id, reason, message string, payeeRejected bool, seq uint64, at time.Time) error
	MarkTransferSettled(ctx context.Context, id, settlementID string, seq uint64, at time.Time) error
	AppendStateChange(ctx context.Context, transferID string, change StateChange) error
	ListActiveCharges(ctx context.Context) ([]fee.Charge, error)
	// InsertFeeIfAbsent stores f unless a fee for (TransferID, ChargeID)
	// exists, and reports whether it wrote one.
	InsertFeeIfAbsent(ctx context.Context, f fee.Fee) (bool, error)
	EnqueueNotification(ctx context.Context, evt event.Event) error
}

// ProjectionApplier runs projection writes exactly once per event.
type ProjectionApplier interface {
	// ApplyProjectionEventExactlyOnce runs apply in one transaction together
	// with an (aggregate, seq) checkpoint. It reports false without calling
	// apply when the checkpoint already exists.
	ApplyProjectionEventExactlyOnce(ctx context.Context, evt event.Event, apply func(context.Context, event.Event, ProjectionStore) error) (bool, error)
}

// Notification is one pending domain notification.
type Notification struct {
	AggregateID  string
	Seq          uint64
	EventType    event.Type
	AttemptCount int
}

// OutboxSummary reports notification outbox depth by status.
type OutboxSummary struct {
	Pending    int
	Processing int
	Failed     int
	Dead       int
}

// NotificationOutbox delivers enqueued notifications.
type NotificationOutbox interface {
	ProcessNotificationOutbox(ctx context.Context, now time.Time, limit int, deliver func(context.Context, event.Event) error) (int, error)
	GetNotificationOutboxSummary(ctx context.Context) (OutboxSummary, error)
}
