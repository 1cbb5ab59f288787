package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apperrors "github.com/mojaloop/central-ledger-sub000/internal/platform/errors"
	"github.com/mojaloop/central-ledger-sub000/internal/platform/id"
	"github.com/mojaloop/central-ledger-sub000/internal/platform/timeouts"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/command"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/engine"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/fee"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/transfer"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/notify"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/projection"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage"
)

// SystemActor is recorded as the actor of commands issued by sweeps.
const SystemActor = "ledger"

const defaultSweepLimit = 500

// Store is every storage contract the service reads or writes through.
type Store interface {
	storage.EventStore
	storage.TransferStore
	storage.ParticipantStore
	storage.ChargeStore
	storage.FeeStore
	storage.SettlementStore
	storage.ProjectionApplier
	storage.NotificationOutbox
}

// Config tunes the transfer rules the service enforces.
type Config struct {
	// HubAccount is the ledger's own account. Participants may not use it
	// and fees with the ledger role are paid to it.
	HubAccount string
	// Limits bounds the scale and precision of transfer amounts.
	Limits money.Limits
	// FeeScale is the rounding scale of percentage fees and quotes.
	FeeScale int32
	// SweepLimit caps the transfers a single sweep run handles.
	SweepLimit int
	// MaxAttempts bounds command retries after sequence conflicts.
	MaxAttempts int
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the tracer wrapped around command execution.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPublisher sets where outbox notifications are delivered.
func WithPublisher(publisher notify.Publisher) Option {
	return func(s *Service) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// WithIDGenerator overrides how settlement ids are minted.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// Service is the transfer escrow engine: the commands that move a transfer
// through its lifecycle, the queries over the read model, and the sweeps
// that expire, settle and reconcile transfers in the background.
type Service struct {
	store     Store
	cfg       Config
	handler   engine.Handler
	projector projection.Projector
	publisher notify.Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() (string, error)
}

// NewService wires the command engine and projection over store.
func NewService(store Store, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Limits == (money.Limits{}) {
		cfg.Limits = money.DefaultLimits()
	}
	if cfg.FeeScale <= 0 {
		cfg.FeeScale = fee.DefaultScale
	}
	if cfg.SweepLimit <= 0 {
		cfg.SweepLimit = defaultSweepLimit
	}
	cfg.HubAccount = strings.TrimSpace(cfg.HubAccount)

	s := &Service{
		store:  store,
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  id.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher == nil {
		s.publisher = notify.LogPublisher{Logger: s.logger}
	}

	s.projector = projection.Projector{
		Store:  store,
		Events: store,
		Applier: projection.Applier{
			HubAccount: cfg.HubAccount,
			FeeScale:   cfg.FeeScale,
		},
	}
	s.handler = engine.Handler{
		Loader: engine.ReplayStateLoader{
			Events:       store,
			Applier:      transfer.Folder{},
			StateFactory: func() any { return transfer.State{} },
		},
		Decider: transfer.Decider{
			HubAccount: cfg.HubAccount,
			Limits:     cfg.Limits,
		},
		Journal:     store,
		Applier:     transfer.Folder{},
		Projector:   s.projector,
		Logger:      s.logger.Named("engine"),
		Tracer:      s.tracer,
		Now:         s.clock,
		MaxAttempts: cfg.MaxAttempts,
	}
	return s, nil
}

// PrepareInput proposes a new transfer. A non-empty Condition escrows the
// funds and requires ExpiresAt.
type PrepareInput struct {
	TransferID string
	Payer      string
	Payee      string
	Amount     string
	Currency   string
	Condition  string
	ExpiresAt  *time.Time
	ILPPacket  string
	ActorID    string
	RequestID  string
}

// PrepareResult reports a prepared transfer. Existing is true when the same
// proposal had already been accepted.
type PrepareResult struct {
	Existing bool
	Transfer storage.Transfer
}

// Prepare records a new transfer, or echoes the stored one when the same
// proposal is redelivered. Unconditional transfers execute immediately.
func (s *Service) Prepare(ctx context.Context, in PrepareInput) (PrepareResult, error) {
	transferID, err := normalizeTransferID(in.TransferID)
	if err != nil {
		return PrepareResult{}, err
	}
	amount, err := money.Parse(in.Amount, in.Currency)
	if err != nil {
		return PrepareResult{}, apperrors.Wrap(apperrors.CodeValidation, err.Error(), err)
	}
	if err := s.checkParticipant(ctx, in.Payer, amount.Currency); err != nil {
		return PrepareResult{}, err
	}
	if err := s.checkParticipant(ctx, in.Payee, amount.Currency); err != nil {
		return PrepareResult{}, err
	}

	cmd := transfer.NewCommand(transferID, in.ActorID, in.RequestID, transfer.Prepare{
		Payer:     in.Payer,
		Payee:     in.Payee,
		Amount:    amount,
		Condition: in.Condition,
		ExpiresAt: in.ExpiresAt,
		ILPPacket: in.ILPPacket,
	})
	result, err := s.execute(ctx, cmd)
	if err != nil {
		return PrepareResult{}, err
	}
	view, err := s.transferView(ctx, transferID, result.State)
	if err != nil {
		return PrepareResult{}, err
	}
	return PrepareResult{Existing: result.Decision.Replayed, Transfer: view}, nil
}

// FulfillInput presents the preimage for a conditional transfer.
type FulfillInput struct {
	TransferID  string
	Fulfillment string
	ActorID     string
	RequestID   string
}

// FulfillResult reports an executed transfer. PreviouslyFulfilled is true
// when the same fulfillment had already been accepted.
type FulfillResult struct {
	PreviouslyFulfilled bool
	Transfer            storage.Transfer
}

// Fulfill releases a conditional transfer's escrow when the fulfillment
// meets its condition before expiry. Fees are levied in the same unit of
// work as the execution.
func (s *Service) Fulfill(ctx context.Context, in FulfillInput) (FulfillResult, error) {
	transferID, err := normalizeTransferID(in.TransferID)
	if err != nil {
		return FulfillResult{}, err
	}
	cmd := transfer.NewCommand(transferID, in.ActorID, in.RequestID, transfer.Fulfill{
		Fulfillment: strings.TrimSpace(in.Fulfillment),
	})
	result, err := s.execute(ctx, cmd)
	if err != nil {
		return FulfillResult{}, err
	}
	view, err := s.transferView(ctx, transferID, result.State)
	if err != nil {
		return FulfillResult{}, err
	}
	return FulfillResult{PreviouslyFulfilled: result.Decision.Replayed, Transfer: view}, nil
}

// RejectInput aborts a prepared conditional transfer. RequestedBy, when
// set, must be the transfer's payee.
type RejectInput struct {
	TransferID  string
	Reason      string
	Message     string
	RequestedBy string
	ActorID     string
	RequestID   string
}

// RejectResult reports an aborted transfer. AlreadyRejected is true when the
// transfer had already been rejected for the same reason.
type RejectResult struct {
	AlreadyRejected bool
	Transfer        storage.Transfer
}

// Reject aborts a conditional transfer that has not been executed.
func (s *Service) Reject(ctx context.Context, in RejectInput) (RejectResult, error) {
	transferID, err := normalizeTransferID(in.TransferID)
	if err != nil {
		return RejectResult{}, err
	}
	cmd := transfer.NewCommand(transferID, in.ActorID, in.RequestID, transfer.Reject{
		Reason:      in.Reason,
		Message:     in.Message,
		RequestedBy: in.RequestedBy,
	})
	result, err := s.execute(ctx, cmd)
	if err != nil {
		return RejectResult{}, err
	}
	view, err := s.transferView(ctx, transferID, result.State)
	if err != nil {
		return RejectResult{}, err
	}
	return RejectResult{AlreadyRejected: result.Decision.Replayed, Transfer: view}, nil
}

// SettleInput links an executed transfer to a recorded settlement.
type SettleInput struct {
	TransferID   string
	SettlementID string
	ActorID      string
	RequestID    string
}

// Settle marks an executed transfer as paid out by a settlement.
func (s *Service) Settle(ctx context.Context, in SettleInput) (storage.Transfer, error) {
	transferID, err := normalizeTransferID(in.TransferID)
	if err != nil {
		return storage.Transfer{}, err
	}
	settlementID := strings.TrimSpace(in.SettlementID)
	if settlementID == "" {
		return storage.Transfer{}, apperrors.New(apperrors.CodeValidation, "settlement id is required")
	}
	if _, err := s.store.GetSettlement(ctx, settlementID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Transfer{}, apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("settlement %s not found", settlementID),
				map[string]string{"SettlementID": settlementID})
		}
		return storage.Transfer{}, fmt.Errorf("get settlement %s: %w", settlementID, err)
	}

	cmd := transfer.NewCommand(transferID, in.ActorID, in.RequestID, transfer.Settle{SettlementID: settlementID})
	result, err := s.execute(ctx, cmd)
	if err != nil {
		return storage.Transfer{}, err
	}
	return s.transferView(ctx, transferID, result.State)
}

// checkParticipant requires name to be an active participant that trades in
// currency when the directory records one.
func (s *Service) checkParticipant(ctx context.Context, name, currency string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.New(apperrors.CodeValidation, "payer and payee are required")
	}
	participant, err := s.store.GetParticipant(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("participant %s not found", name),
				map[string]string{"Participant": name})
		}
		return fmt.Errorf("get participant %s: %w", name, err)
	}
	if !participant.Active {
		return apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("participant %s is not active", name),
			map[string]string{"Participant": name})
	}
	if participant.Currency != "" && !strings.EqualFold(participant.Currency, currency) {
		return apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("participant %s does not trade in %s", name, currency),
			map[string]string{"Participant": name, "Currency": participant.Currency})
	}
	return nil
}

// transferView reads the projected transfer and prefers the folded aggregate
// when the read model is missing the row or lags behind it.
func (s *Service) transferView(ctx context.Context, transferID string, state any) (storage.Transfer, error) {
	folded, ok := state.(transfer.State)
	view, err := s.store.GetTransfer(ctx, transferID)
	if err == nil {
		if ok && folded.Created && folded.LastSeq > view.LastSeq {
			fresh := viewFromState(folded)
			fresh.Timeline = view.Timeline
			return fresh, nil
		}
		return view, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Transfer{}, fmt.Errorf("get transfer %s: %w", transferID, err)
	}
	if !ok || !folded.Created {
		return storage.Transfer{}, transferNotFound(transferID)
	}
	return viewFromState(folded), nil
}

func viewFromState(state transfer.State) storage.Transfer {
	view := storage.Transfer{
		ID:               state.ID,
		Payer:            state.Payer,
		Payee:            state.Payee,
		Amount:           state.Amount,
		Condition:        state.Condition,
		ExpiresAt:        state.ExpiresAt,
		ILPPacket:        state.ILPPacket,
		Status:           state.Status,
		RejectionReason:  state.RejectionReason,
		RejectionMessage: state.RejectionMessage,
		PayeeRejected:    state.RejectionReason == transfer.ReasonCancelled,
		SettlementID:     state.SettlementID,
		LastSeq:          state.LastSeq,
		PreparedAt:       state.PreparedAt,
		UpdatedAt:        state.PreparedAt,
	}
	if state.Executed() {
		fulfillment := state.Fulfillment
		view.Fulfillment = &fulfillment
	}
	for _, at := range []time.Time{state.ExecutedAt, state.RejectedAt, state.SettledAt} {
		if at.After(view.UpdatedAt) {
			view.UpdatedAt = at
		}
	}
	return view
}

func normalizeTransferID(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", apperrors.New(apperrors.CodeValidation, "transfer id is required")
	}
	normalized, err := id.Normalize(value)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("transfer id %q is not a UUID", value), err)
	}
	return normalized, nil
}

func transferNotFound(transferID string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("transfer %s not found", transferID),
		map[string]string{"TransferID": transferID})
}

func (s *Service) execute(ctx context.Context, cmd command.Command) (engine.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Command)
	defer cancel()
	return s.handler.Execute(ctx, cmd)
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}
