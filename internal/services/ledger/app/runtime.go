package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mojaloop/central-ledger-sub000/internal/platform/discovery"
	platformgrpc "github.com/mojaloop/central-ledger-sub000/internal/platform/grpc"
	"github.com/mojaloop/central-ledger-sub000/internal/platform/otel"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/notify"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage/integrity"
	ledgersqlite "github.com/mojaloop/central-ledger-sub000/internal/services/ledger/storage/sqlite"
)

// HealthService is the gRPC health service name reporting the runtime.
const HealthService = "ledger.runtime"

const defaultLedgerDB = "data/ledger.db"

// RuntimeConfig controls ledger startup, dependencies, and sweeps.
type RuntimeConfig struct {
	Port         int
	DBPath       string
	HubAccount   string
	Limits       money.Limits
	FeeScale     int32
	SweepLimit   int
	Schedules    Schedules
	AMQPURL      string
	AMQPExchange string
	SeedPath     string
	Logger       *zap.Logger
}

// Run opens the ledger store, wires the service, and serves the health
// endpoint and the sweep scheduler until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = discovery.DefaultGRPCPort(discovery.ServiceLedger)
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultLedgerDB
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger storage dir: %w", err)
		}
	}
	keyring, err := integrity.KeyringFromEnv()
	if err != nil {
		return fmt.Errorf("load event keyring: %w", err)
	}
	logger.Info("event keyring loaded", zap.String("signing_key", keyring.ActiveKeyID()))
	store, err := ledgersqlite.Open(cfg.DBPath, keyring)
	if err != nil {
		return fmt.Errorf("open ledger sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("close ledger sqlite store", zap.Error(closeErr))
		}
	}()

	if path := strings.TrimSpace(cfg.SeedPath); path != "" {
		seed, err := ReadSeedFile(path)
		if err != nil {
			return err
		}
		summary, err := ApplySeed(ctx, store, seed)
		if err != nil {
			return fmt.Errorf("apply seed %s: %w", path, err)
		}
		logger.Info("seeded directories",
			zap.String("path", path),
			zap.Int("participants", summary.Participants),
			zap.Int("charges", summary.Charges))
	}

	publisher, closePublisher, err := openPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	service, err := NewService(store, Config{
		HubAccount: cfg.HubAccount,
		Limits:     cfg.Limits,
		FeeScale:   cfg.FeeScale,
		SweepLimit: cfg.SweepLimit,
	},
		WithLogger(logger),
		WithTracer(otel.Tracer("ledger")),
		WithPublisher(publisher),
	)
	if err != nil {
		return err
	}

	if err := service.VerifyEventIntegrity(ctx); err != nil {
		return fmt.Errorf("verify event integrity: %w", err)
	}
	if _, err := service.ReprojectPending(ctx); err != nil {
		logger.Error("startup re-projection", zap.Error(err))
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on ledger port %d: %w", cfg.Port, err)
	}
	return Serve(ctx, listener, service, cfg.Schedules, logger)
}

// Serve runs the health gRPC server on listener and the sweep scheduler
// until ctx ends. It closes listener.
func Serve(ctx context.Context, listener net.Listener, service *Service, schedules Schedules, logger *zap.Logger) error {
	if listener == nil {
		return fmt.Errorf("listener is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	scheduler, err := NewScheduler(ctx, service, schedules, logger.Named("scheduler"))
	if err != nil {
		_ = listener.Close()
		return err
	}

	healthServer := platformgrpc.NewHealthServer(HealthService)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return healthServer.Serve(groupCtx, listener)
	})
	group.Go(func() error {
		return scheduler.Run(groupCtx)
	})

	logger.Info("ledger server listening", zap.String("addr", listener.Addr().String()))
	return group.Wait()
}

func openPublisher(cfg RuntimeConfig, logger *zap.Logger) (notify.Publisher, func(), error) {
	if strings.TrimSpace(cfg.AMQPURL) == "" {
		logger.Info("no amqp url configured; notifications are logged")
		return notify.LogPublisher{Logger: logger.Named("notify")}, func() {}, nil
	}
	exchange := strings.TrimSpace(cfg.AMQPExchange)
	if exchange == "" {
		exchange = notify.DefaultExchange
	}
	publisher, err := notify.DialAMQP(cfg.AMQPURL, exchange, logger.Named("notify"))
	if err != nil {
		return nil, nil, fmt.Errorf("dial notification broker: %w", err)
	}
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close notification broker", zap.Error(err))
		}
	}, nil
}
