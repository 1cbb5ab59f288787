package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	apperrors "github.com/mojaloop/central-ledger-sub000/internal/platform/errors"
	"github.com/mojaloop/central-ledger-sub000/internal/platform/logging"
	"github.com/mojaloop/central-ledger-sub000/internal/platform/timeouts"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/engine"
)

// Schedules holds the cron specs of the background sweeps. An empty spec
// disables that sweep.
type Schedules struct {
	Expiry     string
	Settlement string
	Reproject  string
	Notify     string
}

// Scheduler runs the service sweeps on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *zap.Logger
	ctx     context.Context
}

// NewScheduler registers the configured sweeps. Jobs run with ctx and are
// skipped while a previous run of the same job is still going.
func NewScheduler(ctx context.Context, service *Service, schedules Schedules, logger *zap.Logger) (*Scheduler, error) {
	if service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := cron.PrintfLogger(logging.StdLogger(logger, "cron"))
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		service: service,
		logger:  logger,
		ctx:     ctx,
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{name: "expiry", spec: schedules.Expiry, run: func(ctx context.Context) error {
			_, err := service.ExpireTransfers(ctx)
			return err
		}},
		{name: "settlement", spec: schedules.Settlement, run: func(ctx context.Context) error {
			_, err := service.SettleTransfers(ctx)
			return err
		}},
		{name: "reproject", spec: schedules.Reproject, run: func(ctx context.Context) error {
			_, err := service.ReprojectPending(ctx)
			return err
		}},
		{name: "notify", spec: schedules.Notify, run: func(ctx context.Context) error {
			_, err := service.FlushNotifications(ctx)
			return err
		}},
	}
	for _, job := range jobs {
		spec := strings.TrimSpace(job.spec)
		if spec == "" {
			logger.Info("sweep disabled", zap.String("job", job.name))
			continue
		}
		if _, err := s.cron.AddFunc(spec, s.wrap(job.name, job.run)); err != nil {
			return nil, fmt.Errorf("schedule %s sweep %q: %w", job.name, spec, err)
		}
		logger.Info("scheduled sweep", zap.String("job", job.name), zap.String("schedule", spec))
	}
	return s, nil
}

func (s *Scheduler) wrap(name string, run func(context.Context) error) func() {
	return func() {
		if s.ctx.Err() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(s.ctx, timeouts.Sweep)
		defer cancel()
		if err := run(ctx); err != nil {
			s.logger.Warn("sweep failed",
				zap.String("job", name),
				zap.String("code", string(apperrors.CodeOf(err))),
				zap.Bool("retryable", !engine.IsNonRetryable(err)),
				zap.Error(err))
		}
	}
}

// Entries reports how many sweeps are scheduled.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler and blocks until ctx ends, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
