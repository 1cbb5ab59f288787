// Package ledger parses ledger command flags and launches the ledger runtime.
package ledger

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	entrypoint "github.com/mojaloop/central-ledger-sub000/internal/platform/cmd"
	"github.com/mojaloop/central-ledger-sub000/internal/platform/config"
	"github.com/mojaloop/central-ledger-sub000/internal/platform/logging"
	"github.com/mojaloop/central-ledger-sub000/internal/platform/timeouts"
	ledgerapp "github.com/mojaloop/central-ledger-sub000/internal/services/ledger/app"
	"github.com/mojaloop/central-ledger-sub000/internal/services/ledger/domain/money"
)

const envFileKey = "LEDGER_ENV_FILE"

// Config holds ledger command configuration.
type Config struct {
	Port               int    `env:"LEDGER_PORT" envDefault:"8092"`
	DBPath             string `env:"LEDGER_DB_PATH" envDefault:"data/ledger.db"`
	HubAccount         string `env:"LEDGER_HUB_ACCOUNT" envDefault:"hub"`
	AmountScale        int    `env:"LEDGER_AMOUNT_SCALE" envDefault:"4"`
	AmountPrecision    int    `env:"LEDGER_AMOUNT_PRECISION" envDefault:"18"`
	FeeScale           int    `env:"LEDGER_FEE_SCALE" envDefault:"2"`
	ExpirySchedule     string `env:"LEDGER_EXPIRY_SCHEDULE" envDefault:"@every 10s"`
	SettlementSchedule string `env:"LEDGER_SETTLEMENT_SCHEDULE" envDefault:"0 0 * * * *"`
	ReprojectSchedule  string `env:"LEDGER_REPROJECT_SCHEDULE" envDefault:"@every 1m"`
	NotifySchedule     string `env:"LEDGER_NOTIFY_SCHEDULE" envDefault:"@every 5s"`
	SweepLimit         int    `env:"LEDGER_SWEEP_LIMIT" envDefault:"500"`
	AMQPURL            string `env:"LEDGER_AMQP_URL"`
	AMQPExchange       string `env:"LEDGER_AMQP_EXCHANGE" envDefault:"ledger.transfers"`
	SeedPath           string `env:"LEDGER_SEED_PATH"`
	LogLevel           string `env:"LEDGER_LOG_LEVEL" envDefault:"info"`
	LogFormat          string `env:"LEDGER_LOG_FORMAT" envDefault:"json"`
	EnvFile            string `env:"LEDGER_ENV_FILE" envDefault:".env"`
	Addr               string `env:"LEDGER_ADDR"`
	HealthCheck        bool
}

// ParseConfig loads the dotenv file, then parses environment and flags into
// a Config. Variables already set in the process environment win over the
// dotenv file.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	envFile := ".env"
	if value, ok := os.LookupEnv(envFileKey); ok && strings.TrimSpace(value) != "" {
		envFile = strings.TrimSpace(value)
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The ledger health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The ledger SQLite database path")
	fs.StringVar(&cfg.HubAccount, "hub-account", cfg.HubAccount, "Participant that receives ledger fees")
	fs.IntVar(&cfg.AmountScale, "amount-scale", cfg.AmountScale, "Maximum decimal places in a transfer amount")
	fs.IntVar(&cfg.AmountPrecision, "amount-precision", cfg.AmountPrecision, "Maximum significant digits in a transfer amount")
	fs.IntVar(&cfg.FeeScale, "fee-scale", cfg.FeeScale, "Decimal places fees are rounded to")
	fs.StringVar(&cfg.ExpirySchedule, "expiry-schedule", cfg.ExpirySchedule, "Cron schedule for the expiry sweep (empty disables)")
	fs.StringVar(&cfg.SettlementSchedule, "settlement-schedule", cfg.SettlementSchedule, "Cron schedule for the settlement sweep (empty disables)")
	fs.StringVar(&cfg.ReprojectSchedule, "reproject-schedule", cfg.ReprojectSchedule, "Cron schedule for projection catch-up (empty disables)")
	fs.StringVar(&cfg.NotifySchedule, "notify-schedule", cfg.NotifySchedule, "Cron schedule for the notification relay (empty disables)")
	fs.IntVar(&cfg.SweepLimit, "sweep-limit", cfg.SweepLimit, "Maximum rows a single sweep handles")
	fs.StringVar(&cfg.AMQPURL, "amqp-url", cfg.AMQPURL, "AMQP broker URL for notifications (empty logs them)")
	fs.StringVar(&cfg.AMQPExchange, "amqp-exchange", cfg.AMQPExchange, "AMQP topic exchange for notifications")
	fs.StringVar(&cfg.SeedPath, "seed", cfg.SeedPath, "Participant and charge seed file applied at startup")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (json, console)")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Ledger address checked by -healthcheck")
	fs.BoolVar(&cfg.HealthCheck, "healthcheck", false, "Check a running ledger and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.HubAccount) == "" {
		return fmt.Errorf("hub account is required")
	}
	if c.AmountScale < 0 || c.AmountPrecision <= 0 || c.AmountScale > c.AmountPrecision {
		return fmt.Errorf("invalid amount limits: scale %d, precision %d", c.AmountScale, c.AmountPrecision)
	}
	if c.FeeScale < 0 || c.FeeScale > c.AmountScale {
		return fmt.Errorf("fee scale %d must be between 0 and amount scale %d", c.FeeScale, c.AmountScale)
	}
	return nil
}

// Run starts the ledger runtime, or checks a running one when HealthCheck
// is set.
func Run(ctx context.Context, cfg Config) error {
	if cfg.HealthCheck {
		return ledgerapp.CheckHealth(ctx, cfg.Addr, timeouts.GRPCDial)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	options := entrypoint.RunOptions{ShutdownTimeout: timeouts.Shutdown, DotEnvFiles: []string{cfg.EnvFile}}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceLedger, options, func(ctx context.Context) error {
		return ledgerapp.Run(ctx, ledgerapp.RuntimeConfig{
			Port:       cfg.Port,
			DBPath:     cfg.DBPath,
			HubAccount: cfg.HubAccount,
			Limits:     money.Limits{Scale: cfg.AmountScale, Precision: cfg.AmountPrecision},
			FeeScale:   int32(cfg.FeeScale),
			SweepLimit: cfg.SweepLimit,
			Schedules: ledgerapp.Schedules{
				Expiry:     cfg.ExpirySchedule,
				Settlement: cfg.SettlementSchedule,
				Reproject:  cfg.ReprojectSchedule,
				Notify:     cfg.NotifySchedule,
			},
			AMQPURL:      cfg.AMQPURL,
			AMQPExchange: cfg.AMQPExchange,
			SeedPath:     cfg.SeedPath,
			Logger:       logger.Named(entrypoint.ServiceLedger),
		})
	})
}
