// Package main provides a CLI for seeding the ledger participant and charge
// directories from a JSON file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	seedcmd "github.com/mojaloop/central-ledger-sub000/internal/cmd/seed"
	entrypoint "github.com/mojaloop/central-ledger-sub000/internal/platform/cmd"
	"github.com/mojaloop/central-ledger-sub000/internal/platform/config"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		config.Exitf("Error: %v", err)
	}
	cfg, err := seedcmd.ParseConfig(flag.CommandLine, os.Args[1:], os.LookupEnv)
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, func(ctx context.Context) error {
		return seedcmd.Run(ctx, cfg, os.Stdout, os.Stderr)
	}); err != nil {
		config.Exitf("Error: %v", err)
	}
}
