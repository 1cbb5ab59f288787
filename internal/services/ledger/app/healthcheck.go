package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mojaloop/central-ledger-sub000/internal/platform/discovery"
	platformgrpc "github.com/mojaloop/central-ledger-sub000/internal/platform/grpc"
	"github.com/mojaloop/central-ledger-sub000/internal/platform/timeouts"
)

// CheckHealth dials a running ledger at addr and returns nil once its runtime
// health service reports SERVING. An empty addr uses the in-network
// default.
func CheckHealth(ctx context.Context, addr string, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = timeouts.GRPCDial
	}
	addr = discovery.OrDefaultGRPCAddr(strings.TrimSpace(addr), discovery.ServiceLedger)

	conn, err := platformgrpc.DialHealthy(ctx, addr, platformgrpc.ClientOptions{Service: HealthService, Timeout: timeout})
	if err != nil {
		return fmt.Errorf("health check ledger %s: %w", addr, err)
	}
	return conn.Close()
}
