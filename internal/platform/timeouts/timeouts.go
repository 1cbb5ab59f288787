// Package timeouts defines shared timeout constants used across the ledger.
package timeouts

import "time"

// SQLiteBusy is how long a SQLite connection waits on a locked database
// before returning SQLITE_BUSY.
const SQLiteBusy = 5 * time.Second

// Command caps a single command handled through the write path, including
// conflict retries.
const Command = 10 * time.Second

// PublishAttempt caps a single outbox delivery to the broker.
const PublishAttempt = 5 * time.Second

// Shutdown limits how long servers wait for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second

// Sweep caps one run of a scheduled background sweep.
const Sweep = time.Minute

// GRPCDial caps dialing a gRPC endpoint and waiting for it to report
// healthy.
const GRPCDial = 2 * time.Second
