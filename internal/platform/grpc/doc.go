// Package grpc holds the health-only gRPC server the ledger exposes and the
// client helpers that check it.
package grpc
