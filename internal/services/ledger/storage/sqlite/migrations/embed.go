package migrations

import "embed"

// LedgerFS holds the ledger schema, applied under the "ledger" root.
//
//go:embed ledger/*.sql
var LedgerFS embed.FS

// LedgerRoot is the directory of LedgerFS that holds migration files.
const LedgerRoot = "ledger"
