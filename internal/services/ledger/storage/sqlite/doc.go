// Package sqlite implements the ledger storage contracts on a single SQLite
// database: the signed event journal, projection checkpoints, the transfer
// read model, the participant and charge directories, fees, settlements and
// the notification outbox.
//
// Every write transaction begins IMMEDIATE so concurrent writers serialize on
// the database lock instead of failing mid-transaction.
package sqlite
