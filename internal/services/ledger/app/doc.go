// Package app composes the ledger: it wires the command engine, the
// projection, and the notification relay over one store, exposes the
// transfer commands and queries to transport collaborators, and runs the
// background sweeps and health endpoint of the ledger process.
package app
