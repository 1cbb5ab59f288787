// Package migrations embeds the SQL schema history of the ledger store.
package migrations
