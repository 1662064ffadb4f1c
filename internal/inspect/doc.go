// Package inspect serves a read-only HTTP API for auditing an event journal
// and the checkpoint ledger of past recoveries.
package inspect
