// Package checkpoint implements a hash-chained log of recovery progress.
//
// Every round applied by the recovery driver can be recorded as an Entry
// holding the round number, its consensus timestamp, the accumulated event
// digest and the journal running hash after the round. The chain begins with
// a well-known genesis entry whose Hash equals GenesisHash (64 hex zeros).
// Every subsequent entry records the SHA-256 of its predecessor, making any
// tampering detectable via Verify.
//
// Three implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, for testing and dry runs.
//   - SQLiteLedger: a single local file, for operators recovering one node.
//   - PostgresLedger: durable and shared, for fleets.
package checkpoint
