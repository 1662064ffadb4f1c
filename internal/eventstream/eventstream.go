// Package eventstream reads the hash-chained consensus event journal.
//
// A journal directory holds files named by the consensus timestamp of their
// first event. Each file is a flat sequence of framed records:
//
//	[StartHash][Event]*[EndHash]?
//
// StartHash equals the EndHash of the previous file, or the externally seeded
// genesis hash for the first file ever written. Only the chronologically last
// file may lack an EndHash; that file may also end in a partially written
// record after a crash.
//
// The readers are layered, each owning the one below it:
//   - RecordReader: framed records from one byte stream.
//   - FileReader: start hash, events and end hash of one journal file.
//   - Locator: the ordered journal files that can hold events at a Bound.
//   - ChainReader: one verified event sequence across files.
//   - RoundReader: events grouped into consensus rounds.
//
// None of the readers are safe for concurrent use.
package eventstream
