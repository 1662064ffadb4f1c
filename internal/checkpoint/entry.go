package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// GenesisHash is the canonical well-known hash of the genesis entry.
// It serves as the trust anchor of the chain; all subsequent entry hashes
// chain from this constant rather than from a computed value.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

var (
	// ErrNotFound is returned by Get for an index outside the ledger.
	ErrNotFound = errors.New("checkpoint: entry not found")

	// ErrNoCheckpoints is returned by Last when only the genesis entry exists.
	ErrNoCheckpoints = errors.New("checkpoint: ledger has no checkpoints")
)

// Record is the recovery progress captured after one applied round.
type Record struct {
	RunID          string    `json:"run_id"`
	Round          uint64    `json:"round"`
	RoundTimestamp time.Time `json:"round_timestamp"`
	EventCount     int       `json:"event_count"`
	EventDigest    string    `json:"event_digest"` // hex digest accumulated through this round
	RunningHash    string    `json:"running_hash"` // journal running hash after this round
}

// Entry is a single checkpoint in the ledger.
type Entry struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Record
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// IsGenesis reports whether e is the genesis entry.
func (e *Entry) IsGenesis() bool { return e.Index == 0 }

func genesisEntry(ts time.Time) *Entry {
	return &Entry{
		Index:     0,
		Timestamp: ts,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash, // genesis hash is the well-known constant, not computed
	}
}

// newEntry chains rec onto prev.
func newEntry(prev *Entry, rec Record) *Entry {
	e := &Entry{
		Index:     prev.Index + 1,
		Timestamp: now(),
		Record:    rec,
		PrevHash:  prev.Hash,
	}
	e.RoundTimestamp = rec.RoundTimestamp.UTC()
	e.Hash = hashEntry(e)
	return e
}

// hashEntry computes a deterministic SHA-256 hash over an entry's fields.
// This function must never be called on the genesis entry (index 0).
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%d|%d|%d|%s|%s|%s",
		e.Index, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.RunID, e.Round, e.RoundTimestamp.UnixNano(), e.EventCount,
		e.EventDigest, e.RunningHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// verifyLink checks curr against its predecessor.
func verifyLink(prev, curr *Entry) error {
	if prev == nil {
		if curr.Index != 0 || curr.Hash != GenesisHash {
			return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
		}
		return nil
	}
	if curr.Index != prev.Index+1 {
		return fmt.Errorf("index gap between %d and %d", prev.Index, curr.Index)
	}
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at index %d", curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("entry %d has invalid hash", curr.Index)
	}
	if !prev.IsGenesis() && curr.RunID == prev.RunID && curr.Round <= prev.Round {
		return fmt.Errorf("entry %d records round %d after round %d in run %s", curr.Index, curr.Round, prev.Round, curr.RunID)
	}
	return nil
}

// now is truncated to microseconds so entries hash the same after a round
// trip through PostgreSQL.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
