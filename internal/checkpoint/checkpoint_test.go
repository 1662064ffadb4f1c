package checkpoint_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashgraph/hedera-services-sub037/internal/checkpoint"
)

var ctx = context.Background()

func record(run string, round uint64) checkpoint.Record {
	return checkpoint.Record{
		RunID:          run,
		Round:          round,
		RoundTimestamp: time.Date(2024, 1, 1, 0, 0, int(round), 123456789, time.UTC),
		EventCount:     10,
		EventDigest:    "digest",
		RunningHash:    "running",
	}
}

func openSQLite(t *testing.T) *checkpoint.SQLiteLedger {
	t.Helper()
	l, err := checkpoint.OpenSQLite(ctx, filepath.Join(t.TempDir(), "checkpoints.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// ledgers returns a fresh instance of every embeddable Ledger implementation.
func ledgers(t *testing.T) map[string]checkpoint.Ledger {
	return map[string]checkpoint.Ledger{
		"memory": checkpoint.NewMemory(),
		"sqlite": openSQLite(t),
	}
}

func TestLedger_genesisEntry(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			n, err := l.Len(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if n != 1 {
				t.Errorf("expected 1 genesis entry, got %d", n)
			}

			entry, err := l.Get(ctx, 0)
			if err != nil {
				t.Fatal(err)
			}
			if !entry.IsGenesis() {
				t.Errorf("entry 0 is not the genesis entry: %+v", entry)
			}
			if entry.Hash != checkpoint.GenesisHash {
				t.Errorf("genesis hash: got %q, want GenesisHash", entry.Hash)
			}

			root, err := l.Root(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if root != checkpoint.GenesisHash {
				t.Errorf("Root() on genesis-only: got %q, want GenesisHash", root)
			}

			if _, err := l.Last(ctx); !errors.Is(err, checkpoint.ErrNoCheckpoints) {
				t.Errorf("Last() on genesis-only: got %v, want ErrNoCheckpoints", err)
			}
			if err := l.Verify(ctx); err != nil {
				t.Errorf("Verify() on genesis-only chain should pass: %v", err)
			}
		})
	}
}

func TestLedger_appendChainsCorrectly(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			e1, err := l.Append(ctx, record("run-1", 5))
			if err != nil {
				t.Fatal(err)
			}
			e2, err := l.Append(ctx, record("run-1", 6))
			if err != nil {
				t.Fatal(err)
			}

			if e1.PrevHash != checkpoint.GenesisHash {
				t.Errorf("first entry: PrevHash=%q, want GenesisHash", e1.PrevHash)
			}
			if e2.PrevHash != e1.Hash {
				t.Errorf("chain broken: e2.PrevHash=%q, want e1.Hash=%q", e2.PrevHash, e1.Hash)
			}
			if e2.Index != 2 {
				t.Errorf("e2.Index: got %d, want 2", e2.Index)
			}

			n, err := l.Len(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if n != 3 { // genesis + 2
				t.Errorf("expected 3 entries, got %d", n)
			}

			root, err := l.Root(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if root != e2.Hash {
				t.Errorf("Root(): got %q, want %q", root, e2.Hash)
			}

			last, err := l.Last(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if last.Round != 6 || last.RunID != "run-1" {
				t.Errorf("Last(): got round %d run %q, want round 6 run %q", last.Round, last.RunID, "run-1")
			}
			if !last.RoundTimestamp.Equal(record("run-1", 6).RoundTimestamp) {
				t.Errorf("Last().RoundTimestamp: got %s", last.RoundTimestamp)
			}

			got, err := l.Get(ctx, 1)
			if err != nil {
				t.Fatal(err)
			}
			if got.Hash != e1.Hash {
				t.Errorf("Get(1): got hash %q, want %q", got.Hash, e1.Hash)
			}

			if err := l.Verify(ctx); err != nil {
				t.Errorf("Verify() failed on valid chain: %v", err)
			}
		})
	}
}

func TestLedger_getOutOfRange(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			for _, idx := range []int{-1, 1, 42} {
				if _, err := l.Get(ctx, idx); !errors.Is(err, checkpoint.ErrNotFound) {
					t.Errorf("Get(%d): got %v, want ErrNotFound", idx, err)
				}
			}
		})
	}
}

func TestLedger_verifyRejectsRepeatedRound(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			_, _ = l.Append(ctx, record("run-1", 7))
			_, _ = l.Append(ctx, record("run-1", 7))
			if err := l.Verify(ctx); err == nil {
				t.Error("Verify() should reject a run that records the same round twice")
			}
		})
	}
}

func TestLedger_separateRunsMayRepeatRounds(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			_, _ = l.Append(ctx, record("run-1", 7))
			_, _ = l.Append(ctx, record("run-2", 7))
			if err := l.Verify(ctx); err != nil {
				t.Errorf("Verify(): %v", err)
			}
		})
	}
}

func TestMemoryLedger_verifyDetectsTampering(t *testing.T) {
	l := checkpoint.NewMemory()
	_, _ = l.Append(ctx, record("run-1", 1))
	_, _ = l.Append(ctx, record("run-1", 2))

	e, err := l.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	e.EventDigest = "forged"

	if err := l.Verify(ctx); err == nil {
		t.Error("Verify() should fail after an entry was modified")
	}
}

func TestSQLiteLedger_verifyDetectsTampering(t *testing.T) {
	l := openSQLite(t)
	_, _ = l.Append(ctx, record("run-1", 1))
	_, _ = l.Append(ctx, record("run-1", 2))

	if err := l.Exec(ctx, "UPDATE recovery_checkpoints SET event_count = 99 WHERE idx = 2"); err != nil {
		t.Fatal(err)
	}
	if err := l.Verify(ctx); err == nil {
		t.Error("Verify() should fail after a row was modified")
	}
}

func TestSQLiteLedger_reopenKeepsChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	l, err := checkpoint.OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	e, err := l.Append(ctx, record("run-1", 3))
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l, err = checkpoint.OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	n, err := l.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Len() after reopen: got %d, want 2", n)
	}
	root, err := l.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if root != e.Hash {
		t.Errorf("Root() after reopen: got %q, want %q", root, e.Hash)
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify() after reopen: %v", err)
	}
}
