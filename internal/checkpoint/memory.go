package checkpoint

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation.
// It is primarily useful for testing and for dry runs that do not need the
// checkpoints to outlive the process.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemory creates a MemoryLedger initialised with the canonical genesis entry.
func NewMemory() *MemoryLedger {
	return &MemoryLedger{entries: []*Entry{genesisEntry(now())}}
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, rec Record) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := newEntry(l.entries[len(l.entries)-1], rec)
	l.entries = append(l.entries, entry)
	return entry, nil
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, index int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrNotFound, index)
	}
	return l.entries[index], nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Verify implements Ledger.
func (l *MemoryLedger) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var prev *Entry
	for _, curr := range l.entries {
		if err := verifyLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Root implements Ledger.
func (l *MemoryLedger) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}

// Last implements Ledger.
func (l *MemoryLedger) Last(_ context.Context) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	last := l.entries[len(l.entries)-1]
	if last.IsGenesis() {
		return nil, ErrNoCheckpoints
	}
	return last, nil
}
