package eventstream

import (
	"fmt"
	"time"
)

// Side selects which end of a range a Bound is compared as.
type Side int

const (
	Lower Side = iota
	Upper
)

// Relation describes where a Bound lies relative to an event.
type Relation int

const (
	Before Relation = iota - 1 // the bound precedes the event
	At                         // the bound coincides with the event
	After                      // the bound follows the event
)

func (r Relation) String() string {
	switch r {
	case Before:
		return "before"
	case At:
		return "at"
	case After:
		return "after"
	default:
		return fmt.Sprintf("Relation(%d)", int(r))
	}
}

type boundKind int

const (
	boundNone boundKind = iota
	boundRound
	boundTimestamp
)

// Bound is a resume point in the journal: unbounded, a round number, or a
// consensus timestamp. The zero value is Unbounded.
type Bound struct {
	kind  boundKind
	round uint64
	ts    time.Time
}

// Unbounded returns a bound that admits every event.
func Unbounded() Bound {
	return Bound{}
}

// ByRound returns a bound on the round received. round must be positive.
func ByRound(round int64) (Bound, error) {
	if round <= 0 {
		return Bound{}, fmt.Errorf("%w: round %d is not positive", ErrInvalidBound, round)
	}
	return Bound{kind: boundRound, round: uint64(round)}, nil
}

// ByTimestamp returns a bound on the consensus timestamp. t must be set.
func ByTimestamp(t time.Time) (Bound, error) {
	if t.IsZero() {
		return Bound{}, fmt.Errorf("%w: zero timestamp", ErrInvalidBound)
	}
	return Bound{kind: boundTimestamp, ts: t}, nil
}

// IsUnbounded reports whether b admits every event.
func (b Bound) IsUnbounded() bool { return b.kind == boundNone }

// Round returns the round of a round bound.
func (b Bound) Round() (uint64, bool) { return b.round, b.kind == boundRound }

// Timestamp returns the timestamp of a timestamp bound.
func (b Bound) Timestamp() (time.Time, bool) { return b.ts, b.kind == boundTimestamp }

// Compare reports where b lies relative to e when used as the given side of a
// range. An unbounded lower side precedes every event and an unbounded upper
// side follows every event.
func (b Bound) Compare(e *Event, side Side) Relation {
	switch b.kind {
	case boundRound:
		switch {
		case b.round < e.Round:
			return Before
		case b.round > e.Round:
			return After
		}
		return At
	case boundTimestamp:
		switch {
		case b.ts.Before(e.ConsensusTimestamp):
			return Before
		case b.ts.After(e.ConsensusTimestamp):
			return After
		}
		return At
	}
	if side == Upper {
		return After
	}
	return Before
}

// Admits reports whether e falls on the inside of b for the given side.
// Both sides are inclusive.
func (b Bound) Admits(e *Event, side Side) bool {
	rel := b.Compare(e, side)
	if side == Lower {
		return rel != After
	}
	return rel != Before
}

// AdmitsFromLower reports whether e is at or after b.
func (b Bound) AdmitsFromLower(e *Event) bool {
	return b.Admits(e, Lower)
}

func (b Bound) String() string {
	switch b.kind {
	case boundRound:
		return fmt.Sprintf("round %d", b.round)
	case boundTimestamp:
		return "timestamp " + b.ts.UTC().Format(time.RFC3339Nano)
	}
	return "unbounded"
}
