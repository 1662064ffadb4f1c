// Package recovery replays the event journal into application state.
//
// Rounds are replayed strictly in order. For each round every event is first
// pre-handled against a read-only view of the state, then the whole round is
// applied to the mutable state, and finally the consensus event digest is
// advanced and the freeze boundary checked. Nothing of round N+1 starts before
// round N is applied.
package recovery

import (
	"context"
	"time"

	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
)

// ImmutableState is a read-only view of application state.
type ImmutableState interface {
	PreHandle(ctx context.Context, e *eventstream.Event) error
}

// State is the application state being recovered. Implementations are
// provided by the application; the driver only calls them.
type State interface {
	// Round returns the last round applied to the state, or 0 for genesis.
	Round() uint64
	// ConsensusTimestamp returns the consensus timestamp of that round.
	ConsensusTimestamp() time.Time
	// RunningEventHash returns the consensus event digest through that round.
	RunningEventHash() eventstream.Hash
	// Immutable returns the view used to pre-handle the next round.
	Immutable() ImmutableState
	// ApplyRound performs the state transitions of one round.
	ApplyRound(ctx context.Context, round *eventstream.Round, dual *DualState) error
}

// DualState is the platform state carried alongside application state.
type DualState struct {
	// FreezeTime is the scheduled freeze instant, if any.
	FreezeTime *time.Time `json:"freeze_time,omitempty"`
	// LastFrozenTime is set to FreezeTime once a round crosses it.
	LastFrozenTime *time.Time `json:"last_frozen_time,omitempty"`
}

// Frozen reports whether the freeze has been reached.
func (d *DualState) Frozen() bool {
	return d.FreezeTime != nil && d.LastFrozenTime != nil && !d.LastFrozenTime.Before(*d.FreezeTime)
}
