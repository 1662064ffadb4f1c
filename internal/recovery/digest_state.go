package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
)

// DigestState is a State that tracks only its round position and the
// consensus event digest. It lets a journal be replayed and audited without
// an application.
type DigestState struct {
	round  uint64
	ts     time.Time
	digest eventstream.Hash
	events int
}

// NewDigestState returns a DigestState that has applied round at ts with the
// given digest. Use round 0 for genesis.
func NewDigestState(round uint64, ts time.Time, digest eventstream.Hash) *DigestState {
	return &DigestState{round: round, ts: ts, digest: digest}
}

func (s *DigestState) Round() uint64                      { return s.round }
func (s *DigestState) ConsensusTimestamp() time.Time      { return s.ts }
func (s *DigestState) RunningEventHash() eventstream.Hash { return s.digest }

// Events returns the number of events applied.
func (s *DigestState) Events() int { return s.events }

// Immutable implements State.
func (s *DigestState) Immutable() ImmutableState { return digestView{round: s.round} }

// ApplyRound implements State.
func (s *DigestState) ApplyRound(_ context.Context, round *eventstream.Round, _ *DualState) error {
	if round.Number <= s.round {
		return fmt.Errorf("round %d already applied (state is at round %d)", round.Number, s.round)
	}
	s.round = round.Number
	s.ts = round.ConsensusTimestamp()
	s.digest = AccumulateDigest(s.digest, round)
	s.events += len(round.Events)
	return nil
}

type digestView struct {
	round uint64
}

func (v digestView) PreHandle(_ context.Context, e *eventstream.Event) error {
	if e.Round <= v.round {
		return fmt.Errorf("event of round %d precedes state round %d", e.Round, v.round)
	}
	return nil
}
