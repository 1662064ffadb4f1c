package eventstream_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func eventAt(round uint64, ts time.Time) *eventstream.Event {
	return &eventstream.Event{Round: round, ConsensusTimestamp: ts}
}

func TestByRound_RejectsNonPositive(t *testing.T) {
	for _, r := range []int64{0, -1, -100} {
		_, err := eventstream.ByRound(r)
		assert.ErrorIs(t, err, eventstream.ErrInvalidBound, "round %d", r)
	}
	b, err := eventstream.ByRound(7)
	require.NoError(t, err)
	got, ok := b.Round()
	assert.True(t, ok)
	assert.Equal(t, uint64(7), got)
	assert.Equal(t, "round 7", b.String())
}

func TestByTimestamp_RejectsZero(t *testing.T) {
	_, err := eventstream.ByTimestamp(time.Time{})
	assert.ErrorIs(t, err, eventstream.ErrInvalidBound)

	b, err := eventstream.ByTimestamp(t0)
	require.NoError(t, err)
	ts, ok := b.Timestamp()
	assert.True(t, ok)
	assert.True(t, ts.Equal(t0))
	_, ok = b.Round()
	assert.False(t, ok)
}

func TestBound_Compare(t *testing.T) {
	round5, _ := eventstream.ByRound(5)
	atT0, _ := eventstream.ByTimestamp(t0)

	tests := []struct {
		name  string
		bound eventstream.Bound
		event *eventstream.Event
		side  eventstream.Side
		want  eventstream.Relation
	}{
		{"round bound before later round", round5, eventAt(6, t0), eventstream.Lower, eventstream.Before},
		{"round bound at same round", round5, eventAt(5, t0), eventstream.Lower, eventstream.At},
		{"round bound after earlier round", round5, eventAt(4, t0), eventstream.Lower, eventstream.After},
		{"round bound ignores side", round5, eventAt(4, t0), eventstream.Upper, eventstream.After},
		{"timestamp bound before later event", atT0, eventAt(1, t0.Add(time.Nanosecond)), eventstream.Lower, eventstream.Before},
		{"timestamp bound at same instant", atT0, eventAt(1, t0), eventstream.Lower, eventstream.At},
		{"timestamp bound after earlier event", atT0, eventAt(1, t0.Add(-time.Nanosecond)), eventstream.Lower, eventstream.After},
		{"unbounded lower precedes everything", eventstream.Unbounded(), eventAt(1, t0), eventstream.Lower, eventstream.Before},
		{"unbounded upper follows everything", eventstream.Unbounded(), eventAt(1, t0), eventstream.Upper, eventstream.After},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.bound.Compare(tt.event, tt.side))
		})
	}
}

func TestBound_Admits(t *testing.T) {
	round5, _ := eventstream.ByRound(5)

	assert.True(t, round5.AdmitsFromLower(eventAt(5, t0)), "lower bound is inclusive")
	assert.True(t, round5.AdmitsFromLower(eventAt(6, t0)))
	assert.False(t, round5.AdmitsFromLower(eventAt(4, t0)))

	assert.True(t, round5.Admits(eventAt(5, t0), eventstream.Upper), "upper bound is inclusive")
	assert.True(t, round5.Admits(eventAt(4, t0), eventstream.Upper))
	assert.False(t, round5.Admits(eventAt(6, t0), eventstream.Upper))

	assert.True(t, eventstream.Unbounded().AdmitsFromLower(eventAt(1, t0)))
	assert.True(t, eventstream.Unbounded().IsUnbounded())
	assert.Equal(t, "unbounded", eventstream.Unbounded().String())
}

func TestRelation_String(t *testing.T) {
	assert.Equal(t, "before", eventstream.Before.String())
	assert.Equal(t, "at", eventstream.At.String())
	assert.Equal(t, "after", eventstream.After.String())
}
