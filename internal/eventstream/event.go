package eventstream

import (
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"time"
)

// Event is a consensus event as recorded in the journal. Events are created
// by the consensus layer and never modified once read.
type Event struct {
	Creator            uint64    `json:"creator"`
	SelfParent         Hash      `json:"self_parent"`
	OtherParent        Hash      `json:"other_parent"`
	CreatedAt          time.Time `json:"created_at"`
	ConsensusTimestamp time.Time `json:"consensus_timestamp"`
	Round              uint64    `json:"round"` // round received
	LastInRound        bool      `json:"last_in_round"`
	Payload            []byte    `json:"payload"`
	Hash               Hash      `json:"hash"`         // content hash
	RunningHash        Hash      `json:"running_hash"` // H(previous running hash || Hash)
}

// fixed part of the event encoding, excluding the payload bytes
const eventHeaderSize = 8 + HashSize + HashSize + 8 + 8 + 8 + 1 + 4

// ContentHash computes the hash of every field except Hash and RunningHash.
func (e *Event) ContentHash() Hash {
	var out Hash
	d := sha512.New384()
	d.Write(e.appendContent(make([]byte, 0, eventHeaderSize+len(e.Payload))))
	copy(out[:], d.Sum(nil))
	return out
}

func (e *Event) appendContent(b []byte) []byte {
	b = binary.BigEndian.AppendUint64(b, e.Creator)
	b = append(b, e.SelfParent[:]...)
	b = append(b, e.OtherParent[:]...)
	b = binary.BigEndian.AppendUint64(b, uint64(e.CreatedAt.UnixNano()))
	b = binary.BigEndian.AppendUint64(b, uint64(e.ConsensusTimestamp.UnixNano()))
	b = binary.BigEndian.AppendUint64(b, e.Round)
	if e.LastInRound {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = binary.BigEndian.AppendUint32(b, uint32(len(e.Payload)))
	return append(b, e.Payload...)
}

// MarshalBinary encodes the event as a journal record payload.
func (e *Event) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, eventHeaderSize+len(e.Payload)+2*HashSize)
	b = e.appendContent(b)
	b = append(b, e.Hash[:]...)
	return append(b, e.RunningHash[:]...), nil
}

// UnmarshalBinary decodes a journal record payload.
func (e *Event) UnmarshalBinary(b []byte) error {
	if len(b) < eventHeaderSize+2*HashSize {
		return fmt.Errorf("event record too short: %d bytes", len(b))
	}
	off := 0
	e.Creator = binary.BigEndian.Uint64(b[off:])
	off += 8
	off += copy(e.SelfParent[:], b[off:])
	off += copy(e.OtherParent[:], b[off:])
	e.CreatedAt = time.Unix(0, int64(binary.BigEndian.Uint64(b[off:]))).UTC()
	off += 8
	e.ConsensusTimestamp = time.Unix(0, int64(binary.BigEndian.Uint64(b[off:]))).UTC()
	off += 8
	e.Round = binary.BigEndian.Uint64(b[off:])
	off += 8
	switch b[off] {
	case 0:
		e.LastInRound = false
	case 1:
		e.LastInRound = true
	default:
		return fmt.Errorf("event record: invalid last-in-round flag %d", b[off])
	}
	off++
	n := int(binary.BigEndian.Uint32(b[off:]))
	off += 4
	if len(b)-off != n+2*HashSize {
		return fmt.Errorf("event record: payload length %d does not match record size %d", n, len(b))
	}
	e.Payload = append([]byte(nil), b[off:off+n]...)
	off += n
	off += copy(e.Hash[:], b[off:])
	copy(e.RunningHash[:], b[off:])
	return nil
}

// Seal sets the content hash and chains the running hash onto prev.
func (e *Event) Seal(prev Hash) {
	e.Hash = e.ContentHash()
	e.RunningHash = RunningHash(prev, e.Hash)
}

// Round is a group of events that reached consensus together.
type Round struct {
	Number uint64
	Events []*Event
}

// Complete reports whether the round ends with its last-in-round event.
func (r *Round) Complete() bool {
	return len(r.Events) > 0 && r.Events[len(r.Events)-1].LastInRound
}

// ConsensusTimestamp returns the consensus timestamp of the round's last event.
func (r *Round) ConsensusTimestamp() time.Time {
	if len(r.Events) == 0 {
		return time.Time{}
	}
	return r.Events[len(r.Events)-1].ConsensusTimestamp
}

// FirstTimestamp returns the consensus timestamp of the round's first event.
func (r *Round) FirstTimestamp() time.Time {
	if len(r.Events) == 0 {
		return time.Time{}
	}
	return r.Events[0].ConsensusTimestamp
}
