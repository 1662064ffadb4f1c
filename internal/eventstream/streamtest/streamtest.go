// Package streamtest writes synthetic event journals for tests.
package streamtest

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
)

// Config describes a synthetic journal.
type Config struct {
	FirstRound     uint64
	Rounds         int
	EventsPerRound int
	Start          time.Time
	Spacing        time.Duration // consensus time between consecutive events
	FilePeriod     time.Duration
	PayloadSize    int
	Seed           uint64
	StartHash      eventstream.Hash
}

// DefaultConfig returns 10 rounds of 10 events, one event per second, in
// files of 20 seconds each.
func DefaultConfig() Config {
	return Config{
		FirstRound:     1,
		Rounds:         10,
		EventsPerRound: 10,
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Spacing:        time.Second,
		FilePeriod:     20 * time.Second,
		PayloadSize:    32,
		Seed:           1,
	}
}

// Events builds the unsealed events described by cfg. The last event of
// every round is marked last-in-round.
func Events(cfg Config) []*eventstream.Event {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	events := make([]*eventstream.Event, 0, cfg.Rounds*cfg.EventsPerRound)
	ts := cfg.Start
	for r := 0; r < cfg.Rounds; r++ {
		for i := 0; i < cfg.EventsPerRound; i++ {
			payload := make([]byte, cfg.PayloadSize)
			for j := range payload {
				payload[j] = byte(rng.UintN(256))
			}
			e := &eventstream.Event{
				Creator:            rng.Uint64N(4),
				SelfParent:         randomHash(rng),
				OtherParent:        randomHash(rng),
				CreatedAt:          ts.Add(-time.Duration(rng.IntN(1000)) * time.Millisecond),
				ConsensusTimestamp: ts,
				Round:              cfg.FirstRound + uint64(r),
				LastInRound:        i == cfg.EventsPerRound-1,
				Payload:            payload,
			}
			events = append(events, e)
			ts = ts.Add(cfg.Spacing)
		}
	}
	return events
}

// Write writes the journal described by cfg into dir and returns the sealed
// events in order. Every file, including the last, is closed with an end hash.
func Write(dir string, cfg Config) ([]*eventstream.Event, error) {
	events := Events(cfg)
	w, err := eventstream.NewWriter(eventstream.WriterConfig{
		Dir:        dir,
		FilePeriod: cfg.FilePeriod,
		StartHash:  cfg.StartHash,
	}, nil)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if err := w.Append(e); err != nil {
			_ = w.Abort()
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return events, nil
}

// Files returns the journal files of dir in chronological order.
func Files(dir string) ([]string, error) {
	return eventstream.ListFiles(dir)
}

// TruncateTail removes the last n bytes of the file at path.
func TruncateTail(path string, n int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if n > info.Size() {
		return fmt.Errorf("truncate %s: %d bytes requested, file has %d", path, n, info.Size())
	}
	return os.Truncate(path, info.Size()-n)
}

// TruncateLastFile cuts the end hash and the tail of the final event off the
// last journal file in dir, as a crash mid-write would.
func TruncateLastFile(dir string) error {
	files, err := Files(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("truncate last file: no journal files in %s", dir)
	}
	return TruncateTail(files[len(files)-1], eventstream.HashRecordSize+10)
}

func randomHash(rng *rand.Rand) eventstream.Hash {
	var h eventstream.Hash
	for i := range h {
		h[i] = byte(rng.UintN(256))
	}
	return h
}
