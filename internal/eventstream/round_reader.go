package eventstream

import (
	"fmt"

	"go.uber.org/zap"
)

// EventSource is a forward-only event cursor. ChainReader implements it.
type EventSource interface {
	Peek() (*Event, bool, error)
	Next() (*Event, bool, error)
	Close() error
}

// RoundReader groups an event sequence into consensus rounds. It owns its
// source and closes it when the rounds run out, on any error, or on Close.
type RoundReader struct {
	src            EventSource
	includePartial bool
	logger         *zap.Logger

	peeked    *Round
	lastRound uint64
	emitted   bool

	done   bool
	closed bool
	err    error
}

// NewRoundReader starts reading rounds from src at startRound. A startRound of
// zero starts at the first available round. Events of earlier rounds are
// skipped; if the first remaining event belongs to a later round, or there is
// none, it fails with ErrRoundNotFound.
//
// When the source ends in the middle of a round, that round is returned as an
// incomplete Round if includePartial is set and dropped otherwise.
func NewRoundReader(src EventSource, startRound uint64, includePartial bool, opts ...Option) (*RoundReader, error) {
	o := buildOptions(opts)

	for {
		e, ok, err := src.Peek()
		if err != nil {
			_ = src.Close()
			return nil, err
		}
		if !ok {
			_ = src.Close()
			return nil, fmt.Errorf("%w: round %d: event stream is empty", ErrRoundNotFound, startRound)
		}
		if e.Round >= startRound {
			if startRound != 0 && e.Round != startRound {
				_ = src.Close()
				return nil, fmt.Errorf("%w: round %d: first available round is %d", ErrRoundNotFound, startRound, e.Round)
			}
			break
		}
		if _, _, err := src.Next(); err != nil {
			_ = src.Close()
			return nil, err
		}
	}

	return &RoundReader{
		src:            src,
		includePartial: includePartial,
		logger:         o.logger,
	}, nil
}

// OpenRounds reads the rounds of the journal in dir starting at b. A round
// bound also fixes the starting round. A timestamp bound starts at the first
// whole round at or after it: the rest of a round the bound cuts into is
// skipped.
func OpenRounds(dir string, b Bound, includePartial bool, opts ...Option) (*RoundReader, error) {
	chain, err := OpenChain(dir, b, opts...)
	if err != nil {
		return nil, err
	}
	if _, ok := b.Timestamp(); ok {
		if err := skipRoundTail(chain, buildOptions(opts).logger); err != nil {
			_ = chain.Close()
			return nil, err
		}
	}
	start, _ := b.Round()
	return NewRoundReader(chain, start, includePartial, opts...)
}

// skipRoundTail consumes the leading events of c that share a round with the
// event skipped just before them.
func skipRoundTail(c *ChainReader, logger *zap.Logger) error {
	first, ok, err := c.Peek()
	if err != nil || !ok {
		return err
	}
	prev, ok := c.Preceding()
	if !ok || prev.Round != first.Round {
		return nil
	}

	dropped := 0
	for {
		e, ok, err := c.Peek()
		if err != nil {
			return err
		}
		if !ok || e.Round != prev.Round {
			break
		}
		if _, _, err := c.Next(); err != nil {
			return err
		}
		dropped++
	}
	logger.Debug("skipped the rest of a round cut by the bound",
		zap.Uint64("round", prev.Round),
		zap.Int("events", dropped),
	)
	return nil
}

// Peek returns the next round without consuming it.
func (r *RoundReader) Peek() (*Round, bool, error) {
	switch {
	case r.err != nil:
		return nil, false, r.err
	case r.closed:
		return nil, false, fmt.Errorf("%w: round reader is closed", ErrExhausted)
	case r.peeked != nil:
		return r.peeked, true, nil
	case r.done:
		return nil, false, nil
	}

	round, ok, err := r.readRound()
	if err != nil {
		r.err = err
		_ = r.src.Close()
		return nil, false, err
	}
	if !ok {
		r.done = true
		_ = r.src.Close()
		return nil, false, nil
	}
	r.peeked = round
	r.lastRound = round.Number
	r.emitted = true
	return round, true, nil
}

// Next consumes and returns the next round.
func (r *RoundReader) Next() (*Round, bool, error) {
	round, ok, err := r.Peek()
	if ok {
		r.peeked = nil
	}
	return round, ok, err
}

// Close closes the underlying event source.
func (r *RoundReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.peeked = nil
	return r.src.Close()
}

func (r *RoundReader) readRound() (*Round, bool, error) {
	var round *Round
	for {
		e, ok, err := r.src.Peek()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			if round == nil {
				return nil, false, nil
			}
			if r.includePartial {
				r.logger.Info("returning partial trailing round",
					zap.Uint64("round", round.Number),
					zap.Int("events", len(round.Events)),
				)
				return round, true, nil
			}
			r.logger.Info("dropping partial trailing round",
				zap.Uint64("round", round.Number),
				zap.Int("events", len(round.Events)),
			)
			return nil, false, nil
		}

		if round == nil {
			if r.emitted && e.Round <= r.lastRound {
				return nil, false, fmt.Errorf("%w: round %d follows round %d", ErrChainIntegrity, e.Round, r.lastRound)
			}
			round = &Round{Number: e.Round}
		} else if e.Round != round.Number {
			r.logger.Warn("round ended without a last-in-round event",
				zap.Uint64("round", round.Number),
				zap.Uint64("next_round", e.Round),
				zap.Int("events", len(round.Events)),
			)
			return round, true, nil
		}

		if _, _, err := r.src.Next(); err != nil {
			return nil, false, err
		}
		round.Events = append(round.Events, e)
		if e.LastInRound {
			return round, true, nil
		}
	}
}
