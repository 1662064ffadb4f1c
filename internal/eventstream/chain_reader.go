package eventstream

import (
	"fmt"
	"iter"

	"go.uber.org/zap"
)

// ChainReader presents the files selected by a Locator as one verified event
// sequence. It opens one file at a time and checks, across every boundary,
// that each file continues the running hash where the previous one ended.
//
// Inside each file every event's content hash and running hash are
// recomputed, and rounds and consensus timestamps must never decrease. Any
// violation fails with ErrChainIntegrity.
type ChainReader struct {
	bound     Bound
	opts      options
	n         int
	fromFirst bool // the selection starts at the directory's first file

	nextPath func() (string, bool)
	stopPath func()

	idx      int // index of the open file among the selected files
	cur      *FileReader
	prevPath string
	prevEnd  Hash

	running   Hash
	last      *Event
	skipping  bool
	preceding *Event // last event skipped while seeking the bound
	peeked    *Event
	read      int

	done   bool
	closed bool
	err    error
}

// NewChainReader reads the files selected by loc, starting at the first event
// b admits. Files are opened lazily.
func NewChainReader(loc *Locator, b Bound, opts ...Option) *ChainReader {
	o := loc.opts
	for _, opt := range opts {
		opt(&o)
	}
	next, stop := iter.Pull(loc.All())
	return &ChainReader{
		bound:     b,
		opts:      o,
		n:         loc.Len(),
		fromFirst: loc.FromFirstFile(),
		nextPath:  next,
		stopPath:  stop,
		idx:       -1,
		skipping:  !b.IsUnbounded(),
	}
}

// OpenChain locates the files of dir for b and returns a reader over them.
func OpenChain(dir string, b Bound, opts ...Option) (*ChainReader, error) {
	loc, err := NewLocator(dir, b, opts...)
	if err != nil {
		return nil, err
	}
	return NewChainReader(loc, b), nil
}

// Peek returns the next event without consuming it.
func (c *ChainReader) Peek() (*Event, bool, error) {
	switch {
	case c.err != nil:
		return nil, false, c.err
	case c.closed:
		return nil, false, fmt.Errorf("%w: chain reader is closed", ErrExhausted)
	case c.peeked != nil:
		return c.peeked, true, nil
	case c.done:
		return nil, false, nil
	}

	for {
		e, ok, err := c.pull()
		if err != nil {
			return nil, false, c.fail(err)
		}
		if !ok {
			c.done = true
			c.release()
			return nil, false, nil
		}
		if c.skipping {
			if c.bound.Compare(e, Lower) == After {
				c.preceding = e
				continue
			}
			c.skipping = false
		}
		c.peeked = e
		return e, true, nil
	}
}

// Next consumes and returns the next event.
func (c *ChainReader) Next() (*Event, bool, error) {
	e, ok, err := c.Peek()
	if ok {
		c.peeked = nil
		c.read++
	}
	return e, ok, err
}

// Preceding returns the last event that was read and verified but skipped
// because it lies before the bound. It reports false when the first event
// read was already admitted.
func (c *ChainReader) Preceding() (*Event, bool) { return c.preceding, c.preceding != nil }

// RunningHash returns the running hash of the last event read from disk.
func (c *ChainReader) RunningHash() Hash { return c.running }

// EventsRead returns the number of events returned by Next.
func (c *ChainReader) EventsRead() int { return c.read }

// Close releases the open file, if any. It is safe to call more than once.
func (c *ChainReader) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.peeked = nil
	return c.release()
}

func (c *ChainReader) pull() (*Event, bool, error) {
	for {
		if c.cur == nil {
			path, ok := c.nextPath()
			if !ok {
				return nil, false, nil
			}
			c.idx++
			if err := c.open(path); err != nil {
				return nil, false, err
			}
		}

		e, ok, err := c.cur.Next()
		if err != nil {
			return nil, false, fmt.Errorf("read journal file %d of %d: %w", c.idx+1, c.n, err)
		}
		if ok {
			if err := c.verify(e); err != nil {
				return nil, false, err
			}
			return e, true, nil
		}
		if err := c.finishFile(); err != nil {
			return nil, false, err
		}
	}
}

func (c *ChainReader) open(path string) error {
	final := c.idx == c.n-1
	f, err := OpenFile(path, c.opts.modeFor(c.idx, c.n))
	if err != nil {
		if !final {
			return fmt.Errorf("%w: journal file %s cannot be read mid-chain: %w", ErrChainIntegrity, path, err)
		}
		return err
	}
	if c.opts.onFileOpen != nil {
		c.opts.onFileOpen(path)
	}

	switch {
	case c.idx > 0 && f.StartHash() != c.prevEnd:
		_ = f.Close()
		return fmt.Errorf("%w: start hash %s of %s does not match end hash %s of %s",
			ErrChainIntegrity, f.StartHash().Short(), path, c.prevEnd.Short(), c.prevPath)
	case c.idx == 0 && c.fromFirst && c.opts.initialHash != nil && f.StartHash() != *c.opts.initialHash:
		_ = f.Close()
		return fmt.Errorf("%w: start hash %s of %s does not match initial hash %s",
			ErrChainIntegrity, f.StartHash().Short(), path, c.opts.initialHash.Short())
	}

	c.cur = f
	c.running = f.StartHash()
	c.opts.logger.Debug("journal file opened",
		zap.String("path", path),
		zap.Int("file", c.idx+1),
		zap.Int("files", c.n),
		zap.String("mode", c.opts.modeFor(c.idx, c.n).String()),
	)
	return nil
}

func (c *ChainReader) verify(e *Event) error {
	path := c.cur.Path()
	if h := e.ContentHash(); h != e.Hash {
		return fmt.Errorf("%w: event %d of %s has content hash %s, recorded %s",
			ErrChainIntegrity, c.cur.Events(), path, h.Short(), e.Hash.Short())
	}
	if want := RunningHash(c.running, e.Hash); e.RunningHash != want {
		return fmt.Errorf("%w: event %d of %s breaks the running hash (got %s, want %s)",
			ErrChainIntegrity, c.cur.Events(), path, e.RunningHash.Short(), want.Short())
	}
	if c.last != nil {
		if e.Round < c.last.Round {
			return fmt.Errorf("%w: round %d follows round %d in %s", ErrChainIntegrity, e.Round, c.last.Round, path)
		}
		if e.ConsensusTimestamp.Before(c.last.ConsensusTimestamp) {
			return fmt.Errorf("%w: consensus timestamp goes backwards in %s at round %d", ErrChainIntegrity, path, e.Round)
		}
	}
	c.running = e.RunningHash
	c.last = e
	return nil
}

func (c *ChainReader) finishFile() error {
	f := c.cur
	c.cur = nil
	defer f.Close()

	end, ok := f.EndHash()
	switch {
	case ok && end != c.running:
		return fmt.Errorf("%w: end hash %s of %s does not match running hash %s",
			ErrChainIntegrity, end.Short(), f.Path(), c.running.Short())
	case !ok && c.idx < c.n-1:
		return fmt.Errorf("%w: %s has no end hash but is not the last journal file", ErrChainIntegrity, f.Path())
	case !ok:
		fields := []zap.Field{zap.String("path", f.Path()), zap.Int("events", f.Events())}
		if t := f.Truncated(); t != nil {
			fields = append(fields, zap.String("truncation", t.Error()))
		}
		c.opts.logger.Warn("journal ends in an unterminated file", fields...)
	}

	c.prevPath = f.Path()
	c.prevEnd = end
	return nil
}

func (c *ChainReader) fail(err error) error {
	c.err = err
	c.peeked = nil
	_ = c.release()
	return err
}

func (c *ChainReader) release() error {
	c.stopPath()
	if c.cur == nil {
		return nil
	}
	f := c.cur
	c.cur = nil
	return f.Close()
}
