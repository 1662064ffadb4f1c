package eventstream

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// WriterConfig configures a journal Writer.
type WriterConfig struct {
	Dir string
	// FilePeriod starts a new file whenever an event's consensus timestamp
	// enters a new period. Zero keeps every event in one file.
	FilePeriod time.Duration
	// StartHash is the running hash the first file continues from.
	StartHash Hash
}

// Writer appends events to a journal directory, sealing each event's content
// and running hash and chaining every file onto the previous one.
type Writer struct {
	cfg    WriterConfig
	logger *zap.Logger

	running Hash
	f       *os.File
	bw      *bufio.Writer
	path    string
	period  time.Time

	last   *Event
	events int
}

// NewWriter creates dir if needed and returns a Writer for it.
func NewWriter(cfg WriterConfig, logger *zap.Logger) (*Writer, error) {
	if cfg.Dir == "" {
		return nil, errors.New("journal writer: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{cfg: cfg, logger: logger, running: cfg.StartHash}, nil
}

// Append seals e and writes it, rotating to a new file first when e starts a
// new file period. Rounds and consensus timestamps must not go backwards.
func (w *Writer) Append(e *Event) error {
	if w.last != nil {
		if e.Round < w.last.Round {
			return fmt.Errorf("append event: round %d after round %d", e.Round, w.last.Round)
		}
		if e.ConsensusTimestamp.Before(w.last.ConsensusTimestamp) {
			return fmt.Errorf("append event: consensus timestamp %s before %s",
				e.ConsensusTimestamp.Format(time.RFC3339Nano), w.last.ConsensusTimestamp.Format(time.RFC3339Nano))
		}
	}

	if w.f == nil || (w.cfg.FilePeriod > 0 && !e.ConsensusTimestamp.Truncate(w.cfg.FilePeriod).Equal(w.period)) {
		if err := w.Rotate(e.ConsensusTimestamp); err != nil {
			return err
		}
	}

	e.Seal(w.running)
	if err := WriteRecord(w.bw, EventRecord(e)); err != nil {
		return fmt.Errorf("write event to %s: %w", w.path, err)
	}
	w.running = e.RunningHash
	w.last = e
	w.events++
	return nil
}

// Rotate closes the current file with its end hash and starts a new file
// named after ts.
func (w *Writer) Rotate(ts time.Time) error {
	if err := w.closeFile(true); err != nil {
		return err
	}

	path := filepath.Join(w.cfg.Dir, FileName(ts))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create journal file: %w", err)
	}
	w.f = f
	w.bw = bufio.NewWriter(f)
	w.path = path
	if w.cfg.FilePeriod > 0 {
		w.period = ts.Truncate(w.cfg.FilePeriod)
	}
	if err := WriteRecord(w.bw, HashRecord(w.running)); err != nil {
		return fmt.Errorf("write start hash to %s: %w", path, err)
	}
	w.logger.Debug("journal file started", zap.String("path", path), zap.String("start_hash", w.running.Short()))
	return nil
}

// RunningHash returns the running hash of the last appended event.
func (w *Writer) RunningHash() Hash { return w.running }

// Events returns the number of events appended.
func (w *Writer) Events() int { return w.events }

// Close writes the end hash of the current file and closes it.
func (w *Writer) Close() error {
	return w.closeFile(true)
}

// Abort closes the current file without an end hash, leaving it as the
// unterminated tail of the journal.
func (w *Writer) Abort() error {
	return w.closeFile(false)
}

func (w *Writer) closeFile(withEnd bool) error {
	if w.f == nil {
		return nil
	}
	f := w.f
	w.f = nil
	defer f.Close()

	if withEnd {
		if err := WriteRecord(w.bw, HashRecord(w.running)); err != nil {
			return fmt.Errorf("write end hash to %s: %w", w.path, err)
		}
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", w.path, err)
	}
	return nil
}
