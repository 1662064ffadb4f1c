package eventstream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// Mode controls how a reader treats a record that cannot be decoded.
type Mode int

const (
	// Strict fails with ErrTruncatedStream on any undecodable record.
	Strict Mode = iota
	// Tolerant ends the stream cleanly at an undecodable record, provided at
	// least one record was decoded before it.
	Tolerant
)

func (m Mode) String() string {
	if m == Tolerant {
		return "tolerant"
	}
	return "strict"
}

// RecordReader is a forward-only cursor over the framed records of one
// stream. It owns the underlying handle and releases it as soon as the
// stream ends, faults, or is closed.
type RecordReader struct {
	name    string
	rc      io.ReadCloser
	br      *bufio.Reader
	mode    Mode
	decoded int

	next      *Record
	ended     bool
	err       error
	closed    bool
	truncated error // decode failure that ended a tolerant stream
}

// NewRecordReader reads records from rc. name is used in error messages.
func NewRecordReader(rc io.ReadCloser, name string, mode Mode) *RecordReader {
	return &RecordReader{
		name: name,
		rc:   rc,
		br:   bufio.NewReaderSize(rc, 64<<10),
		mode: mode,
	}
}

// OpenRecordReader opens the file at path.
func OpenRecordReader(path string, mode Mode) (*RecordReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return NewRecordReader(f, path, mode), nil
}

// Peek returns the next record without consuming it. ok is false once the
// stream has ended.
func (r *RecordReader) Peek() (Record, bool, error) {
	if err := r.fill(); err != nil {
		return Record{}, false, err
	}
	if r.next == nil {
		return Record{}, false, nil
	}
	return *r.next, true, nil
}

// Next consumes and returns the next record. ok is false once the stream has
// ended.
func (r *RecordReader) Next() (Record, bool, error) {
	rec, ok, err := r.Peek()
	if ok {
		r.next = nil
	}
	return rec, ok, err
}

// Decoded returns the number of records decoded so far.
func (r *RecordReader) Decoded() int { return r.decoded }

// Truncated reports whether a tolerant reader stopped at an undecodable record.
func (r *RecordReader) Truncated() error { return r.truncated }

// Close releases the underlying handle. It is safe to call more than once.
func (r *RecordReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.next = nil
	return r.release()
}

func (r *RecordReader) fill() error {
	switch {
	case r.err != nil:
		return r.err
	case r.closed:
		return fmt.Errorf("%w: %s is closed", ErrExhausted, r.name)
	case r.next != nil || r.ended:
		return nil
	}

	rec, err := readRecord(r.br)
	switch {
	case err == nil:
		r.decoded++
		r.next = &rec
		return nil

	case errors.Is(err, io.EOF):
		r.ended = true
		if r.decoded == 0 {
			return r.fail(fmt.Errorf("%w: %s has no records", ErrEmptyOrCorruptFile, r.name))
		}
		return r.release()

	case errors.Is(err, errDecode):
		r.ended = true
		if r.decoded == 0 {
			return r.fail(fmt.Errorf("%w: %s: %v", ErrEmptyOrCorruptFile, r.name, err))
		}
		if r.mode == Tolerant {
			r.truncated = fmt.Errorf("%s after record %d: %v", r.name, r.decoded, err)
			return r.release()
		}
		return r.fail(fmt.Errorf("%w: %s after record %d: %v", ErrTruncatedStream, r.name, r.decoded, err))

	default:
		return r.fail(fmt.Errorf("read %s: %w", r.name, err))
	}
}

func (r *RecordReader) fail(err error) error {
	r.err = err
	r.next = nil
	_ = r.release()
	return err
}

func (r *RecordReader) release() error {
	if r.rc == nil {
		return nil
	}
	rc := r.rc
	r.rc = nil
	r.br = nil
	if err := rc.Close(); err != nil {
		return fmt.Errorf("close %s: %w", r.name, err)
	}
	return nil
}
