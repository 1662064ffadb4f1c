package eventstream

import (
	"fmt"
)

// FileReader reads the events of one journal file. The start hash is read
// when the file is opened; the end hash is known once the events run out.
type FileReader struct {
	path   string
	rr     *RecordReader
	start  Hash
	end    Hash
	hasEnd bool
	events int
	err    error
}

// OpenFile opens a journal file and reads its start hash.
func OpenFile(path string, mode Mode) (*FileReader, error) {
	rr, err := OpenRecordReader(path, mode)
	if err != nil {
		return nil, err
	}
	return newFileReader(rr, path)
}

func newFileReader(rr *RecordReader, path string) (*FileReader, error) {
	rec, ok, err := rr.Next()
	if err != nil {
		_ = rr.Close()
		return nil, err
	}
	if !ok || rec.Kind != KindHash {
		_ = rr.Close()
		return nil, fmt.Errorf("%w: %s does not begin with a start hash", ErrEmptyOrCorruptFile, path)
	}
	return &FileReader{path: path, rr: rr, start: rec.Hash}, nil
}

// Path returns the file path.
func (f *FileReader) Path() string { return f.path }

// StartHash returns the running hash the file continues from.
func (f *FileReader) StartHash() Hash { return f.start }

// EndHash returns the file's closing running hash. It is only known after the
// events are exhausted, and is absent when the file was not closed cleanly.
func (f *FileReader) EndHash() (Hash, bool) { return f.end, f.hasEnd }

// Events returns the number of events consumed so far.
func (f *FileReader) Events() int { return f.events }

// Truncated returns the decode failure that ended a tolerant read early, if any.
func (f *FileReader) Truncated() error { return f.rr.Truncated() }

// Peek returns the next event without consuming it.
func (f *FileReader) Peek() (*Event, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	rec, ok, err := f.rr.Peek()
	if err != nil || !ok {
		return nil, false, err
	}
	if rec.Kind == KindEvent {
		return rec.Event, true, nil
	}

	// A hash record after the start hash closes the file.
	_, _, _ = f.rr.Next()
	f.end = rec.Hash
	f.hasEnd = true
	if extra, more, err := f.rr.Peek(); err != nil {
		return nil, false, err
	} else if more {
		_ = f.rr.Close()
		f.err = fmt.Errorf("%w: %s has a %s record after its end hash", ErrChainIntegrity, f.path, extra.Kind)
		return nil, false, f.err
	}
	return nil, false, nil
}

// Next consumes and returns the next event.
func (f *FileReader) Next() (*Event, bool, error) {
	e, ok, err := f.Peek()
	if ok {
		_, _, _ = f.rr.Next()
		f.events++
	}
	return e, ok, err
}

// Close releases the file handle.
func (f *FileReader) Close() error {
	return f.rr.Close()
}
