package eventstream

import (
	"fmt"
	"iter"

	"go.uber.org/zap"
)

// Locator selects the journal files of a directory that can hold events at
// or after a Bound. The selection is made, and checked, when the Locator is
// built.
type Locator struct {
	dir     string
	bound   Bound
	files   []string
	skipped int // leading directory files left out of the selection
	opts    options
}

// NewLocator lists dir and finds the first file that can contain events at
// b. It reads only the leading event of each candidate file, except when b
// falls inside the last file holding events, which is then scanned to make
// sure b is reachable. It fails with ErrBoundNotFound when no event at or
// after b exists.
func NewLocator(dir string, b Bound, opts ...Option) (*Locator, error) {
	o := buildOptions(opts)

	files, err := ListFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s: no journal files in %s", ErrBoundNotFound, b, dir)
	}

	l := &Locator{dir: dir, bound: b, opts: o}
	if b.IsUnbounded() {
		l.files = files
		return l, nil
	}

	start := -1
	satisfied := false
	for i, path := range files {
		first, ok, err := firstEvent(path, o.modeFor(i, len(files)))
		if err != nil {
			return nil, fmt.Errorf("locate %s: %w", b, err)
		}
		if !ok {
			continue
		}
		if b.Compare(first, Lower) == After {
			// Everything before this file precedes the bound.
			start = i
			continue
		}
		if start == -1 {
			start = i
		}
		satisfied = true
		break
	}

	if start == -1 {
		return nil, fmt.Errorf("%w: %s: journal in %s holds no events", ErrBoundNotFound, b, dir)
	}
	if !satisfied {
		found, err := containsAdmitted(files[start], o.modeFor(start, len(files)), b)
		if err != nil {
			return nil, fmt.Errorf("locate %s: %w", b, err)
		}
		if !found {
			return nil, fmt.Errorf("%w: %s is past the end of the journal in %s", ErrBoundNotFound, b, dir)
		}
	}

	l.files = files[start:]
	l.skipped = start
	o.logger.Debug("located journal start",
		zap.String("bound", b.String()),
		zap.String("file", files[start]),
		zap.Int("skipped_files", start),
	)
	return l, nil
}

// Dir returns the journal directory.
func (l *Locator) Dir() string { return l.dir }

// Bound returns the bound the files were selected for.
func (l *Locator) Bound() Bound { return l.bound }

// FromFirstFile reports whether the selection starts with the first journal
// file of the directory.
func (l *Locator) FromFirstFile() bool { return l.skipped == 0 }

// Len returns the number of selected files.
func (l *Locator) Len() int { return len(l.files) }

// All yields the selected file paths in chronological order. Every range
// over the sequence starts again from the first selected file.
func (l *Locator) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, path := range l.files {
			if !yield(path) {
				return
			}
		}
	}
}

func firstEvent(path string, mode Mode) (*Event, bool, error) {
	f, err := OpenFile(path, mode)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()
	return f.Peek()
}

func containsAdmitted(path string, mode Mode, b Bound) (bool, error) {
	f, err := OpenFile(path, mode)
	if err != nil {
		return false, err
	}
	defer f.Close()
	for {
		e, ok, err := f.Next()
		if err != nil || !ok {
			return false, err
		}
		if b.AdmitsFromLower(e) {
			return true, nil
		}
	}
}
