package eventstream

import "go.uber.org/zap"

type options struct {
	logger      *zap.Logger
	mode        Mode
	initialHash *Hash
	onFileOpen  func(path string)
}

// Option configures the journal readers.
type Option func(*options)

// WithLogger sets the logger used by the readers.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMode sets the decode mode applied to the last journal file. Every
// other file is always read strictly.
func WithMode(mode Mode) Option {
	return func(o *options) { o.mode = mode }
}

// WithInitialHash makes the chain reader verify the start hash of the
// directory's first journal file against h. It has no effect when the bound
// starts reading at a later file.
func WithInitialHash(h Hash) Option {
	return func(o *options) { o.initialHash = &h }
}

// WithFileObserver registers fn to be called each time a journal file is opened
// for reading.
func WithFileObserver(fn func(path string)) Option {
	return func(o *options) { o.onFileOpen = fn }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), mode: Strict}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// modeFor returns the decode mode for the file at index i of n.
func (o options) modeFor(i, n int) Mode {
	if i == n-1 {
		return o.mode
	}
	return Strict
}
