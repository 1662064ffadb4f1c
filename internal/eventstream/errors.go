package eventstream

import "errors"

var (
	// ErrInvalidBound is returned for a non-positive round or a zero timestamp bound.
	ErrInvalidBound = errors.New("eventstream: invalid bound")

	// ErrBoundNotFound is returned when no journal data exists at or after a bound.
	ErrBoundNotFound = errors.New("eventstream: bound not found")

	// ErrEmptyOrCorruptFile is returned when a stream yields no decodable record at all.
	ErrEmptyOrCorruptFile = errors.New("eventstream: empty or corrupt file")

	// ErrTruncatedStream is returned when a record cannot be decoded in strict mode.
	ErrTruncatedStream = errors.New("eventstream: truncated stream")

	// ErrChainIntegrity is returned when hashes or ordering between events or files do not line up.
	ErrChainIntegrity = errors.New("eventstream: chain integrity check failed")

	// ErrRoundNotFound is returned when the requested starting round is absent.
	ErrRoundNotFound = errors.New("eventstream: round not found")

	// ErrExhausted is returned when a reader is used after it was closed.
	ErrExhausted = errors.New("eventstream: reader exhausted")
)

// errDecode marks a record that could not be decoded. It never escapes the
// package; RecordReader translates it according to its Mode.
var errDecode = errors.New("eventstream: decode failure")
