package eventstream

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// HashSize is the length of a SHA-384 digest.
const HashSize = sha512.Size384

// Hash is a SHA-384 digest. Its text form is lowercase hex.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash, used as the default genesis hash.
var ZeroHash Hash

// String returns the hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 hex characters, for log lines.
func (h Hash) Short() string {
	return h.String()[:8]
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a hex-encoded SHA-384 digest.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("parse hash: got %d bytes, want %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// RunningHash chains an event's content hash onto the previous running hash.
func RunningHash(prev, content Hash) Hash {
	d := sha512.New384()
	d.Write(prev[:])
	d.Write(content[:])
	var out Hash
	copy(out[:], d.Sum(nil))
	return out
}
