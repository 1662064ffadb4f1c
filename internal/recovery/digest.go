package recovery

import (
	"crypto/sha512"

	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
)

// AccumulateDigest folds the content hashes of round's events, in order, into
// prior: H(prior || e1.Hash || e2.Hash || ...).
func AccumulateDigest(prior eventstream.Hash, round *eventstream.Round) eventstream.Hash {
	d := sha512.New384()
	d.Write(prior[:])
	for _, e := range round.Events {
		d.Write(e.Hash[:])
	}
	var out eventstream.Hash
	copy(out[:], d.Sum(nil))
	return out
}
