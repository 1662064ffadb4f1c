package recovery

import "time"

// IsFreezeState reports whether the round ending at curr is the first to reach
// freeze, given the previous round ended at prev: prev < freeze <= curr.
func IsFreezeState(prev, curr time.Time, freeze *time.Time) bool {
	if freeze == nil {
		return false
	}
	return prev.Before(*freeze) && !curr.Before(*freeze)
}
