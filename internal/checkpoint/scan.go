package checkpoint

import "time"

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const entryColumns = "idx, created_at, run_id, round, round_ts_nanos, event_count, event_digest, running_hash, prev_hash, hash"

// scanEntry reads one row selected with entryColumns. created is scanned by
// the caller-specific destination since the drivers store it differently.
func scanEntry(row rowScanner, created any) (*Entry, error) {
	var (
		e       Entry
		round   int64
		roundTS int64
	)
	if err := row.Scan(
		&e.Index, created, &e.RunID, &round, &roundTS, &e.EventCount,
		&e.EventDigest, &e.RunningHash, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, err
	}
	e.Round = uint64(round)
	if roundTS != 0 {
		e.RoundTimestamp = time.Unix(0, roundTS).UTC()
	}
	return &e, nil
}

func roundNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
