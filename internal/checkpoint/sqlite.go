package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS recovery_checkpoints (
    idx            INTEGER PRIMARY KEY,
    created_at     INTEGER NOT NULL,
    run_id         TEXT    NOT NULL DEFAULT '',
    round          INTEGER NOT NULL DEFAULT 0,
    round_ts_nanos INTEGER NOT NULL DEFAULT 0,
    event_count    INTEGER NOT NULL DEFAULT 0,
    event_digest   TEXT    NOT NULL DEFAULT '',
    running_hash   TEXT    NOT NULL DEFAULT '',
    prev_hash      TEXT    NOT NULL,
    hash           TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS recovery_checkpoints_run_round ON recovery_checkpoints (run_id, round);
`

// SQLiteLedger persists the checkpoint chain to a local SQLite file.
type SQLiteLedger struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (creating if needed) the ledger database at path and
// seeds the genesis entry.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteLedger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("checkpoint database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time keeps Append's read-then-insert atomic.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoint schema: %w", err)
	}
	g := genesisEntry(now())
	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO recovery_checkpoints (idx, created_at, prev_hash, hash) VALUES (0, ?, ?, ?)`,
		g.Timestamp.UnixMicro(), g.PrevHash, g.Hash,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed genesis checkpoint: %w", err)
	}
	return &SQLiteLedger{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) scan(row rowScanner) (*Entry, error) {
	var created int64
	e, err := scanEntry(row, &created)
	if err != nil {
		return nil, err
	}
	e.Timestamp = time.UnixMicro(created).UTC()
	return e, nil
}

// Append implements Ledger.
func (l *SQLiteLedger) Append(ctx context.Context, rec Record) (*Entry, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	prev, err := l.scan(tx.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM recovery_checkpoints ORDER BY idx DESC LIMIT 1"))
	if err != nil {
		return nil, fmt.Errorf("read checkpoint tail: %w", err)
	}

	entry := newEntry(prev, rec)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO recovery_checkpoints (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Index, entry.Timestamp.UnixMicro(), entry.RunID, int64(entry.Round),
		roundNanos(entry.RoundTimestamp), entry.EventCount, entry.EventDigest,
		entry.RunningHash, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkpoint tx: %w", err)
	}

	l.logger.Debug("checkpoint appended",
		zap.Int("idx", entry.Index),
		zap.Uint64("round", entry.Round),
		zap.String("run_id", entry.RunID),
	)
	return entry, nil
}

// Get implements Ledger.
func (l *SQLiteLedger) Get(ctx context.Context, index int) (*Entry, error) {
	e, err := l.scan(l.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM recovery_checkpoints WHERE idx = ?", index))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %d: %w", index, err)
	}
	return e, nil
}

// Len implements Ledger.
func (l *SQLiteLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recovery_checkpoints").Scan(&n); err != nil {
		return 0, fmt.Errorf("count checkpoints: %w", err)
	}
	return n, nil
}

// Verify implements Ledger.
func (l *SQLiteLedger) Verify(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM recovery_checkpoints ORDER BY idx ASC")
	if err != nil {
		return fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var prev *Entry
	for rows.Next() {
		curr, err := l.scan(rows)
		if err != nil {
			return fmt.Errorf("scan checkpoint row: %w", err)
		}
		if err := verifyLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return rows.Err()
}

// Root implements Ledger.
func (l *SQLiteLedger) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.db.QueryRowContext(ctx,
		"SELECT hash FROM recovery_checkpoints ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get checkpoint root: %w", err)
	}
	return hash, nil
}

// Last implements Ledger.
func (l *SQLiteLedger) Last(ctx context.Context) (*Entry, error) {
	e, err := l.scan(l.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM recovery_checkpoints ORDER BY idx DESC LIMIT 1"))
	if err != nil {
		return nil, fmt.Errorf("get last checkpoint: %w", err)
	}
	if e.IsGenesis() {
		return nil, ErrNoCheckpoints
	}
	return e, nil
}

