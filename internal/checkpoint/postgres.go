package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls. The value is arbitrary but must be consistent
// across all recovery processes sharing the database.
const advisoryLockKey = int64(1_402_511_384)

// PostgresLedger persists the checkpoint chain to a PostgreSQL database.
// The recovery_checkpoints table and its genesis row are created by
// migrations/001_recovery_checkpoints.up.sql.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLedger creates a PostgresLedger backed by the given connection pool.
func NewPostgresLedger(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresLedger{pool: pool, logger: logger}
}

// Append implements Ledger.
// It acquires a PostgreSQL advisory lock, reads the chain tail, computes the
// new entry hash, and inserts it, all within a single transaction.
func (l *PostgresLedger) Append(ctx context.Context, rec Record) (*Entry, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The lock is released when the transaction commits or rolls back.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	prev, err := l.tail(ctx, tx)
	if err != nil {
		return nil, err
	}

	entry := newEntry(prev, rec)
	if _, err := tx.Exec(ctx,
		`INSERT INTO recovery_checkpoints (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.Index, entry.Timestamp, entry.RunID, int64(entry.Round),
		roundNanos(entry.RoundTimestamp), entry.EventCount, entry.EventDigest,
		entry.RunningHash, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert checkpoint: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit checkpoint tx: %w", err)
	}

	l.logger.Debug("checkpoint appended",
		zap.Int("idx", entry.Index),
		zap.Uint64("round", entry.Round),
		zap.String("run_id", entry.RunID),
	)
	return entry, nil
}

func (l *PostgresLedger) tail(ctx context.Context, tx pgx.Tx) (*Entry, error) {
	e, err := l.scan(tx.QueryRow(ctx,
		"SELECT "+entryColumns+" FROM recovery_checkpoints ORDER BY idx DESC LIMIT 1"))
	if err != nil {
		return nil, fmt.Errorf("read checkpoint tail: %w", err)
	}
	return e, nil
}

func (l *PostgresLedger) scan(row rowScanner) (*Entry, error) {
	var created time.Time
	e, err := scanEntry(row, &created)
	if err != nil {
		return nil, err
	}
	e.Timestamp = created.UTC()
	return e, nil
}

// Get implements Ledger.
func (l *PostgresLedger) Get(ctx context.Context, index int) (*Entry, error) {
	e, err := l.scan(l.pool.QueryRow(ctx,
		"SELECT "+entryColumns+" FROM recovery_checkpoints WHERE idx = $1", index))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %d: %w", index, err)
	}
	return e, nil
}

// Len implements Ledger.
func (l *PostgresLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM recovery_checkpoints").Scan(&n); err != nil {
		return 0, fmt.Errorf("count checkpoints: %w", err)
	}
	return n, nil
}

// Verify implements Ledger. It streams all rows ordered by idx and validates
// the hash chain. O(n) in ledger length.
func (l *PostgresLedger) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx,
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
func (l *PostgresLedger) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM recovery_checkpoints ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get checkpoint root: %w", err)
	}
	return hash, nil
}

// Last implements Ledger.
func (l *PostgresLedger) Last(ctx context.Context) (*Entry, error) {
	e, err := l.scan(l.pool.QueryRow(ctx,
		"SELECT "+entryColumns+" FROM recovery_checkpoints ORDER BY idx DESC LIMIT 1"))
	if err != nil {
		return nil, fmt.Errorf("get last checkpoint: %w", err)
	}
	if e.IsGenesis() {
		return nil, ErrNoCheckpoints
	}
	return e, nil
}
