package checkpoint

import "context"

// Exec runs a raw statement against the ledger database.
func (l *SQLiteLedger) Exec(ctx context.Context, query string, args ...any) error {
	_, err := l.db.ExecContext(ctx, query, args...)
	return err
}
