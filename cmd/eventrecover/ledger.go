package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hashgraph/hedera-services-sub037/internal/checkpoint"
)

// openLedger opens the checkpoint ledger selected by checkpoint.driver. The
// returned close func releases its resources.
func openLedger(ctx context.Context, logger *zap.Logger) (checkpoint.Ledger, func(), error) {
	driver := viper.GetString("checkpoint.driver")
	dsn := viper.GetString("checkpoint.dsn")

	switch driver {
	case "", "memory":
		return checkpoint.NewMemory(), func() {}, nil

	case "sqlite":
		if dsn == "" {
			dsn = "data/checkpoints.db"
		}
		l, err := checkpoint.OpenSQLite(ctx, dsn, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		logger.Info("checkpoint ledger opened", zap.String("driver", driver), zap.String("path", dsn))
		return l, func() { _ = l.Close() }, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("checkpoint ledger opened", zap.String("driver", driver))
		return checkpoint.NewPostgresLedger(pool, logger), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown checkpoint driver %q (want memory, sqlite or postgres)", driver)
}
