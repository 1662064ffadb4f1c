package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hashgraph/hedera-services-sub037/internal/inspect"
)

func init() {
	serveCmd.Flags().Int("port", 0, "HTTP port (default inspect.port)")
	_ = viper.BindPFlag("inspect.port", serveCmd.Flags().Lookup("port"))
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only journal and checkpoint inspection API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ledger, closeLedger, err := openLedger(ctx, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := inspect.NewRouter(ctx, inspect.Config{
		CORSOrigins:    viper.GetStringSlice("inspect.cors_origins"),
		RateLimitRPS:   viper.GetFloat64("inspect.rate_limit_rps"),
		RateLimitBurst: viper.GetInt("inspect.rate_limit_burst"),
	},
		inspect.NewJournalHandler(viper.GetString("journal.dir"), viper.GetBool("journal.tolerant"), logger),
		inspect.NewCheckpointHandler(ledger, logger),
		logger,
	)

	port := viper.GetInt("inspect.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("inspection API listening", zap.Int("port", port), zap.String("dir", viper.GetString("journal.dir")))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("shutting down inspection API...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	logger.Info("inspection API stopped")
	return nil
}
