// Command eventrecover verifies consensus event journals and replays them
// into application state after a crash.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	verbose bool
	logger  = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "eventrecover",
	Short: "Consensus event journal verification and recovery",
	Long: `eventrecover reads the hash-chained event journal a consensus node
writes during normal operation.

It can verify the chain, list rounds, replay the journal into a state to
recover from a crash, stamp the emergency recovery marker, and serve a
read-only inspection API over the journal and the checkpoint ledger.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = l
		return initConfig(logger)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default configs/eventrecover.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "development logging")
	rootCmd.PersistentFlags().String("dir", "", "journal directory")
	rootCmd.PersistentFlags().Bool("tolerant", false, "accept a truncated tail on the last journal file")
	_ = viper.BindPFlag("journal.dir", rootCmd.PersistentFlags().Lookup("dir"))
	_ = viper.BindPFlag("journal.tolerant", rootCmd.PersistentFlags().Lookup("tolerant"))

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(roundsCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig(logger *zap.Logger) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("eventrecover")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("configs")
		viper.AddConfigPath(".")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("journal.dir", "data/events")
	viper.SetDefault("journal.tolerant", false)
	viper.SetDefault("journal.genesis_hash", "")
	viper.SetDefault("recovery.allow_partial_round", false)
	viper.SetDefault("recovery.final_round", 0)
	viper.SetDefault("recovery.freeze_time", "")
	viper.SetDefault("recovery.initial_digest", "")
	viper.SetDefault("marker.dir", "data/saved")
	viper.SetDefault("checkpoint.driver", "memory")
	viper.SetDefault("checkpoint.dsn", "")
	viper.SetDefault("inspect.port", 8090)
	viper.SetDefault("inspect.rate_limit_rps", 20)
	viper.SetDefault("inspect.rate_limit_burst", 40)
	viper.SetDefault("inspect.cors_origins", []string{})

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}
	return nil
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the eventrecover version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "eventrecover %s\n", version)
	},
}
