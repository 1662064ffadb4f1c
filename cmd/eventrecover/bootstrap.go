package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
	"github.com/hashgraph/hedera-services-sub037/internal/recovery"
)

var (
	bootstrapAt     string
	markerRound     uint64
	markerHash      string
	markerTimestamp string
)

func init() {
	bootstrapCmd.PersistentFlags().String("marker-dir", "", "directory holding "+recovery.MarkerFileName)
	_ = viper.BindPFlag("marker.dir", bootstrapCmd.PersistentFlags().Lookup("marker-dir"))
	bootstrapCmd.Flags().StringVar(&bootstrapAt, "at", "", "bootstrap time (RFC 3339, default now)")

	markerInitCmd.Flags().Uint64Var(&markerRound, "round", 0, "round of the recovery state")
	markerInitCmd.Flags().StringVar(&markerHash, "hash", "", "hex hash of the recovery state")
	markerInitCmd.Flags().StringVar(&markerTimestamp, "timestamp", "", "consensus time of the recovery state (RFC 3339)")
	_ = markerInitCmd.MarkFlagRequired("round")
	_ = markerInitCmd.MarkFlagRequired("hash")
	_ = markerInitCmd.MarkFlagRequired("timestamp")

	bootstrapCmd.AddCommand(markerShowCmd)
	bootstrapCmd.AddCommand(markerInitCmd)
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Record that the node bootstrapped from the emergency recovery state",
	Long: `Bootstrap stamps the emergency recovery marker with the time the node
started from it. The marker as it was is saved under backup/ first.

  eventrecover bootstrap --marker-dir data/saved
  eventrecover bootstrap show`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		at := time.Now().UTC()
		if bootstrapAt != "" {
			ts, err := parseTime(bootstrapAt)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			at = ts
		}
		dir := viper.GetString("marker.dir")
		if err := recovery.UpdateEmergencyRecoveryMarker(dir, at); err != nil {
			return err
		}
		logger.Info("emergency recovery marker updated", zap.String("dir", dir), zap.Time("bootstrap", at))
		return nil
	},
}

var markerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the emergency recovery marker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := recovery.ReadMarker(viper.GetString("marker.dir"))
		if err != nil {
			return err
		}
		return yaml.NewEncoder(cmd.OutOrStdout()).Encode(m)
	},
}

var markerInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a new emergency recovery marker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		h, err := eventstream.ParseHash(markerHash)
		if err != nil {
			return fmt.Errorf("--hash: %w", err)
		}
		ts, err := parseTime(markerTimestamp)
		if err != nil {
			return fmt.Errorf("--timestamp: %w", err)
		}
		dir := viper.GetString("marker.dir")
		if err := recovery.WriteMarker(dir, &recovery.Marker{Round: markerRound, Hash: h, Timestamp: ts}); err != nil {
			return err
		}
		logger.Info("emergency recovery marker written", zap.String("dir", dir), zap.Uint64("round", markerRound))
		return nil
	},
}
