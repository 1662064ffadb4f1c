package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hashgraph/hedera-services-sub037/internal/checkpoint"
	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
	"github.com/hashgraph/hedera-services-sub037/internal/recovery"
)

var (
	recoverResume     bool
	recoverFromMarker bool
	recoverMark       bool
)

func init() {
	f := recoverCmd.Flags()
	f.Bool("allow-partial", false, "apply a trailing round cut off by a crash")
	f.Uint64("final-round", 0, "stop after this round (0 replays everything)")
	f.String("freeze-time", "", "stop after the first round that reaches this consensus time (RFC 3339)")
	f.String("initial-digest", "", "hex digest of the state being recovered (default all zeros)")
	f.String("format", "text", "Output format: text or json")
	f.BoolVar(&recoverResume, "resume", false, "start from the last checkpoint in the ledger")
	f.BoolVar(&recoverFromMarker, "from-marker", false, "start from the round recorded in the emergency recovery marker")
	f.BoolVar(&recoverMark, "mark", false, "stamp the emergency recovery marker after a successful run")
}

type recoverReport struct {
	RunID       string           `json:"run_id"`
	FirstRound  uint64           `json:"first_round"`
	LastRound   uint64           `json:"last_round"`
	Rounds      int              `json:"rounds"`
	Events      int              `json:"events"`
	Frozen      bool             `json:"frozen"`
	Digest      eventstream.Hash `json:"digest"`
	RunningHash eventstream.Hash `json:"running_hash"`
	Timestamp   string           `json:"consensus_timestamp"`
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Replay the journal into state after a crash",
	Long: `Recover replays every round after the state's last round, in order,
pre-handling and applying each one. It stops at the end of the journal, after
--final-round, or after the first round that reaches --freeze-time.

The built-in state tracks the round, consensus time and a digest over every
replayed event. Each applied round is recorded in the checkpoint ledger.

  eventrecover recover --dir data/events --tolerant
  eventrecover recover --resume --final-round 5000
  eventrecover recover --from-marker --mark`,
	Args: cobra.NoArgs,
	RunE: runRecover,
}

func runRecover(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if recoverResume && recoverFromMarker {
		return errors.New("--resume and --from-marker are mutually exclusive")
	}

	cfg := recovery.Config{
		AllowPartialRound: boolSetting(cmd, "allow-partial", "recovery.allow_partial_round"),
		FinalRound:        viper.GetUint64("recovery.final_round"),
		Tolerant:          viper.GetBool("journal.tolerant"),
	}
	if f := cmd.Flags().Lookup("final-round"); f.Changed {
		cfg.FinalRound, _ = cmd.Flags().GetUint64("final-round")
	}
	if s := viper.GetString("journal.genesis_hash"); s != "" {
		h, err := eventstream.ParseHash(s)
		if err != nil {
			return fmt.Errorf("journal.genesis_hash: %w", err)
		}
		cfg.GenesisHash = &h
	}

	var freezeTime *time.Time
	if s := stringSetting(cmd, "freeze-time", "recovery.freeze_time"); s != "" {
		ts, err := parseTime(s)
		if err != nil {
			return fmt.Errorf("freeze time: %w", err)
		}
		freezeTime = &ts
	}

	initial := eventstream.ZeroHash
	if s := stringSetting(cmd, "initial-digest", "recovery.initial_digest"); s != "" {
		h, err := eventstream.ParseHash(s)
		if err != nil {
			return fmt.Errorf("initial digest: %w", err)
		}
		initial = h
	}

	ledger, closeLedger, err := openLedger(ctx, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	state, err := initialState(ctx, ledger, initial)
	if err != nil {
		return err
	}
	driver := recovery.NewDriver(cfg, logger, recovery.WithLedger(ledger))
	res, err := driver.Recover(ctx, viper.GetString("journal.dir"), state, freezeTime)
	if err != nil {
		if res != nil && res.Rounds > 0 {
			logger.Warn("recovery stopped early",
				zap.Uint64("last_round", res.LastRound),
				zap.Int("rounds", res.Rounds))
		}
		return err
	}

	if recoverMark {
		if err := recovery.UpdateEmergencyRecoveryMarker(viper.GetString("marker.dir"), res.State.ConsensusTimestamp()); err != nil {
			return fmt.Errorf("update marker: %w", err)
		}
	}

	report := recoverReport{
		RunID:       res.RunID,
		FirstRound:  res.FirstRound,
		LastRound:   res.LastRound,
		Rounds:      res.Rounds,
		Events:      res.Events,
		Frozen:      res.Frozen,
		Digest:      res.Digest,
		RunningHash: res.RunningHash,
		Timestamp:   formatTime(res.State.ConsensusTimestamp()),
	}
	if f, _ := cmd.Flags().GetString("format"); f == "json" {
		return printJSON(cmd, report)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "recovered %d rounds (%d..%d), %d events\n", report.Rounds, report.FirstRound, report.LastRound, report.Events)
	fmt.Fprintf(cmd.OutOrStdout(), "  run:          %s\n", report.RunID)
	fmt.Fprintf(cmd.OutOrStdout(), "  digest:       %s\n", report.Digest)
	fmt.Fprintf(cmd.OutOrStdout(), "  running hash: %s\n", report.RunningHash)
	if report.Frozen {
		fmt.Fprintf(cmd.OutOrStdout(), "  stopped at freeze, consensus time %s\n", report.Timestamp)
	}
	return nil
}

// initialState picks the state recovery starts from.
func initialState(ctx context.Context, ledger checkpoint.Ledger, initial eventstream.Hash) (*recovery.DigestState, error) {
	switch {
	case recoverResume:
		return recovery.ResumeFromCheckpoint(ctx, ledger, initial)
	case recoverFromMarker:
		m, err := recovery.ReadMarker(viper.GetString("marker.dir"))
		if err != nil {
			return nil, fmt.Errorf("read marker: %w", err)
		}
		return recovery.NewDigestState(m.Round, m.Timestamp, m.Hash), nil
	}
	return recovery.NewDigestState(0, time.Time{}, initial), nil
}
