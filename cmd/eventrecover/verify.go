package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
	"github.com/hashgraph/hedera-services-sub037/internal/metrics"
	"github.com/hashgraph/hedera-services-sub037/internal/recovery"
)

var (
	fromRound int64
	fromTime  string
	outFormat string
)

func init() {
	for _, cmd := range []*cobra.Command{verifyCmd, roundsCmd} {
		cmd.Flags().Int64Var(&fromRound, "from-round", 0, "start at this round")
		cmd.Flags().StringVar(&fromTime, "from-time", "", "start at this consensus time (RFC 3339)")
		cmd.Flags().StringVar(&outFormat, "format", "text", "Output format: text or json")
	}
	roundsCmd.Flags().Bool("allow-partial", false, "include a trailing round cut off by a crash")
}

// journalOptions returns the reader options shared by every journal command.
func journalOptions(extra ...eventstream.Option) ([]eventstream.Option, error) {
	opts := []eventstream.Option{eventstream.WithLogger(logger)}
	if viper.GetBool("journal.tolerant") {
		opts = append(opts, eventstream.WithMode(eventstream.Tolerant))
	}
	if s := viper.GetString("journal.genesis_hash"); s != "" {
		h, err := eventstream.ParseHash(s)
		if err != nil {
			return nil, fmt.Errorf("journal.genesis_hash: %w", err)
		}
		opts = append(opts, eventstream.WithInitialHash(h))
	}
	return append(opts, extra...), nil
}

func boundFromFlags() (eventstream.Bound, error) {
	switch {
	case fromRound != 0 && fromTime != "":
		return eventstream.Bound{}, errors.New("--from-round and --from-time are mutually exclusive")
	case fromRound != 0:
		return eventstream.ByRound(fromRound)
	case fromTime != "":
		ts, err := parseTime(fromTime)
		if err != nil {
			return eventstream.Bound{}, fmt.Errorf("--from-time: %w", err)
		}
		return eventstream.ByTimestamp(ts)
	}
	return eventstream.Unbounded(), nil
}

// ── verify ───────────────────────────────────────────────────────────────────

type verifyReport struct {
	Dir         string           `json:"dir"`
	Bound       string           `json:"bound"`
	Files       int              `json:"files"`
	Events      int              `json:"events"`
	FirstRound  uint64           `json:"first_round,omitempty"`
	LastRound   uint64           `json:"last_round,omitempty"`
	RunningHash eventstream.Hash `json:"running_hash"`
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Walk the journal hash chain and report its integrity",
	Long: `Verify reads every journal file from the requested position and checks
the file boundaries, the content hash and running hash of each event, and
that rounds and consensus timestamps never go backwards.

  eventrecover verify --dir data/events
  eventrecover verify --dir data/events --from-round 1200 --tolerant`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, _ []string) error {
	dir := viper.GetString("journal.dir")
	b, err := boundFromFlags()
	if err != nil {
		return err
	}

	report := verifyReport{Dir: dir, Bound: b.String()}
	opts, err := journalOptions(eventstream.WithFileObserver(func(path string) {
		report.Files++
		metrics.RecordFileOpened(path)
	}))
	if err != nil {
		return err
	}

	chain, err := eventstream.OpenChain(dir, b, opts...)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer chain.Close()

	for {
		e, ok, err := chain.Next()
		if err != nil {
			metrics.RecordIntegrityFailure(err)
			logger.Error("journal verification failed",
				zap.Int("events", chain.EventsRead()),
				zap.String("kind", metrics.FailureKind(err)),
				zap.Error(err))
			return err
		}
		if !ok {
			break
		}
		if report.FirstRound == 0 {
			report.FirstRound = e.Round
		}
		report.LastRound = e.Round
	}
	report.Events = chain.EventsRead()
	report.RunningHash = chain.RunningHash()

	if outFormat == "json" {
		return printJSON(cmd, report)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "journal %s is valid\n", dir)
	fmt.Fprintf(cmd.OutOrStdout(), "  files:        %d\n", report.Files)
	fmt.Fprintf(cmd.OutOrStdout(), "  events:       %d\n", report.Events)
	fmt.Fprintf(cmd.OutOrStdout(), "  rounds:       %d..%d\n", report.FirstRound, report.LastRound)
	fmt.Fprintf(cmd.OutOrStdout(), "  running hash: %s\n", report.RunningHash)
	return nil
}

// ── rounds ───────────────────────────────────────────────────────────────────

type roundRow struct {
	Round              uint64           `json:"round"`
	Events             int              `json:"events"`
	Complete           bool             `json:"complete"`
	ConsensusTimestamp string           `json:"consensus_timestamp"`
	Digest             eventstream.Hash `json:"digest"`
}

var roundsCmd = &cobra.Command{
	Use:   "rounds",
	Short: "List the rounds recorded in the journal",
	Args:  cobra.NoArgs,
	RunE:  runRounds,
}

func runRounds(cmd *cobra.Command, _ []string) error {
	b, err := boundFromFlags()
	if err != nil {
		return err
	}
	opts, err := journalOptions()
	if err != nil {
		return err
	}

	rounds, err := eventstream.OpenRounds(viper.GetString("journal.dir"), b, boolSetting(cmd, "allow-partial", "recovery.allow_partial_round"), opts...)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer rounds.Close()

	var rows []roundRow
	for {
		r, ok, err := rounds.Next()
		if err != nil {
			metrics.RecordIntegrityFailure(err)
			return err
		}
		if !ok {
			break
		}
		rows = append(rows, roundRow{
			Round:              r.Number,
			Events:             len(r.Events),
			Complete:           r.Complete(),
			ConsensusTimestamp: formatTime(r.ConsensusTimestamp()),
			Digest:             recovery.AccumulateDigest(eventstream.ZeroHash, r),
		})
	}

	if outFormat == "json" {
		return printJSON(cmd, rows)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROUND\tEVENTS\tCOMPLETE\tCONSENSUS TIME\tDIGEST")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%d\t%t\t%s\t%s\n", r.Round, r.Events, r.Complete, r.ConsensusTimestamp, r.Digest.Short())
	}
	return w.Flush()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
