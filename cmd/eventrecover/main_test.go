package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
	"github.com/hashgraph/hedera-services-sub037/internal/eventstream/streamtest"
	"github.com/hashgraph/hedera-services-sub037/internal/recovery"
)

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the CLI with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Setenv("CHECKPOINT_DRIVER", "memory")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeJournal(t *testing.T) (string, []*eventstream.Event) {
	t.Helper()
	dir := t.TempDir()
	events, err := streamtest.Write(dir, streamtest.DefaultConfig())
	require.NoError(t, err)
	return dir, events
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "eventrecover dev\n", out)
}

func TestVerifyCommand(t *testing.T) {
	dir, events := writeJournal(t)

	out, err := execute(t, "verify", "--dir", dir, "--format", "json")
	require.NoError(t, err)

	var report verifyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 5, report.Files)
	assert.Equal(t, len(events), report.Events)
	assert.Equal(t, uint64(1), report.FirstRound)
	assert.Equal(t, uint64(10), report.LastRound)
	assert.Equal(t, events[len(events)-1].RunningHash, report.RunningHash)

	out, err = execute(t, "verify", "--dir", dir, "--from-round", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "events:       20")
}

func TestVerifyCommand_Truncated(t *testing.T) {
	dir, _ := writeJournal(t)
	require.NoError(t, streamtest.TruncateLastFile(dir))

	_, err := execute(t, "verify", "--dir", dir)
	assert.ErrorIs(t, err, eventstream.ErrTruncatedStream)

	_, err = execute(t, "verify", "--dir", dir, "--tolerant")
	assert.NoError(t, err)
}

func TestVerifyCommand_ConflictingBounds(t *testing.T) {
	dir, _ := writeJournal(t)
	_, err := execute(t, "verify", "--dir", dir, "--from-round", "2", "--from-time", "2024-01-01T00:00:00Z")
	assert.Error(t, err)
}

func TestRoundsCommand(t *testing.T) {
	dir, _ := writeJournal(t)

	out, err := execute(t, "rounds", "--dir", dir, "--from-round", "8", "--format", "json")
	require.NoError(t, err)

	var rows []roundRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	for i, r := range rows {
		assert.Equal(t, uint64(8+i), r.Round)
		assert.Equal(t, 10, r.Events)
		assert.True(t, r.Complete)
	}
}

func TestRecoverCommand(t *testing.T) {
	dir, _ := writeJournal(t)

	out, err := execute(t, "recover", "--dir", dir, "--format", "json")
	require.NoError(t, err)

	var report recoverReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 10, report.Rounds)
	assert.Equal(t, 100, report.Events)
	assert.Equal(t, uint64(10), report.LastRound)
	assert.False(t, report.Frozen)
	assert.NotEmpty(t, report.RunID)
}

func TestRecoverCommand_FreezeAndFinalRound(t *testing.T) {
	dir, events := writeJournal(t)

	freeze := events[35].ConsensusTimestamp.Format("2006-01-02T15:04:05Z07:00")
	out, err := execute(t, "recover", "--dir", dir, "--format", "json", "--freeze-time", freeze)
	require.NoError(t, err)
	var report recoverReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Frozen)
	assert.Equal(t, uint64(4), report.LastRound)

	out, err = execute(t, "recover", "--dir", dir, "--format", "json", "--final-round", "6")
	require.NoError(t, err)
	report = recoverReport{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, uint64(6), report.LastRound)
	assert.Equal(t, 6, report.Rounds)
}

func TestRecoverCommand_ResumeFromSQLiteLedger(t *testing.T) {
	dir, _ := writeJournal(t)
	db := filepath.Join(t.TempDir(), "checkpoints.db")

	run := func(args ...string) recoverReport {
		t.Helper()
		resetFlags(rootCmd)
		t.Setenv("CHECKPOINT_DRIVER", "sqlite")
		t.Setenv("CHECKPOINT_DSN", db)
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&bytes.Buffer{})
		rootCmd.SetArgs(append([]string{"recover", "--dir", dir, "--format", "json"}, args...))
		require.NoError(t, rootCmd.Execute())
		var report recoverReport
		require.NoError(t, json.Unmarshal(out.Bytes(), &report))
		return report
	}

	first := run("--final-round", "4")
	assert.Equal(t, uint64(4), first.LastRound)

	second := run("--resume")
	assert.Equal(t, uint64(5), second.FirstRound)
	assert.Equal(t, uint64(10), second.LastRound)

	full, err := execute(t, "recover", "--dir", dir, "--format", "json")
	require.NoError(t, err)
	var whole recoverReport
	require.NoError(t, json.Unmarshal([]byte(full), &whole))
	assert.Equal(t, whole.Digest, second.Digest, "resumed digest matches a single full run")

	resetFlags(rootCmd)
	t.Setenv("CHECKPOINT_DRIVER", "sqlite")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"checkpoints", "verify"})
	require.NoError(t, rootCmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "checkpoint ledger is valid: 11 entries"), out.String())
}

func TestBootstrapCommands(t *testing.T) {
	markerDir := t.TempDir()
	hash := strings.Repeat("ab", eventstream.HashSize)

	_, err := execute(t, "bootstrap", "init", "--marker-dir", markerDir,
		"--round", "42", "--hash", hash, "--timestamp", "2024-01-01T00:00:42Z")
	require.NoError(t, err)

	_, err = execute(t, "bootstrap", "--marker-dir", markerDir, "--at", "2024-02-01T00:00:00Z")
	require.NoError(t, err)

	m, err := recovery.ReadMarker(markerDir)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), m.Round)
	require.NotNil(t, m.Bootstrap)
	assert.Equal(t, 2024, m.Bootstrap.Year())

	backup, err := recovery.ReadBackupMarker(markerDir)
	require.NoError(t, err)
	assert.Nil(t, backup.Bootstrap)

	out, err := execute(t, "bootstrap", "show", "--marker-dir", markerDir)
	require.NoError(t, err)
	assert.Contains(t, out, "emergencyRecoveryFile")
	assert.Contains(t, out, "round: 42")
}

func TestVerifyCommand_GenesisHashWithLaterStart(t *testing.T) {
	dir, events := writeJournal(t)
	t.Setenv("JOURNAL_GENESIS_HASH", strings.Repeat("ab", eventstream.HashSize))

	_, err := execute(t, "verify", "--dir", dir)
	assert.ErrorIs(t, err, eventstream.ErrChainIntegrity, "first file does not start at the genesis hash")

	out, err := execute(t, "verify", "--dir", dir, "--from-round", "6", "--format", "json")
	require.NoError(t, err)
	var report verifyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 50, report.Events)
	assert.Equal(t, events[len(events)-1].RunningHash, report.RunningHash)

	_, err = execute(t, "rounds", "--dir", dir, "--from-round", "6")
	assert.NoError(t, err)
}

func TestRoundsCommand_FromTimeMidRound(t *testing.T) {
	dir, events := writeJournal(t)

	at := events[55].ConsensusTimestamp.Format("2006-01-02T15:04:05Z07:00")
	out, err := execute(t, "rounds", "--dir", dir, "--from-time", at, "--format", "json")
	require.NoError(t, err)

	var rows []roundRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 4)
	assert.Equal(t, uint64(7), rows[0].Round)
	for _, r := range rows {
		assert.Equal(t, 10, r.Events)
		assert.True(t, r.Complete)
	}
}
