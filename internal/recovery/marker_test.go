package recovery

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
)

func testMarker() *Marker {
	var h eventstream.Hash
	for i := range h {
		h[i] = byte(i)
	}
	return &Marker{
		Round:     1234,
		Hash:      h,
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC),
	}
}

func TestMarker_WriteRead(t *testing.T) {
	dir := t.TempDir()
	m := testMarker()
	require.NoError(t, WriteMarker(dir, m))

	data, err := os.ReadFile(filepath.Join(dir, MarkerFileName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "emergencyRecoveryFile:"))
	assert.Contains(t, string(data), m.Hash.String())
	assert.NotContains(t, string(data), "bootstrap")

	got, err := ReadMarker(dir)
	require.NoError(t, err)
	assert.Equal(t, m.Round, got.Round)
	assert.Equal(t, m.Hash, got.Hash)
	assert.True(t, m.Timestamp.Equal(got.Timestamp))
	assert.Nil(t, got.Bootstrap)
}

func TestMarker_ZeroHash(t *testing.T) {
	dir := t.TempDir()
	m := testMarker()
	m.Hash = eventstream.ZeroHash
	require.NoError(t, WriteMarker(dir, m))

	got, err := ReadMarker(dir)
	require.NoError(t, err)
	assert.Equal(t, eventstream.ZeroHash, got.Hash)
}

func TestReadMarker_Missing(t *testing.T) {
	_, err := ReadMarker(t.TempDir())
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestReadMarker_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFileName), []byte("emergencyRecoveryFile:\n  state:\n    round: 3\n"), 0o644))
	_, err := ReadMarker(dir)
	assert.Error(t, err)
}

func TestUpdateEmergencyRecoveryMarker(t *testing.T) {
	dir := t.TempDir()
	orig := testMarker()
	require.NoError(t, WriteMarker(dir, orig))

	bootstrap := time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)
	require.NoError(t, UpdateEmergencyRecoveryMarker(dir, bootstrap))

	backup, err := ReadBackupMarker(dir)
	require.NoError(t, err)
	assert.Equal(t, orig.Round, backup.Round)
	assert.Equal(t, orig.Hash, backup.Hash)
	assert.True(t, orig.Timestamp.Equal(backup.Timestamp))
	assert.Nil(t, backup.Bootstrap)

	raw, err := os.ReadFile(filepath.Join(dir, BackupDir, MarkerFileName))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "bootstrap")

	updated, err := ReadMarker(dir)
	require.NoError(t, err)
	assert.Equal(t, orig.Round, updated.Round)
	assert.Equal(t, orig.Hash, updated.Hash)
	assert.True(t, orig.Timestamp.Equal(updated.Timestamp))
	require.NotNil(t, updated.Bootstrap)
	assert.True(t, bootstrap.Equal(*updated.Bootstrap))

	// a second bootstrap still leaves a clean backup
	require.NoError(t, UpdateEmergencyRecoveryMarker(dir, bootstrap.Add(time.Hour)))
	backup, err = ReadBackupMarker(dir)
	require.NoError(t, err)
	assert.Nil(t, backup.Bootstrap)
	updated, err = ReadMarker(dir)
	require.NoError(t, err)
	assert.True(t, bootstrap.Add(time.Hour).Equal(*updated.Bootstrap))
}

func TestUpdateEmergencyRecoveryMarker_NoMarker(t *testing.T) {
	dir := t.TempDir()
	err := UpdateEmergencyRecoveryMarker(dir, time.Now())
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, statErr := os.Stat(filepath.Join(dir, BackupDir))
	assert.ErrorIs(t, statErr, fs.ErrNotExist)
}

func TestWriteMarker_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteMarker(dir, testMarker()))
	require.NoError(t, UpdateEmergencyRecoveryMarker(dir, time.Now()))

	for _, d := range []string{dir, filepath.Join(dir, BackupDir)} {
		entries, err := os.ReadDir(d)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover %s", e.Name())
		}
	}
}
