package recovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
)

const (
	// MarkerFileName is the name of the emergency recovery marker.
	MarkerFileName = "emergencyRecovery.yaml"
	// BackupDir is the subdirectory holding the pristine marker copy.
	BackupDir = "backup"
)

// Marker identifies the state an emergency recovery must start from, and
// when the node bootstrapped from it.
type Marker struct {
	Round     uint64
	Hash      eventstream.Hash
	Timestamp time.Time
	Bootstrap *time.Time
}

type markerFile struct {
	Recovery markerBody `yaml:"emergencyRecoveryFile"`
}

type markerBody struct {
	State     markerState      `yaml:"state"`
	Bootstrap *markerBootstrap `yaml:"bootstrap,omitempty"`
}

type markerState struct {
	Round     uint64           `yaml:"round"`
	Hash      eventstream.Hash `yaml:"hash"`
	Timestamp time.Time        `yaml:"timestamp"`
}

type markerBootstrap struct {
	Timestamp time.Time `yaml:"timestamp"`
}

// MarshalYAML implements yaml.Marshaler.
func (m Marker) MarshalYAML() (any, error) {
	f := markerFile{Recovery: markerBody{State: markerState{
		Round:     m.Round,
		Hash:      m.Hash,
		Timestamp: m.Timestamp.UTC(),
	}}}
	if m.Bootstrap != nil {
		f.Recovery.Bootstrap = &markerBootstrap{Timestamp: m.Bootstrap.UTC()}
	}
	return f, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Marker) UnmarshalYAML(node *yaml.Node) error {
	var f markerFile
	if err := node.Decode(&f); err != nil {
		return err
	}
	if f.Recovery.State.Timestamp.IsZero() {
		return errors.New("emergency recovery marker: missing state timestamp")
	}
	*m = Marker{
		Round:     f.Recovery.State.Round,
		Hash:      f.Recovery.State.Hash,
		Timestamp: f.Recovery.State.Timestamp.UTC(),
	}
	if b := f.Recovery.Bootstrap; b != nil {
		ts := b.Timestamp.UTC()
		m.Bootstrap = &ts
	}
	return nil
}

// ReadMarker reads the marker in dir. A missing marker is reported with an
// error wrapping fs.ErrNotExist.
func ReadMarker(dir string) (*Marker, error) {
	return readMarkerFile(filepath.Join(dir, MarkerFileName))
}

// ReadBackupMarker reads the pristine marker copy under dir/backup.
func ReadBackupMarker(dir string) (*Marker, error) {
	return readMarkerFile(filepath.Join(dir, BackupDir, MarkerFileName))
}

func readMarkerFile(path string) (*Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read emergency recovery marker: %w", err)
	}
	var m Marker
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse emergency recovery marker %s: %w", path, err)
	}
	return &m, nil
}

// WriteMarker atomically replaces the marker in dir.
func WriteMarker(dir string, m *Marker) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode emergency recovery marker: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, MarkerFileName), data)
}

// UpdateEmergencyRecoveryMarker records that the node bootstrapped from the
// marker in dir at bootstrap. The marker as read, without any bootstrap
// section, is first saved under dir/backup; the primary marker keeps its
// round, hash and timestamp and gains the bootstrap timestamp.
func UpdateEmergencyRecoveryMarker(dir string, bootstrap time.Time) error {
	m, err := ReadMarker(dir)
	if err != nil {
		return err
	}

	backup := *m
	backup.Bootstrap = nil
	if err := os.MkdirAll(filepath.Join(dir, BackupDir), 0o755); err != nil {
		return fmt.Errorf("create marker backup dir: %w", err)
	}
	if err := WriteMarker(filepath.Join(dir, BackupDir), &backup); err != nil {
		return fmt.Errorf("back up emergency recovery marker: %w", err)
	}

	updated := *m
	ts := bootstrap.UTC()
	updated.Bootstrap = &ts
	if err := WriteMarker(dir, &updated); err != nil {
		return fmt.Errorf("update emergency recovery marker: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to path, syncs it, and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	_ = d.Sync()
	return nil
}
