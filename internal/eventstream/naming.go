package eventstream

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileExtension is the suffix of journal files.
const FileExtension = ".evts"

// fixed width keeps lexical order equal to chronological order
const fileTimeLayout = "2006-01-02T15_04_05.000000000Z"

// FileName returns the journal file name for a file whose first event has
// consensus timestamp ts.
func FileName(ts time.Time) string {
	return ts.UTC().Format(fileTimeLayout) + FileExtension
}

// ParseFileName returns the timestamp encoded in a journal file name.
func ParseFileName(name string) (time.Time, error) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, FileExtension) {
		return time.Time{}, fmt.Errorf("parse file name %q: missing %s extension", base, FileExtension)
	}
	ts, err := time.Parse(fileTimeLayout, strings.TrimSuffix(base, FileExtension))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse file name %q: %w", base, err)
	}
	return ts, nil
}

// ListFiles returns the journal files in dir sorted chronologically.
// Subdirectories and files without the journal extension are ignored.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read journal dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), FileExtension) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
