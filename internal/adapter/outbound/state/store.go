package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"
)

// FileBaselineStore manages reading and writing a suite's baseline.json file.
// It provides atomic writes (write-tmp-then-rename), automatic backups, and
// file locking (flock for cross-process, mutex for in-process).
type FileBaselineStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileBaselineStore creates a new FileBaselineStore for the given file path.
func NewFileBaselineStore(path string, logger *slog.Logger) *FileBaselineStore {
	return &FileBaselineStore{
		path:   path,
		logger: logger,
	}
}

// Load reads and parses the baseline.json file.
// If the file does not exist, it returns an empty Baseline for suite.
// If the file contains invalid JSON, it returns an error.
func (s *FileBaselineStore) Load(suite string) (*Baseline, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("baseline file not found, using empty baseline", "path", s.path)
			return s.EmptyBaseline(suite), nil
		}
		return nil, fmt.Errorf("read baseline file: %w", err)
	}

	// Check file permissions and warn if too open.
	// Skip on Windows where Unix file permission bits are not supported.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 { // group or other has access
				s.logger.Warn("baseline.json has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var baseline Baseline
	if err := json.Unmarshal(data, &baseline); err != nil {
		return nil, fmt.Errorf("parse baseline file: %w", err)
	}

	return &baseline, nil
}

// Save writes the Baseline to disk atomically, after sorting its entries
// deterministically by (TestID, Metric) as the data model requires.
//
// The write sequence is:
//  1. Acquire in-process mutex
//  2. Acquire flock on path+".lock"
//  3. Copy current file to path+".bak" (ignored if no current file)
//  4. Marshal baseline as indented JSON
//  5. Write to path+".tmp" with 0600 permissions
//  6. Fsync the temp file
//  7. Rename path+".tmp" -> path
//  8. Release flock
//  9. Release mutex
func (s *FileBaselineStore) Save(baseline *Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	baseline.SchemaVersion = 1
	sortEntries(baseline.Entries)

	// Acquire cross-process file lock.
	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	// Create backup of current file (ignore error if file doesn't exist).
	if currentData, readErr := os.ReadFile(s.path); readErr == nil {
		bakPath := s.path + ".bak"
		if writeErr := os.WriteFile(bakPath, currentData, 0600); writeErr != nil {
			s.logger.Warn("failed to create backup", "error", writeErr)
		}
	}

	// Marshal baseline as indented JSON with trailing newline.
	data, err := json.MarshalIndent(baseline, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}

	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on baseline file", "error", err)
	}

	s.logger.Debug("baseline saved", "path", s.path, "entries", len(baseline.Entries))
	return nil
}

// sortEntries sorts entries by (TestID, Metric), the order the Baseline
// data model requires for byte-identical reports across idempotent runs.
func sortEntries(entries []BaselineEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TestID != entries[j].TestID {
			return entries[i].TestID < entries[j].TestID
		}
		return entries[i].Metric < entries[j].Metric
	})
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it
// over the target path. On any error the temp file is cleaned up.
func (s *FileBaselineStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to baseline: %w", err)
	}
	return nil
}

// EmptyBaseline returns a new Baseline with no entries, for suite.
func (s *FileBaselineStore) EmptyBaseline(suite string) *Baseline {
	return &Baseline{
		SchemaVersion: 1,
		Suite:         suite,
		CreatedAt:     time.Now().UTC(),
		Entries:       []BaselineEntry{},
	}
}

// Exists returns true if the baseline file exists on disk.
func (s *FileBaselineStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the configured file path.
func (s *FileBaselineStore) Path() string {
	return s.path
}
