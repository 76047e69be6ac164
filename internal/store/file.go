// file.go - JSON file backed snapshot store.

package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"darkpool/internal/ledger"
)

// FileStore writes the snapshot as an indented JSON document. Saves go
// through a temp file and rename so a crash mid-write never leaves a
// truncated snapshot behind.
type FileStore struct {
	path string
}

// NewFileStore returns a store that persists to the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save serializes the snapshot and atomically replaces the target file.
func (s *FileStore) Save(snap *ledger.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Load reads and decodes the snapshot file.
func (s *FileStore) Load() (*ledger.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap ledger.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }
