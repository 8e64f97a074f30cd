// Package queue persists the discovered-link work queue and the keyword list
// as flat JSON files.
//
// Both stores follow the same discipline: the full record set is loaded,
// mutated in memory, and rewritten atomically (write .tmp, fsync, rename) so
// an interrupted process can never leave a truncated file behind. A mutex on
// each store serializes mutations; scheduler ticks and administrative edits
// share the same store instance.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when an identifier resolves to no record.
var ErrNotFound = errors.New("queue: not found")

// readRecords loads a JSON array file into out. A missing file is an empty
// store, not an error.
func readRecords(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("queue: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("queue: parse %s: %w", path, err)
	}
	return nil
}

// writeRecords rewrites the store file atomically.
func writeRecords(path string, records any) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("queue: encode %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("queue: mkdir %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("queue: write tmp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("queue: write tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("queue: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("queue: close tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("queue: rename: %w", err)
	}
	return nil
}
