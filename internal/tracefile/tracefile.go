// Package tracefile persists execution traces as JSON files. Writes take an
// advisory lock next to the target and replace the file atomically, so a
// concurrent reader sees either the previous trace or the new one.
package tracefile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/harrison/taskpilot/internal/models"
)

// lockRetryDelay is how often a blocked writer retries the lock.
const lockRetryDelay = 50 * time.Millisecond

// LockPath returns the lock file guarding path.
func LockPath(path string) string {
	return path + ".lock"
}

// PathFor returns dir/<runID>.json.
func PathFor(dir, runID string) string {
	return filepath.Join(dir, runID+".json")
}

// Write encodes trace as indented JSON and stores it at path. It waits for
// the lock until ctx is done.
func Write(ctx context.Context, path string, trace *models.ExecutionTrace) error {
	data, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	lock := flock.New(LockPath(path))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock on %s", path)
	}
	defer lock.Unlock()

	return atomicWrite(path, data)
}

// atomicWrite writes to a temp file in the target directory, syncs it and
// renames it over path.
func atomicWrite(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	committed := false
	defer func() {
		if !committed {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	committed = true
	return nil
}

// Read loads a trace written by Write.
func Read(path string) (*models.ExecutionTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}
	var trace models.ExecutionTrace
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("failed to decode trace file %s: %w", path, err)
	}
	return &trace, nil
}
