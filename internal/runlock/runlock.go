// Package runlock serializes backup, restore and prune runs for one
// backup context. Runs for different contexts use different lock files
// and may overlap.
package runlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// HeldError reports that another run currently owns the lock.
type HeldError struct {
	PID        int
	Operation  string
	AcquiredAt time.Time
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("run lock held by pid %d (%s) since %s", e.PID, e.Operation, e.AcquiredAt.Format(time.RFC3339))
}

type record struct {
	PID        int       `json:"pid"`
	Operation  string    `json:"operation"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is an acquired run lock. Release it on every exit path.
type Lock struct {
	logger zerolog.Logger
	path   string
}

// Acquire takes the run lock for a context, evicting a stale lock left by
// a crashed run: one whose owner process is gone, or whose age exceeds
// staleAfter.
func Acquire(logger zerolog.Logger, stateDir, context, operation string, staleAfter time.Duration) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	path := filepath.Join(stateDir, context+".lock")

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			rec := record{PID: os.Getpid(), Operation: operation, AcquiredAt: time.Now().UTC()}
			if encErr := json.NewEncoder(f).Encode(rec); encErr != nil {
				f.Close()
				os.Remove(path)
				return nil, fmt.Errorf("write lock file: %w", encErr)
			}
			if err := f.Close(); err != nil {
				os.Remove(path)
				return nil, fmt.Errorf("write lock file: %w", err)
			}
			logger.Debug().Str("lock", path).Str("operation", operation).Msg("run lock acquired")
			return &Lock{logger: logger, path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		rec, readErr := readRecord(path)
		if readErr != nil {
			// Unreadable lock files from interrupted writes count as stale.
			logger.Warn().Err(readErr).Str("lock", path).Msg("removing unreadable lock file")
			os.Remove(path)
			continue
		}
		if isStale(rec, staleAfter) {
			logger.Warn().
				Int("pid", rec.PID).
				Time("acquired_at", rec.AcquiredAt).
				Msg("removing stale run lock")
			os.Remove(path)
			continue
		}
		return nil, &HeldError{PID: rec.PID, Operation: rec.Operation, AcquiredAt: rec.AcquiredAt}
	}

	// Lost the race twice in a row; report the current holder.
	rec, err := readRecord(path)
	if err != nil {
		return nil, fmt.Errorf("read lock file: %w", err)
	}
	return nil, &HeldError{PID: rec.PID, Operation: rec.Operation, AcquiredAt: rec.AcquiredAt}
}

// Release removes the lock file.
func (l *Lock) Release() {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Error().Err(err).Str("lock", l.path).Msg("failed to release run lock")
		return
	}
	l.logger.Debug().Str("lock", l.path).Msg("run lock released")
}

func readRecord(path string) (*record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if rec.PID == 0 {
		return nil, fmt.Errorf("lock file %s has no pid", path)
	}
	return &rec, nil
}

func isStale(rec *record, staleAfter time.Duration) bool {
	if staleAfter > 0 && time.Since(rec.AcquiredAt) > staleAfter {
		return true
	}
	return !processAlive(rec.PID)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
