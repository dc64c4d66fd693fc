package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edvin/shopvault/internal/model"
	"github.com/edvin/shopvault/internal/source"
)

// Result is the outcome of one backup run.
type Result struct {
	RunID       string
	ArchivePath string
	SizeBytes   int64
	Manifest    *model.Manifest
}

// Run executes one capture: staging, extraction, packaging. The staging
// directory is removed on every exit path, including cancellation and
// extraction failure, so a failed run leaves nothing behind but the log.
func Run(ctx context.Context, logger zerolog.Logger, sources []source.ComponentSource, runContext, stateDir, archiveDir string) (*Result, error) {
	runID := uuid.NewString()
	logger = logger.With().Str("run_id", runID).Logger()

	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	stagingDir, err := os.MkdirTemp(stateDir, "staging-"+runContext+"-")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			logger.Error().Err(err).Str("staging", stagingDir).Msg("failed to remove staging directory")
		}
	}()

	logger.Info().Str("staging", stagingDir).Msg("starting backup run")

	orch := NewOrchestrator(logger, sources)
	manifest, err := orch.Capture(ctx, stagingDir, runContext, runID)
	if err != nil {
		return nil, err
	}

	archivePath, err := Package(ctx, stagingDir, archiveDir, runContext, time.Now())
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	logger.Info().
		Str("archive", archivePath).
		Int64("bytes", info.Size()).
		Msg("backup packaged")

	return &Result{
		RunID:       runID,
		ArchivePath: archivePath,
		SizeBytes:   info.Size(),
		Manifest:    manifest,
	}, nil
}

// ListArchives scans dir for archive and envelope files, skipping
// anything that does not carry the canonical name.
func ListArchives(dir string) ([]model.Archive, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read archive directory: %w", err)
	}

	var archives []model.Archive
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		a, err := model.ParseArchiveName(e.Name())
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		a.Path = filepath.Join(dir, e.Name())
		a.SizeBytes = info.Size()
		archives = append(archives, *a)
	}
	return archives, nil
}
