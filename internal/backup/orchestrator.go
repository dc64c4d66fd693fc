package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/shopvault/internal/model"
	"github.com/edvin/shopvault/internal/source"
)

// Orchestrator drives the component sources to populate one staging
// directory with a coherent point-in-time capture.
type Orchestrator struct {
	logger  zerolog.Logger
	sources []source.ComponentSource
}

func NewOrchestrator(logger zerolog.Logger, sources []source.ComponentSource) *Orchestrator {
	return &Orchestrator{logger: logger, sources: sources}
}

// Capture extracts every component into stagingDir, fail-fast: the first
// failing component aborts the run and the remaining sources are not
// attempted. The caller owns stagingDir and removes it on every exit
// path. On success the staging root contains one subdirectory per
// component plus the manifest.
func (o *Orchestrator) Capture(ctx context.Context, stagingDir, runContext, runID string) (*model.Manifest, error) {
	manifest := &model.Manifest{
		Context:   runContext,
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
	}

	for _, src := range o.sources {
		dir := filepath.Join(stagingDir, src.Name())
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create component directory %s: %w", src.Name(), err)
		}

		// Heartbeat before a potentially long extraction; there is no
		// per-component timeout, database dumps can take a while.
		o.logger.Info().Str("component", src.Name()).Msg("extracting component")
		start := time.Now()

		res, err := src.Extract(ctx, dir)
		if err != nil {
			o.logger.Error().Err(err).Str("component", src.Name()).Msg("component extraction failed")
			return nil, &source.ExtractionError{Component: src.Name(), Err: err}
		}

		elapsed := time.Since(start)
		o.logger.Info().
			Str("component", src.Name()).
			Int64("bytes", res.SizeBytes).
			Int("files", res.FileCount).
			Bool("empty", res.Empty).
			Dur("duration", elapsed).
			Msg("component extracted")

		manifest.Components = append(manifest.Components, model.ComponentManifest{
			Name:       src.Name(),
			Kind:       string(src.Kind()),
			SizeBytes:  res.SizeBytes,
			FileCount:  res.FileCount,
			Empty:      res.Empty,
			DurationMS: elapsed.Milliseconds(),
		})
	}

	if err := writeManifest(stagingDir, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

func writeManifest(stagingDir string, m *model.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	path := filepath.Join(stagingDir, model.ManifestFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest from an unpacked staging directory.
func ReadManifest(dir string) (*model.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, model.ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m model.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
