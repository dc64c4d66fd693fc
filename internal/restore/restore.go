// Package restore replays an archived backup into the live data stores,
// gated by an explicit confirmation.
package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edvin/shopvault/internal/backup"
	"github.com/edvin/shopvault/internal/envelope"
	"github.com/edvin/shopvault/internal/model"
	"github.com/edvin/shopvault/internal/source"
)

// ErrUnconfirmed is the intentional safety stop when restore is invoked
// without confirmation. It is not a failure; the absence of confirmation
// is the safe default for a destructive operation.
var ErrUnconfirmed = errors.New("restore aborted: confirmation missing")

// InjectionError reports which component failed and which had already
// been injected, so the operator can decide between retrying the
// remainder and starting over.
type InjectionError struct {
	Component string
	Completed []string
	Err       error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("inject component %s (already injected: %s): %v",
		e.Component, strings.Join(e.Completed, ","), e.Err)
}

func (e *InjectionError) Unwrap() error { return e.Err }

// Params describes one restore request.
type Params struct {
	EnvelopePath string
	Passphrase   string
	Confirmed    bool
	// Components limits injection to a subset of component names; empty
	// means all.
	Components []string
}

// Orchestrator decrypts, unpacks and replays an archive. Sources must be
// listed in injection order: database first, blobs second, configuration
// last, because configuration changes how the service interprets the
// other two.
type Orchestrator struct {
	logger   zerolog.Logger
	sources  []source.ComponentSource
	sealer   *envelope.Sealer
	jobs     *JobStore
	stateDir string
}

func NewOrchestrator(logger zerolog.Logger, sources []source.ComponentSource, sealer *envelope.Sealer, jobs *JobStore, stateDir string) *Orchestrator {
	return &Orchestrator{
		logger:   logger.With().Str("component", "restore").Logger(),
		sources:  sources,
		sealer:   sealer,
		jobs:     jobs,
		stateDir: stateDir,
	}
}

// Restore runs one restore job. The returned job record is persisted in
// every terminal state; on injection failure it lists the completed
// components.
func (o *Orchestrator) Restore(ctx context.Context, p Params) (*model.RestoreJob, error) {
	job := &model.RestoreJob{
		ID:           uuid.NewString(),
		EnvelopePath: p.EnvelopePath,
		Components:   p.Components,
		Status:       model.RestoreStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	if a, err := model.ParseArchiveName(filepath.Base(p.EnvelopePath)); err == nil {
		job.ArchiveName = a.Name
	}
	logger := o.logger.With().Str("job_id", job.ID).Logger()

	if !p.Confirmed {
		logger.Warn().Str("envelope", p.EnvelopePath).Msg("restore refused: no confirmation given")
		o.finish(job, model.RestoreStatusUnconfirmed, ErrUnconfirmed.Error())
		return job, ErrUnconfirmed
	}

	if err := o.jobs.Save(job); err != nil {
		return job, err
	}

	stagingDir, err := os.MkdirTemp(o.stateDir, "restore-")
	if err != nil {
		o.finish(job, model.RestoreStatusFailed, err.Error())
		return job, fmt.Errorf("create restore staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			logger.Error().Err(err).Str("staging", stagingDir).Msg("failed to remove restore staging directory")
		}
	}()

	archivePath, err := o.materializeArchive(ctx, p, stagingDir)
	if err != nil {
		o.finish(job, model.RestoreStatusFailed, err.Error())
		return job, err
	}

	unpackDir := filepath.Join(stagingDir, "unpacked")
	if err := os.MkdirAll(unpackDir, 0700); err != nil {
		o.finish(job, model.RestoreStatusFailed, err.Error())
		return job, fmt.Errorf("create unpack directory: %w", err)
	}
	if err := backup.Unpack(ctx, archivePath, unpackDir); err != nil {
		o.finish(job, model.RestoreStatusFailed, err.Error())
		return job, err
	}

	if manifest, err := backup.ReadManifest(unpackDir); err != nil {
		logger.Warn().Err(err).Msg("archive carries no readable manifest")
	} else {
		logger.Info().
			Str("archive_context", manifest.Context).
			Time("captured_at", manifest.CreatedAt).
			Int("components", len(manifest.Components)).
			Msg("archive manifest loaded")
	}

	for _, src := range o.sources {
		if !wantComponent(p.Components, src.Name()) {
			logger.Info().Str("component", src.Name()).Msg("component not requested, skipping")
			continue
		}

		dir := filepath.Join(unpackDir, src.Name())
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			logger.Warn().Str("component", src.Name()).Msg("component missing from archive, skipping")
			continue
		}

		logger.Info().Str("component", src.Name()).Msg("injecting component")
		start := time.Now()

		if err := src.Inject(ctx, dir); err != nil {
			logger.Error().Err(err).
				Str("component", src.Name()).
				Strs("completed", job.Completed).
				Msg("component injection failed")
			job.FailedComponent = src.Name()
			injErr := &InjectionError{Component: src.Name(), Completed: job.Completed, Err: err}
			o.finish(job, model.RestoreStatusFailed, injErr.Error())
			return job, injErr
		}

		job.Completed = append(job.Completed, src.Name())
		if err := o.jobs.Save(job); err != nil {
			logger.Warn().Err(err).Msg("failed to checkpoint restore job")
		}
		logger.Info().
			Str("component", src.Name()).
			Dur("duration", time.Since(start)).
			Msg("component injected")
	}

	o.finish(job, model.RestoreStatusSucceeded, "")
	logger.Info().Strs("completed", job.Completed).Msg("restore complete")
	return job, nil
}

// materializeArchive opens the envelope into staging, or hands back a
// plaintext archive directly when the operator restores one that was
// never sealed.
func (o *Orchestrator) materializeArchive(ctx context.Context, p Params, stagingDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !strings.HasSuffix(p.EnvelopePath, ".enc") {
		return p.EnvelopePath, nil
	}

	archivePath := filepath.Join(stagingDir, strings.TrimSuffix(filepath.Base(p.EnvelopePath), ".enc"))
	if err := o.sealer.Open(p.EnvelopePath, p.Passphrase, archivePath); err != nil {
		return "", err
	}
	return archivePath, nil
}

func (o *Orchestrator) finish(job *model.RestoreJob, status, message string) {
	now := time.Now().UTC()
	job.Status = status
	job.StatusMessage = message
	job.CompletedAt = &now
	if err := o.jobs.Save(job); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist restore job record")
	}
}

func wantComponent(requested []string, name string) bool {
	if len(requested) == 0 {
		return true
	}
	for _, r := range requested {
		if r == name {
			return true
		}
	}
	return false
}
