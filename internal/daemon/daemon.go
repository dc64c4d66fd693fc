// Package daemon runs scheduled backups: capture, seal, prune, offsite
// upload on a fixed interval, plus an HTTP surface for health, metrics
// and the maintenance flag.
package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/shopvault/internal/backup"
	"github.com/edvin/shopvault/internal/config"
	"github.com/edvin/shopvault/internal/envelope"
	"github.com/edvin/shopvault/internal/maintenance"
	"github.com/edvin/shopvault/internal/offsite"
	"github.com/edvin/shopvault/internal/restore"
	"github.com/edvin/shopvault/internal/retention"
	"github.com/edvin/shopvault/internal/runlock"
	"github.com/edvin/shopvault/internal/source"
)

// Daemon owns one backup context's scheduled pipeline.
type Daemon struct {
	logger  zerolog.Logger
	cfg     *config.Config
	sources []source.ComponentSource
	sealer  *envelope.Sealer
	pruner  *retention.Pruner
	jobs    *restore.JobStore
	coord   *maintenance.Coordinator
	offsite *offsite.Uploader
	metrics *metrics
	reg     *prometheus.Registry
}

func New(logger zerolog.Logger, cfg *config.Config, sources []source.ComponentSource) *Daemon {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	return &Daemon{
		logger:  logger.With().Str("component", "daemon").Logger(),
		cfg:     cfg,
		sources: sources,
		sealer:  envelope.NewSealer(logger, cfg.PBKDF2Iterations),
		pruner: retention.NewPruner(logger, cfg.ArchiveDir, retention.Policy{
			Daily:   cfg.RetainDaily,
			Weekly:  cfg.RetainWeekly,
			Monthly: cfg.RetainMonthly,
		}),
		jobs:    restore.NewJobStore(cfg.StateDir),
		coord:   maintenance.NewCoordinator(logger, cfg.StateDir, cfg.HealthCheckURL),
		offsite: offsite.NewUploader(logger, cfg.S3),
		metrics: newMetrics(reg),
		reg:     reg,
	}
}

// Run blocks until ctx is cancelled, serving HTTP and firing backup
// cycles on the configured interval.
func (d *Daemon) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    d.cfg.HTTPListenAddr,
		Handler: newRouter(d.reg, d.coord),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		d.schedule(ctx)
		return nil
	})

	return g.Wait()
}

func (d *Daemon) schedule(ctx context.Context) {
	d.logger.Info().Dur("interval", d.cfg.BackupInterval).Msg("backup scheduler started")

	ticker := time.NewTicker(d.cfg.BackupInterval)
	defer ticker.Stop()

	// First cycle fires immediately; a host that only comes up briefly
	// each day should still get its backup.
	d.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("backup scheduler stopped")
			return
		case <-ticker.C:
			d.cycle(ctx)
		}
	}
}

// cycle runs one backup + prune + upload pass. Errors are logged and
// counted, never fatal to the daemon: the next tick tries again.
func (d *Daemon) cycle(ctx context.Context) {
	st, err := d.coord.State()
	if err == nil && st.Active {
		d.logger.Warn().Str("reason", st.Reason).Msg("maintenance active, skipping scheduled backup")
		return
	}

	lock, err := runlock.Acquire(d.logger, d.cfg.StateDir, d.cfg.Context, "scheduled-backup", d.cfg.LockStaleAfter)
	if err != nil {
		d.logger.Warn().Err(err).Msg("run lock unavailable, skipping scheduled backup")
		d.metrics.backupRuns.WithLabelValues("skipped").Inc()
		return
	}
	defer lock.Release()

	start := time.Now()
	result, err := backup.Run(ctx, d.logger, d.sources, d.cfg.Context, d.cfg.StateDir, d.cfg.ArchiveDir)
	if err != nil {
		d.logger.Error().Err(err).Msg("scheduled backup failed")
		d.metrics.backupRuns.WithLabelValues("failed").Inc()
		return
	}
	d.metrics.backupDuration.Observe(time.Since(start).Seconds())
	d.metrics.archiveBytes.Set(float64(result.SizeBytes))

	artifact := result.ArchivePath
	if d.cfg.Passphrase != "" {
		envelopePath, err := d.sealer.Seal(result.ArchivePath, d.cfg.Passphrase)
		if err != nil {
			// The plaintext archive is intact but not secured at rest.
			d.logger.Error().Err(err).Str("archive", result.ArchivePath).Msg("seal failed, archive left unencrypted")
			d.metrics.backupRuns.WithLabelValues("sealed_failed").Inc()
			return
		}
		artifact = envelopePath
	} else {
		d.logger.Warn().Msg("no passphrase configured, archive stored unencrypted")
	}
	d.metrics.backupRuns.WithLabelValues("succeeded").Inc()

	protected, err := d.jobs.ActiveArchives()
	if err != nil {
		d.logger.Warn().Err(err).Msg("could not load active restore jobs, skipping prune")
	} else if res, err := d.pruner.Prune(ctx, protected); err != nil {
		d.logger.Error().Err(err).Msg("retention pruning failed")
	} else {
		d.metrics.prunedTotal.Add(float64(len(res.Deleted)))
	}

	if d.offsite.Enabled() {
		if err := d.offsite.Upload(ctx, artifact); err != nil {
			d.logger.Error().Err(err).Msg("offsite upload failed")
			d.metrics.uploadFailures.Inc()
		}
	}
}
