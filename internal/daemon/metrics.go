package daemon

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	backupRuns     *prometheus.CounterVec
	backupDuration prometheus.Histogram
	archiveBytes   prometheus.Gauge
	prunedTotal    prometheus.Counter
	uploadFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		backupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopvault_backup_runs_total",
			Help: "Backup runs by outcome",
		}, []string{"status"}),
		backupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shopvault_backup_duration_seconds",
			Help:    "Wall-clock duration of backup runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		archiveBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shopvault_last_archive_bytes",
			Help: "Size of the most recently produced archive",
		}),
		prunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopvault_pruned_archives_total",
			Help: "Archives deleted by the retention manager",
		}),
		uploadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopvault_offsite_upload_failures_total",
			Help: "Failed offsite envelope uploads",
		}),
	}
	reg.MustRegister(m.backupRuns, m.backupDuration, m.archiveBytes, m.prunedTotal, m.uploadFailures)
	return m
}
