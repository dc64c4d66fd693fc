package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/edvin/shopvault/internal/backup"
	"github.com/edvin/shopvault/internal/maintenance"
	"github.com/edvin/shopvault/internal/model"
	"github.com/edvin/shopvault/internal/restore"
)

type statusReport struct {
	Context       string                 `json:"context"`
	ArchiveCount  int                    `json:"archive_count"`
	LatestArchive *model.Archive         `json:"latest_archive,omitempty"`
	Maintenance   model.MaintenanceState `json:"maintenance"`
	RestoreJobs   []model.RestoreJob     `json:"restore_jobs,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report archive inventory, maintenance flag and restore jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			archives, err := backup.ListArchives(cfg.ArchiveDir)
			if err != nil {
				return err
			}

			report := statusReport{Context: cfg.Context, ArchiveCount: len(archives)}
			for i := range archives {
				if report.LatestArchive == nil || archives[i].CreatedAt.After(report.LatestArchive.CreatedAt) {
					report.LatestArchive = &archives[i]
				}
			}

			coord := maintenance.NewCoordinator(logger, cfg.StateDir, cfg.HealthCheckURL)
			if report.Maintenance, err = coord.State(); err != nil {
				return err
			}

			jobs, err := restore.NewJobStore(cfg.StateDir).List()
			if err != nil {
				return err
			}
			if len(jobs) > 5 {
				jobs = jobs[:5]
			}
			report.RestoreJobs = jobs

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
