package cli

import (
	"github.com/spf13/cobra"

	"github.com/edvin/shopvault/internal/restore"
	"github.com/edvin/shopvault/internal/retention"
	"github.com/edvin/shopvault/internal/runlock"
)

func newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete archives outside the retention policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			// Pruning takes the same run lock as backups so it never
			// races a run producing new archives for this context.
			lock, err := runlock.Acquire(logger, cfg.StateDir, cfg.Context, "prune", cfg.LockStaleAfter)
			if err != nil {
				return err
			}
			defer lock.Release()

			protected, err := restore.NewJobStore(cfg.StateDir).ActiveArchives()
			if err != nil {
				return err
			}

			pruner := retention.NewPruner(logger, cfg.ArchiveDir, retention.Policy{
				Daily:   cfg.RetainDaily,
				Weekly:  cfg.RetainWeekly,
				Monthly: cfg.RetainMonthly,
			})
			_, err = pruner.Prune(cmd.Context(), protected)
			return err
		},
	}
}
