package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edvin/shopvault/internal/envelope"
	"github.com/edvin/shopvault/internal/maintenance"
	"github.com/edvin/shopvault/internal/restore"
	"github.com/edvin/shopvault/internal/runlock"
)

func newRestoreCmd() *cobra.Command {
	var envelopePath string
	var confirm bool
	var components []string
	var withMaintenance bool

	cmd := &cobra.Command{
		Use:   "restore --backup <envelope-path> --confirm",
		Short: "Replay a backup into the live data stores (destructive)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			orch := restore.NewOrchestrator(
				logger,
				buildSources(logger, cfg),
				envelope.NewSealer(logger, cfg.PBKDF2Iterations),
				restore.NewJobStore(cfg.StateDir),
				cfg.StateDir,
			)

			// The confirmation gate runs before any lock or maintenance
			// transition: an unconfirmed restore must make zero changes.
			if !confirm {
				_, err := orch.Restore(cmd.Context(), restore.Params{
					EnvelopePath: envelopePath,
					Confirmed:    false,
				})
				return err
			}

			lock, err := runlock.Acquire(logger, cfg.StateDir, cfg.Context, "restore", cfg.LockStaleAfter)
			if err != nil {
				return err
			}
			defer lock.Release()

			coord := maintenance.NewCoordinator(logger, cfg.StateDir, cfg.HealthCheckURL)
			if withMaintenance {
				if _, err := coord.Enter(fmt.Sprintf("restoring %s", envelopePath)); err != nil {
					return err
				}
			}

			job, err := orch.Restore(cmd.Context(), restore.Params{
				EnvelopePath: envelopePath,
				Passphrase:   cfg.Passphrase,
				Confirmed:    true,
				Components:   components,
			})
			if err != nil {
				if withMaintenance {
					// A failed restore leaves maintenance active on
					// purpose; the operator decides when the system is
					// fit to serve again.
					logger.Warn().Str("job_id", job.ID).Msg("restore failed, maintenance mode left active")
				}
				return err
			}

			if withMaintenance {
				if _, err := coord.Exit(cmd.Context()); err != nil {
					return err
				}
			}

			logger.Info().Str("job_id", job.ID).Strs("components", job.Completed).Msg("restore succeeded")
			return nil
		},
	}

	cmd.Flags().StringVar(&envelopePath, "backup", "", "envelope (or plaintext archive) to restore (required)")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm this destructive operation")
	cmd.Flags().StringSliceVar(&components, "components", nil, "restore only these components (database, blobs, config)")
	cmd.Flags().BoolVar(&withMaintenance, "maintenance", false, "enter maintenance mode for the duration of the restore")
	cmd.MarkFlagRequired("backup")
	return cmd
}
