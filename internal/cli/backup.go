package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edvin/shopvault/internal/backup"
	"github.com/edvin/shopvault/internal/config"
	"github.com/edvin/shopvault/internal/envelope"
	"github.com/edvin/shopvault/internal/runlock"
)

func newBackupCmd() *cobra.Command {
	var contextName string
	var contextsFile string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Capture, package and seal one backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if contextsFile != "" {
				cf, err := config.LoadContexts(contextsFile)
				if err != nil {
					return err
				}
				name := contextName
				if name == "" {
					name = cfg.Context
				}
				def := cf.Context(name)
				if def == nil {
					return fmt.Errorf("context %q not defined in %s", name, contextsFile)
				}
				def.Apply(cfg)
				logger = logger.With().Str("context", cfg.Context).Logger()
			} else if contextName != "" {
				cfg.Context = contextName
			}

			lock, err := runlock.Acquire(logger, cfg.StateDir, cfg.Context, "backup", cfg.LockStaleAfter)
			if err != nil {
				return err
			}
			defer lock.Release()

			result, err := backup.Run(cmd.Context(), logger, buildSources(logger, cfg), cfg.Context, cfg.StateDir, cfg.ArchiveDir)
			if err != nil {
				return err
			}

			sealer := envelope.NewSealer(logger, cfg.PBKDF2Iterations)
			envelopePath, err := sealer.Seal(result.ArchivePath, cfg.Passphrase)
			if err != nil {
				// The plaintext archive is kept; the backup exists but is
				// not secured at rest.
				return fmt.Errorf("backup packaged at %s but not secured at rest: %w", result.ArchivePath, err)
			}

			logger.Info().Str("envelope", envelopePath).Msg("backup complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&contextName, "context", "", "backup context name (default from BACKUP_CONTEXT)")
	cmd.Flags().StringVar(&contextsFile, "contexts-file", "", "YAML file defining multiple backup contexts")
	return cmd
}
