package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edvin/shopvault/internal/db"
)

func newInitDBCmd() *cobra.Command {
	var migrationsDir string

	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Initialize the schema of a fresh restore target database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			if err := db.RunMigrations(cfg.DatabaseURL, migrationsDir); err != nil {
				return err
			}
			logger.Info().Str("migrations", migrationsDir).Msg("database schema initialized")
			return nil
		},
	}

	cmd.Flags().StringVar(&migrationsDir, "dir", "./migrations", "directory holding the schema migrations")
	return cmd
}
