package cli

import (
	"github.com/spf13/cobra"

	"github.com/edvin/shopvault/internal/maintenance"
)

func newEnterMaintenanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enter-maintenance <reason>",
		Short: "Flag the live service to refuse writes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			coord := maintenance.NewCoordinator(logger, cfg.StateDir, cfg.HealthCheckURL)
			_, err = coord.Enter(args[0])
			return err
		},
	}
}

func newExitMaintenanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exit-maintenance",
		Short: "Clear the maintenance flag and health-check the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			coord := maintenance.NewCoordinator(logger, cfg.StateDir, cfg.HealthCheckURL)
			_, err = coord.Exit(cmd.Context())
			return err
		},
	}
}
