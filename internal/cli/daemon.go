package cli

import (
	"github.com/spf13/cobra"

	"github.com/edvin/shopvault/internal/daemon"
)

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled backups and serve health, metrics and the maintenance flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			d := daemon.New(logger, cfg, buildSources(logger, cfg))
			return d.Run(cmd.Context())
		},
	}
}
