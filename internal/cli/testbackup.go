package cli

import (
	"github.com/spf13/cobra"

	"github.com/edvin/shopvault/internal/verify"
)

func newTestBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-backup",
		Short: "Run the full pipeline self-test against disposable data",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := setup()
			if err != nil {
				return err
			}

			// Failures carry the stage that broke (extract, pack, seal,
			// open, unpack, inspect), never a bare "test failed".
			return verify.NewVerifier(logger).Run(cmd.Context())
		},
	}
}
