// Package cli wires the shopvault command tree.
package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/edvin/shopvault/internal/restore"
	"github.com/edvin/shopvault/internal/runlock"
)

// Exit codes. Unconfirmed restores and held run locks get dedicated
// codes so wrappers and cron jobs can tell a safety stop from a failure.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUnconfirmed = 3
	ExitLockHeld    = 4
)

func New() *cobra.Command {
	root := &cobra.Command{
		Use:           "shopvault",
		Short:         "Backup, encryption and restore for the shop platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newBackupCmd(),
		newTestBackupCmd(),
		newEncryptCmd(),
		newDecryptCmd(),
		newRestoreCmd(),
		newPruneCmd(),
		newEnterMaintenanceCmd(),
		newExitMaintenanceCmd(),
		newStatusCmd(),
		newInitDBCmd(),
		newDaemonCmd(),
	)
	return root
}

// ExitCode maps an error from Execute to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, restore.ErrUnconfirmed) {
		return ExitUnconfirmed
	}
	var held *runlock.HeldError
	if errors.As(err, &held) {
		return ExitLockHeld
	}
	return ExitFailure
}
