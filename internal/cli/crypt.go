package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edvin/shopvault/internal/envelope"
)

func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <archive-path>",
		Short: "Seal a plaintext archive into an envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			sealer := envelope.NewSealer(logger, cfg.PBKDF2Iterations)
			envelopePath, err := sealer.Seal(args[0], cfg.Passphrase)
			if err != nil {
				// On failure the plaintext stays where it was.
				return err
			}

			logger.Info().Str("envelope", envelopePath).Msg("archive encrypted")
			return nil
		},
	}
}

func newDecryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <envelope-path> <output-path>",
		Short: "Open an envelope back into a plaintext archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			sealer := envelope.NewSealer(logger, cfg.PBKDF2Iterations)
			if err := sealer.Open(args[0], cfg.Passphrase, args[1]); err != nil {
				// Give the operator an actionable message: a bad
				// passphrase is not an I/O problem.
				if errors.Is(err, envelope.ErrWrongPassphrase) || errors.Is(err, envelope.ErrCorruptEnvelope) {
					return fmt.Errorf("%w (check BACKUP_PASSPHRASE; the file itself was readable)", err)
				}
				return err
			}

			logger.Info().Str("output", args[1]).Msg("envelope decrypted")
			return nil
		},
	}
}
