// Package verify runs the whole backup pipeline against disposable
// synthetic data: capture, package, seal, open, unpack, inspect. It
// validates the machinery end to end without touching live state.
package verify

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/edvin/shopvault/internal/backup"
	"github.com/edvin/shopvault/internal/envelope"
	"github.com/edvin/shopvault/internal/model"
	"github.com/edvin/shopvault/internal/source"
)

// StageError pins a self-test failure to the pipeline stage that broke,
// so "test failed" always names a stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("self-test stage %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Verifier executes the self-test in a throwaway working directory.
type Verifier struct {
	logger zerolog.Logger
	sealer *envelope.Sealer
}

func NewVerifier(logger zerolog.Logger) *Verifier {
	logger = logger.With().Str("component", "self-test").Logger()
	// The passphrase is random and thrown away, so a light KDF keeps the
	// self-test quick.
	return &Verifier{logger: logger, sealer: envelope.NewSealer(logger, 10_000)}
}

// Run executes the round trip. Every intermediate artifact lives under
// one temporary directory that is removed regardless of outcome.
func (v *Verifier) Run(ctx context.Context) error {
	work, err := os.MkdirTemp("", "shopvault-selftest-")
	if err != nil {
		return fmt.Errorf("create self-test directory: %w", err)
	}
	defer os.RemoveAll(work)

	fixtures := fixtureSources(v.logger, filepath.Join(work, "restore-target"))
	sources := make([]source.ComponentSource, len(fixtures))
	for i, f := range fixtures {
		sources[i] = f
	}

	// Stage: extract.
	result, err := backup.Run(ctx, v.logger, sources, "selftest", filepath.Join(work, "state"), filepath.Join(work, "archives"))
	if err != nil {
		return &StageError{Stage: "extract", Err: err}
	}
	for _, c := range result.Manifest.Components {
		if c.Empty || c.SizeBytes == 0 {
			return &StageError{Stage: "extract", Err: fmt.Errorf("component %s produced no data", c.Name)}
		}
	}

	// Stage: pack.
	info, err := os.Stat(result.ArchivePath)
	if err != nil {
		return &StageError{Stage: "pack", Err: err}
	}
	if info.Size() == 0 {
		return &StageError{Stage: "pack", Err: fmt.Errorf("archive %s is empty", result.ArchivePath)}
	}
	originalSum, err := fileSHA256(result.ArchivePath)
	if err != nil {
		return &StageError{Stage: "pack", Err: err}
	}

	// Stage: seal.
	passphrase, err := randomPassphrase()
	if err != nil {
		return &StageError{Stage: "seal", Err: err}
	}
	envelopePath, err := v.sealer.Seal(result.ArchivePath, passphrase)
	if err != nil {
		return &StageError{Stage: "seal", Err: err}
	}
	if _, err := os.Stat(result.ArchivePath); !os.IsNotExist(err) {
		return &StageError{Stage: "seal", Err: fmt.Errorf("plaintext archive still present after seal")}
	}
	if _, err := os.Stat(envelopePath); err != nil {
		return &StageError{Stage: "seal", Err: fmt.Errorf("envelope missing: %w", err)}
	}

	// Stage: open.
	reopened := filepath.Join(work, "reopened.tar.gz")
	if err := v.sealer.Open(envelopePath, passphrase, reopened); err != nil {
		return &StageError{Stage: "open", Err: err}
	}
	reopenedSum, err := fileSHA256(reopened)
	if err != nil {
		return &StageError{Stage: "open", Err: err}
	}
	if originalSum != reopenedSum {
		return &StageError{Stage: "open", Err: fmt.Errorf("decrypted archive differs from original (%s != %s)", reopenedSum, originalSum)}
	}

	// Stage: unpack.
	unpackDir := filepath.Join(work, "unpacked")
	if err := backup.Unpack(ctx, reopened, unpackDir); err != nil {
		return &StageError{Stage: "unpack", Err: err}
	}
	expected := []string{model.ManifestFileName}
	for _, f := range fixtures {
		expected = append(expected, f.Name())
	}
	for _, entry := range expected {
		if _, err := os.Stat(filepath.Join(unpackDir, entry)); err != nil {
			return &StageError{Stage: "unpack", Err: fmt.Errorf("expected entry %s missing: %w", entry, err)}
		}
	}

	// Stage: inspect. Every fixture byte must survive the round trip.
	for _, f := range fixtures {
		for name, want := range f.files {
			got, err := os.ReadFile(filepath.Join(unpackDir, f.Name(), name))
			if err != nil {
				return &StageError{Stage: "inspect", Err: err}
			}
			if !bytes.Equal(got, want) {
				return &StageError{Stage: "inspect", Err: fmt.Errorf("component %s file %s corrupted in round trip", f.Name(), name)}
			}
		}
	}

	v.logger.Info().Msg("self-test passed: extract, pack, seal, open, unpack, inspect")
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func randomPassphrase() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
