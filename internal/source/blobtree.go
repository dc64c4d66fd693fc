package source

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// BlobTreeSource mirrors the uploaded-files tree (product images, invoice
// PDFs and the like) in and out of staging.
type BlobTreeSource struct {
	logger zerolog.Logger
	root   string
}

func NewBlobTreeSource(logger zerolog.Logger, root string) *BlobTreeSource {
	return &BlobTreeSource{
		logger: logger.With().Str("component", "blobs").Logger(),
		root:   root,
	}
}

func (s *BlobTreeSource) Name() string { return "blobs" }
func (s *BlobTreeSource) Kind() Kind   { return KindFileTree }

func (s *BlobTreeSource) Extract(ctx context.Context, dir string) (*ExtractResult, error) {
	if s.root == "" {
		s.logger.Info().Msg("no blob root configured, recording empty component")
		return &ExtractResult{Empty: true}, nil
	}
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		// A store with no uploads yet is a valid empty component.
		s.logger.Info().Str("root", s.root).Msg("blob root does not exist, recording empty component")
		return &ExtractResult{Empty: true}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bytes, files, err := copyTree(s.root, dir)
	if err != nil {
		return nil, err
	}
	return &ExtractResult{SizeBytes: bytes, FileCount: files, Empty: files == 0}, nil
}

// Inject replaces the contents of the blob root with the staged tree. The
// root itself is kept so mounts and permissions survive.
func (s *BlobTreeSource) Inject(ctx context.Context, dir string) error {
	if s.root == "" {
		return fmt.Errorf("no blob root configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("create blob root: %w", err)
	}
	if err := clearDir(s.root); err != nil {
		return fmt.Errorf("clear blob root: %w", err)
	}

	if _, _, err := copyTree(dir, s.root); err != nil {
		return err
	}
	return nil
}
