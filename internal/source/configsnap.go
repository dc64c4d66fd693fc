package source

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// ConfigSnapshotSource captures the service's configuration directory.
// It is injected last during restore: configuration may change how the
// service interprets the database and blob components.
type ConfigSnapshotSource struct {
	logger zerolog.Logger
	dir    string
}

func NewConfigSnapshotSource(logger zerolog.Logger, dir string) *ConfigSnapshotSource {
	return &ConfigSnapshotSource{
		logger: logger.With().Str("component", "config").Logger(),
		dir:    dir,
	}
}

func (s *ConfigSnapshotSource) Name() string { return "config" }
func (s *ConfigSnapshotSource) Kind() Kind   { return KindConfig }

func (s *ConfigSnapshotSource) Extract(ctx context.Context, dir string) (*ExtractResult, error) {
	if s.dir == "" {
		s.logger.Info().Msg("no config directory configured, recording empty component")
		return &ExtractResult{Empty: true}, nil
	}
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		s.logger.Info().Str("dir", s.dir).Msg("config directory does not exist, recording empty component")
		return &ExtractResult{Empty: true}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bytes, files, err := copyTree(s.dir, dir)
	if err != nil {
		return nil, err
	}
	return &ExtractResult{SizeBytes: bytes, FileCount: files, Empty: files == 0}, nil
}

func (s *ConfigSnapshotSource) Inject(ctx context.Context, dir string) error {
	if s.dir == "" {
		return fmt.Errorf("no config directory configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := clearDir(s.dir); err != nil {
		return fmt.Errorf("clear config directory: %w", err)
	}

	if _, _, err := copyTree(dir, s.dir); err != nil {
		return err
	}
	return nil
}
