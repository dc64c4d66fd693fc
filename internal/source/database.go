package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// DumpFileName is the database dump inside a component staging directory.
const DumpFileName = "dump.sql.gz"

// DatabaseSource dumps and restores the platform's Postgres database via
// pg_dump/psql, treating the engine as a black box. A pgx connection is
// opened first so connectivity failures surface before the external tool
// runs.
type DatabaseSource struct {
	logger      zerolog.Logger
	databaseURL string
}

func NewDatabaseSource(logger zerolog.Logger, databaseURL string) *DatabaseSource {
	return &DatabaseSource{
		logger:      logger.With().Str("component", "database").Logger(),
		databaseURL: databaseURL,
	}
}

func (s *DatabaseSource) Name() string { return "database" }
func (s *DatabaseSource) Kind() Kind   { return KindDatabase }

// Extract runs pg_dump and writes the gzipped dump into dir. The dump is
// written to a partial file and renamed only when pg_dump exits cleanly,
// so a half-written dump is never mistaken for a valid component.
func (s *DatabaseSource) Extract(ctx context.Context, dir string) (*ExtractResult, error) {
	if s.databaseURL == "" {
		s.logger.Info().Msg("no database configured, recording empty component")
		return &ExtractResult{Empty: true}, nil
	}

	if err := s.ping(ctx); err != nil {
		return nil, err
	}

	target := filepath.Join(dir, DumpFileName)
	partial := target + ".partial"

	out, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("create dump file: %w", err)
	}
	defer os.Remove(partial)

	gz := gzip.NewWriter(out)

	cmd := exec.CommandContext(ctx, "pg_dump", "--clean", "--if-exists", "--no-owner", "--dbname", s.databaseURL)
	cmd.Stdout = gz
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		gz.Close()
		out.Close()
		return nil, fmt.Errorf("pg_dump failed: %w: %s", err, stderr.String())
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return nil, fmt.Errorf("compress dump: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close dump file: %w", err)
	}

	if err := os.Rename(partial, target); err != nil {
		return nil, fmt.Errorf("finalize dump file: %w", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat dump file: %w", err)
	}

	return &ExtractResult{SizeBytes: info.Size(), FileCount: 1}, nil
}

// Inject streams the gzipped dump into psql. The dump is produced with
// --clean, so existing objects are dropped and recreated.
func (s *DatabaseSource) Inject(ctx context.Context, dir string) error {
	dump := filepath.Join(dir, DumpFileName)
	in, err := os.Open(dump)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn().Str("path", dump).Msg("no database dump in archive, skipping")
			return nil
		}
		return fmt.Errorf("open dump file: %w", err)
	}
	defer in.Close()

	if s.databaseURL == "" {
		return fmt.Errorf("archive contains a database dump but no database is configured")
	}
	if err := s.ping(ctx); err != nil {
		return err
	}

	gz, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("read dump file: %w", err)
	}
	defer gz.Close()

	cmd := exec.CommandContext(ctx, "psql", "--set", "ON_ERROR_STOP=1", "--quiet", s.databaseURL)
	cmd.Stdin = gz
	cmd.Stdout = io.Discard
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("psql restore failed: %w: %s", err, stderr.String())
	}
	return nil
}

func (s *DatabaseSource) ping(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, s.databaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer conn.Close(ctx)

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
