package verify

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/edvin/shopvault/internal/source"
)

// fixtureSource stands in for a real component with known synthetic
// data: extraction writes the fixture files, injection writes them into
// a disposable target and verifies nothing was lost in transit.
type fixtureSource struct {
	logger    zerolog.Logger
	name      string
	kind      source.Kind
	targetDir string
	files     map[string][]byte
}

func fixtureSources(logger zerolog.Logger, targetDir string) []*fixtureSource {
	return []*fixtureSource{
		{
			logger: logger, name: "database", kind: source.KindDatabase, targetDir: targetDir,
			files: map[string][]byte{
				"dump.sql.gz": fixtureBlob("-- synthetic dump\nCREATE TABLE shopvault_selftest (id int);\n", 12*1024),
			},
		},
		{
			logger: logger, name: "blobs", kind: source.KindFileTree, targetDir: targetDir,
			files: map[string][]byte{
				"products/1/image.bin": fixtureBlob("blob-1", 20*1024),
				"products/2/image.bin": fixtureBlob("blob-2", 20*1024),
				"invoices/inv-001.pdf": fixtureBlob("invoice", 10*1024),
			},
		},
		{
			logger: logger, name: "config", kind: source.KindConfig, targetDir: targetDir,
			files: map[string][]byte{
				"settings.yaml": []byte("shop:\n  name: selftest\n  currency: EUR\n"),
			},
		},
	}
}

// fixtureBlob builds deterministic filler content of a given size.
func fixtureBlob(seed string, size int) []byte {
	var b bytes.Buffer
	for b.Len() < size {
		b.WriteString(seed)
		b.WriteByte('\n')
	}
	return b.Bytes()[:size]
}

func (f *fixtureSource) Name() string      { return f.name }
func (f *fixtureSource) Kind() source.Kind { return f.kind }

func (f *fixtureSource) Extract(ctx context.Context, dir string) (*source.ExtractResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var total int64
	for name, data := range f.files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			return nil, err
		}
		total += int64(len(data))
	}
	return &source.ExtractResult{SizeBytes: total, FileCount: len(f.files)}, nil
}

func (f *fixtureSource) Inject(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for name := range f.files {
		staged := filepath.Join(dir, filepath.FromSlash(name))
		data, err := os.ReadFile(staged)
		if err != nil {
			return fmt.Errorf("staged file %s: %w", name, err)
		}
		if !bytes.Equal(data, f.files[name]) {
			return fmt.Errorf("staged file %s does not match fixture", name)
		}

		target := filepath.Join(f.targetDir, f.name, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0600); err != nil {
			return err
		}
	}

	f.logger.Debug().Str("component", f.name).Msg("fixture component injected")
	return nil
}

var _ source.ComponentSource = (*fixtureSource)(nil)
