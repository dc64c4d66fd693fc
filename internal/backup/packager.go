package backup

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/edvin/shopvault/internal/model"
)

// PackagingError marks a failure to turn a staging directory into an
// archive file.
type PackagingError struct {
	Err error
}

func (e *PackagingError) Error() string { return fmt.Sprintf("package staging directory: %v", e.Err) }
func (e *PackagingError) Unwrap() error { return e.Err }

// Package archives stagingDir into archiveDir under the canonical
// timestamped name. Staging is only read, never mutated. The archive is
// written to a partial file and renamed into place, so no half-written
// file can ever claim to be a complete archive.
func Package(ctx context.Context, stagingDir, archiveDir, runContext string, now time.Time) (string, error) {
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return "", &PackagingError{Err: err}
	}
	if len(entries) == 0 {
		return "", &PackagingError{Err: fmt.Errorf("staging directory %s is empty", stagingDir)}
	}

	if err := os.MkdirAll(archiveDir, 0700); err != nil {
		return "", &PackagingError{Err: err}
	}

	name := model.ArchiveName(runContext, now.UTC())
	target := filepath.Join(archiveDir, name)

	// Archives are write-once; a name collision means two captures in the
	// same second for the same context.
	if _, err := os.Stat(target); err == nil {
		return "", &PackagingError{Err: fmt.Errorf("archive %s already exists", name)}
	}

	partial := target + ".partial"
	out, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", &PackagingError{Err: err}
	}
	defer os.Remove(partial)

	if err := writeTarGz(ctx, out, stagingDir); err != nil {
		out.Close()
		return "", &PackagingError{Err: err}
	}
	if err := out.Close(); err != nil {
		return "", &PackagingError{Err: err}
	}

	info, err := os.Stat(partial)
	if err != nil {
		return "", &PackagingError{Err: err}
	}
	if info.Size() == 0 {
		return "", &PackagingError{Err: fmt.Errorf("archive %s is empty", name)}
	}

	if err := os.Rename(partial, target); err != nil {
		return "", &PackagingError{Err: err}
	}
	return target, nil
}

func writeTarGz(ctx context.Context, w io.Writer, root string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	// WalkDir visits entries in lexical order, which keeps the archive
	// layout deterministic for a given staging tree.
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// Unpack extracts an archive into dest, rejecting entries that would
// escape it.
func Unpack(ctx context.Context, archivePath, dest string) error {
	in, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("read archive %s: %w", archivePath, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive %s: %w", archivePath, err)
		}

		target := filepath.Join(dest, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
		default:
			// Archives only ever contain files and directories.
		}
	}
}
