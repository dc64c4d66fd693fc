package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ArchiveTimeLayout is the timestamp embedded in archive names.
	ArchiveTimeLayout = "20060102_150405"

	ArchiveSuffix  = ".tar.gz"
	EnvelopeSuffix = ".tar.gz.enc"
)

// Archive is one packaged backup on disk, identified by its timestamped
// name. Archives are write-once: a name is never reused.
type Archive struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Context   string    `json:"context"`
	CreatedAt time.Time `json:"created_at"`
	Encrypted bool      `json:"encrypted"`
	SizeBytes int64     `json:"size_bytes"`
}

// ArchiveName builds the canonical archive file name for a backup context
// and capture time: <context>_<YYYYMMDD_HHMMSS>.tar.gz.
func ArchiveName(context string, ts time.Time) string {
	return fmt.Sprintf("%s_%s%s", context, ts.Format(ArchiveTimeLayout), ArchiveSuffix)
}

// ParseArchiveName extracts the context and capture time from an archive
// or envelope file name.
func ParseArchiveName(name string) (*Archive, error) {
	a := &Archive{Name: name}

	base := name
	switch {
	case strings.HasSuffix(base, EnvelopeSuffix):
		a.Encrypted = true
		base = strings.TrimSuffix(base, EnvelopeSuffix)
	case strings.HasSuffix(base, ArchiveSuffix):
		base = strings.TrimSuffix(base, ArchiveSuffix)
	default:
		return nil, fmt.Errorf("archive name %q: unknown suffix", name)
	}

	// The context itself may contain underscores; the timestamp is always
	// the last two underscore-separated fields.
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return nil, fmt.Errorf("archive name %q: missing timestamp", name)
	}
	stamp := parts[len(parts)-2] + "_" + parts[len(parts)-1]
	ts, err := time.Parse(ArchiveTimeLayout, stamp)
	if err != nil {
		return nil, fmt.Errorf("archive name %q: parse timestamp: %w", name, err)
	}

	a.Context = strings.Join(parts[:len(parts)-2], "_")
	if a.Context == "" {
		return nil, fmt.Errorf("archive name %q: empty context", name)
	}
	a.CreatedAt = ts
	return a, nil
}
