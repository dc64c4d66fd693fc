package source

import "context"

// Kind identifies what slice of persistent state a component covers.
type Kind string

const (
	KindDatabase Kind = "database"
	KindFileTree Kind = "file-tree"
	KindConfig   Kind = "config"
)

// ComponentSource extracts one slice of persistent state into a staging
// directory and injects it back during restore. Extraction is
// all-or-nothing: a source either populates its directory completely or
// returns an error, in which case the whole staging tree is discarded.
type ComponentSource interface {
	Name() string
	Kind() Kind
	Extract(ctx context.Context, dir string) (*ExtractResult, error)
	Inject(ctx context.Context, dir string) error
}

// ExtractResult reports what a component wrote into staging. Empty marks
// a source that has no data yet (for example, no blobs uploaded), which
// is a valid capture, not a failure.
type ExtractResult struct {
	SizeBytes int64
	FileCount int
	Empty     bool
}
