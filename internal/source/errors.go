package source

import "fmt"

// ExtractionError wraps a component failure during backup so callers can
// report which component broke the run.
type ExtractionError struct {
	Component string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract component %s: %v", e.Component, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
