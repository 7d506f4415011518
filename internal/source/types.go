package source

import (
	"fmt"

	"github.com/theirongolddev/aconv/internal/model"
)

// Result is the classification of a source tree.
type Result struct {
	Transcode []model.FilePair
	Opaque    []model.FilePair
}

// Len returns the number of discovered files.
func (r Result) Len() int { return len(r.Transcode) + len(r.Opaque) }

// InvalidSourceError reports a source root that is missing or not a directory.
type InvalidSourceError struct {
	Path string
	Err  error
}

func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("invalid source %s: %v", e.Path, e.Err)
}

func (e *InvalidSourceError) Unwrap() error { return e.Err }

// InvalidDestinationError reports a destination root that exists but is not
// a directory.
type InvalidDestinationError struct {
	Path string
	Err  error
}

func (e *InvalidDestinationError) Error() string {
	return fmt.Sprintf("invalid destination %s: %v", e.Path, e.Err)
}

func (e *InvalidDestinationError) Unwrap() error { return e.Err }
