package metadata

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an asset has no sidecar. It is the expected state of a
	// never-tracked asset, not a failure.
	ErrNotFound = errors.New("metadata not found")

	ErrRead  = errors.New("metadata read failed")
	ErrParse = errors.New("metadata parse failed")
	ErrWrite = errors.New("metadata write failed")
)

// StoreError describes a sidecar that exists but could not be read, parsed or written.
// Kind is one of ErrRead, ErrParse or ErrWrite.
type StoreError struct {
	Kind error
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func readError(path string, err error) error {
	return &StoreError{Kind: ErrRead, Path: path, Err: err}
}

func parseError(path string, err error) error {
	return &StoreError{Kind: ErrParse, Path: path, Err: err}
}

func writeError(path string, err error) error {
	return &StoreError{Kind: ErrWrite, Path: path, Err: err}
}
