package index

import (
	"errors"
	"fmt"
)

var ErrScan = errors.New("scan failed")

// ScanError means the root itself could not be enumerated. It is the only failure that stops a
// whole run.
type ScanError struct {
	Root string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrScan, e.Root, e.Err)
}

func (e *ScanError) Unwrap() []error {
	return []error{ErrScan, e.Err}
}

type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid include pattern %q", e.Pattern)
}
