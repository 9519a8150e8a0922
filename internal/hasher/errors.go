package hasher

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrFileChangedDuringHash = errors.New("file changed during hash")
	ErrIO                    = errors.New("io failure")
)

// ChangedError reports a file whose modification time differed before and after hashing.
// The asset should be retried on a later run.
type ChangedError struct {
	Path   string
	Before time.Time
	After  time.Time
}

func (e *ChangedError) Error() string {
	return fmt.Sprintf("%s: %s (before %s, after %s)", ErrFileChangedDuringHash, e.Path,
		e.Before.Format(time.RFC3339Nano), e.After.Format(time.RFC3339Nano))
}

func (e *ChangedError) Is(target error) bool {
	return target == ErrFileChangedDuringHash
}

type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

func ioError(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}
