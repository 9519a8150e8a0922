package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrImpossiblePast marks a file whose modification time predates its latest fingerprint.
	// The safe resolution is ambiguous, so the asset is reported and left alone.
	ErrImpossiblePast = errors.New("file older than its latest fingerprint")

	ErrUnhandledOutcome = errors.New("unhandled outcome")
)

type InconsistencyError struct {
	AssetID  string
	Recorded time.Time
	Observed time.Time
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%s: %s (recorded %s, observed %s)", ErrImpossiblePast, e.AssetID,
		e.Recorded.Format(time.RFC3339Nano), e.Observed.Format(time.RFC3339Nano))
}

func (e *InconsistencyError) Is(target error) bool {
	return target == ErrImpossiblePast
}
