package engine

import (
	"time"

	"github.com/openmined/assetguard/internal/metadata"
)

// Action is what synchronization did, or would have done in a dry run.
type Action uint8

const (
	ActionNone Action = iota
	ActionCreated
	ActionAppended
	ActionReported
)

var actionNames = []string{"none", "created", "appended", "reported"}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// Result is the per-asset report of one run.
type Result struct {
	AssetID string
	// Outcome is nil when classification failed.
	Outcome Outcome
	Action  Action
	// Fingerprint is the new (or would-be new) history entry, if any.
	Fingerprint *metadata.Fingerprint
	// Record is the updated record, or the would-be record in a dry run.
	Record    *metadata.Record
	Size      int64
	Persisted bool
	Err       error
	Took      time.Duration
}

// Failed reports whether the asset needs attention: an error or an unhealed mismatch.
func (r *Result) Failed() bool {
	if r.Err != nil {
		return true
	}
	return r.Outcome != nil && r.Outcome.Kind() == KindHashMismatch
}

// Summary tallies a run.
type Summary struct {
	Total     int
	Valid     int
	Created   int
	Appended  int
	Mismatch  int
	Errors    int
	Persisted int
	Bytes     int64
	ByKind    map[Kind]int
}

func Summarize(results []*Result) Summary {
	s := Summary{ByKind: make(map[Kind]int)}
	for _, r := range results {
		s.Total++
		s.Bytes += r.Size
		if r.Persisted {
			s.Persisted++
		}
		if r.Err != nil {
			s.Errors++
			continue
		}
		k := r.Outcome.Kind()
		s.ByKind[k]++
		if k.Valid() {
			s.Valid++
		}
		switch r.Action {
		case ActionCreated:
			s.Created++
		case ActionAppended:
			s.Appended++
		case ActionReported:
			s.Mismatch++
		}
	}
	return s
}

// OK reports whether nothing in the run needs manual intervention.
func (s Summary) OK() bool {
	return s.Errors == 0 && s.Mismatch == 0
}
