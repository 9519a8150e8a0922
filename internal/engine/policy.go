package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmined/assetguard/internal/index"
	"github.com/openmined/assetguard/internal/metadata"
)

// Synchronize applies the policy for a classified asset. The classified record is never
// mutated; updates are built on a clone and persisted unless the run is a dry run.
func (e *Engine) Synchronize(ctx context.Context, entry *index.Entry, outcome Outcome) *Result {
	res := &Result{AssetID: entry.ID, Outcome: outcome}

	switch o := outcome.(type) {
	case TimestampMatches:
		res.Record = o.Record

	case HashAndTimestampMatch:
		latest, _ := o.Record.Latest()
		// a forced content check of an untouched file records nothing, so reruns stay no-ops
		if o.Fresh.Timestamp.Equal(latest.Timestamp) {
			res.Record = o.Record
			break
		}
		e.appendAndPersist(entry, res, o.Record.Clone(), o.Fresh, ActionAppended)

	case MissingMetadata:
		fresh, size, err := e.fingerprint(ctx, entry)
		res.Size = size
		if err != nil {
			res.Err = err
			return res
		}
		e.appendAndPersist(entry, res, metadata.NewRecord(e.newID()), fresh, ActionCreated)

	case MissingHistory:
		fresh, size, err := e.fingerprint(ctx, entry)
		res.Size = size
		if err != nil {
			res.Err = err
			return res
		}
		e.appendAndPersist(entry, res, o.Record.Clone(), fresh, ActionAppended)

	case Stale:
		e.appendAndPersist(entry, res, o.Record.Clone(), o.Fresh, ActionAppended)

	case HashMismatch:
		fresh := o.Fresh
		res.Action = ActionReported
		res.Fingerprint = &fresh
		res.Record = o.Record
		slog.Warn("hash mismatch", "asset", entry.ID, "sha256", fresh.Digest)

	default:
		res.Err = fmt.Errorf("%w: %T", ErrUnhandledOutcome, outcome)
	}
	return res
}

func (e *Engine) fingerprint(ctx context.Context, entry *index.Entry) (metadata.Fingerprint, int64, error) {
	r, err := e.hasher.Hash(ctx, entry.ContentPath)
	if err != nil {
		return metadata.Fingerprint{}, 0, err
	}
	return r.Fingerprint, r.Size, nil
}

func (e *Engine) appendAndPersist(entry *index.Entry, res *Result, rec *metadata.Record, fp metadata.Fingerprint, action Action) {
	rec.Append(fp)
	res.Action = action
	res.Fingerprint = &fp
	res.Record = rec

	if e.opts.DryRun {
		slog.Debug("dry run, not persisting", "asset", entry.ID, "action", action)
		return
	}
	if err := e.store.Write(entry.ID, rec); err != nil {
		res.Err = err
		return
	}
	res.Persisted = true
}
