// Package engine classifies assets against their metadata records and applies the
// synchronization policy for each classification.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/assetguard/internal/hasher"
	"github.com/openmined/assetguard/internal/index"
	"github.com/openmined/assetguard/internal/metadata"
)

// Options is the immutable per-run configuration of the engine.
type Options struct {
	// VerifyContent rehashes every asset even when its timestamp is unchanged.
	VerifyContent bool
	// DryRun classifies and reports but never writes metadata.
	DryRun bool
	// AcceptModified treats an advanced timestamp with new content as Stale (appendable)
	// instead of HashMismatch.
	AcceptModified bool
	// Workers bounds how many assets are processed at once. Values below 2 run sequentially.
	Workers int
}

// ContentHasher fingerprints a content file.
type ContentHasher interface {
	Hash(ctx context.Context, path string) (hasher.Result, error)
}

type Engine struct {
	store  metadata.Store
	hasher ContentHasher
	opts   Options
	stat   hasher.StatFunc
	newID  func() string
}

type Option func(*Engine)

// WithStatFunc replaces how the current file timestamp is observed.
func WithStatFunc(fn hasher.StatFunc) Option {
	return func(e *Engine) { e.stat = fn }
}

// WithIDSource replaces the identifier source used for new records.
func WithIDSource(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

func New(store metadata.Store, h ContentHasher, opts Options, options ...Option) *Engine {
	e := &Engine{
		store:  store,
		hasher: h,
		opts:   opts,
		stat:   hasher.ModTime,
		newID:  uuid.NewString,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

func (e *Engine) Options() Options {
	return e.opts
}

// Classify determines the state of one asset. Store, stat and hashing failures and
// inconsistent timestamps are returned as errors and never turned into an Outcome.
func (e *Engine) Classify(ctx context.Context, entry *index.Entry) (Outcome, error) {
	outcome, _, err := e.classify(ctx, entry)
	return outcome, err
}

// classify also returns the number of bytes hashed, zero when no hash was needed.
func (e *Engine) classify(ctx context.Context, entry *index.Entry) (Outcome, int64, error) {
	observed, err := e.stat(entry.ContentPath)
	if err != nil {
		return nil, 0, &hasher.IOError{Op: "stat", Path: entry.ContentPath, Err: err}
	}

	record, err := e.store.Read(entry.ID)
	if errors.Is(err, metadata.ErrNotFound) {
		return MissingMetadata{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	latest, ok := record.Latest()
	if !ok {
		return MissingHistory{Record: record}, 0, nil
	}

	switch metadata.CompareTimestamp(latest, observed) {
	case metadata.ImpossiblePast:
		return nil, 0, &InconsistencyError{AssetID: entry.ID, Recorded: latest.Timestamp, Observed: observed}
	case metadata.TimestampEqual:
		if !e.opts.VerifyContent {
			return TimestampMatches{Record: record}, 0, nil
		}
	}

	res, err := e.hasher.Hash(ctx, entry.ContentPath)
	if err != nil {
		return nil, 0, err
	}
	fresh := res.Fingerprint

	// the file may have been touched between the first stat and the hash
	if metadata.CompareTimestamp(latest, fresh.Timestamp) == metadata.ImpossiblePast {
		return nil, res.Size, &InconsistencyError{AssetID: entry.ID, Recorded: latest.Timestamp, Observed: fresh.Timestamp}
	}

	switch {
	case fresh.SameObservation(latest):
		return HashAndTimestampMatch{Record: record, Fresh: fresh}, res.Size, nil
	case e.opts.AcceptModified && fresh.Timestamp.After(latest.Timestamp):
		return Stale{Record: record, Fresh: fresh}, res.Size, nil
	default:
		return HashMismatch{Record: record, Fresh: fresh}, res.Size, nil
	}
}

// Process classifies one asset and synchronizes it. Failures are captured in the Result.
func (e *Engine) Process(ctx context.Context, entry *index.Entry) *Result {
	start := time.Now()

	outcome, size, err := e.classify(ctx, entry)
	if err != nil {
		slog.Debug("classify failed", "asset", entry.ID, "error", err)
		return &Result{AssetID: entry.ID, Err: err, Size: size, Took: time.Since(start)}
	}

	res := e.Synchronize(ctx, entry, outcome)
	res.Size += size
	res.Took = time.Since(start)
	return res
}
