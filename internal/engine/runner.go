package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openmined/assetguard/internal/index"
)

// Report is the outcome of a full run over an index.
type Report struct {
	Root     string
	Results  []*Result
	Started  time.Time
	Finished time.Time
	// Canceled is set when the context ended before every asset was processed.
	Canceled bool
}

func (r *Report) Summary() Summary {
	return Summarize(r.Results)
}

// Run processes every asset in idx. Per-asset failures are recorded in their Result and never
// stop the run; context cancellation stops scheduling new assets. Results are ordered by id.
func (e *Engine) Run(ctx context.Context, idx *index.Index) *Report {
	entries := make([]*index.Entry, 0, idx.Len())
	for _, id := range idx.IDs() {
		if entry, ok := idx.Get(id); ok {
			entries = append(entries, entry)
		}
	}
	return e.RunEntries(ctx, idx.Root(), entries)
}

// RunEntries is Run over an explicit set of assets, such as the ones a watcher saw change.
func (e *Engine) RunEntries(ctx context.Context, root string, entries []*index.Entry) *Report {
	report := &Report{Root: root, Started: time.Now()}

	var (
		mu      sync.Mutex
		results = make([]*Result, 0, len(entries))
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(e.opts.Workers, 1))

	for _, entry := range entries {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return nil
			}
			res := e.Process(egCtx, entry)
			if res.Err != nil && errors.Is(res.Err, context.Canceled) {
				return nil
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	slices.SortFunc(results, func(a, b *Result) int { return strings.Compare(a.AssetID, b.AssetID) })
	report.Results = results
	report.Finished = time.Now()
	report.Canceled = ctx.Err() != nil || len(results) < len(entries)

	if report.Canceled {
		slog.Warn("run canceled", "processed", len(results), "total", len(entries))
	}
	return report
}
