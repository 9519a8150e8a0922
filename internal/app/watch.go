package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/assetguard/internal/engine"
	"github.com/openmined/assetguard/internal/index"
	"github.com/openmined/assetguard/internal/metadata"
	"github.com/openmined/assetguard/internal/utils"
	"github.com/openmined/assetguard/internal/watcher"
)

// DefaultBatchWindow is how long Watch keeps collecting changes before validating them.
const DefaultBatchWindow = 250 * time.Millisecond

// ReportFunc receives every report Watch produces, the initial full run first.
type ReportFunc func(*engine.Report)

// Watch validates the whole tree, then revalidates assets as they change until ctx ends. The
// workspace stays locked for the whole time.
func (a *App) Watch(ctx context.Context, window time.Duration, onReport ReportFunc) error {
	if err := a.lock(); err != nil {
		return err
	}
	defer a.unlock()

	fw := watcher.New(a.workspace.Root, a.skipEvent)
	if err := fw.Start(ctx); err != nil {
		return err
	}
	defer fw.Stop()

	report, err := a.runOnce(ctx, nil)
	if err != nil {
		return err
	}
	a.ignoreOwnWrites(fw, report)
	onReport(report)

	slog.Info("watching for changes", "root", a.workspace.Root)
	for {
		changed, ok := collect(ctx, fw.Events(), window)
		if !ok {
			return nil
		}

		report, err := a.runOnce(ctx, func(idx *index.Index) []*index.Entry {
			return a.affected(idx, changed)
		})
		if err != nil {
			// the root may be briefly unreadable, keep watching
			slog.Error("revalidation failed", "error", err)
			continue
		}
		a.ignoreOwnWrites(fw, report)
		if len(report.Results) > 0 {
			onReport(report)
		}
	}
}

// collect blocks for the first change, then gathers more for window. It returns false once
// ctx is done.
func collect(ctx context.Context, events <-chan string, window time.Duration) (mapset.Set[string], bool) {
	changed := mapset.NewThreadUnsafeSet[string]()

	select {
	case <-ctx.Done():
		return nil, false
	case path := <-events:
		changed.Add(path)
	}

	timer := time.NewTimer(window)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case path := <-events:
			changed.Add(path)
		case <-timer.C:
			return changed, true
		}
	}
}

// affected maps changed paths onto indexed assets. A sidecar maps to its asset and a directory
// to every asset below it. An event on the root itself affects everything.
func (a *App) affected(idx *index.Index, changed mapset.Set[string]) []*index.Entry {
	ids := mapset.NewThreadUnsafeSet[string]()
	for path := range changed.Iter() {
		rel, err := filepath.Rel(a.workspace.Root, path)
		if err != nil {
			continue
		}
		id := utils.NormPath(rel)
		if trimmed, ok := strings.CutSuffix(id, metadata.Suffix); ok {
			id = trimmed
		}

		if id == "." {
			ids.Append(idx.IDs()...)
			continue
		}
		if _, ok := idx.Get(id); ok {
			ids.Add(id)
			continue
		}
		for _, candidate := range idx.IDs() {
			if strings.HasPrefix(candidate, id+"/") {
				ids.Add(candidate)
			}
		}
	}

	entries := make([]*index.Entry, 0, ids.Cardinality())
	for _, id := range ids.ToSlice() {
		entry, _ := idx.Get(id)
		entries = append(entries, entry)
	}
	return entries
}

func (a *App) skipEvent(path string) bool {
	if a.workspace.StateDirInRoot() && utils.IsWithin(a.workspace.StateDir, path) {
		return true
	}
	if ok, _ := filepath.Match(metadata.TempPattern, filepath.Base(path)); ok {
		return true
	}
	return false
}

func (a *App) ignoreOwnWrites(fw *watcher.FileWatcher, report *engine.Report) {
	for _, res := range report.Results {
		if res.Persisted {
			fw.IgnoreOnce(a.store.SidecarPath(res.AssetID))
		}
	}
}
