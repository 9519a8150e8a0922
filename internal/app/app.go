// Package app wires a validated Config into validation runs: workspace lock, asset index,
// engine and run journal. Run validates once; Watch keeps validating what changes.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/assetguard/internal/config"
	"github.com/openmined/assetguard/internal/engine"
	"github.com/openmined/assetguard/internal/hasher"
	"github.com/openmined/assetguard/internal/index"
	"github.com/openmined/assetguard/internal/journal"
	"github.com/openmined/assetguard/internal/metadata"
	"github.com/openmined/assetguard/internal/workspace"
)

type App struct {
	config    *config.Config
	workspace *workspace.Workspace
	store     *metadata.SidecarStore
	engine    *engine.Engine
	include   *index.IncludeFilter
}

func New(cfg *config.Config) (*App, error) {
	ws, err := workspace.New(cfg.Root, cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}

	include, err := index.NewIncludeFilter(cfg.Include...)
	if err != nil {
		return nil, err
	}

	h := hasher.New(hasher.WithRateLimit(cfg.RateLimit))
	store := metadata.NewSidecarStore(ws.Root)

	return &App{
		config:    cfg,
		workspace: ws,
		store:     store,
		engine:    engine.New(store, h, cfg.EngineOptions()),
		include:   include,
	}, nil
}

func (a *App) Workspace() *workspace.Workspace {
	return a.workspace
}

// Run validates the whole tree once. Only an unusable root or a held lock is returned as an
// error; per-asset failures are part of the report.
func (a *App) Run(ctx context.Context) (*engine.Report, error) {
	if err := a.lock(); err != nil {
		return nil, err
	}
	defer a.unlock()

	return a.runOnce(ctx, nil)
}

func (a *App) lock() error {
	if err := a.workspace.Lock(); err != nil {
		return err
	}
	slog.Debug("workspace locked", "lock", a.workspace.LockPath())
	return nil
}

func (a *App) unlock() {
	if err := a.workspace.Unlock(); err != nil {
		slog.Warn("failed to release workspace lock", "error", err)
	}
}

func (a *App) buildIndex() (*index.Index, error) {
	ignore, err := index.NewIgnoreList(a.workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore rules: %w", err)
	}
	opts := []index.Option{
		index.WithIgnoreList(ignore),
		index.WithIncludeFilter(a.include),
	}
	if a.workspace.StateDirInRoot() {
		opts = append(opts, index.WithExcludeDir(a.workspace.StateDir))
	}
	return index.Build(a.workspace.Root, opts...)
}

// runOnce indexes the tree and processes the entries chosen by selectFn, or all of them when
// selectFn is nil. The caller holds the lock.
func (a *App) runOnce(ctx context.Context, selectFn func(*index.Index) []*index.Entry) (*engine.Report, error) {
	slog.Info("assetguard run start", "root", a.workspace.Root, "dryRun", a.config.DryRun,
		"verify", a.config.VerifyContent, "workers", a.config.Workers)

	idx, err := a.buildIndex()
	if err != nil {
		return nil, err
	}
	slog.Debug("index built", "assets", idx.Len(), "skipped", idx.Skipped())

	var report *engine.Report
	jr, runID := a.beginJournal(ctx)
	if jr != nil {
		defer jr.Close()
	}

	if selectFn == nil {
		for _, orphan := range idx.Orphans() {
			slog.Warn("orphaned metadata", "sidecar", orphan+metadata.Suffix)
		}
		report = a.engine.Run(ctx, idx)
	} else {
		report = a.engine.RunEntries(ctx, idx.Root(), selectFn(idx))
	}

	if jr != nil && runID != "" {
		// recorded even when the run was interrupted
		if err := jr.FinishRun(context.WithoutCancel(ctx), runID, report); err != nil {
			slog.Warn("failed to record run", "run", runID, "error", err)
		}
	}

	s := report.Summary()
	slog.Info("assetguard run done", "total", s.Total, "valid", s.Valid, "created", s.Created,
		"appended", s.Appended, "mismatch", s.Mismatch, "errors", s.Errors,
		"took", report.Finished.Sub(report.Started))
	return report, nil
}

// beginJournal opens the journal and records the run start. Journal trouble never fails a run.
func (a *App) beginJournal(ctx context.Context) (*journal.Journal, string) {
	if !a.config.Journal {
		return nil, ""
	}

	jr, err := journal.Open(a.workspace.JournalPath())
	if err != nil {
		slog.Warn("run journal unavailable", "error", err)
		return nil, ""
	}

	runID, err := jr.BeginRun(ctx, journal.RunInfo{
		Root:           a.workspace.Root,
		DryRun:         a.config.DryRun,
		VerifyContent:  a.config.VerifyContent,
		AcceptModified: a.config.AcceptModified,
	}, time.Now())
	if err != nil {
		slog.Warn("failed to record run start", "error", err)
		return jr, ""
	}
	slog.Debug("journal", "path", jr.Path(), "run", runID)
	return jr, runID
}
