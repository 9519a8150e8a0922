package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/assetguard/internal/config"
	"github.com/openmined/assetguard/internal/engine"
)

// printReport writes one `<asset> -> <state> -> <action>` line per reported asset and a
// summary. Quiet prints only assets that need attention, default skips untouched valid assets,
// verbose prints everything.
func printReport(w io.Writer, report *engine.Report, cfg *config.Config) error {
	for _, res := range report.Results {
		if !shouldPrint(res, cfg.Verbosity) {
			continue
		}
		if _, err := fmt.Fprintln(w, formatResult(res, cfg)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, formatSummary(report, cfg))
	return err
}

func shouldPrint(res *engine.Result, verbosity config.Verbosity) bool {
	switch verbosity {
	case config.VerbosityVerbose:
		return true
	case config.VerbosityQuiet:
		return res.Failed()
	default:
		return res.Failed() || res.Action != engine.ActionNone
	}
}

func formatResult(res *engine.Result, cfg *config.Config) string {
	if res.Err != nil {
		return fmt.Sprintf("%s -> %s -> %v", res.AssetID, red.Render("error"), res.Err)
	}

	state := res.Outcome.Kind().String()
	switch {
	case res.Outcome.Kind().Valid():
		state = green.Render(state)
	case res.Outcome.Kind() == engine.KindHashMismatch:
		state = red.Render(state)
	default:
		state = yellow.Render(state)
	}

	line := fmt.Sprintf("%s -> %s -> %s", res.AssetID, state, actionLabel(res, cfg.DryRun))
	if cfg.Verbosity == config.VerbosityVerbose {
		var extra []string
		if res.Fingerprint != nil {
			extra = append(extra, "sha256:"+res.Fingerprint.Digest)
		}
		if res.Size > 0 {
			extra = append(extra, humanize.Bytes(uint64(res.Size)))
		}
		if len(extra) > 0 {
			line += " " + gray.Render("("+strings.Join(extra, ", ")+")")
		}
	}
	return line
}

func actionLabel(res *engine.Result, dryRun bool) string {
	switch res.Action {
	case engine.ActionCreated, engine.ActionAppended:
		if dryRun {
			return res.Action.String() + " (dry run)"
		}
		return res.Action.String()
	case engine.ActionReported:
		return red.Render("needs attention")
	default:
		return "ok"
	}
}

func formatSummary(report *engine.Report, cfg *config.Config) string {
	s := report.Summary()
	took := report.Finished.Sub(report.Started)

	parts := []string{
		fmt.Sprintf("%d assets", s.Total),
		green.Render(fmt.Sprintf("%d valid", s.Valid)),
		cyan.Render(fmt.Sprintf("%d created", s.Created)),
		cyan.Render(fmt.Sprintf("%d appended", s.Appended)),
	}
	if s.Mismatch > 0 {
		parts = append(parts, red.Render(fmt.Sprintf("%d mismatched", s.Mismatch)))
	}
	if s.Errors > 0 {
		parts = append(parts, red.Render(fmt.Sprintf("%d errors", s.Errors)))
	}

	line := bold.Render("summary:") + " " + strings.Join(parts, ", ")
	line += gray.Render(fmt.Sprintf(" (hashed %s in %s)", humanize.Bytes(uint64(s.Bytes)), took.Round(time.Millisecond)))
	if cfg.DryRun {
		line += " " + yellow.Render("[dry run, nothing written]")
	}
	return line
}
