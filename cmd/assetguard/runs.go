package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/openmined/assetguard/internal/journal"
	"github.com/openmined/assetguard/internal/utils"
	"github.com/openmined/assetguard/internal/workspace"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List journaled runs, or the results of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rootDir, _ := cmd.Flags().GetString("root")
			stateDir, _ := cmd.Flags().GetString("state-dir")
			limit, _ := cmd.Flags().GetInt("limit")

			ws, err := workspace.New(rootDir, stateDir)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if !utils.FileExists(ws.JournalPath()) {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return err
			}

			jr, err := journal.Open(ws.JournalPath())
			if err != nil {
				return err
			}
			defer jr.Close()

			if len(args) == 1 {
				return printRunResults(cmd.Context(), cmd.OutOrStdout(), jr, args[0])
			}
			return printRuns(cmd.Context(), cmd.OutOrStdout(), jr, limit)
		},
	}
	cmd.Flags().String("root", ".", "root directory of the asset tree")
	cmd.Flags().String("state-dir", "", "state directory (default <root>/.assetguard)")
	cmd.Flags().IntP("limit", "l", 20, "number of runs to list (0 lists all)")
	return cmd
}

func printRuns(ctx context.Context, w io.Writer, jr *journal.Journal, limit int) error {
	runs, err := jr.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}

	for _, run := range runs {
		line := fmt.Sprintf("%s  %-16s %d assets, %d valid, %d created, %d appended, %d mismatched, %d errors, %s hashed",
			cyan.Render(shortID(run.ID)), humanize.Time(run.Started()), run.Total, run.Valid,
			run.Created, run.Appended, run.Mismatched, run.Errors, humanize.Bytes(uint64(run.Bytes)))

		var flags []string
		if run.DryRun {
			flags = append(flags, "dry run")
		}
		if run.VerifyContent {
			flags = append(flags, "contents")
		}
		if run.Canceled {
			flags = append(flags, "interrupted")
		}
		if run.Finished().IsZero() {
			flags = append(flags, "unfinished")
		}
		if len(flags) > 0 {
			line += " " + gray.Render("["+strings.Join(flags, ", ")+"]")
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func printRunResults(ctx context.Context, w io.Writer, jr *journal.Journal, idOrPrefix string) error {
	runID, err := resolveRunID(ctx, jr, idOrPrefix)
	if err != nil {
		return err
	}

	entries, err := jr.RunResults(ctx, runID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s -> %s -> %s", e.AssetID, e.Outcome, e.Action)
		if e.Error != "" {
			line += " " + red.Render(e.Error)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// resolveRunID accepts a full run id or a unique prefix of one.
func resolveRunID(ctx context.Context, jr *journal.Journal, idOrPrefix string) (string, error) {
	runs, err := jr.ListRuns(ctx, 0)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, run := range runs {
		if run.ID == idOrPrefix {
			return run.ID, nil
		}
		if strings.HasPrefix(run.ID, idOrPrefix) {
			matches = append(matches, run.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", journal.ErrRunNotFound, idOrPrefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("run prefix %q is ambiguous (%d matches)", idOrPrefix, len(matches))
	}
}
