package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disiqueira/gotree/v3"
	"github.com/dustin/go-humanize"
	"github.com/openmined/assetguard/internal/journal"
	"github.com/openmined/assetguard/internal/metadata"
	"github.com/openmined/assetguard/internal/utils"
	"github.com/openmined/assetguard/internal/workspace"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <file>",
		Short: "Print the recorded fingerprint history of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rootDir, _ := cmd.Flags().GetString("root")
			stateDir, _ := cmd.Flags().GetString("state-dir")
			withRuns, _ := cmd.Flags().GetBool("runs")

			ws, err := workspace.New(rootDir, stateDir)
			if err != nil {
				return err
			}
			assetID, err := assetIDFor(ws.Root, args[0])
			if err != nil {
				return err
			}

			cmd.SilenceUsage = true
			rec, err := metadata.NewSidecarStore(ws.Root).Read(assetID)
			if err != nil {
				return err
			}

			tree := historyTree(assetID, rec)
			if withRuns && utils.FileExists(ws.JournalPath()) {
				if err := addRunsBranch(cmd, tree, ws.JournalPath(), assetID); err != nil {
					return err
				}
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), tree.Print())
			return err
		},
	}
	cmd.Flags().String("root", ".", "root directory of the asset tree")
	cmd.Flags().String("state-dir", "", "state directory (default <root>/.assetguard)")
	cmd.Flags().Bool("runs", false, "also list what journaled runs observed")
	return cmd
}

// assetIDFor maps a file path onto its slash-separated identity under root.
func assetIDFor(root string, file string) (string, error) {
	abs, err := utils.ResolvePath(file)
	if err != nil {
		return "", err
	}
	if !utils.IsWithin(root, abs) || abs == root {
		return "", fmt.Errorf("%s is not inside %s", file, root)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	return utils.NormPath(rel), nil
}

func historyTree(assetID string, rec *metadata.Record) gotree.Tree {
	tree := gotree.New(fmt.Sprintf("%s %s", bold.Render(assetID), gray.Render("id "+rec.ID)))
	if len(rec.History) == 0 {
		tree.Add(yellow.Render("no fingerprints recorded"))
		return tree
	}

	for i, fp := range rec.History {
		label := fmt.Sprintf("%s  sha256:%s  %s", fp.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
			fp.Digest[:12], gray.Render(humanize.Time(fp.Timestamp)))
		if i > 0 && fp.Digest != rec.History[i-1].Digest {
			label += " " + cyan.Render("content changed")
		}
		if i == len(rec.History)-1 {
			label += " " + green.Render("current")
		}
		tree.Add(label)
	}
	return tree
}

func addRunsBranch(cmd *cobra.Command, tree gotree.Tree, journalPath string, assetID string) error {
	jr, err := journal.Open(journalPath)
	if err != nil {
		return err
	}
	defer jr.Close()

	entries, err := jr.AssetResults(cmd.Context(), assetID)
	if err != nil {
		return err
	}

	branch := tree.Add(fmt.Sprintf("runs (%d)", len(entries)))
	for _, e := range entries {
		label := fmt.Sprintf("%s %s -> %s", shortID(e.RunID), e.Outcome, e.Action)
		if e.Error != "" {
			label += " " + red.Render(e.Error)
		}
		branch.Add(label)
	}
	return nil
}

func shortID(id string) string {
	id, _, _ = strings.Cut(id, "-")
	return id
}
