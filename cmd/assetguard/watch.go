package main

import (
	"fmt"
	"log/slog"

	"github.com/openmined/assetguard/internal/app"
	"github.com/openmined/assetguard/internal/engine"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Validate root, then keep validating assets as they change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			window, _ := cmd.Flags().GetDuration("batch")

			closeLog, err := setupLogging(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()
			cmd.SilenceUsage = true

			a, err := app.New(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			err = a.Watch(cmd.Context(), window, func(report *engine.Report) {
				if err := printReport(out, report, cfg); err != nil {
					slog.Warn("failed to print report", "error", err)
				}
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.ErrOrStderr(), gray.Render("stopped watching"))
			return err
		},
	}
	addValidateFlags(cmd)
	cmd.Flags().Duration("batch", app.DefaultBatchWindow, "how long to collect changes before validating them")
	return cmd
}
