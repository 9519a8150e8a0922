package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openmined/assetguard/internal/version"
	"github.com/spf13/cobra"
)

const (
	exitError  = 1
	exitFailed = 2
)

// errValidationFailed marks a completed run that found mismatches or per-asset errors.
var errValidationFailed = errors.New("validation failed")

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "assetguard [root]",
		Short:         "Validate asset files against their metadata sidecars",
		Version:       version.Detailed(),
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		RunE:          runValidate,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default "+defaultConfigHint()+")")
	addValidateFlags(rootCmd)

	rootCmd.AddCommand(
		newValidateCmd(),
		newHistoryCmd(),
		newWatchCmd(),
		newRunsCmd(),
		newVersionCmd(),
		newConfigPathCmd(),
		newConfigInitCmd(),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(execute(ctx, newRootCmd()))
}

func execute(ctx context.Context, cmd *cobra.Command) int {
	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errValidationFailed):
		return exitFailed
	default:
		fmt.Fprintln(cmd.ErrOrStderr(), red.Render("Error:"), err)
		return exitError
	}
}
