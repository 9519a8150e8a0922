package main

import (
	"fmt"

	"github.com/openmined/assetguard/internal/config"
	"github.com/openmined/assetguard/internal/utils"
	"github.com/spf13/cobra"
)

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-path",
		Short: "Print the resolved config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath(cmd))
			return err
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config-init [root]",
		Short: "Write a config file with default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(cmd)
			force, _ := cmd.Flags().GetBool("force")
			if utils.FileExists(path) && !force {
				return fmt.Errorf("config %s already exists, use --force to overwrite", path)
			}

			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			cfg := config.Default(root)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	return cmd
}
