package main

import (
	"os"
	"path/filepath"

	"github.com/openmined/assetguard/internal/config"
	"github.com/openmined/assetguard/internal/utils"
	"github.com/spf13/cobra"
)

const configPathEnv = "ASSETGUARD_CONFIG_PATH"

// resolveConfigPath determines which config file path to use, honoring (in order):
// 1) An explicitly set --config flag
// 2) ASSETGUARD_CONFIG_PATH environment variable
// 3) Existing config files in common locations
// 4) The default path
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv(configPathEnv); envPath != "" {
		return envPath
	}

	for _, candidate := range configCandidates() {
		if utils.FileExists(candidate) {
			return candidate
		}
	}

	return config.DefaultConfigPath
}

func configCandidates() []string {
	home, _ := os.UserHomeDir()
	return []string{
		config.DefaultConfigPath,
		filepath.Join(home, ".config", "assetguard", "config.json"),
	}
}

func defaultConfigHint() string {
	return "$" + configPathEnv + " or " + config.DefaultConfigPath
}
