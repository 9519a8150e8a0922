package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/openmined/assetguard/internal/app"
	"github.com/openmined/assetguard/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [root]",
		Short: "Validate every asset under root and synchronize its metadata",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}
	addValidateFlags(cmd)
	return cmd
}

func addValidateFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.SortFlags = false
	flags.Bool("contents", false, "rehash every asset even when its timestamp is unchanged")
	flags.BoolP("dry-run", "n", false, "report what would change without writing metadata")
	flags.Bool("accept-modified", false, "record edited assets (newer timestamp, new content) instead of reporting a mismatch")
	flags.BoolP("verbose", "v", false, "print every asset and debug logs")
	flags.BoolP("minimal", "q", false, "print only assets that need attention")
	flags.IntP("workers", "j", 1, "assets processed in parallel")
	flags.String("rate-limit", "0", "max hashing throughput per second, e.g. 50MB (0 is unlimited)")
	flags.StringSlice("include", nil, "only validate assets matching these globs (doublestar syntax)")
	flags.String("state-dir", "", "directory for the lock and run journal (default <root>/.assetguard)")
	flags.Bool("no-journal", false, "do not record the run in the journal")
	flags.String("log-file", "", "also write debug logs to this file")
}

// loadConfig merges flags, ASSETGUARD_* environment variables and the config file, in that
// order of precedence, into a validated Config.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	v := viper.New()
	path := resolveConfigPath(cmd)
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", path, err)
		}
		path = ""
	}

	v.SetDefault("root", ".")
	v.SetDefault("verbosity", string(config.VerbosityDefault))
	v.SetDefault("journal", true)

	flags := cmd.Flags()
	v.BindPFlag("verify_content", flags.Lookup("contents"))
	v.BindPFlag("dry_run", flags.Lookup("dry-run"))
	v.BindPFlag("accept_modified", flags.Lookup("accept-modified"))
	v.BindPFlag("workers", flags.Lookup("workers"))
	v.BindPFlag("rate_limit", flags.Lookup("rate-limit"))
	v.BindPFlag("include", flags.Lookup("include"))
	v.BindPFlag("state_dir", flags.Lookup("state-dir"))
	v.BindPFlag("log_file", flags.Lookup("log-file"))

	v.SetEnvPrefix("ASSETGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if len(args) == 1 {
		v.Set("root", args[0])
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		v.Set("verbosity", string(config.VerbosityVerbose))
	} else if minimal, _ := flags.GetBool("minimal"); minimal {
		v.Set("verbosity", string(config.VerbosityQuiet))
	}
	if noJournal, _ := flags.GetBool("no-journal"); noJournal {
		v.Set("journal", false)
	}

	rate, err := humanize.ParseBytes(v.GetString("rate_limit"))
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", v.GetString("rate_limit"), err)
	}

	cfg := &config.Config{
		Root:           v.GetString("root"),
		VerifyContent:  v.GetBool("verify_content"),
		DryRun:         v.GetBool("dry_run"),
		AcceptModified: v.GetBool("accept_modified"),
		Verbosity:      config.Verbosity(v.GetString("verbosity")),
		Workers:        v.GetInt("workers"),
		RateLimit:      int64(rate),
		Include:        v.GetStringSlice("include"),
		StateDir:       v.GetString("state_dir"),
		Journal:        v.GetBool("journal"),
		LogFile:        v.GetString("log_file"),
		Path:           path,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	// config is valid, usage no longer helps
	cmd.SilenceUsage = true

	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	report, err := a.Run(cmd.Context())
	if err != nil {
		return err
	}

	if err := printReport(cmd.OutOrStdout(), report, cfg); err != nil {
		return err
	}

	if report.Canceled {
		return errors.New("run interrupted before every asset was validated")
	}
	if !report.Summary().OK() {
		return errValidationFailed
	}
	return nil
}
