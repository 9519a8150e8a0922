// Package config holds the immutable run configuration. Everything the engine needs is passed
// through a Config value; nothing is read from ambient process state after Validate.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-json"
	"github.com/openmined/assetguard/internal/engine"
	"github.com/openmined/assetguard/internal/index"
	"github.com/openmined/assetguard/internal/utils"
	"github.com/shirou/gopsutil/v4/cpu"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".assetguard")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
)

const MaxWorkers = 256

type Verbosity string

const (
	VerbosityQuiet   Verbosity = "quiet"
	VerbosityDefault Verbosity = "default"
	VerbosityVerbose Verbosity = "verbose"
)

// Level maps a verbosity onto the console log level.
func (v Verbosity) Level() slog.Level {
	switch v {
	case VerbosityQuiet:
		return slog.LevelWarn
	case VerbosityVerbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

type Config struct {
	Root           string    `json:"root"`
	VerifyContent  bool      `json:"verify_content"`
	DryRun         bool      `json:"dry_run"`
	AcceptModified bool      `json:"accept_modified"`
	Verbosity      Verbosity `json:"verbosity"`
	Workers        int       `json:"workers"`
	RateLimit      int64     `json:"rate_limit"` // bytes per second, 0 is unlimited
	Include        []string  `json:"include,omitempty"`
	StateDir       string    `json:"state_dir,omitempty"`
	Journal        bool      `json:"journal"`
	LogFile        string    `json:"log_file,omitempty"`
	Path           string    `json:"-"`
}

// Default returns a config for root with the defaults the CLI starts from.
func Default(root string) *Config {
	return &Config{
		Root:      root,
		Verbosity: VerbosityDefault,
		Workers:   1,
		Journal:   true,
	}
}

// Validate normalizes paths and checks ranges. It must be called before the config is used.
func (c *Config) Validate() error {
	var err error

	if c.Root, err = utils.ResolvePath(c.Root); err != nil {
		return fmt.Errorf("root: %w", err)
	}
	if c.StateDir != "" {
		if c.StateDir, err = utils.ResolvePath(c.StateDir); err != nil {
			return fmt.Errorf("state dir: %w", err)
		}
	}
	if c.LogFile != "" {
		if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
			return fmt.Errorf("log file: %w", err)
		}
	}
	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}

	c.Verbosity = Verbosity(strings.ToLower(strings.TrimSpace(string(c.Verbosity))))
	switch c.Verbosity {
	case "":
		c.Verbosity = VerbosityDefault
	case VerbosityQuiet, VerbosityDefault, VerbosityVerbose:
	default:
		return fmt.Errorf("invalid verbosity %q", c.Verbosity)
	}

	if c.Workers == 0 {
		c.Workers = AutoWorkers()
	}
	if c.Workers < 0 || c.Workers > MaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d, got %d", MaxWorkers, c.Workers)
	}
	if c.RateLimit < 0 {
		return errors.New("rate limit cannot be negative")
	}
	if _, err := index.NewIncludeFilter(c.Include...); err != nil {
		return err
	}

	return nil
}

// AutoWorkers is one worker per physical core, capped at MaxWorkers.
func AutoWorkers() int {
	n, err := cpu.Counts(false)
	if err != nil || n < 1 {
		n = runtime.NumCPU()
	}
	return min(n, MaxWorkers)
}

// EngineOptions derives the engine's per-run options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		VerifyContent:  c.VerifyContent,
		DryRun:         c.DryRun,
		AcceptModified: c.AcceptModified,
		Workers:        c.Workers,
	}
}

// Save writes the config as JSON, the format the CLI reads back.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
