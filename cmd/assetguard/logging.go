package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/assetguard/internal/config"
	"github.com/openmined/assetguard/internal/utils"
	"github.com/openmined/assetguard/internal/version"
)

// setupLogging installs the default logger: tint on the console at the configured verbosity,
// plus a debug-level text log in cfg.LogFile when set. The returned func flushes and closes it.
func setupLogging(cfg *config.Config, console io.Writer) (func(), error) {
	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      cfg.Verbosity.Level(),
		TimeFormat: "15:04:05.000",
		NoColor:    !isTerminal(console),
	})

	if cfg.LogFile == "" {
		slog.SetDefault(slog.New(consoleHandler))
		slog.Debug(version.ShortWithApp(), "root", cfg.Root)
		return func() {}, nil
	}

	if err := utils.EnsureParent(cfg.LogFile); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	interceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(interceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// the interceptor stamps every line
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(consoleHandler, fileHandler)))
	slog.Debug(version.ShortWithApp(), "root", cfg.Root, "log", cfg.LogFile)
	return func() {
		interceptor.Close()
		file.Close()
	}, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
