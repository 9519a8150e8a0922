package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/openmined/assetguard/internal/config"
	"github.com/openmined/assetguard/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

// runCLI executes the command tree in-process and returns stdout, stderr and the exit code.
func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	// keep the user's config out of the way
	if os.Getenv(configPathEnv) == "" {
		t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "absent.json"))
	}

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	code := execute(context.Background(), cmd)
	return stripANSI(stdout.String()), stripANSI(stderr.String()), code
}

func writeAsset(t *testing.T, root, rel, content string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

var t0 = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

func TestValidate_MissingMetadataCreated(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "a.bin", "payload", t0)

	out, _, code := runCLI(t, root)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "a.bin -> missing metadata -> created")
	assert.Contains(t, out, "1 assets, 0 valid, 1 created")
	assert.FileExists(t, filepath.Join(root, "a.bin.meta"))

	// second run is quiet about untouched assets
	out, _, code = runCLI(t, "validate", root)
	require.Equal(t, 0, code)
	assert.NotContains(t, out, "a.bin ->")
	assert.Contains(t, out, "1 valid")

	out, _, code = runCLI(t, "validate", "--verbose", root)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "a.bin -> valid (timestamp matches) -> ok")
}

func TestValidate_DryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "a.bin", "payload", t0)

	out, _, code := runCLI(t, "--dry-run", "--no-journal", root)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "a.bin -> missing metadata -> created (dry run)")
	assert.Contains(t, out, "[dry run, nothing written]")
	assert.NoFileExists(t, filepath.Join(root, "a.bin.meta"))
}

func TestValidate_MismatchFailsRun(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "a.bin", "payload", t0)
	_, _, code := runCLI(t, root)
	require.Equal(t, 0, code)
	before, err := os.ReadFile(filepath.Join(root, "a.bin.meta"))
	require.NoError(t, err)

	writeAsset(t, root, "a.bin", "tampered", t0.Add(time.Hour))

	out, _, code := runCLI(t, "--minimal", root)
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, out, "a.bin -> hash mismatch -> needs attention")
	assert.Contains(t, out, "1 mismatched")

	after, err := os.ReadFile(filepath.Join(root, "a.bin.meta"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	out, _, code = runCLI(t, "--accept-modified", root)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "a.bin -> stale -> appended")
}

func TestValidate_InvalidConfigIsError(t *testing.T) {
	root := t.TempDir()

	_, errOut, code := runCLI(t, "--workers", "-3", root)
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "workers")

	_, errOut, code = runCLI(t, "--rate-limit", "lots", root)
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "rate limit")

	_, errOut, code = runCLI(t, filepath.Join(root, "missing"))
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "not a directory")
}

func TestValidate_ConfigFileAndEnv(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "a.bin", "payload", t0)

	cfgPath := filepath.Join(t.TempDir(), "config.json")
	cfg := config.Default(root)
	cfg.DryRun = true
	require.NoError(t, cfg.Save(cfgPath))

	out, _, code := runCLI(t, "--config", cfgPath)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "created (dry run)")
	assert.NoFileExists(t, filepath.Join(root, "a.bin.meta"))

	t.Setenv("ASSETGUARD_DRY_RUN", "false")
	out, _, code = runCLI(t, "--config", cfgPath)
	require.Equal(t, 0, code)
	assert.NotContains(t, out, "dry run")
	assert.FileExists(t, filepath.Join(root, "a.bin.meta"))
}

func TestValidate_LogFile(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "a.bin", "payload", t0)
	logFile := filepath.Join(t.TempDir(), "logs", "run.log")

	_, _, code := runCLI(t, "--log-file", logFile, root)
	require.Equal(t, 0, code)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "line=1 ")
	assert.Contains(t, string(data), "assetguard run start")
}

func TestHistoryCommand(t *testing.T) {
	root := t.TempDir()
	asset := writeAsset(t, root, "models/ship.obj", "v1", t0)
	_, _, code := runCLI(t, root)
	require.Equal(t, 0, code)

	writeAsset(t, root, "models/ship.obj", "v2", t0.Add(time.Hour))
	_, _, code = runCLI(t, "--accept-modified", root)
	require.Equal(t, 0, code)

	out, _, code := runCLI(t, "history", "--root", root, "--runs", asset)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "models/ship.obj")
	assert.Contains(t, out, "2024-02-01T09:00:00.000Z")
	assert.Contains(t, out, "content changed")
	assert.Contains(t, out, "current")
	assert.Contains(t, out, "runs (2)")
	assert.Contains(t, out, "missing metadata -> created")
	assert.Contains(t, out, "stale -> appended")
}

func TestHistoryCommand_OutsideRoot(t *testing.T) {
	root := t.TempDir()
	other := writeAsset(t, t.TempDir(), "x.bin", "x", t0)

	_, errOut, code := runCLI(t, "history", "--root", root, other)
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "is not inside")
}

func TestRunsCommand(t *testing.T) {
	root := t.TempDir()

	out, _, code := runCLI(t, "runs", "--root", root)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "no runs recorded")

	writeAsset(t, root, "a.bin", "a", t0)
	writeAsset(t, root, "b.bin", "b", t0)
	_, _, code = runCLI(t, "--dry-run", root)
	require.Equal(t, 0, code)

	out, _, code = runCLI(t, "runs", "--root", root)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "2 assets, 0 valid, 2 created")
	assert.Contains(t, out, "[dry run]")

	runID := strings.Fields(out)[0]
	out, _, code = runCLI(t, "runs", "--root", root, runID)
	require.Equal(t, 0, code)
	assert.Equal(t, "a.bin -> missing metadata -> created\nb.bin -> missing metadata -> created\n", out)

	_, errOut, code := runCLI(t, "runs", "--root", root, "zzzz")
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "run not found")
}

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	out, _, code := runCLI(t, "version")
	require.Equal(t, 0, code)
	assert.Equal(t, version.DetailedWithApp(), strings.TrimSpace(out))
}

func TestConfigPathCommand(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv("HOME", t.TempDir())

	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"config-path"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, config.DefaultConfigPath, strings.TrimSpace(buf.String()))

	explicit := filepath.Join(t.TempDir(), "custom.json")
	out, _, code := runCLI(t, "config-path", "--config", explicit)
	require.Equal(t, 0, code)
	assert.Equal(t, explicit, strings.TrimSpace(out))

	t.Setenv(configPathEnv, "/etc/assetguard.json")
	out, _, code = runCLI(t, "config-path")
	require.Equal(t, 0, code)
	assert.Equal(t, "/etc/assetguard.json", strings.TrimSpace(out))
}

func TestConfigInitCommand(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(t.TempDir(), "config.json")

	out, _, code := runCLI(t, "config-init", "--config", path, root)
	require.Equal(t, 0, code)
	assert.Equal(t, path, strings.TrimSpace(out))
	assert.FileExists(t, path)

	_, errOut, code := runCLI(t, "config-init", "--config", path, root)
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "already exists")

	_, _, code = runCLI(t, "config-init", "--config", path, "--force", root)
	assert.Equal(t, 0, code)
}
