package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}

	// Expand `~` to the user's home directory
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("failed to retrieve home directory")
		}
		path = filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return filepath.Clean(absPath), nil
}

func EnsureParent(path string) error {
	return EnsureDir(filepath.Dir(path))
}

func EnsureDir(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.MkdirAll(path, 0o755)
}

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// NormPath cleans a relative path and converts it to slash form without a leading slash.
// Asset identities and ignore/include patterns are always matched against this form.
func NormPath(path string) string {
	path = filepath.ToSlash(filepath.Clean(path))
	return strings.TrimLeft(path, "/")
}

// IsWithin reports whether path is root itself or lies below it. Both must be absolute.
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// RealPath follows symlinks in an existing path. A path that cannot be evaluated is returned
// unchanged so callers can report the stat failure themselves.
func RealPath(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return resolved
}
