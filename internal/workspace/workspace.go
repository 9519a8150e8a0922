// Package workspace resolves the validated tree and its private state directory, and guards a
// run with a single-instance file lock.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/assetguard/internal/utils"
)

const (
	StateDirName = ".assetguard"
	lockFile     = "assetguard.lock"
	journalFile  = "journal.db"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
	ErrNotDirectory    = errors.New("root is not a directory")
)

type Workspace struct {
	Root     string
	StateDir string

	flock *flock.Flock
}

// New resolves root and stateDir. An empty stateDir means <root>/.assetguard.
func New(rootDir string, stateDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}
	if !utils.DirExists(root) {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}
	// watcher events and index paths are reported with symlinks resolved
	root = utils.RealPath(root)

	if stateDir == "" {
		stateDir = filepath.Join(root, StateDirName)
	} else if stateDir, err = utils.ResolvePath(stateDir); err != nil {
		return nil, fmt.Errorf("failed to resolve state dir: %w", err)
	} else {
		stateDir = utils.RealPath(stateDir)
	}

	return &Workspace{
		Root:     root,
		StateDir: stateDir,
		flock:    flock.New(filepath.Join(stateDir, lockFile)),
	}, nil
}

func (w *Workspace) JournalPath() string {
	return filepath.Join(w.StateDir, journalFile)
}

func (w *Workspace) LockPath() string {
	return w.flock.Path()
}

// StateDirInRoot reports whether the state dir lives inside the validated tree and must be
// excluded from indexing.
func (w *Workspace) StateDirInRoot() bool {
	return utils.IsWithin(w.Root, w.StateDir)
}

// Lock takes the workspace lock without blocking.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.StateDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.StateDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// only the holder removes the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}
	return os.Remove(w.flock.Path())
}
