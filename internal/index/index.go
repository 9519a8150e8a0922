// Package index discovers content files and their metadata sidecars under a root directory and
// joins them by asset identity.
package index

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/assetguard/internal/metadata"
	"github.com/openmined/assetguard/internal/utils"
)

// Entry joins one content file with its optional sidecar.
type Entry struct {
	ID           string // slash-separated path of the content file relative to the root
	ContentPath  string
	MetadataPath string // empty when the asset has no sidecar
}

func (e *Entry) HasMetadata() bool {
	return e.MetadataPath != ""
}

// Index is built once per run and never changes afterwards.
type Index struct {
	root    string
	entries map[string]*Entry
	ids     []string
	orphans mapset.Set[string]
	skipped int
}

type buildConfig struct {
	ignore   *IgnoreList
	include  *IncludeFilter
	excludes []string
}

type Option func(*buildConfig)

func WithIgnoreList(l *IgnoreList) Option {
	return func(c *buildConfig) { c.ignore = l }
}

func WithIncludeFilter(f *IncludeFilter) Option {
	return func(c *buildConfig) { c.include = f }
}

// WithExcludeDir skips an absolute directory and everything below it.
func WithExcludeDir(dir string) Option {
	return func(c *buildConfig) { c.excludes = append(c.excludes, filepath.Clean(dir)) }
}

// Build walks root once and partitions regular files into content files and sidecars.
func Build(root string, opts ...Option) (*Index, error) {
	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}
	// WalkDir does not descend into a symlinked root
	root = utils.RealPath(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &ScanError{Root: root, Err: errors.New("not a directory")}
	}

	contents := make(map[string]string)
	sidecars := make(map[string]string)
	idx := &Index{root: root, entries: make(map[string]*Entry), orphans: mapset.NewThreadUnsafeSet[string]()}

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			slog.Warn("index skip", "path", path, "error", err)
			idx.skipped++
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		if d.IsDir() {
			if cfg.isExcluded(path) {
				return filepath.SkipDir
			}
			rel, err := filepath.Rel(root, path)
			if err == nil && cfg.ignore != nil && cfg.ignore.ShouldIgnore(utils.NormPath(rel)+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath := utils.NormPath(rel)
		if cfg.ignore != nil && cfg.ignore.ShouldIgnore(relPath) {
			return nil
		}

		if id, ok := strings.CutSuffix(relPath, metadata.Suffix); ok && id != "" && !strings.HasSuffix(id, "/") {
			sidecars[id] = path
		} else {
			contents[relPath] = path
		}
		return nil
	}

	if err := filepath.WalkDir(root, walkFn); err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}

	for id, contentPath := range contents {
		if !cfg.include.Includes(id) {
			continue
		}
		idx.entries[id] = &Entry{ID: id, ContentPath: contentPath, MetadataPath: sidecars[id]}
		idx.ids = append(idx.ids, id)
	}
	sort.Strings(idx.ids)

	for id := range sidecars {
		if _, ok := contents[id]; !ok && cfg.include.Includes(id) {
			idx.orphans.Add(id)
		}
	}

	return idx, nil
}

func (c *buildConfig) isExcluded(dir string) bool {
	for _, ex := range c.excludes {
		if dir == ex {
			return true
		}
	}
	return false
}

func (idx *Index) Root() string {
	return idx.root
}

// IDs returns every indexed asset identity in lexical order.
func (idx *Index) IDs() []string {
	return append([]string(nil), idx.ids...)
}

func (idx *Index) Get(id string) (*Entry, bool) {
	e, ok := idx.entries[id]
	return e, ok
}

func (idx *Index) Len() int {
	return len(idx.ids)
}

// Orphans lists sidecars whose content file is gone. They are reported, never validated.
func (idx *Index) Orphans() []string {
	orphans := idx.orphans.ToSlice()
	sort.Strings(orphans)
	return orphans
}

// Skipped counts entries below the root that could not be read during the walk.
func (idx *Index) Skipped() int {
	return idx.skipped
}

func (idx *Index) String() string {
	return fmt.Sprintf("index(root=%s assets=%d orphans=%d)", idx.root, idx.Len(), idx.orphans.Cardinality())
}

// IsScanError reports whether err came from a failed root enumeration.
func IsScanError(err error) bool {
	return errors.Is(err, ErrScan)
}
