package index

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/assetguard/internal/metadata"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is an optional gitignore-style file at the scan root.
const IgnoreFileName = ".assetignore"

var defaultIgnoreLines = []string{
	IgnoreFileName,
	metadata.TempPattern,

	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",

	// editor droppings
	"*.swp",
	"*.swo",
	"*~",
}

// IgnoreList decides which slash-separated relative paths the scan skips.
type IgnoreList struct {
	ignore *gitignore.GitIgnore
}

// NewIgnoreList compiles the default rules, the extra lines and, if present, the root's
// .assetignore file.
func NewIgnoreList(root string, extra ...string) (*IgnoreList, error) {
	lines := append([]string{}, defaultIgnoreLines...)
	lines = append(lines, extra...)

	data, err := os.ReadFile(filepath.Join(root, IgnoreFileName))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		lines = append(lines, strings.Split(string(data), "\n")...)
	}

	return &IgnoreList{ignore: gitignore.CompileIgnoreLines(lines...)}, nil
}

func (l *IgnoreList) ShouldIgnore(relPath string) bool {
	return l.ignore.MatchesPath(relPath)
}

// IncludeFilter restricts which asset identities are indexed. An empty filter includes everything.
type IncludeFilter struct {
	patterns []string
}

func NewIncludeFilter(patterns ...string) (*IncludeFilter, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p}
		}
	}
	return &IncludeFilter{patterns: patterns}, nil
}

func (f *IncludeFilter) Includes(assetID string) bool {
	if f == nil || len(f.patterns) == 0 {
		return true
	}
	for _, p := range f.patterns {
		if ok, _ := doublestar.Match(p, assetID); ok {
			return true
		}
	}
	return false
}
