package index

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, rel string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(rel), 0o644))
	return path
}

func TestBuild_JoinsContentAndSidecars(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	a := touch(t, root, "a.bin")
	aMeta := touch(t, root, "a.bin.meta")
	b := touch(t, root, "textures/stone.png")
	touch(t, root, "models/ship.obj")
	touch(t, root, "models/ship.obj.meta")

	idx, err := Build(root)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.bin", "models/ship.obj", "textures/stone.png"}, idx.IDs())
	assert.Equal(t, 3, idx.Len())

	entry, ok := idx.Get("a.bin")
	require.True(t, ok)
	assert.Equal(t, a, entry.ContentPath)
	assert.Equal(t, aMeta, entry.MetadataPath)
	assert.True(t, entry.HasMetadata())

	entry, ok = idx.Get("textures/stone.png")
	require.True(t, ok)
	assert.Equal(t, b, entry.ContentPath)
	assert.False(t, entry.HasMetadata())

	_, ok = idx.Get("a.bin.meta")
	assert.False(t, ok, "sidecars are never assets themselves")
}

func TestBuild_SuffixIsAppendedNotReplaced(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "photo.jpg")
	touch(t, root, "photo.meta") // sidecar of "photo", not of "photo.jpg"

	idx, err := Build(root)
	require.NoError(t, err)

	entry, ok := idx.Get("photo.jpg")
	require.True(t, ok)
	assert.False(t, entry.HasMetadata())
	assert.Equal(t, []string{"photo"}, idx.Orphans())
}

func TestBuild_ReportsOrphans(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "gone.bin.meta")
	touch(t, root, "sub/gone2.bin.meta")
	touch(t, root, "kept.bin")

	idx, err := Build(root)
	require.NoError(t, err)

	assert.Equal(t, []string{"kept.bin"}, idx.IDs())
	assert.Equal(t, []string{"gone.bin", "sub/gone2.bin"}, idx.Orphans())
}

func TestBuild_SkipsNonRegularFiles(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	target := touch(t, root, "real.bin")
	require.NoError(t, os.Symlink(target, filepath.Join(root, "link.bin")))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty-dir"), 0o755))

	idx, err := Build(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"real.bin"}, idx.IDs())
}

func TestBuild_ExcludeDirAndIgnoreRules(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "keep.bin")
	touch(t, root, ".assetguard/journal.db")
	touch(t, root, "cache/tmp.bin")
	touch(t, root, "notes.log")
	touch(t, root, ".a.bin.meta.123.agtmp")
	touch(t, root, ".DS_Store")
	require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("cache/\n*.log\n"), 0o644))

	ignore, err := NewIgnoreList(root)
	require.NoError(t, err)

	idx, err := Build(root, WithIgnoreList(ignore), WithExcludeDir(filepath.Join(root, ".assetguard")))
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.bin"}, idx.IDs())
}

func TestBuild_IncludeFilter(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "textures/a.png")
	touch(t, root, "textures/deep/b.png")
	touch(t, root, "models/c.obj")
	touch(t, root, "models/d.obj.meta")

	include, err := NewIncludeFilter("textures/**/*.png")
	require.NoError(t, err)

	idx, err := Build(root, WithIncludeFilter(include))
	require.NoError(t, err)
	assert.Equal(t, []string{"textures/a.png", "textures/deep/b.png"}, idx.IDs())
	assert.Empty(t, idx.Orphans(), "orphans outside the include set are not reported")
}

func TestNewIncludeFilter_RejectsBadPattern(t *testing.T) {
	_, err := NewIncludeFilter("textures/[")
	var patternErr *PatternError
	require.ErrorAs(t, err, &patternErr)
	assert.Equal(t, "textures/[", patternErr.Pattern)
}

func TestBuild_SymlinkedRoot(t *testing.T) {
	target := t.TempDir()
	touch(t, target, "a.bin")
	touch(t, target, "a.bin.meta")
	link := filepath.Join(t.TempDir(), "assets")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	idx, err := Build(link)
	require.NoError(t, err)
	require.Equal(t, 1, idx.Len())

	want, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)
	assert.Equal(t, want, idx.Root())
	entry, ok := idx.Get("a.bin")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(want, "a.bin.meta"), entry.MetadataPath)
}

func TestBuild_RootFailures(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		_, err := Build(filepath.Join(t.TempDir(), "nope"))
		require.ErrorIs(t, err, ErrScan)
		assert.True(t, IsScanError(err))
	})

	t.Run("root is a file", func(t *testing.T) {
		file := touch(t, t.TempDir(), "file.bin")
		_, err := Build(file)
		require.ErrorIs(t, err, ErrScan)
	})
}

func TestBuild_UnreadableSubdirIsSkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	touch(t, root, "ok.bin")
	locked := filepath.Join(root, "locked")
	touch(t, root, "locked/hidden.bin")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	idx, err := Build(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.bin"}, idx.IDs())
	assert.Equal(t, 1, idx.Skipped())
}
