package hasher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestHash_MatchesDirectDigest(t *testing.T) {
	content := bytes.Repeat([]byte("asset-bytes-"), 10_000)
	path := writeFile(t, content)

	for _, chunk := range []int{1, 7, 1024, DefaultChunkSize, 1 << 20} {
		res, err := New(WithChunkSize(chunk)).Hash(context.Background(), path)
		require.NoError(t, err, "chunk %d", chunk)
		assert.Equal(t, sha256Hex(content), res.Fingerprint.Digest, "chunk %d", chunk)
		assert.Equal(t, int64(len(content)), res.Size)
	}
}

func TestHash_TimestampIsPreHashModTime(t *testing.T) {
	path := writeFile(t, []byte("hello"))
	mtime := time.Date(2023, 6, 1, 12, 0, 0, 123456789, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	res, err := New().Hash(context.Background(), path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, res.Fingerprint.Timestamp.Equal(info.ModTime()))
	assert.Equal(t, time.UTC, res.Fingerprint.Timestamp.Location())
}

func TestHash_EmptyFile(t *testing.T) {
	path := writeFile(t, nil)

	res, err := New().Hash(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", res.Fingerprint.Digest)
	assert.Zero(t, res.Size)
}

func TestHash_DetectsChangeDuringHash(t *testing.T) {
	path := writeFile(t, []byte("racy"))
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Millisecond)

	calls := 0
	stat := func(string) (time.Time, error) {
		calls++
		if calls == 1 {
			return t0, nil
		}
		return t1, nil
	}

	_, err := New(WithStatFunc(stat)).Hash(context.Background(), path)
	require.ErrorIs(t, err, ErrFileChangedDuringHash)

	var changed *ChangedError
	require.True(t, errors.As(err, &changed))
	assert.Equal(t, t0, changed.Before)
	assert.Equal(t, t1, changed.After)
	assert.Equal(t, 2, calls)
}

func TestHash_MissingFileIsIOError(t *testing.T) {
	_, err := New().Hash(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotErrorIs(t, err, ErrFileChangedDuringHash)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device error") }
func (failingReader) Close() error             { return nil }

func TestHash_ReadFailureIsIOError(t *testing.T) {
	path := writeFile(t, []byte("x"))
	open := func(string) (io.ReadCloser, error) { return failingReader{}, nil }

	_, err := New(WithOpenFunc(open)).Hash(context.Background(), path)
	require.ErrorIs(t, err, ErrIO)

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "read", ioErr.Op)
}

func TestHash_RateLimited(t *testing.T) {
	content := bytes.Repeat([]byte{0xAB}, 4096)
	path := writeFile(t, content)

	res, err := New(WithRateLimit(1<<20), WithChunkSize(512)).Hash(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(content), res.Fingerprint.Digest)
}

func TestHash_RateLimitedHonoursCancellation(t *testing.T) {
	path := writeFile(t, bytes.Repeat([]byte{1}, 64))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(WithRateLimit(1)).Hash(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
}
