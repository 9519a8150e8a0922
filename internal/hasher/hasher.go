// Package hasher fingerprints content files. Each hash is bracketed by two modification-time
// reads; if they differ the file changed underneath the digest and no fingerprint is returned.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/openmined/assetguard/internal/metadata"
	"golang.org/x/time/rate"
)

const DefaultChunkSize = 64 * 1024

// StatFunc returns the modification time of a file.
type StatFunc func(path string) (time.Time, error)

// OpenFunc opens a file for reading.
type OpenFunc func(path string) (io.ReadCloser, error)

// Result is a fingerprint plus the number of bytes that went into it.
type Result struct {
	Fingerprint metadata.Fingerprint
	Size        int64
}

type Hasher struct {
	chunkSize int
	limiter   *rate.Limiter
	stat      StatFunc
	open      OpenFunc
}

type Option func(*Hasher)

// WithChunkSize sets the read buffer size; memory use per hash is bounded by it.
func WithChunkSize(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.chunkSize = n
		}
	}
}

// WithRateLimit throttles reads to bytesPerSecond. Zero or less disables throttling.
func WithRateLimit(bytesPerSecond int64) Option {
	return func(h *Hasher) {
		if bytesPerSecond > 0 {
			h.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond))
		} else {
			h.limiter = nil
		}
	}
}

func WithStatFunc(fn StatFunc) Option {
	return func(h *Hasher) { h.stat = fn }
}

func WithOpenFunc(fn OpenFunc) Option {
	return func(h *Hasher) { h.open = fn }
}

func New(opts ...Option) *Hasher {
	h := &Hasher{
		chunkSize: DefaultChunkSize,
		stat:      ModTime,
		open:      func(path string) (io.ReadCloser, error) { return os.Open(path) },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ModTime is the default StatFunc. Times are normalized to UTC.
func ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime().UTC(), nil
}

// Hash streams the whole file through SHA-256. The fingerprint carries the modification time
// read before hashing. A modification time that moved while reading yields a *ChangedError.
func (h *Hasher) Hash(ctx context.Context, path string) (Result, error) {
	before, err := h.stat(path)
	if err != nil {
		return Result{}, ioError("stat", path, err)
	}

	digest, size, err := h.digest(ctx, path)
	if err != nil {
		return Result{}, err
	}

	after, err := h.stat(path)
	if err != nil {
		return Result{}, ioError("stat", path, err)
	}
	if !before.Equal(after) {
		return Result{}, &ChangedError{Path: path, Before: before, After: after}
	}

	return Result{
		Fingerprint: metadata.Fingerprint{Timestamp: before, Digest: digest},
		Size:        size,
	}, nil
}

func (h *Hasher) digest(ctx context.Context, path string) (string, int64, error) {
	file, err := h.open(path)
	if err != nil {
		return "", 0, ioError("open", path, err)
	}
	defer file.Close()

	var src io.Reader = file
	if h.limiter != nil {
		src = &throttledReader{ctx: ctx, r: file, limiter: h.limiter}
	}

	hash := sha256.New()
	buf := make([]byte, h.chunkSize)
	size, err := io.CopyBuffer(hash, onlyReader{src}, buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", size, ctxErr
		}
		return "", size, ioError("read", path, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}

// onlyReader hides WriterTo so io.CopyBuffer honours the chunk buffer.
type onlyReader struct {
	io.Reader
}

// throttledReader waits on the limiter before each chunk is handed to the digest. Reads are
// capped at the limiter burst so a single call never asks for more tokens than it can get.
type throttledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if burst := t.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.limiter.WaitN(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
