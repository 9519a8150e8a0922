// Package utils holds small filesystem and logging helpers shared by the assetguard packages.
package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LogInterceptor is an io.Writer that prefixes every complete line with a sequence number and a
// wall-clock timestamp before passing it on. Incomplete lines are held back until their newline
// arrives or Close is called.
type LogInterceptor struct {
	mu      sync.Mutex
	target  io.Writer
	seq     uint64
	pending bytes.Buffer
	now     func() time.Time
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{target: target, now: time.Now}
}

// Write reports len(p) on success so callers such as slog handlers never see short writes.
func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending.Write(p)
	for {
		idx := bytes.IndexByte(i.pending.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := i.pending.Next(idx + 1)
		if err := i.writeLine(bytes.TrimRight(line, "\r\n")); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close flushes a trailing unterminated line.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.pending.Len() == 0 {
		return nil
	}
	line := bytes.Clone(i.pending.Bytes())
	i.pending.Reset()
	return i.writeLine(line)
}

func (i *LogInterceptor) writeLine(line []byte) error {
	i.seq++
	var buf bytes.Buffer
	buf.WriteString(slog.Uint64("line", i.seq).String())
	buf.WriteByte(' ')
	buf.WriteString(slog.String("time", i.now().Format(time.RFC3339)).String())
	buf.WriteByte(' ')
	buf.Write(line)
	buf.WriteByte('\n')
	_, err := i.target.Write(buf.Bytes())
	return err
}
