// Package watcher reports debounced filesystem changes under the asset root.
package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rjeczalik/notify"
)

const (
	DefaultIgnoreTimeout   = time.Second
	DefaultDebounceTimeout = 100 * time.Millisecond
	eventBufferSize        = 256
	maxIgnored             = 4096
)

// FilterFunc returns true for paths whose events should be dropped.
type FilterFunc func(path string) bool

// FileWatcher emits the path of every file written, created or renamed under its directory.
// Bursts of events for one path collapse into a single event once the path is quiet for the
// debounce timeout.
type FileWatcher struct {
	watchDir string
	filter   FilterFunc
	// paths written by this process, dropped once when their event arrives
	ignored *expirable.LRU[string, struct{}]

	rawEvents chan notify.EventInfo
	events    chan string
	done      chan struct{}
	wg        sync.WaitGroup

	debounceMu      sync.Mutex
	timers          map[string]*time.Timer
	debounceTimeout time.Duration
}

func New(watchDir string, filter FilterFunc) *FileWatcher {
	return &FileWatcher{
		watchDir:        watchDir,
		filter:          filter,
		ignored:         expirable.NewLRU[string, struct{}](maxIgnored, nil, DefaultIgnoreTimeout),
		done:            make(chan struct{}),
		timers:          make(map[string]*time.Timer),
		debounceTimeout: DefaultDebounceTimeout,
	}
}

func (fw *FileWatcher) SetDebounceTimeout(timeout time.Duration) {
	fw.debounceTimeout = timeout
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Debug("file watcher start", "dir", fw.watchDir)

	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	fw.events = make(chan string, eventBufferSize)

	if err := notify.Watch(fw.watchDir+"/...", fw.rawEvents, notify.Write, notify.Create, notify.Rename); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.filterEvents(ctx)
	return nil
}

// Stop releases the watch. Events is left open; consumers stop on their own context.
func (fw *FileWatcher) Stop() {
	close(fw.done)
	if fw.rawEvents != nil {
		notify.Stop(fw.rawEvents)
	}
	fw.wg.Wait()

	fw.debounceMu.Lock()
	for path, timer := range fw.timers {
		timer.Stop()
		delete(fw.timers, path)
	}
	fw.debounceMu.Unlock()
	slog.Debug("file watcher stopped")
}

func (fw *FileWatcher) Events() <-chan string {
	return fw.events
}

// IgnoreOnce drops the next event for path if it arrives within DefaultIgnoreTimeout.
func (fw *FileWatcher) IgnoreOnce(path string) {
	fw.ignored.Add(path, struct{}{})
}

func (fw *FileWatcher) filterEvents(ctx context.Context) {
	defer fw.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.rawEvents:
			if !ok {
				return
			}
			if fw.filter != nil && fw.filter(event.Path()) {
				continue
			}
			fw.debounce(event.Path())
		}
	}
}

func (fw *FileWatcher) debounce(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if timer, ok := fw.timers[path]; ok {
		timer.Stop()
	}
	fw.timers[path] = time.AfterFunc(fw.debounceTimeout, func() {
		fw.flush(path)
	})
}

func (fw *FileWatcher) flush(path string) {
	fw.debounceMu.Lock()
	delete(fw.timers, path)
	fw.debounceMu.Unlock()

	if _, ok := fw.ignored.Get(path); ok {
		fw.ignored.Remove(path)
		return
	}

	select {
	case <-fw.done:
	case fw.events <- path:
		slog.Debug("file watcher", "path", path)
	default:
		slog.Warn("file watcher dropped", "reason", "channel full", "path", path)
	}
}
