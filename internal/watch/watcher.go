// Package watch hot-loads trajectory artifacts dropped into a directory.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 250 * time.Millisecond

// Watcher reports artifact paths under one directory once they stop
// changing. Each settled create or write yields the path on Paths.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	logger      *zap.Logger
	debounceMap map[string]time.Time
	debounceDur time.Duration
	out         chan string
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounceDur = d } }

func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

func New(dir string, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:     fw,
		dir:         dir,
		logger:      zap.NewNop(),
		debounceMap: make(map[string]time.Time),
		debounceDur: DefaultDebounce,
		out:         make(chan string, 16),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Paths delivers settled artifact paths. It is closed when the watcher stops.
func (w *Watcher) Paths() <-chan string { return w.out }

// IsArtifact reports whether path names a trajectory artifact.
func IsArtifact(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Existing lists the artifacts already present in dir, sorted by name.
func Existing(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsArtifact(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Start watches the directory in a background goroutine. It creates the
// directory when missing. A failed Start closes the watcher.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		_ = w.watcher.Close()
		return err
	}
	if err := w.watcher.Add(w.dir); err != nil {
		_ = w.watcher.Close()
		return err
	}
	w.running = true
	w.logger.Info("watching model directory", zap.String("dir", w.dir))

	go w.run(ctx)
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("closing watcher", zap.Error(err))
	}
	w.logger.Info("stopped watching", zap.String("dir", w.dir))
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.out)

	tick := w.debounceDur / 4
	if tick <= 0 {
		tick = time.Millisecond
	}
	debounceTicker := time.NewTicker(tick)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-debounceTicker.C:
			if !w.flush(ctx) {
				return
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !IsArtifact(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	w.logger.Debug("artifact event", zap.String("path", event.Name), zap.Stringer("op", event.Op))

	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// flush emits paths that have settled. It returns false when the watcher
// was stopped while a send was pending.
func (w *Watcher) flush(ctx context.Context) bool {
	w.mu.Lock()
	now := time.Now()
	ready := make([]string, 0)
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()
	sort.Strings(ready)

	for _, path := range ready {
		select {
		case w.out <- path:
			w.logger.Info("artifact ready", zap.String("path", path))
		case <-w.stopCh:
			return false
		case <-ctx.Done():
			return false
		}
	}
	return true
}
