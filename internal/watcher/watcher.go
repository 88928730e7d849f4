// Package watcher monitors the packaged asset directory and reports when the
// built application changes on disk, so the window can reload it.
//
// Bursts of filesystem events (a bundler rewriting dozens of chunks) are
// collapsed into one Change once the tree has been quiet for the debounce
// interval.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a Change is emitted.
const DefaultDebounce = 250 * time.Millisecond

// Change describes one debounced batch of asset modifications.
type Change struct {
	Paths []string  // root-relative, slash separated, sorted
	At    time.Time // when the batch was flushed
}

// Watcher watches a directory tree for asset changes.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	clients  map[chan Change]struct{}
	stopped  bool
	fsw      *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a Watcher for root. A non-positive debounce uses
// DefaultDebounce.
func New(root string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		logger:   logger,
		clients:  make(map[chan Change]struct{}),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start registers the whole tree and begins watching. Call Stop to clean up.
func (w *Watcher) Start() error {
	if w.root == "" {
		return errors.New("watch directory is empty")
	}
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("stat watch dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch dir %s is not a directory", w.root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := addTree(fsw, w.root); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw

	w.logger.Info("asset watcher started", "dir", w.root, "debounce", w.debounce)
	go w.loop()
	return nil
}

// addTree watches dir and every directory below it. fsnotify is not
// recursive.
func addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch dir %s: %w", path, err)
		}
		return nil
	})
}

// Stop shuts down the watcher and closes every subscriber channel. It is
// safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fsw != nil {
			w.fsw.Close()
			<-w.done
		}
		w.mu.Lock()
		w.stopped = true
		for ch := range w.clients {
			close(ch)
			delete(w.clients, ch)
		}
		w.mu.Unlock()
	})
}

// Subscribe returns a channel that receives debounced changes. The channel
// is closed by Stop or Unsubscribe; after Stop it is returned closed.
func (w *Watcher) Subscribe() <-chan Change {
	ch := make(chan Change, 4)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		close(ch)
		return ch
	}
	w.clients[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber returned by Subscribe.
func (w *Watcher) Unsubscribe(sub <-chan Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.clients {
		if ch == sub {
			delete(w.clients, ch)
			close(ch)
			return
		}
	}
}

func (w *Watcher) broadcast(c Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.clients {
		select {
		case ch <- c:
		default:
			// Slow subscriber; it will see the next batch.
		}
	}
}

func (w *Watcher) loop() {
	defer close(w.done)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(w.fsw, event.Name); err != nil {
						w.logger.Warn("watch new directory", "dir", event.Name, "error", err)
					}
				}
			}
			pending[w.relative(event.Name)] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = make(map[string]struct{})

			w.logger.Info("assets changed", "count", len(paths))
			w.logger.Debug("assets changed", "paths", paths)
			w.broadcast(Change{Paths: paths, At: time.Now()})
		}
	}
}

func (w *Watcher) relative(name string) string {
	rel, err := filepath.Rel(w.root, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(name)
	}
	return filepath.ToSlash(rel)
}
