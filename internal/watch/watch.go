// Package watch reports changes to template sources on disk so compiled
// output and cached templates can be refreshed.
package watch

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/livetemplate/blockpage/internal/logging"
)

// Event is a change to a watched template file. Path is relative to the
// watched root.
type Event struct {
	Path    string
	Removed bool
}

// Handler is called once per coalesced change.
type Handler func(Event) error

// Options configures a Watcher.
type Options struct {
	// Extensions limits events to files with these extensions. Empty means
	// every file.
	Extensions []string
	// Interval is the minimum time between two events for the same file.
	// Bursts of writes inside it are delivered once. Default: 250ms.
	Interval time.Duration
	Logger   *slog.Logger
}

// Watcher watches a directory tree for template changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	rootDir  string
	opts     Options
	onChange Handler
	logger   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	pending  map[string]Event

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Watcher for rootDir and every directory below it, except
// hidden ones.
func New(rootDir string, onChange Handler, opts Options) (*Watcher, error) {
	if opts.Interval <= 0 {
		opts.Interval = 250 * time.Millisecond
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsWatcher,
		rootDir:  rootDir,
		opts:     opts,
		onChange: onChange,
		logger:   logging.OrDiscard(opts.Logger).With("component", "watch"),
		limiters: make(map[string]*rate.Limiter),
		pending:  make(map[string]Event),
		done:     make(chan struct{}),
	}

	if err := w.addDirectoryRecursive(rootDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// addDirectoryRecursive adds dir and its subdirectories to the watcher.
func (w *Watcher) addDirectoryRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		// .git, .blockpage and friends.
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.logger.Debug("watching directory", "dir", path)
		return nil
	})
}

// Dirs returns the watched directories.
func (w *Watcher) Dirs() []string {
	dirs := w.watcher.WatchList()
	slices.Sort(dirs)
	return dirs
}

// Start begins delivering events in the background.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handle(event)

			case <-ticker.C:
				w.flush()

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error("watch error", "error", err)

			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(info.Name(), ".") {
				if err := w.addDirectoryRecursive(event.Name); err != nil {
					w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
				}
			}
			return
		}
	}

	if !w.matches(event.Name) {
		return
	}

	var ev Event
	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		ev = Event{Path: w.rel(event.Name)}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		ev = Event{Path: w.rel(event.Name), Removed: true}
	default:
		return
	}

	if w.limiter(ev.Path).Allow() {
		w.deliver(ev)
		return
	}
	w.mu.Lock()
	w.pending[ev.Path] = ev
	w.mu.Unlock()
}

// flush delivers events held back by the rate limiter once their file
// has been quiet for an interval.
func (w *Watcher) flush() {
	w.mu.Lock()
	var ready []Event
	for path, ev := range w.pending {
		if w.limiters[path].Allow() {
			ready = append(ready, ev)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	slices.SortFunc(ready, func(a, b Event) int { return strings.Compare(a.Path, b.Path) })
	for _, ev := range ready {
		w.deliver(ev)
	}
}

func (w *Watcher) limiter(path string) *rate.Limiter {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.limiters[path]
	if !ok {
		l = rate.NewLimiter(rate.Every(w.opts.Interval), 1)
		w.limiters[path] = l
	}
	return l
}

func (w *Watcher) deliver(ev Event) {
	w.logger.Debug("template changed", "path", ev.Path, "removed", ev.Removed)
	if err := w.onChange(ev); err != nil {
		w.logger.Error("reload failed", "path", ev.Path, "error", err)
	}
}

func (w *Watcher) matches(path string) bool {
	if len(w.opts.Extensions) == 0 {
		return true
	}
	return slices.Contains(w.opts.Extensions, strings.ToLower(filepath.Ext(path)))
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.rootDir, path)
	if err != nil {
		return path
	}
	return rel
}

// Stop stops the watcher and waits for the event loop to exit. It is safe
// to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
