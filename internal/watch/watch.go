// Package watch reports changes under a mini-program project tree.
//
// Every directory below the root is watched, directories created later are
// picked up as they appear, and bursts of filesystem events are coalesced
// into a single Event once the tree has been quiet for the debounce period.
package watch

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 100 * time.Millisecond

// DefaultIgnore lists the patterns skipped when Options.Ignore is nil.
var DefaultIgnore = []string{"**/node_modules/**", "**/.git/**"}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the tree must stay quiet before an Event is sent.
	Debounce time.Duration

	// Ignore holds doublestar patterns matched against slash-separated paths
	// relative to the root. Matching files and directories are not reported.
	Ignore []string

	// Logger receives diagnostics. Nil disables logging.
	Logger *slog.Logger
}

// Event is one debounced batch of changes.
type Event struct {
	// Files lists the changed paths in sorted order. Paths under the root
	// are slash-separated and relative to it; files registered with Add are
	// reported by their absolute path.
	Files []string
}

// Watcher watches a project tree.
type Watcher struct {
	mu sync.Mutex

	fsWatcher *fsnotify.Watcher
	root      string
	opts      Options
	logger    *slog.Logger

	// extra holds absolute paths of files watched outside the tree.
	extra map[string]bool

	// Events receives one Event per burst of changes.
	Events chan Event

	// Errors receives watcher errors.
	Errors chan error

	done      chan struct{}
	closeOnce sync.Once
}

// New starts watching root and every directory below it.
func New(root string, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Ignore == nil {
		opts.Ignore = DefaultIgnore
	}
	for _, p := range opts.Ignore {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		root:      absRoot,
		opts:      opts,
		logger:    logger,
		extra:     make(map[string]bool),
		Events:    make(chan Event, 16),
		Errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}

	if err := w.addTree(absRoot); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}

	go w.run()

	return w, nil
}

// Add watches a single file outside the project tree, such as the bundler's
// chunk-graph file. The parent directory is watched so that files replaced
// by rename are still noticed.
func (w *Watcher) Add(file string) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("getting absolute path: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.extra[abs] {
		return nil
	}
	if err := w.fsWatcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", abs, err)
	}
	w.extra[abs] = true
	return nil
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

// addTree watches dir and all non-ignored directories below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories may vanish between the event and the walk.
			if p != dir && os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.ignored(p) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		w.logger.Debug("watching directory", "path", p)
		return nil
	})
}

// rel returns the slash-separated path of p relative to the root, or false
// when p lies outside it.
func (w *Watcher) rel(p string) (string, bool) {
	r, err := filepath.Rel(w.root, p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

func (w *Watcher) ignored(p string) bool {
	r, ok := w.rel(p)
	if !ok {
		return false
	}
	for _, pattern := range w.opts.Ignore {
		if match, _ := doublestar.Match(pattern, r); match {
			return true
		}
	}
	return false
}

// run processes filesystem events.
func (w *Watcher) run() {
	pending := make(map[string]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			name, ok := w.handleEvent(event)
			if !ok {
				continue
			}
			pending[name] = true
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			files := make([]string, 0, len(pending))
			for f := range pending {
				files = append(files, f)
			}
			slices.Sort(files)
			clear(pending)
			select {
			case w.Events <- Event{Files: files}:
			case <-w.done:
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// handleEvent filters an fsnotify event and returns the name to report.
func (w *Watcher) handleEvent(event fsnotify.Event) (string, bool) {
	if event.Op == fsnotify.Chmod {
		return "", false
	}

	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return "", false
	}

	w.mu.Lock()
	isExtra := w.extra[abs]
	w.mu.Unlock()
	if isExtra {
		return abs, true
	}

	r, ok := w.rel(abs)
	if !ok || w.ignored(abs) {
		return "", false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			if err := w.addTree(abs); err != nil {
				w.logger.Warn("watching new directory", "path", abs, "err", err)
			}
		}
	}

	return r, true
}
