// Package watcher keeps the local plays corpus in sync with corpus files on disk using
// fsnotify, with per-file debouncing.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/qexpand/internal/corpus"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Handler applies a corpus file change. The indexer implements it.
type Handler interface {
	IndexFile(ctx context.Context, path string) (int, error)
	RemoveSource(ctx context.Context, path string) (int, error)
}

// Watcher watches corpus files and directories and re-indexes files that change.
// A root may be a directory, watched recursively, or a single file.
type Watcher struct {
	handler  Handler
	filter   func(path string) bool
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	roots    map[string]bool // absolute root -> is a single file
	order    []string
	watched  map[string][]string // root -> directories added to fsnotify
	pending  map[string]*time.Timer
	fsw      *fsnotify.Watcher
	ctx      context.Context
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for watch events and indexing failures.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must stay quiet before it is re-indexed.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithFilter replaces the default corpus.Supported file filter.
func WithFilter(fn func(path string) bool) WatcherOption {
	return func(w *Watcher) {
		if fn != nil {
			w.filter = fn
		}
	}
}

// NewWatcher creates a watcher over roots that forwards changes to h.
func NewWatcher(roots []string, h Handler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		handler:  h,
		filter:   corpus.Supported,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		roots:    make(map[string]bool),
		watched:  make(map[string][]string),
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			if _, dup := w.roots[abs]; !dup {
				w.roots[abs] = false
				w.order = append(w.order, abs)
			}
		}
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called; handler
// calls receive ctx.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	w.ctx = ctx
	for _, root := range w.order {
		if err := w.addRootLocked(root); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			return err
		}
	}
	w.started = true
	w.logger.Debug("watcher started", zap.Strings("roots", w.order))
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.covers(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		if w.filter(path) {
			w.schedule(path)
		}
	}
}

// handleNewDirectory watches a directory created (or moved) under a root and indexes
// the corpus files already inside it.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	root := w.rootOfLocked(dir)
	added, err := w.addTreeLocked(dir)
	w.watched[root] = append(w.watched[root], added...)
	w.mu.Unlock()
	if err != nil {
		w.logger.Warn("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	w.syncTree(dir)
}

// schedule (re)starts the debounce timer of path. When it fires the file is indexed if
// it exists and its plays are removed otherwise, so a burst of events ends in one call.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		ctx := w.ctx
		w.mu.Unlock()
		w.apply(ctx, path)
	})
}

func (w *Watcher) apply(ctx context.Context, path string) {
	if ctx == nil || ctx.Err() != nil {
		return
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		n, err := w.handler.IndexFile(ctx, path)
		if err != nil {
			w.logger.Warn("failed to index corpus file", zap.String("path", path), zap.Error(err))
			return
		}
		w.logger.Info("corpus file indexed", zap.String("path", path), zap.Int("plays", n))
	case errors.Is(err, fs.ErrNotExist):
		n, err := w.handler.RemoveSource(ctx, path)
		if err != nil {
			w.logger.Warn("failed to remove corpus file", zap.String("path", path), zap.Error(err))
			return
		}
		w.logger.Info("corpus file removed", zap.String("path", path), zap.Int("plays", n))
	default:
		w.logger.Warn("failed to stat corpus file", zap.String("path", path), zap.Error(err))
	}
}

// covers reports whether path is a single-file root or lies under a directory root.
func (w *Watcher) covers(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for root, isFile := range w.roots {
		if isFile {
			if root == path {
				return true
			}
			continue
		}
		if inDir(root, path) {
			return true
		}
	}
	return false
}

func (w *Watcher) rootOfLocked(path string) string {
	for root, isFile := range w.roots {
		if !isFile && inDir(root, path) {
			return root
		}
	}
	return ""
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// addRootLocked watches root. A missing root is created as a directory; a file root is
// watched through its parent directory.
func (w *Watcher) addRootLocked(root string) error {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
		info, err = os.Stat(root)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		w.roots[root] = true
		parent := filepath.Dir(root)
		if err := w.fsw.Add(parent); err != nil {
			return err
		}
		w.watched[root] = []string{parent}
		return nil
	}
	w.roots[root] = false
	added, err := w.addTreeLocked(root)
	w.watched[root] = added
	return err
}

func (w *Watcher) addTreeLocked(dir string) ([]string, error) {
	var added []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		added = append(added, path)
		return nil
	})
	return added, err
}

// syncTree indexes every corpus file under dir, or dir itself when it is a file.
func (w *Watcher) syncTree(dir string) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !w.filter(path) {
			return nil
		}
		w.apply(ctx, path)
		return nil
	})
}

// AddPath adds a root to watch and optionally indexes the corpus files already in it.
func (w *Watcher) AddPath(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	if _, ok := w.roots[abs]; ok {
		w.mu.Unlock()
		return nil
	}
	if w.fsw == nil {
		// not started yet; Start adds it
		w.roots[abs] = false
		w.order = append(w.order, abs)
		w.mu.Unlock()
		return nil
	}
	if err := w.addRootLocked(abs); err != nil {
		delete(w.roots, abs)
		w.mu.Unlock()
		return err
	}
	w.order = append(w.order, abs)
	w.mu.Unlock()
	w.logger.Debug("watcher path added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go w.syncTree(abs)
	}
	return nil
}

// RemovePath stops watching root. Plays already indexed from it are kept.
func (w *Watcher) RemovePath(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.roots[abs]; !ok {
		return nil
	}
	if w.fsw != nil {
		for _, p := range w.watched[abs] {
			_ = w.fsw.Remove(p)
		}
	}
	delete(w.watched, abs)
	delete(w.roots, abs)
	for i, r := range w.order {
		if r == abs {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return nil
}

// Paths returns the watched roots in the order they were added.
func (w *Watcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.order...)
}

// SyncExisting indexes every corpus file under the watched roots. Call it after Start
// to pick up files that were present before the watcher started.
func (w *Watcher) SyncExisting() {
	for _, root := range w.Paths() {
		w.syncTree(root)
	}
}

// Stop stops the watcher and releases resources. Pending debounced changes are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
