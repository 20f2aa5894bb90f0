package indexing

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOp is a coalesced file-level operation a Watcher reports.
type WatchOp int

const (
	// WatchOpChanged covers both create and write: the file should be
	// re-extracted, re-embedded, and recommitted.
	WatchOpChanged WatchOp = iota
	// WatchOpRemoved means the file no longer exists and its fragments
	// should be evicted.
	WatchOpRemoved
)

// WatchEvent is one coalesced, debounced change a Watcher applies.
type WatchEvent struct {
	Path string
	Op   WatchOp
}

// DefaultDebounceWindow coalesces bursts of fsnotify events (editors often
// emit several writes per save) into one reindex per settled file.
const DefaultDebounceWindow = 200 * time.Millisecond

// Watcher drives the same delete-before-insert-before-mtime-update sequence
// the full Index run uses, one changed file at a time, so a long-lived
// `ctxforge index --watch` process stays current without a full rewalk.
type Watcher struct {
	pipeline *Pipeline
	root     string
	window   time.Duration

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]WatchOp
	timer   *time.Timer

	onApply func(WatchEvent, error)
}

// NewWatcher builds a Watcher over pipeline rooted at root. onApply, if
// non-nil, is called after each coalesced event is applied (or fails).
func NewWatcher(pipeline *Pipeline, root string, onApply func(WatchEvent, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		pipeline: pipeline,
		root:     root,
		window:   DefaultDebounceWindow,
		fsw:      fsw,
		pending:  make(map[string]WatchOp),
		onApply:  onApply,
	}, nil
}

// Run watches root recursively until ctx is cancelled. fsnotify does not
// recurse on its own, so every directory under root is registered
// individually, matching the teacher's internal/watcher recursive-add
// pattern adapted from hybrid.go.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	info, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	if isDir && ev.Op&fsnotify.Create != 0 {
		_ = w.fsw.Add(ev.Name)
		return
	}
	if isDir {
		return
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	op := WatchOpChanged
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		op = WatchOpRemoved
	}
	w.debounce(rel, op)
}

// debounce coalesces rapid events per path: a later WatchOpRemoved always
// wins over a pending WatchOpChanged (the file is gone, reindexing it would
// fail), and a later WatchOpChanged replaces a pending WatchOpRemoved (the
// file was recreated).
func (w *Watcher) debounce(path string, op WatchOp) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = op
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]WatchOp)
	w.mu.Unlock()

	for path, op := range batch {
		var err error
		switch op {
		case WatchOpRemoved:
			err = w.pipeline.RemoveFile(path)
		default:
			err = w.pipeline.IndexFile(context.Background(), w.root, path)
		}
		if w.onApply != nil {
			w.onApply(WatchEvent{Path: path, Op: op}, err)
		}
	}
}

// Close stops watching and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	if w.timer != nil {
		w.timer.Stop()
	}
	return w.fsw.Close()
}
