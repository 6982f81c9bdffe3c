package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/mindweaver/ragchunk/internal/processor"
)

// DefaultDebounce is how long the watcher waits for changes to settle
const DefaultDebounce = 500 * time.Millisecond

// RemoveFunc is called with the root-relative path of a deleted file
type RemoveFunc func(rel string) error

// FlushFunc is called after each batch of changes has been processed
type FlushFunc func(changed, removed []string)

// Watcher re-chunks files below a root as they change
type Watcher struct {
	scanner  *Scanner
	root     string
	base     string
	proc     processor.Processor
	logger   *zap.Logger
	debounce time.Duration
	onRemove RemoveFunc
	onFlush  FlushFunc

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	watching bool
	stop     chan struct{}
	done     chan struct{}
	pending  map[string]bool
	timer    *time.Timer
	flushMu  sync.Mutex
}

// WatchOption configures a Watcher
type WatchOption func(*Watcher)

// WithDebounce sets the debounce interval
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithBase records paths relative to base, a directory containing the
// watched root, instead of relative to the root itself
func WithBase(base string) WatchOption {
	return func(w *Watcher) {
		w.base = base
	}
}

// WithRemoveHook sets the function called for deleted files
func WithRemoveHook(fn RemoveFunc) WatchOption {
	return func(w *Watcher) {
		w.onRemove = fn
	}
}

// WithFlushHook sets the function called after each processed batch
func WithFlushHook(fn FlushFunc) WatchOption {
	return func(w *Watcher) {
		w.onFlush = fn
	}
}

// NewWatcher creates a watcher feeding changed files under root into proc
func NewWatcher(s *Scanner, root string, proc processor.Processor, opts ...WatchOption) *Watcher {
	w := &Watcher{
		scanner:  s,
		root:     root,
		base:     root,
		proc:     proc,
		logger:   s.logger,
		debounce: DefaultDebounce,
		pending:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It returns once the watch is established; events are
// handled in the background until Stop is called or ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return fmt.Errorf("already watching")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.fsw = fsw
	w.watching = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.mu.Unlock()

	if err := w.addDirs(w.root); err != nil {
		_ = w.Stop()
		return fmt.Errorf("failed to add watch directories: %w", err)
	}

	go w.loop(ctx, fsw)
	w.logger.Info("watching for changes", zap.String("root", w.root), zap.Duration("debounce", w.debounce))
	return nil
}

// Stop ends the watch. It waits for the event loop to exit and for a batch
// that is already being processed to finish.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.watching {
		done := w.done
		w.mu.Unlock()
		if done != nil {
			<-done
		}
		w.waitFlush()
		return nil
	}
	w.watching = false
	close(w.stop)
	if w.timer != nil {
		w.timer.Stop()
	}
	fsw, done := w.fsw, w.done
	w.mu.Unlock()

	err := fsw.Close()
	<-done
	w.waitFlush()
	return err
}

func (w *Watcher) waitFlush() {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()
}

// addDirs adds dir and its non-excluded subdirectories to the watcher
func (w *Watcher) addDirs(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.scanner.isExcludedDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			go func() { _ = w.Stop() }()
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			rel, err := filepath.Rel(w.root, event.Name)
			if err == nil && !w.scanner.ExcludesDir(rel) {
				if err := w.addDirs(event.Name); err != nil {
					w.logger.Warn("failed to watch directory", zap.String("dir", event.Name), zap.Error(err))
				}
			}
			return
		}
	}

	rel, err := RelPath(w.base, event.Name)
	if err != nil || !w.scanner.ShouldScan(rel) {
		return
	}
	w.queue(ctx, rel)
}

func (w *Watcher) queue(ctx context.Context, rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watching {
		return
	}
	w.pending[rel] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.flush(ctx) })
}

// flush processes every queued path. Deleted files go to the remove hook,
// the rest are re-chunked into the processor.
func (w *Watcher) flush(ctx context.Context) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	if !w.watching {
		w.mu.Unlock()
		return
	}
	files := make([]string, 0, len(w.pending))
	for f := range w.pending {
		files = append(files, f)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()
	sort.Strings(files)

	var changed, removed []string
	for _, rel := range files {
		full := filepath.Join(w.base, filepath.FromSlash(rel))
		if _, err := os.Stat(full); errors.Is(err, fs.ErrNotExist) {
			removed = append(removed, rel)
			if w.onRemove != nil {
				if err := w.onRemove(rel); err != nil {
					w.logger.Warn("failed to remove file", zap.String("file", rel), zap.Error(err))
				}
			}
			continue
		}

		res, err := w.scanner.ScanFile(ctx, w.base, full, w.proc)
		if err != nil {
			w.logger.Warn("failed to re-chunk file", zap.String("file", rel), zap.Error(err))
			continue
		}
		changed = append(changed, rel)
		w.logger.Debug("re-chunked file", zap.String("file", rel), zap.Int("chunks", res.TotalChunks))
	}

	if w.onFlush != nil && (len(changed) > 0 || len(removed) > 0) {
		w.onFlush(changed, removed)
	}
}
