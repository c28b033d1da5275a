package engine

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/emberai/search-bridge/errors"
)

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ReloadPolicy controls when a Reader picks up commits made after it
// was opened.
type ReloadPolicy int

const (
	// ReloadManual requires an explicit Reload call.
	ReloadManual ReloadPolicy = iota
	// ReloadOnCommit watches the index directory and marks the reader
	// stale as soon as a commit lands. In-memory indexes have nothing
	// to watch and always behave as ReloadManual.
	ReloadOnCommit
)

// Reader is a view over the index for building Searchers. Each reload
// advances its generation; Searchers remember the generation they were
// built at.
type Reader struct {
	ix      *Index
	watcher *fsnotify.Watcher
	done    chan struct{}
	gen     atomic.Uint64
	stale   atomic.Bool

	mu     sync.Mutex
	closed bool
}

// NewReader opens a reader over the index.
func NewReader(ix *Index, policy ReloadPolicy) (*Reader, error) {
	if err := ix.live(); err != nil {
		return nil, err
	}
	r := &Reader{ix: ix}
	r.gen.Store(1)
	if policy == ReloadOnCommit && !ix.InMemory() {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, errors.IO("watch", err)
		}
		if err := w.Add(ix.path); err != nil {
			w.Close()
			return nil, errors.IO("watch", err)
		}
		// Segment files land in a subdirectory; the watch is not
		// recursive, so cover it explicitly when present.
		if store := filepath.Join(ix.path, "store"); dirExists(store) {
			if err := w.Add(store); err != nil {
				w.Close()
				return nil, errors.IO("watch", err)
			}
		}
		r.watcher = w
		r.done = make(chan struct{})
		go r.watch()
	}
	return r, nil
}

func (r *Reader) watch() {
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) != 0 {
				if !r.stale.Swap(true) {
					Logger().Debug("reader marked stale",
						zap.String("path", r.ix.path),
						zap.String("event", ev.Op.String()))
				}
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			Logger().Warn("index watcher error", zap.Error(err))
		case <-r.done:
			return
		}
	}
}

// Stale reports whether commits have landed since the last reload.
// Only meaningful under ReloadOnCommit.
func (r *Reader) Stale() bool { return r.stale.Load() }

// Generation returns the reader's current reload generation.
func (r *Reader) Generation() uint64 { return r.gen.Load() }

// Reload advances the reader to the latest committed state of the
// index. Searchers created before the reload keep working but report
// an older generation.
func (r *Reader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.Closed("reader")
	}
	if err := r.ix.live(); err != nil {
		return err
	}
	r.stale.Store(false)
	r.gen.Add(1)
	return nil
}

// Searcher builds a searcher pinned to the reader's current generation.
func (r *Reader) Searcher() (*Searcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Closed("reader")
	}
	if err := r.ix.live(); err != nil {
		return nil, err
	}
	return &Searcher{ix: r.ix, gen: r.gen.Load()}, nil
}

// Drop implements handle teardown.
func (r *Reader) Drop() {
	if err := r.Close(); err != nil {
		Logger().Warn("reader drop", zap.Error(err))
	}
}

// Close stops the watcher, if any. It is idempotent.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.watcher != nil {
		close(r.done)
		if err := r.watcher.Close(); err != nil {
			return errors.IO("watch", err)
		}
	}
	return nil
}
