package watch

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/semaphore"

	"semdex/internal/config"
)

// Indexer is the per-file index surface the watcher drives.
type Indexer interface {
	IndexSingleFile(ctx context.Context, root, relPath string) error
	RemoveFileFromIndex(relPath string) error
}

// Watcher keeps one project's index in sync with on-disk changes. The event
// loop only classifies and schedules; embedding and storage work runs on a
// bounded pool so a slow backend never stalls event delivery. Creations and
// modifications are debounced per path; deletions apply immediately.
type Watcher struct {
	root     string
	policy   config.Indexing
	debounce time.Duration
	idx      Indexer
	sem      *semaphore.Weighted

	mu       sync.Mutex
	watching bool
	fsw      *fsnotify.Watcher
	pending  map[string]*time.Timer
	done     chan struct{}
	loopWg   sync.WaitGroup
}

// New creates a watcher for the project rooted at root. workers bounds how
// many indexing tasks run concurrently.
func New(root string, policy config.Indexing, idx Indexer, debounce time.Duration, workers int64) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if workers <= 0 {
		workers = 4
	}
	return &Watcher{
		root:     root,
		policy:   policy,
		debounce: debounce,
		idx:      idx,
		sem:      semaphore.NewWeighted(workers),
	}
}

// Root returns the watched project root.
func (w *Watcher) Root() string { return w.root }

// IsWatching reports whether the watcher is running.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

// Start registers the project root and every existing non-excluded
// subdirectory for filesystem notifications and begins the event loop.
// Calling Start on a running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return nil
	}

	absRoot, err := filepath.Abs(w.root)
	if err != nil {
		return err
	}
	w.root = absRoot

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	w.registerTree(absRoot)

	w.pending = make(map[string]*time.Timer)
	w.done = make(chan struct{})
	w.watching = true
	w.loopWg.Add(1)
	go w.loop()
	return nil
}

// Stop cancels pending debounce timers, unregisters every watch, and
// releases the OS handle. Tasks already dispatched to the pool run to
// completion so no file is left half-indexed. Stopping a stopped watcher is
// a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.watching {
		w.mu.Unlock()
		return
	}
	w.watching = false
	fsw := w.fsw
	pending := w.pending
	w.pending = nil
	close(w.done)
	w.mu.Unlock()

	for _, t := range pending {
		t.Stop()
	}
	fsw.Close()
	w.loopWg.Wait()
}

// registerTree adds absDir and all non-excluded subdirectories to the OS
// watch set. A directory that cannot be registered is logged and skipped;
// the rest of the tree stays watched.
func (w *Watcher) registerTree(absDir string) {
	filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != w.root {
			rel, relErr := filepath.Rel(w.root, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if config.Hidden(rel) || w.policy.Excluded(rel) {
				return filepath.SkipDir
			}
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			log.Printf("watch %s: %v", path, addErr)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.loopWg.Done()
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	rel = filepath.ToSlash(rel)

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.cancelPending(rel)
		if w.deletable(rel) {
			w.dispatch(rel, func() error {
				return w.idx.RemoveFileFromIndex(rel)
			})
		}
		return
	}

	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return // vanished between event and stat
	}

	if info.IsDir() {
		if ev.Op&fsnotify.Create != 0 && !config.Hidden(rel) && !w.policy.Excluded(rel) {
			// Register the new directory (and anything already inside it),
			// then scan it once: files can appear between the mkdir event
			// and the watch registration.
			w.registerTree(ev.Name)
			w.rescan(ev.Name)
		}
		return
	}

	if !w.policy.Eligible(rel, info.Size()) {
		return
	}
	w.schedule(rel)
}

// deletable mirrors the create/modify filter for paths that no longer exist
// on disk: extension, hidden segments, and exclusions can all still be
// checked from the path alone.
func (w *Watcher) deletable(rel string) bool {
	return !config.Hidden(rel) && !w.policy.Excluded(rel) && w.policy.AllowsExtension(rel)
}

// rescan walks a freshly registered directory and schedules every eligible
// file already in it.
func (w *Watcher) rescan(absDir string) {
	filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if w.policy.Eligible(rel, info.Size()) {
			w.schedule(rel)
		}
		return nil
	})
}

// schedule arms (or re-arms) the per-path debounce timer. Each new event
// for a path cancels and replaces the previous timer, so a burst of rapid
// edits collapses into a single indexing task after the quiet period.
func (w *Watcher) schedule(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watching {
		return
	}
	if t, ok := w.pending[rel]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		w.fire(rel, t)
	})
	w.pending[rel] = t
}

func (w *Watcher) cancelPending(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[rel]; ok {
		t.Stop()
		delete(w.pending, rel)
	}
}

// fire runs when a debounce timer elapses. A timer that lost a race with a
// re-arming event is stale: the entry in pending is no longer ours, so we
// leave it tracked and let the fresh timer deliver the task.
func (w *Watcher) fire(rel string, t *time.Timer) {
	w.mu.Lock()
	if !w.watching {
		w.mu.Unlock()
		return
	}
	if cur, ok := w.pending[rel]; !ok || cur != t {
		w.mu.Unlock()
		return
	}
	delete(w.pending, rel)
	w.mu.Unlock()

	root := w.root
	w.dispatch(rel, func() error {
		return w.idx.IndexSingleFile(context.Background(), root, rel)
	})
}

// dispatch runs fn on the bounded pool. Acquisition happens inside the
// goroutine so the event loop never waits for a free slot. Task errors are
// logged and never stop the watch loop.
func (w *Watcher) dispatch(rel string, fn func() error) {
	go func() {
		if err := w.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer w.sem.Release(1)
		if err := fn(); err != nil {
			log.Printf("sync %s: %v", rel, err)
		}
	}()
}
