package watch

import (
	"sync"
	"time"

	"semdex/internal/config"
)

// Manager is the process-wide watcher coordinator: at most one project is
// watched at a time. It is an explicit value rather than a package global so
// tests can run independent instances.
type Manager struct {
	policy   config.Indexing
	debounce time.Duration
	workers  int64

	mu     sync.Mutex
	active *Watcher
}

// NewManager creates a coordinator that builds watchers with the given
// policy, debounce window, and pool size.
func NewManager(policy config.Indexing, debounce time.Duration, workers int) *Manager {
	return &Manager{policy: policy, debounce: debounce, workers: int64(workers)}
}

// StartWatchingProject stops any currently active watcher, then starts a new
// one for root. The previous watcher is fully stopped before the new one
// registers, preserving the single-active-watcher invariant.
func (m *Manager) StartWatchingProject(root string, idx Indexer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.active.Stop()
		m.active = nil
	}

	w := New(root, m.policy, idx, m.debounce, m.workers)
	if err := w.Start(); err != nil {
		return err
	}
	m.active = w
	return nil
}

// StopCurrentWatcher stops the active watcher, if any.
func (m *Manager) StopCurrentWatcher() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.Stop()
		m.active = nil
	}
}

// IsWatching reports whether a watcher is currently active.
func (m *Manager) IsWatching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil && m.active.IsWatching()
}

// CurrentWatchedPath returns the root of the active watcher, if any.
func (m *Manager) CurrentWatchedPath() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return "", false
	}
	return m.active.Root(), true
}
