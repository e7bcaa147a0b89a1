package index

import "sync"

// pathLocks serializes writes per file path: concurrent rapid edits of one
// file cannot interleave partial chunk sets, while different paths proceed
// in parallel.
type pathLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *pathLocks) lock(path string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	pm, ok := l.m[path]
	if !ok {
		pm = &sync.Mutex{}
		l.m[path] = pm
	}
	l.mu.Unlock()

	pm.Lock()
	return pm.Unlock
}
