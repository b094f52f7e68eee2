package service

import "sync"

// needLocks serializes slot computation and request creation per need while
// letting different needs proceed in parallel. Keys are tenant-qualified so
// two tenants' needs never contend.
type needLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newNeedLocks() *needLocks {
	return &needLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for key and returns its unlock function.
func (l *needLocks) acquire(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
