package replycache

import "sync"

// keyLocker hands out one mutex per key and forgets keys nobody holds or
// waits for, so the table stays proportional to in-flight operations.
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[string]*refLock)}
}

// lock blocks until key is exclusively held and returns its release func.
func (l *keyLocker) lock(key string) func() {
	l.mu.Lock()
	entry, exists := l.locks[key]
	if !exists {
		entry = &refLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// size reports how many keys currently have holders or waiters.
func (l *keyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}
