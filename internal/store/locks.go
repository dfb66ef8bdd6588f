package store

import "sync"

// plateLocks hands out one mutex per plate so unrelated plates never contend.
type plateLocks struct {
	mu    sync.Mutex
	locks map[string]*plateLock
}

type plateLock struct {
	mu   sync.Mutex
	refs int
}

func newPlateLocks() *plateLocks {
	return &plateLocks{locks: make(map[string]*plateLock)}
}

// lock blocks until the plate is free and returns the matching unlock.
func (l *plateLocks) lock(plate string) (unlock func()) {
	l.mu.Lock()
	pl, ok := l.locks[plate]
	if !ok {
		pl = &plateLock{}
		l.locks[plate] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, plate)
		}
		l.mu.Unlock()
	}
}

func (l *plateLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
