package enrich

import "sync"

// companyLocks hands out one mutex per company id. Entries are dropped once
// no goroutine holds or waits on them.
type companyLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newCompanyLocks() *companyLocks {
	return &companyLocks{locks: make(map[string]*lockEntry)}
}

// lock blocks until id is free and returns the matching unlock.
func (l *companyLocks) lock(id string) func() {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
