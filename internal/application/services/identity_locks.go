package services

import (
	"sort"
	"sync"
)

// identityLocks serializes read-modify-write cycles per identity key inside
// one process. Entries are reference counted and dropped when idle.
type identityLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{locks: make(map[string]*refMutex)}
}

// Lock acquires every distinct key in sorted order and returns the release func.
func (l *identityLocks) Lock(keys ...string) func() {
	ordered := dedupSorted(keys)

	held := make([]*refMutex, 0, len(ordered))
	for _, key := range ordered {
		l.mu.Lock()
		m, ok := l.locks[key]
		if !ok {
			m = &refMutex{}
			l.locks[key] = m
		}
		m.refs++
		l.mu.Unlock()

		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, ordered[i])
			}
			l.mu.Unlock()
		}
	}
}

func (l *identityLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func dedupSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
