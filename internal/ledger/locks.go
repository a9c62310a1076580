package ledger

import (
	"sort"
	"sync"
)

// ownerLocks linearizes transitions that touch the same account. Each owner
// identity gets its own mutex, so transitions on different accounts proceed
// concurrently while two transitions against one account never interleave
// between validation and commit.
//
// Mutexes are created on first use and kept for the life of the process; one
// mutex per participant is a negligible footprint.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *ownerLocks) get(owner string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[owner]
	if !ok {
		m = &sync.Mutex{}
		l.locks[owner] = m
	}
	return m
}

// Acquire locks the mutexes for the given owners and returns a release
// function. Owners are deduplicated and locked in sorted order so two
// transitions touching the same pair of accounts cannot deadlock.
func (l *ownerLocks) Acquire(owners ...string) func() {
	unique := make([]string, 0, len(owners))
	seen := make(map[string]bool, len(owners))
	for _, o := range owners {
		if !seen[o] {
			seen[o] = true
			unique = append(unique, o)
		}
	}
	sort.Strings(unique)

	held := make([]*sync.Mutex, 0, len(unique))
	for _, o := range unique {
		m := l.get(o)
		m.Lock()
		held = append(held, m)
	}

	return func() {
		// Release in reverse acquisition order.
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
