package ledger

import (
	"sync"
	"testing"
	"time"
)

func TestOwnerLocks_SerializesSameOwner(t *testing.T) {
	locks := newOwnerLocks()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire("alice")
			defer release()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestOwnerLocks_DeduplicatesOwners(t *testing.T) {
	locks := locksDone(t, func(locks *ownerLocks) {
		// Acquiring the same owner twice must not self-deadlock.
		release := locks.Acquire("alice", "alice")
		release()
	})
	_ = locks
}

func TestOwnerLocks_OrdersPairsConsistently(t *testing.T) {
	locksDone(t, func(locks *ownerLocks) {
		// Two goroutines locking the same pair in opposite argument order
		// must not deadlock.
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				release := locks.Acquire("alice", "bob")
				release()
			}()
			go func() {
				defer wg.Done()
				release := locks.Acquire("bob", "alice")
				release()
			}()
		}
		wg.Wait()
	})
}

// locksDone runs fn against a fresh ownerLocks and fails the test if it does
// not finish within five seconds (a deadlock).
func locksDone(t *testing.T, fn func(*ownerLocks)) *ownerLocks {
	t.Helper()

	locks := newOwnerLocks()
	done := make(chan struct{})
	go func() {
		fn(locks)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock acquisition did not finish: likely deadlock")
	}
	return locks
}
