/*
Package guard serializes conflicting writes to shared planning state.

PURPOSE:
  Every mutating scheduling operation works on one of two contended keys:
  the occupancy of an (employee, date, slot) triple, or the balance of an
  (employee, year) allocation. The guard gives each operation exclusive
  access to its keys for the read-occupancy -> validate -> write window,
  and bounds automatic recovery to a single retry when the backing store
  still detects a conflicting commit.

DISCIPLINE:
  - Lock(keys...) sorts the keys before acquiring, so two operations that
    touch overlapping key sets (a Move across slots locks both) can never
    deadlock against each other.
  - Retry(fn, retryable) runs fn, and re-runs it exactly once if it fails
    with a retryable error. A second conflict is surfaced to the caller;
    there is no unbounded retry loop and no starvation risk.

SEE ALSO:
  - schedule: placement operations wrap themselves in the guard
  - leave: approval decisions guard the (employee, year) balance key
*/
package guard

import (
	"sort"
	"sync"
)

// =============================================================================
// KEYED MUTEX - Per-key serialization unit
// =============================================================================

// KeyedMutex provides one mutex per string key, created on demand.
// Keys are never evicted; the key space (employees x dates in active use)
// is small enough that this is not a concern for a planning service.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *KeyedMutex) lockFor(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Lock acquires every named key in sorted order and returns the matching
// unlock function. Duplicate keys are collapsed so a caller may pass the
// same key twice (a Move within one slot).
func (k *KeyedMutex) Lock(keys ...string) (unlock func()) {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if !seen[key] {
			seen[key] = true
			uniq = append(uniq, key)
		}
	}
	sort.Strings(uniq)

	held := make([]*sync.Mutex, 0, len(uniq))
	for _, key := range uniq {
		m := k.lockFor(key)
		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// =============================================================================
// BOUNDED RETRY - Single automatic recovery on write conflict
// =============================================================================

// Retry runs fn and, if it fails with an error the predicate accepts,
// runs it exactly once more. Any other error, and any error from the
// second attempt, is returned as-is.
func Retry(fn func() error, retryable func(error) bool) error {
	err := fn()
	if err == nil || !retryable(err) {
		return err
	}
	return fn()
}
