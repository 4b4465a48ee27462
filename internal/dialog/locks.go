package dialog

import "sync"

// KeyedMutex serializes event processing per user key. Two events for the
// same user are never handled concurrently, so every session
// read-modify-write is effectively atomic per key; events for different
// users proceed independently.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedLockEntry
}

type keyedLockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*keyedLockEntry)}
}

// Lock acquires the lock for key and returns the matching unlock function.
// Callers must release on every exit path:
//
//	unlock := km.Lock(userKey)
//	defer unlock()
//
// Entries are reference counted and removed once the last holder releases,
// so the map does not grow with the number of users ever seen.
func (km *KeyedMutex) Lock(key int64) func() {
	km.mu.Lock()
	entry, ok := km.locks[key]
	if !ok {
		entry = &keyedLockEntry{}
		km.locks[key] = entry
	}
	entry.refs++
	km.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		km.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}
