package service

import "sync"

// keyedMutex hands out one read-write mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.RWMutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	entry := k.acquire(key)
	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.release(key, entry)
	}
}

// RLock blocks while key is held exclusively. Shared holders do not exclude each other.
func (k *keyedMutex) RLock(key string) func() {
	entry := k.acquire(key)
	entry.mu.RLock()
	return func() {
		entry.mu.RUnlock()
		k.release(key, entry)
	}
}

func (k *keyedMutex) acquire(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (k *keyedMutex) release(key string, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
