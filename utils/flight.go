package utils

import "sync"

// Flight tracks keys with work in progress. Acquire returns false while
// the key is held, so duplicate triggers for the same payment are
// rejected instead of queued.
type Flight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewFlight() *Flight {
	return &Flight{keys: make(map[string]struct{})}
}

// Acquire claims the key. Returns false if it is already claimed.
func (f *Flight) Acquire(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.keys[key]; held {
		return false
	}
	f.keys[key] = struct{}{}
	return true
}

// Release frees the key. Releasing an unclaimed key is a no-op.
func (f *Flight) Release(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
}
