package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is the in-process secondary tier. Expiry is enforced lazily on
// read and proactively by a periodic sweep that bounds memory when the
// primary tier is down for long stretches.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry

	done chan struct{}
	once sync.Once
}

// NewMemoryStore creates the secondary tier. A sweep interval of zero
// disables the background sweep (expiry is then lazy only).
func NewMemoryStore(sweep time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memEntry),
		done:    make(chan struct{}),
	}
	if sweep > 0 {
		go s.janitor(sweep)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock: a fresher entry may have replaced
		// the expired one in the meantime.
		if cur, ok := s.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return e.data, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[key] = memEntry{data: value, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Ping always succeeds: the in-process tier has no connection to lose.
func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// Len reports the number of live entries. Used by tests and the sweep.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}
