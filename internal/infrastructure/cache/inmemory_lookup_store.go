package cache

import (
	"context"
	"sync"
	"time"
)

type lookupEntry struct {
	value     string
	expiresAt time.Time
}

// InMemoryLookupStore implements LookupStore with a map.
// It suits single-instance deployments and tests.
type InMemoryLookupStore struct {
	mu        sync.RWMutex
	entries   map[string]lookupEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryLookupStore creates the store and starts the expiry sweeper
func NewInMemoryLookupStore() *InMemoryLookupStore {
	store := &InMemoryLookupStore{
		entries:  make(map[string]lookupEntry),
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

// Get returns a live entry
func (s *InMemoryLookupStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[key]
	if !exists || time.Now().After(e.expiresAt) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores an entry that expires after ttl
func (s *InMemoryLookupStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = lookupEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Close stops the sweeper. Safe to call multiple times.
func (s *InMemoryLookupStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryLookupStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryLookupStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Size returns the number of entries, expired ones included until swept
func (s *InMemoryLookupStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ LookupStore = (*InMemoryLookupStore)(nil)
