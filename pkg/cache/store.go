package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCacheMiss indicates the requested fingerprint was not found.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is a fingerprint-keyed cache of parsed API responses.
//
// Get returns stale entries as well as live ones; callers check
// Entry.IsExpired and use the ETag for revalidation.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error

	// Touch extends an existing entry's expiry, e.g. after a successful
	// 304 revalidation. Returns ErrCacheMiss if the key is absent.
	Touch(ctx context.Context, key string, expires time.Time) error
}

// DefaultMemoryCap is the default entry bound for MemoryStore.
const DefaultMemoryCap = 1024

// MemoryStore is an in-process Store bounded by an LRU size cap.
// All operations are safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	cap     int
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type memoryItem struct {
	key   string
	entry *Entry
}

// NewMemoryStore creates a memory store holding at most cap entries.
// A cap <= 0 falls back to DefaultMemoryCap.
func NewMemoryStore(cap int) *MemoryStore {
	if cap <= 0 {
		cap = DefaultMemoryCap
	}
	return &MemoryStore{
		cap:     cap,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get retrieves an entry by fingerprint. Stale entries are returned too.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	s.order.MoveToFront(elem)
	CacheHits.WithLabelValues("memory").Inc()
	return elem.Value.(*memoryItem).entry, nil
}

// Set stores or overwrites an entry, evicting the least recently used
// entries when the cap is exceeded.
func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry) error {
	if entry == nil {
		return ErrInvalidEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		elem.Value.(*memoryItem).entry = entry
		s.order.MoveToFront(elem)
		return nil
	}

	s.entries[key] = s.order.PushFront(&memoryItem{key: key, entry: entry})

	for s.order.Len() > s.cap {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*memoryItem).key)
		CacheEvictions.Inc()
	}

	return nil
}

// Delete removes an entry.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		s.order.Remove(elem)
		delete(s.entries, key)
	}
	return nil
}

// Touch extends the expiry of an existing entry.
func (s *MemoryStore) Touch(_ context.Context, key string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return ErrCacheMiss
	}

	elem.Value.(*memoryItem).entry.Expires = expires
	s.order.MoveToFront(elem)
	return nil
}

// Len returns the current number of entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
