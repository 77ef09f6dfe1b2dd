// Package cache stores compiled block fragments keyed by the content hash
// of the block that produced them.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store is a compiled-fragment store keyed by content hash.
type Store interface {
	// Get returns the fragment for hash. A miss is ("", false, nil).
	Get(ctx context.Context, hash string) (string, bool, error)

	// Exists reports whether hash is cached.
	Exists(ctx context.Context, hash string) (bool, error)

	// Put stores content under hash, replacing any previous entry.
	Put(ctx context.Context, hash, content string) error

	// Delete removes hash. Deleting a missing hash is not an error.
	Delete(ctx context.Context, hash string) error

	// Flush removes every entry.
	Flush(ctx context.Context) error
}

// StoreError wraps a store failure with the backend and operation.
type StoreError struct {
	Backend string // e.g. "file", "sqlite"
	Op      string // e.g. "get", "put"
	Hash    string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("cache %s %s %s failed: %v", e.Backend, e.Op, e.Hash, e.Err)
	}
	return fmt.Sprintf("cache %s %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Entry is a cached fragment held in memory
type Entry struct {
	Content   string
	ExpiresAt time.Time // zero means never
}

// IsExpired returns true if the entry has expired
func (e *Entry) IsExpired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// MemoryStore is an in-memory Store with optional TTL
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration

	// For background cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryStore creates a MemoryStore. A ttl of zero keeps entries until
// they are deleted or flushed.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries:         make(map[string]*Entry),
		ttl:             ttl,
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	if ttl > 0 {
		go s.cleanupLoop()
	}
	return s
}

// Get retrieves a fragment
func (s *MemoryStore) Get(_ context.Context, hash string) (string, bool, error) {
	s.mu.RLock()
	entry, exists := s.entries[hash]
	s.mu.RUnlock()

	if !exists {
		return "", false, nil
	}
	if entry.IsExpired() {
		s.mu.Lock()
		delete(s.entries, hash)
		s.mu.Unlock()
		return "", false, nil
	}
	return entry.Content, true, nil
}

// Exists reports whether hash is cached and not expired
func (s *MemoryStore) Exists(ctx context.Context, hash string) (bool, error) {
	_, ok, err := s.Get(ctx, hash)
	return ok, err
}

// Put stores a fragment
func (s *MemoryStore) Put(_ context.Context, hash, content string) error {
	entry := &Entry{Content: content}
	if s.ttl > 0 {
		entry.ExpiresAt = time.Now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[hash] = entry
	s.mu.Unlock()
	return nil
}

// Delete removes a fragment
func (s *MemoryStore) Delete(_ context.Context, hash string) error {
	s.mu.Lock()
	delete(s.entries, hash)
	s.mu.Unlock()
	return nil
}

// Flush removes all fragments
func (s *MemoryStore) Flush(_ context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()
	return nil
}

// cleanupLoop periodically removes expired entries
func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, entry := range s.entries {
		if entry.IsExpired() {
			delete(s.entries, hash)
		}
	}
}

// Stop stops the background cleanup goroutine.
// Safe to call multiple times
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// Close implements io.Closer.
func (s *MemoryStore) Close() error {
	s.Stop()
	return nil
}

// Len returns the number of entries (for testing)
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Open creates the store for backend: "file" (default), "memory",
// "sqlite" or "postgres". dir is used by the file backend and as the base
// for a relative sqlite path; dsn by the SQL backends.
func Open(backend, dir, dsn string, ttl time.Duration) (Store, error) {
	switch backend {
	case "", "file":
		s, err := NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(ttl), nil
	case "sqlite":
		if dsn == "" {
			dsn = "fragments.db"
		}
		s, err := OpenSQLite(resolvePath(dir, dsn))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (valid: file, memory, sqlite, postgres)", backend)
	}
}
