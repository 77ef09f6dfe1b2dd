package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreBasic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	defer s.Stop()

	// Initially empty
	_, found, err := s.Get(ctx, "abc")
	if err != nil || found {
		t.Errorf("expected cache miss for non-existent key, got found=%v err=%v", found, err)
	}

	if err := s.Put(ctx, "abc", "<p>hi</p>"); err != nil {
		t.Fatalf("put: %v", err)
	}

	content, found, err := s.Get(ctx, "abc")
	if err != nil || !found {
		t.Fatalf("expected cache hit, got found=%v err=%v", found, err)
	}
	if content != "<p>hi</p>" {
		t.Errorf("unexpected content: %q", content)
	}

	ok, _ := s.Exists(ctx, "abc")
	if !ok {
		t.Error("expected Exists to report the entry")
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(50 * time.Millisecond)
	defer s.Stop()

	s.Put(ctx, "short", "x")

	// Immediately available
	if ok, _ := s.Exists(ctx, "short"); !ok {
		t.Error("expected cache hit immediately after put")
	}

	// Wait for expiration
	time.Sleep(100 * time.Millisecond)

	if ok, _ := s.Exists(ctx, "short"); ok {
		t.Error("expected cache miss after TTL expired")
	}
	if s.Len() != 0 {
		t.Errorf("expected expired entry to be removed, got %d entries", s.Len())
	}
}

func TestMemoryStoreDeleteAndFlush(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	defer s.Stop()

	s.Put(ctx, "a", "1")
	s.Put(ctx, "b", "2")
	s.Put(ctx, "c", "3")

	s.Delete(ctx, "a")
	if ok, _ := s.Exists(ctx, "a"); ok {
		t.Error("expected a to be deleted")
	}
	if ok, _ := s.Exists(ctx, "b"); !ok {
		t.Error("expected b to still exist")
	}

	s.Flush(ctx)
	if s.Len() != 0 {
		t.Errorf("expected 0 entries after Flush, got %d", s.Len())
	}
}

func TestEntryIsExpired(t *testing.T) {
	now := time.Now()

	entry := &Entry{ExpiresAt: now.Add(time.Minute)}
	if entry.IsExpired() {
		t.Error("expected entry to not be expired")
	}

	entry.ExpiresAt = now.Add(-time.Minute)
	if !entry.IsExpired() {
		t.Error("expected entry to be expired")
	}

	entry.ExpiresAt = time.Time{}
	if entry.IsExpired() {
		t.Error("expected entry without expiry to never expire")
	}
}

func TestMemoryStoreStopIdempotent(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	s.Stop()
	s.Stop()
	if err := s.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", t.TempDir(), "", 0); err == nil {
		t.Error("expected error for unknown backend")
	}
}
