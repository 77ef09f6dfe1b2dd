package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyStore fails the first failures calls of every operation with err.
type flakyStore struct {
	*MemoryStore
	failures int
	err      error
	calls    int
}

func (s *flakyStore) Put(ctx context.Context, hash, content string) error {
	s.calls++
	if s.calls <= s.failures {
		return s.err
	}
	return s.MemoryStore.Put(ctx, hash, content)
}

func (s *flakyStore) Get(ctx context.Context, hash string) (string, bool, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", false, s.err
	}
	return s.MemoryStore.Get(ctx, hash)
}

func testResilience() ResilienceConfig {
	return ResilienceConfig{
		MaxRetries:       3,
		BaseDelay:        time.Millisecond,
		MaxDelay:         5 * time.Millisecond,
		Multiplier:       2.0,
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      50 * time.Millisecond,
		FailureWindow:    time.Minute,
	}
}

func TestResilientRetriesTransientErrors(t *testing.T) {
	flaky := &flakyStore{MemoryStore: NewMemoryStore(0), failures: 2, err: errors.New("database is locked")}
	cfg := testResilience()
	cfg.FailureThreshold = 10
	r := NewResilient(flaky, cfg, nil)
	ctx := context.Background()

	if err := r.Put(ctx, "h1", "frag"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if flaky.calls != 3 {
		t.Errorf("expected 3 calls (2 failures + success), got %d", flaky.calls)
	}

	content, found, err := r.Get(ctx, "h1")
	if err != nil || !found || content != "frag" {
		t.Errorf("Get = (%q, %v, %v), want (frag, true, nil)", content, found, err)
	}
}

func TestResilientDoesNotRetryPermanentErrors(t *testing.T) {
	flaky := &flakyStore{MemoryStore: NewMemoryStore(0), failures: 10, err: errors.New("invalid hash")}
	r := NewResilient(flaky, testResilience(), nil)

	if err := r.Put(context.Background(), "h1", "frag"); err == nil {
		t.Fatal("expected error")
	}
	if flaky.calls != 1 {
		t.Errorf("expected 1 call, got %d", flaky.calls)
	}
	if r.State() != CircuitClosed {
		t.Errorf("permanent errors must not open the circuit, got %v", r.State())
	}
}

func TestResilientGivesUpAfterMaxRetries(t *testing.T) {
	flaky := &flakyStore{MemoryStore: NewMemoryStore(0), failures: 100, err: errors.New("connection refused")}
	cfg := testResilience()
	cfg.FailureThreshold = 100
	r := NewResilient(flaky, cfg, nil)

	err := r.Put(context.Background(), "h1", "frag")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, flaky.err) {
		t.Errorf("expected the last backend error to be wrapped, got %v", err)
	}
	if flaky.calls != cfg.MaxRetries+1 {
		t.Errorf("expected %d calls, got %d", cfg.MaxRetries+1, flaky.calls)
	}
}

func TestResilientCircuitOpensAndRecovers(t *testing.T) {
	flaky := &flakyStore{MemoryStore: NewMemoryStore(0), failures: 3, err: errors.New("connection reset by peer")}
	cfg := testResilience()
	cfg.MaxRetries = 0
	r := NewResilient(flaky, cfg, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = r.Put(ctx, "h1", "frag")
	}
	if r.State() != CircuitOpen {
		t.Fatalf("expected circuit to be open, got %v", r.State())
	}

	calls := flaky.calls
	if err := r.Put(ctx, "h1", "frag"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if flaky.calls != calls {
		t.Error("backend must not be called while the circuit is open")
	}

	time.Sleep(60 * time.Millisecond)
	for i := 0; i < cfg.SuccessThreshold; i++ {
		if err := r.Put(ctx, "h1", "frag"); err != nil {
			t.Fatalf("trial call %d failed: %v", i, err)
		}
	}
	if r.State() != CircuitClosed {
		t.Errorf("expected circuit to close after successful trial calls, got %v", r.State())
	}
}

func TestResilientHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResilient(NewMemoryStore(0), testResilience(), nil)
	if err := r.Put(ctx, "h1", "frag"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCircuitStateString(t *testing.T) {
	for state, want := range map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(42): "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
