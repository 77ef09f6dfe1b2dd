package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/livetemplate/blockpage/internal/logging"
)

// ResilienceConfig configures retries and the circuit breaker of a
// Resilient store.
type ResilienceConfig struct {
	MaxRetries int           // Retry attempts after the first (default: 2)
	BaseDelay  time.Duration // Initial delay between retries (default: 50ms)
	MaxDelay   time.Duration // Maximum delay between retries (default: 1s)
	Multiplier float64       // Delay multiplier for exponential backoff (default: 2.0)

	FailureThreshold int           // Failures inside FailureWindow that open the circuit (default: 5)
	SuccessThreshold int           // Successes in half-open that close it (default: 2)
	OpenTimeout      time.Duration // Time before an open circuit lets a trial call through (default: 30s)
	FailureWindow    time.Duration // Window to count failures (default: 1 minute)
}

// DefaultResilienceConfig returns the configuration used for the SQL
// backends.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxRetries:       2,
		BaseDelay:        50 * time.Millisecond,
		MaxDelay:         time.Second,
		Multiplier:       2.0,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		FailureWindow:    time.Minute,
	}
}

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation, requests allowed
	CircuitOpen                         // Failures exceeded threshold, requests blocked
	CircuitHalfOpen                     // Testing if the backend recovered
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without touching the backend while the
// circuit is open.
var ErrCircuitOpen = errors.New("fragment cache unavailable (circuit open)")

// Resilient wraps a Store with retries for transient failures and a
// circuit breaker. While the circuit is open every call fails fast, so a
// compile pass that lost its cache backend recompiles instead of waiting
// on it.
type Resilient struct {
	store  Store
	cfg    ResilienceConfig
	logger *slog.Logger

	mu              sync.Mutex
	state           CircuitState
	failures        []time.Time // Recent failure timestamps
	successes       int         // Consecutive successes in half-open state
	lastStateChange time.Time
}

// NewResilient wraps store.
func NewResilient(store Store, cfg ResilienceConfig, logger *slog.Logger) *Resilient {
	return &Resilient{
		store:           store,
		cfg:             cfg,
		logger:          logging.OrDiscard(logger),
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

func (r *Resilient) Get(ctx context.Context, hash string) (string, bool, error) {
	var content string
	var found bool
	err := r.do(ctx, "get", func(ctx context.Context) error {
		var err error
		content, found, err = r.store.Get(ctx, hash)
		return err
	})
	return content, found, err
}

func (r *Resilient) Exists(ctx context.Context, hash string) (bool, error) {
	var found bool
	err := r.do(ctx, "exists", func(ctx context.Context) error {
		var err error
		found, err = r.store.Exists(ctx, hash)
		return err
	})
	return found, err
}

func (r *Resilient) Put(ctx context.Context, hash, content string) error {
	return r.do(ctx, "put", func(ctx context.Context) error {
		return r.store.Put(ctx, hash, content)
	})
}

func (r *Resilient) Delete(ctx context.Context, hash string) error {
	return r.do(ctx, "delete", func(ctx context.Context) error {
		return r.store.Delete(ctx, hash)
	})
}

func (r *Resilient) Flush(ctx context.Context) error {
	return r.do(ctx, "flush", func(ctx context.Context) error {
		return r.store.Flush(ctx)
	})
}

// Close closes the wrapped store when it holds resources.
func (r *Resilient) Close() error {
	if c, ok := r.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// State returns the current circuit state
func (r *Resilient) State() CircuitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Reset forces the circuit breaker to closed state
func (r *Resilient) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = CircuitClosed
	r.failures = r.failures[:0]
	r.successes = 0
	r.lastStateChange = time.Now()
}

// do runs fn through the circuit breaker, retrying transient failures with
// exponential backoff.
func (r *Resilient) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.canExecute() {
			return ErrCircuitOpen
		}

		err := fn(ctx)
		r.recordResult(err)
		if err == nil {
			if attempt > 0 {
				r.logger.Debug("cache operation succeeded after retry", "op", op, "attempt", attempt+1)
			}
			return nil
		}
		lastErr = err

		if !isTransient(err) {
			return err
		}
		if attempt < r.cfg.MaxRetries {
			delay := r.delay(attempt)
			r.logger.Debug("cache operation failed, retrying", "op", op, "attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("cache %s failed after %d attempts: %w", op, r.cfg.MaxRetries+1, lastErr)
}

// delay computes the backoff for attempt with jitter.
func (r *Resilient) delay(attempt int) time.Duration {
	d := float64(r.cfg.BaseDelay) * math.Pow(r.cfg.Multiplier, float64(attempt))
	if d > float64(r.cfg.MaxDelay) {
		d = float64(r.cfg.MaxDelay)
	}
	// 80% to 120% of the delay.
	d *= 0.8 + rand.Float64()*0.4
	return time.Duration(d)
}

func (r *Resilient) canExecute() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case CircuitOpen:
		if time.Since(r.lastStateChange) >= r.cfg.OpenTimeout {
			r.transitionTo(CircuitHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (r *Resilient) recordResult(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case err == nil:
		r.recordSuccess()
	case isTransient(err):
		// Only backend trouble counts; a bad hash does not.
		r.recordFailure(time.Now())
	}
}

func (r *Resilient) recordSuccess() {
	switch r.state {
	case CircuitHalfOpen:
		r.successes++
		if r.successes >= r.cfg.SuccessThreshold {
			r.transitionTo(CircuitClosed)
		}
	case CircuitClosed:
		r.failures = r.failures[:0]
	}
}

func (r *Resilient) recordFailure(now time.Time) {
	r.failures = append(r.failures, now)

	cutoff := now.Add(-r.cfg.FailureWindow)
	recent := r.failures[:0]
	for _, t := range r.failures {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	r.failures = recent

	switch r.state {
	case CircuitClosed:
		if len(r.failures) >= r.cfg.FailureThreshold {
			r.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		r.transitionTo(CircuitOpen)
	}
}

func (r *Resilient) transitionTo(state CircuitState) {
	if r.state == state {
		return
	}
	old := r.state
	r.state = state
	r.lastStateChange = time.Now()
	r.successes = 0
	r.logger.Warn("fragment cache circuit changed", "from", old.String(), "to", state.String())
}

// isTransient reports whether err looks like a backend hiccup worth
// retrying.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"database is locked",
		"busy",
		"too many connections",
		"try again",
		"bad connection",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
