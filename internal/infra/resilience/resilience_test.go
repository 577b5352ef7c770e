package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paygrid/settlement-engine-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
)

var errRail = errors.New("rail unavailable")

func TestRetrySucceedsFirstTry(t *testing.T) {
	cfg := resilience.Config{MaxRetries: 3, InitialBackoff: 5 * time.Millisecond}

	calls := 0
	err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("RetryWithBackoff: %v", err)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
}

func TestRetryRecoversAfterTransientFailures(t *testing.T) {
	cfg := resilience.Config{MaxRetries: 3, InitialBackoff: 5 * time.Millisecond}

	calls := 0
	err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errRail
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: 5 * time.Millisecond}

	calls := 0
	err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return errRail
	})
	if !errors.Is(err, errRail) {
		t.Fatalf("got %v, want %v", err, errRail)
	}
	if calls != 3 { // initial attempt + 2 retries
		t.Errorf("got %d calls, want 3", calls)
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	cfg := resilience.Config{MaxRetries: 5, InitialBackoff: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := resilience.RetryWithBackoff(ctx, cfg, func() error { return errRail })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestCircuitBreakerTripsOnFailureRatio(t *testing.T) {
	cb := resilience.NewCircuitBreaker("test")

	for i := 0; i < 5; i++ {
		cb.Execute(func() (any, error) { return nil, errRail })
	}

	_, err := cb.Execute(func() (any, error) { return nil, nil })
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("got %v, want breaker open", err)
	}
}

func TestBulkheadLimitsConcurrency(t *testing.T) {
	bh := resilience.NewBulkhead(2)

	if err := bh.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := bh.Acquire(context.Background()); err != nil {
		t.Fatalf("second acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := bh.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("third acquire: got %v, want deadline exceeded", err)
	}

	bh.Release()
	if err := bh.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}
