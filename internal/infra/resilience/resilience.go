// Package resilience wraps calls to the bank rail with retry,
// circuit breaking, and a concurrency bulkhead.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

// Config controls retry and bulkhead behavior for outbound calls.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int
}

// RetryWithBackoff runs fn up to MaxRetries+1 times, doubling the
// backoff after each failure and adding up to 50% jitter. It returns
// early if ctx is cancelled, and the last error otherwise.
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	delay := cfg.InitialBackoff
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries {
			return lastErr
		}

		wait := delay
		if delay > 0 {
			wait += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
}

// NewCircuitBreaker returns a breaker tuned for the bank rail: it
// trips when at least 5 requests in a 30s window fail 60% of the
// time, and probes with 3 requests after 10s open.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && ratio >= 0.6
		},
	})
}

// Bulkhead caps the number of in-flight calls to a downstream.
type Bulkhead struct {
	slots chan struct{}
}

// NewBulkhead returns a bulkhead allowing maxConcurrency in-flight calls.
func NewBulkhead(maxConcurrency int) *Bulkhead {
	return &Bulkhead{slots: make(chan struct{}, maxConcurrency)}
}

// Acquire blocks until a slot is free or ctx is done.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (b *Bulkhead) Release() {
	<-b.slots
}
