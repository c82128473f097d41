// Package retry provides the reconnect policy shared by the stream and
// socket ingress components: a monotonically increasing attempt counter
// with linear backoff capped at a maximum delay.
package retry

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultStep is the per-attempt backoff increment.
	DefaultStep = 1500 * time.Millisecond

	// DefaultMax caps the delay between attempts.
	DefaultMax = 30 * time.Second
)

// Policy computes reconnect delays. The attempt counter only grows for the
// lifetime of a connection attempt series; Reset is called on explicit
// stop, never on a successful read (a half-working link that flaps should
// keep backing off).
type Policy struct {
	step time.Duration
	max  time.Duration

	mu      sync.Mutex
	attempt int
}

// NewPolicy creates a policy with the default step and cap.
func NewPolicy() *Policy {
	return &Policy{step: DefaultStep, max: DefaultMax}
}

// NewPolicyWith creates a policy with explicit tuning. Zero values fall
// back to the defaults.
func NewPolicyWith(step, max time.Duration) *Policy {
	if step <= 0 {
		step = DefaultStep
	}
	if max <= 0 {
		max = DefaultMax
	}
	return &Policy{step: step, max: max}
}

// Next increments the attempt counter and returns the delay before the
// next attempt: min(max, attempt × step).
func (p *Policy) Next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempt++
	delay := time.Duration(p.attempt) * p.step
	if delay > p.max {
		delay = p.max
	}
	return delay
}

// Attempt returns the number of attempts made so far.
func (p *Policy) Attempt() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempt
}

// Reset zeroes the attempt counter.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempt = 0
}

// Wait blocks for the next backoff delay or until the context is done.
// Returns the context error on cancellation, nil after a full wait.
func (p *Policy) Wait(ctx context.Context) error {
	delay := p.Next()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
