package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RateLimiter spaces out page loads so request volume looks human.
type RateLimiter interface {
	// Wait blocks until at least the current delay has passed since the
	// previous Wait returned.
	Wait(ctx context.Context) error
	// Pause always sleeps one jittered delay.
	Pause(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

type Option func(*SimpleRateLimiter)

func WithClock(now func() time.Time) Option {
	return func(r *SimpleRateLimiter) { r.now = now }
}

func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *SimpleRateLimiter) { r.sleep = sleep }
}

func WithRand(rng *rand.Rand) Option {
	return func(r *SimpleRateLimiter) { r.rng = rng }
}

type SimpleRateLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
	jitter     bool

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rng   *rand.Rand
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration, opts ...Option) *SimpleRateLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	r := &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   true,
		now:      time.Now,
		sleep:    sleepContext,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delay := r.calculateDelay()
	if !r.lastAction.IsZero() {
		if elapsed := r.now().Sub(r.lastAction); elapsed < delay {
			if err := r.sleep(ctx, delay-elapsed); err != nil {
				return err
			}
		}
	}

	r.lastAction = r.now()
	return nil
}

func (r *SimpleRateLimiter) Pause(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.sleep(ctx, r.calculateDelay()); err != nil {
		return err
	}

	r.lastAction = r.now()
	return nil
}

func (r *SimpleRateLimiter) SetDelay(min, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if max < min {
		max = min
	}
	r.minDelay = min
	r.maxDelay = max
}

// Delays returns the current bounds.
func (r *SimpleRateLimiter) Delays() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if !r.jitter || r.minDelay >= r.maxDelay {
		return r.minDelay
	}

	delta := r.maxDelay - r.minDelay
	jitter := time.Duration(r.rng.Int63n(int64(delta)))
	return r.minDelay + jitter
}

// AdaptiveRateLimiter widens its delays after a run of failures (blocks,
// timeouts) and slowly narrows them again while loads succeed.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
	floorMin      time.Duration
	floorMax      time.Duration
	ceilingMin    time.Duration
	ceilingMax    time.Duration
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration, opts ...Option) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay, opts...),
		maxErrorCount:     3,
		backoffFactor:     1.5,
		floorMin:          minDelay,
		floorMax:          maxDelay,
		ceilingMin:        60 * time.Second,
		ceilingMax:        120 * time.Second,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < a.floorMin {
			newMin = a.floorMin
		}
		newMax := time.Duration(float64(a.maxDelay) * 0.9)
		if newMax < a.floorMax {
			newMax = a.floorMax
		}
		if newMax < newMin {
			newMax = newMin
		}
		a.minDelay = newMin
		a.maxDelay = newMax
		a.successCount = 0
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		newMin := time.Duration(float64(a.minDelay) * a.backoffFactor)
		newMax := time.Duration(float64(a.maxDelay) * a.backoffFactor)

		if newMin > a.ceilingMin {
			newMin = a.ceilingMin
		}
		if newMax > a.ceilingMax {
			newMax = a.ceilingMax
		}

		a.minDelay = newMin
		a.maxDelay = newMax
		a.errorCount = 0
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
