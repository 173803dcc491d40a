package ratelimit

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	now    time.Time
	sleeps []time.Duration
}

func (r *recorder) Now() time.Time { return r.now }

func (r *recorder) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.sleeps = append(r.sleeps, d)
	r.now = r.now.Add(d)
	return nil
}

func newRecorded(min, max time.Duration) (*SimpleRateLimiter, *recorder) {
	rec := &recorder{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewSimpleRateLimiter(min, max,
		WithClock(rec.Now),
		WithSleeper(rec.Sleep),
		WithRand(rand.New(rand.NewSource(7))),
	)
	return l, rec
}

func TestWaitSpacesConsecutiveCalls(t *testing.T) {
	l, rec := newRecorded(2*time.Second, 2*time.Second)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	assert.Empty(t, rec.sleeps, "the first call never waits")

	rec.now = rec.now.Add(500 * time.Millisecond)
	require.NoError(t, l.Wait(ctx))
	require.Len(t, rec.sleeps, 1)
	assert.Equal(t, 1500*time.Millisecond, rec.sleeps[0])

	rec.now = rec.now.Add(5 * time.Second)
	require.NoError(t, l.Wait(ctx))
	assert.Len(t, rec.sleeps, 1, "no wait once the delay has passed")
}

func TestPauseJittersWithinBounds(t *testing.T) {
	l, rec := newRecorded(time.Second, 3*time.Second)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Pause(ctx))
	}

	require.Len(t, rec.sleeps, 20)
	for _, d := range rec.sleeps {
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 3*time.Second)
	}
}

func TestPauseHonoursCancellation(t *testing.T) {
	l, _ := newRecorded(time.Second, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Pause(ctx), context.Canceled)
}

func TestSetDelayNormalisesBounds(t *testing.T) {
	l, _ := newRecorded(time.Second, 2*time.Second)

	l.SetDelay(5*time.Second, time.Second)
	min, max := l.Delays()
	assert.Equal(t, 5*time.Second, min)
	assert.Equal(t, 5*time.Second, max)
}

func TestAdaptiveBacksOffAndRecovers(t *testing.T) {
	a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)

	a.RecordError()
	a.RecordError()
	min, max := a.Delays()
	assert.Equal(t, 2*time.Second, min, "backoff needs a run of errors")
	assert.Equal(t, 4*time.Second, max)

	a.RecordError()
	min, max = a.Delays()
	assert.Equal(t, 3*time.Second, min)
	assert.Equal(t, 6*time.Second, max)

	for i := 0; i < 6; i++ {
		a.RecordSuccess()
	}
	min, max = a.Delays()
	assert.Equal(t, 2700*time.Millisecond, min)
	assert.Equal(t, 5400*time.Millisecond, max)

	for i := 0; i < 60; i++ {
		a.RecordSuccess()
	}
	min, max = a.Delays()
	assert.Equal(t, 2*time.Second, min, "never faster than the configured minimum")
	assert.Equal(t, 4*time.Second, max, "the upper bound returns to its configured value")
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
