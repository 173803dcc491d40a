package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/maltedev/retail-session-scraper/internal/session"
	"github.com/maltedev/retail-session-scraper/internal/session/sessiontest"
)

const (
	homeURL   = "https://shop.test/"
	targetURL = "https://shop.test/product/123"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func newController(t *testing.T, l *sessiontest.Launcher, policy session.Policy, clock *fakeClock, mutate ...func(*session.Config)) *session.Controller {
	t.Helper()

	cfg := session.DefaultConfig()
	cfg.Policy = policy
	cfg.WarmupURL = homeURL
	cfg.FreshnessWindow = 10 * time.Minute

	for _, m := range mutate {
		m(&cfg)
	}

	if clock == nil {
		clock = &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	}

	c := session.New(l, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)),
		session.WithClock(clock.Now),
		session.WithSleeper(noSleep),
		session.WithRand(rand.New(rand.NewSource(1))),
	)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestControllerCloseIsIdempotent(t *testing.T) {
	l := sessiontest.NewLauncher()
	c := newController(t, l, session.PolicyPersistent, nil)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Visit(context.Background(), targetURL, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Live())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 0, l.Live())
	assert.Equal(t, session.StateUninitialized, c.State())
}

func TestControllerFreshnessWindow(t *testing.T) {
	l := sessiontest.NewLauncher()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newController(t, l, session.PolicyPersistent, clock)
	ctx := context.Background()

	_, err := c.Visit(ctx, targetURL, nil)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = c.Visit(ctx, targetURL, nil)
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Launches)
	assert.Equal(t, 1, stats.Warmups, "calls inside the window must reuse the warm session")
	assert.Equal(t, 1, l.Visits(homeURL))

	clock.Advance(10 * time.Minute)
	_, err = c.Visit(ctx, targetURL, nil)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = c.Visit(ctx, targetURL, nil)
	require.NoError(t, err)

	stats = c.Stats()
	assert.Equal(t, 1, stats.Launches)
	assert.Equal(t, 2, stats.Warmups, "crossing the window boundary re-warms exactly once")
	assert.Equal(t, 2, l.Visits(homeURL))
	assert.Equal(t, 4, l.Visits(targetURL))
	assert.Equal(t, session.StateReady, c.State())
}

func TestControllerRecoversFromBlock(t *testing.T) {
	l := sessiontest.NewLauncher().Route(targetURL,
		sessiontest.Response{Title: "Robot Check"},
		sessiontest.Response{Title: "Blue Kettle 1.7L"},
	)
	c := newController(t, l, session.PolicyPersistent, nil)

	var seen string
	result, err := c.Visit(context.Background(), targetURL, func(p session.Page) error {
		seen, _ = p.Title()
		return nil
	})
	require.NoError(t, err)

	assert.False(t, result.Blocked)
	assert.Equal(t, "Blue Kettle 1.7L", result.Title)
	assert.Equal(t, "Blue Kettle 1.7L", seen)
	assert.Equal(t, targetURL, result.FinalURL)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Launches, "recovery uses a fresh identity")
	assert.Equal(t, 2, stats.Warmups, "recovery bypasses the freshness window")
	assert.Equal(t, 1, stats.Blocks)
	assert.Equal(t, 1, l.Live())
	assert.Equal(t, 1, l.MaxLive())
}

func TestControllerFatalBlock(t *testing.T) {
	l := sessiontest.NewLauncher().Route(targetURL, sessiontest.Response{Title: "Access Denied"})
	c := newController(t, l, session.PolicyPersistent, nil)

	called := false
	result, err := c.Visit(context.Background(), targetURL, func(session.Page) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrBlocked)
	assert.NotErrorIs(t, err, session.ErrNavigationTimeout)
	assert.True(t, result.Blocked)
	assert.False(t, called)
	assert.Equal(t, session.StateFatal, c.State())
	assert.Equal(t, 0, l.Live(), "a fatally blocked session is destroyed")
	assert.Equal(t, 2, l.Visits(targetURL), "exactly one retry")

	require.NoError(t, c.Close())
	assert.Equal(t, session.StateUninitialized, c.State())
}

func TestControllerTimeoutIsDistinct(t *testing.T) {
	l := sessiontest.NewLauncher().Route(targetURL, sessiontest.Timeout())
	c := newController(t, l, session.PolicyPersistent, nil)

	_, err := c.Visit(context.Background(), targetURL, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrNavigationTimeout)
	assert.NotErrorIs(t, err, session.ErrBlocked)
	assert.Equal(t, 1, l.Live(), "persistent policy keeps the browser after a timeout")
	assert.Equal(t, session.StateReady, c.State())
}

func TestControllerRelaunchesAfterBrowserCrash(t *testing.T) {
	crashed := errors.New("target page, context or browser has been closed")
	l := sessiontest.NewLauncher().
		Route(targetURL,
			sessiontest.Response{Title: "Blue Kettle"},
			sessiontest.Response{Err: crashed},
			sessiontest.Response{Title: "Blue Kettle"})
	c := newController(t, l, session.PolicyPersistent, nil)
	ctx := context.Background()

	_, err := c.Visit(ctx, targetURL, nil)
	require.NoError(t, err)

	_, err = c.Visit(ctx, targetURL, nil)
	require.ErrorIs(t, err, crashed)
	assert.Equal(t, 0, l.Live(), "a session that failed to navigate is closed")
	assert.Equal(t, session.StateUninitialized, c.State())

	result, err := c.Visit(ctx, targetURL, nil)
	require.NoError(t, err)
	assert.Equal(t, "Blue Kettle", result.Title)
	assert.Equal(t, 2, l.Launches())
	assert.Equal(t, 1, l.Live())
	assert.Equal(t, 2, c.Stats().Warmups)

	require.NoError(t, c.Close())
}

func TestControllerPerOperationReleasesOnEveryPath(t *testing.T) {
	const (
		okURL      = "https://shop.test/ok"
		blockedURL = "https://shop.test/blocked"
		slowURL    = "https://shop.test/slow"
	)

	l := sessiontest.NewLauncher().
		Route(okURL, sessiontest.Response{Title: "Catalog"}).
		Route(blockedURL, sessiontest.Response{Title: "Just a moment..."}).
		Route(slowURL, sessiontest.Timeout())
	c := newController(t, l, session.PolicyPerOperation, nil)
	ctx := context.Background()

	_, err := c.Visit(ctx, okURL, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Live())
	assert.Equal(t, session.StateUninitialized, c.State())

	_, err = c.Visit(ctx, blockedURL, nil)
	assert.ErrorIs(t, err, session.ErrBlocked)
	assert.Equal(t, 0, l.Live())

	_, err = c.Visit(ctx, slowURL, nil)
	assert.ErrorIs(t, err, session.ErrNavigationTimeout)
	assert.Equal(t, 0, l.Live())

	fnErr := errors.New("extract failed")
	_, err = c.Visit(ctx, okURL, func(session.Page) error { return fnErr })
	assert.ErrorIs(t, err, fnErr)
	assert.Equal(t, 0, l.Live())

	assert.Equal(t, 1, l.MaxLive(), "never more than one browser per controller")
	assert.Equal(t, 5, l.Launches(), "one launch per operation plus one for the recovery")
}

func TestControllerLaunchFailurePropagates(t *testing.T) {
	attempts := 0
	l := sessiontest.NewLauncher().FailLaunch(func(int) error {
		attempts++
		return errors.New("chromium not installed")
	})
	c := newController(t, l, session.PolicyPersistent, nil)

	_, err := c.Visit(context.Background(), targetURL, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chromium not installed")
	assert.Equal(t, 1, attempts, "launch failures are not retried")
	assert.Equal(t, session.StateUninitialized, c.State())
}

func TestControllerPassesInterstitial(t *testing.T) {
	l := sessiontest.NewLauncher().
		Route(targetURL, sessiontest.Response{Title: "Tut uns Leid!"}).
		OnClick("#continue", sessiontest.Response{Title: "Blue Kettle"})
	c := newController(t, l, session.PolicyPersistent, nil, func(cfg *session.Config) {
		cfg.InterstitialSelectors = []string{"#continue"}
	})

	result, err := c.Visit(context.Background(), targetURL, nil)

	require.NoError(t, err)
	assert.False(t, result.Blocked)
	assert.Equal(t, "Blue Kettle", result.Title)
	assert.Equal(t, 1, c.Stats().Launches)
	assert.Equal(t, []string{"click:#continue"}, l.Actions())
}

func TestControllerHonoursCancellation(t *testing.T) {
	l := sessiontest.NewLauncher()
	c := newController(t, l, session.PolicyPerOperation, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Visit(ctx, targetURL, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, l.Live())
}
