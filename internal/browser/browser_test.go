package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/retail-session-scraper/internal/session"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if !opts.Headless {
		t.Error("Expected headless to be true by default")
	}

	if opts.Timeout != 30*time.Second {
		t.Errorf("Expected timeout to be 30s, got %v", opts.Timeout)
	}

	if opts.ViewportWidth != 1920 || opts.ViewportHeight != 1080 {
		t.Errorf("Expected viewport to be 1920x1080, got %dx%d", opts.ViewportWidth, opts.ViewportHeight)
	}

	if !opts.Stealth {
		t.Error("Expected stealth to be enabled by default")
	}
}

func TestLaunchArgs(t *testing.T) {
	opts := DefaultOptions()
	opts.ViewportWidth = 1366
	opts.ViewportHeight = 768

	args := opts.launchArgs()

	assert.Contains(t, args, "--disable-blink-features=AutomationControlled")
	assert.Contains(t, args, "--window-size=1366,768")
	assert.Contains(t, args, "--user-agent="+opts.UserAgent)
}

func TestHeadersIncludeAcceptLanguage(t *testing.T) {
	opts := DefaultOptions()
	opts.AcceptLanguage = "de-DE,de;q=0.9"

	headers := opts.headers()

	assert.Equal(t, "de-DE,de;q=0.9", headers["Accept-Language"])
	assert.Equal(t, "1", headers["DNT"])
	_, leaked := opts.ExtraHeaders["Accept-Language"]
	assert.False(t, leaked, "headers must not mutate the options")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantTimeout bool
	}{
		{
			name:        "playwright timeout",
			err:         fmt.Errorf("page.goto: %w", playwright.ErrTimeout),
			wantTimeout: true,
		},
		{
			name:        "other failure",
			err:         errors.New("net::ERR_NAME_NOT_RESOLVED"),
			wantTimeout: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err, 5*time.Second)
			assert.Equal(t, tt.wantTimeout, errors.Is(err, session.ErrNavigationTimeout))
		})
	}
}

func TestLauncherHonoursCancelledContext(t *testing.T) {
	l := NewLauncher(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess, err := l.Launch(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, sess)
}

func TestGotoTimeout(t *testing.T) {
	deadline := time.Now().Add(time.Hour)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		timeout time.Duration
		now     time.Time
		want    time.Duration
		wantErr error
	}{
		{name: "no deadline", ctx: context.Background(), timeout: 90 * time.Second, now: time.Now(), want: 90 * time.Second},
		{name: "deadline further than timeout", ctx: ctx, timeout: 90 * time.Second, now: deadline.Add(-10 * time.Minute), want: 90 * time.Second},
		{name: "deadline closer than timeout", ctx: ctx, timeout: 90 * time.Second, now: deadline.Add(-5 * time.Second), want: 5 * time.Second},
		{name: "exactly one millisecond left", ctx: ctx, timeout: 90 * time.Second, now: deadline.Add(-time.Millisecond), want: time.Millisecond},
		{name: "under a millisecond left", ctx: ctx, timeout: 90 * time.Second, now: deadline.Add(-500 * time.Microsecond), wantErr: session.ErrNavigationTimeout},
		{name: "deadline already passed", ctx: ctx, timeout: 90 * time.Second, now: deadline.Add(time.Second), wantErr: session.ErrNavigationTimeout},
		{name: "zero timeout", ctx: context.Background(), timeout: 0, now: time.Now(), wantErr: session.ErrNavigationTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gotoTimeout(tt.ctx, tt.timeout, tt.now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, milliseconds(got), 1.0)
		})
	}
}

func TestGotoTimeoutCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gotoTimeout(ctx, time.Minute, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMillisecondsNeverTruncatesToZero(t *testing.T) {
	assert.Equal(t, 1.0, milliseconds(300*time.Microsecond))
	assert.Equal(t, 1500.0, milliseconds(1500*time.Millisecond))
	assert.Equal(t, 0.0, milliseconds(0))
}
