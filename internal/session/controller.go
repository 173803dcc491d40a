package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Config tunes the controller's evasion protocol.
type Config struct {
	Policy Policy

	// WarmupURL is the trust-building page visited before any target.
	WarmupURL string

	// FreshnessWindow is how long a warm-up stays valid under PolicyPersistent.
	FreshnessWindow time.Duration

	// SettleDelay is the time spent interacting with the warm-up page.
	SettleDelay time.Duration

	// NavigationTimeout bounds a single page load.
	NavigationTimeout time.Duration

	// RenderDelay is waited after each navigation so dynamic content can render.
	RenderDelay time.Duration

	Signatures BlockSignatures

	// InterstitialSelectors are "continue" buttons clicked once before a
	// page is treated as blocked.
	InterstitialSelectors []string
}

func DefaultConfig() Config {
	return Config{
		Policy:            PolicyPersistent,
		FreshnessWindow:   10 * time.Minute,
		SettleDelay:       5 * time.Second,
		NavigationTimeout: 90 * time.Second,
		RenderDelay:       2 * time.Second,
		Signatures:        DefaultBlockSignatures(),
	}
}

// Stats is a snapshot of the controller's counters.
type Stats struct {
	State    State `json:"-"`
	Launches int   `json:"launches"`
	Warmups  int   `json:"warmups"`
	Blocks   int   `json:"blocks"`
	Active   bool  `json:"active"`
}

// Option customises a Controller.
type Option func(*Controller)

// WithClock replaces time.Now, used to evaluate the freshness window.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSleeper replaces the context-aware sleep used for every fixed delay.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = sleep }
}

// WithRand seeds the interaction randomness.
func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) { c.rng = rng }
}

// Controller holds at most one session and runs every navigation through the
// warm-up, block-detection and recovery protocol. Operations are serialized;
// use one Controller per concurrent task.
type Controller struct {
	launcher Launcher
	cfg      Config
	logger   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rng   *rand.Rand

	mu       sync.Mutex
	state    State
	sess     Session
	lastWarm time.Time
	stats    Stats
}

func New(launcher Launcher, cfg Config, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyPersistent
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 90 * time.Second
	}

	c := &Controller{
		launcher: launcher,
		cfg:      cfg,
		logger:   logger.With("component", "session_controller", "policy", string(cfg.Policy)),
		now:      time.Now,
		sleep:    sleepContext,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		state:    StateUninitialized,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Policy returns the lifecycle policy the controller runs under.
func (c *Controller) Policy() Policy {
	return c.cfg.Policy
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.State = c.state
	s.Active = c.sess != nil
	return s
}

// Visit navigates to target through the protocol and, once the page is
// clear of block signatures, hands it to fn for extraction. Errors from fn
// are returned as is. Under PolicyPerOperation the session is released
// before Visit returns, whatever the outcome.
func (c *Controller) Visit(ctx context.Context, target string, fn func(Page) error) (NavigationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Policy == PolicyPerOperation {
		defer c.release()
	}

	if err := c.prepare(ctx, false); err != nil {
		c.settle()
		return NavigationResult{}, err
	}

	result, err := c.navigate(ctx, target)
	if err != nil {
		c.afterNavigationError(ctx, err)
		return result, err
	}

	if result.Blocked {
		result, err = c.recoverFrom(ctx, target, result)
		if err != nil {
			return result, err
		}
	}

	c.state = StateReady

	if fn == nil {
		return result, nil
	}

	return result, fn(c.sess.Page())
}

// Close releases the browser. It is safe to call repeatedly and without a
// live session.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.release()
	c.state = StateUninitialized
	return err
}

// prepare makes sure a warmed session is available. force discards the
// current identity and warms a brand-new one.
func (c *Controller) prepare(ctx context.Context, force bool) error {
	if force || c.cfg.Policy == PolicyPerOperation {
		if err := c.release(); err != nil {
			c.logger.Warn("failed to release session", "error", err)
		}
	}

	if c.sess == nil {
		if err := c.acquire(ctx); err != nil {
			return err
		}
		return c.warm(ctx)
	}

	if c.now().Sub(c.lastWarm) >= c.cfg.FreshnessWindow {
		c.logger.Info("warm-up expired, re-warming", "last_warmup", c.lastWarm)
		return c.warm(ctx)
	}

	return nil
}

func (c *Controller) acquire(ctx context.Context) error {
	sess, err := c.launcher.Launch(ctx)
	if err != nil {
		c.state = StateUninitialized
		return fmt.Errorf("failed to launch browser session: %w", err)
	}

	c.sess = sess
	c.stats.Launches++
	metricSessionsLaunched.Inc()
	metricSessionsActive.Inc()

	c.logger.Info("session launched", "session_id", sess.ID())
	return nil
}

func (c *Controller) release() error {
	if c.sess == nil {
		if c.state != StateFatal {
			c.state = StateUninitialized
		}
		return nil
	}

	id := c.sess.ID()
	err := c.sess.Close()
	c.sess = nil
	c.lastWarm = time.Time{}
	metricSessionsActive.Dec()

	if c.state != StateFatal {
		c.state = StateUninitialized
	}

	if err != nil {
		return fmt.Errorf("failed to close session %s: %w", id, err)
	}

	c.logger.Info("session released", "session_id", id)
	return nil
}

// warm visits the warm-up page and interacts with it for the settle delay.
// A failed warm-up visit is logged; only cancellation aborts it.
func (c *Controller) warm(ctx context.Context) error {
	c.state = StateWarming
	page := c.sess.Page()

	if c.cfg.WarmupURL != "" {
		c.logger.Debug("warming up", "url", c.cfg.WarmupURL)
		if err := page.Goto(ctx, c.cfg.WarmupURL, c.cfg.NavigationTimeout); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.logger.Warn("warm-up navigation failed", "url", c.cfg.WarmupURL, "error", err)
		}
	}

	if err := c.humanize(ctx, page, c.cfg.SettleDelay); err != nil {
		return err
	}

	c.lastWarm = c.now()
	c.stats.Warmups++
	metricWarmups.Inc()
	c.state = StateReady

	return nil
}

func (c *Controller) navigate(ctx context.Context, target string) (NavigationResult, error) {
	c.state = StateNavigating
	page := c.sess.Page()

	if err := page.Goto(ctx, target, c.cfg.NavigationTimeout); err != nil {
		outcome := "error"
		if errors.Is(err, ErrNavigationTimeout) {
			outcome = "timeout"
		}
		recordNavigation(outcome)
		return NavigationResult{}, fmt.Errorf("failed to navigate to %s: %w", target, err)
	}

	if err := c.sleep(ctx, c.cfg.RenderDelay); err != nil {
		return NavigationResult{}, err
	}

	result, err := c.inspect(page)
	if err != nil {
		recordNavigation("error")
		return result, err
	}

	if result.Blocked && len(c.cfg.InterstitialSelectors) > 0 {
		result, err = c.passInterstitial(ctx, page, result)
		if err != nil {
			return result, err
		}
	}

	if result.Blocked {
		recordNavigation("blocked")
	} else {
		recordNavigation("ok")
	}

	return result, nil
}

func (c *Controller) inspect(page Page) (NavigationResult, error) {
	title, err := page.Title()
	if err != nil {
		return NavigationResult{}, fmt.Errorf("failed to get page title: %w", err)
	}

	result := NavigationResult{FinalURL: page.URL(), Title: title}

	var content string
	if len(c.cfg.Signatures.Content) > 0 {
		if content, err = page.Content(); err != nil {
			c.logger.Debug("failed to read content for block check", "error", err)
		}
	}

	if sig, blocked := c.cfg.Signatures.Match(title, content); blocked {
		c.logger.Warn("block signature detected", "url", result.FinalURL, "title", title, "signature", sig)
		result.Blocked = true
	}

	return result, nil
}

// passInterstitial clicks the first matching "continue" button and
// re-inspects the page.
func (c *Controller) passInterstitial(ctx context.Context, page Page, result NavigationResult) (NavigationResult, error) {
	for _, selector := range c.cfg.InterstitialSelectors {
		if err := page.Click(selector, 3*time.Second); err != nil {
			continue
		}

		c.logger.Info("clicked interstitial button", "selector", selector)
		if err := c.sleep(ctx, c.cfg.RenderDelay); err != nil {
			return result, err
		}

		return c.inspect(page)
	}

	return result, nil
}

// recoverFrom replaces the flagged session with a freshly warmed one and
// retries the target once.
func (c *Controller) recoverFrom(ctx context.Context, target string, blocked NavigationResult) (NavigationResult, error) {
	c.state = StateBlockDetected
	c.stats.Blocks++

	c.logger.Info("recovering from block", "url", target, "title", blocked.Title)
	c.state = StateRecovering

	if err := c.prepare(ctx, true); err != nil {
		return blocked, err
	}

	result, err := c.navigate(ctx, target)
	if err != nil {
		c.afterNavigationError(ctx, err)
		return result, err
	}

	if result.Blocked {
		recordBlock("fatal")
		c.state = StateFatal
		if err := c.release(); err != nil {
			c.logger.Warn("failed to release blocked session", "error", err)
		}
		return result, fmt.Errorf("%w: %s (title %q)", ErrBlocked, target, result.Title)
	}

	recordBlock("recovered")
	c.logger.Info("recovered from block", "url", target)
	return result, nil
}

// afterNavigationError keeps the session after a timeout or cancellation.
// Any other failure means the page or browser is gone, so the session is
// released and the next operation launches a new one.
func (c *Controller) afterNavigationError(ctx context.Context, err error) {
	if errors.Is(err, ErrNavigationTimeout) || ctx.Err() != nil {
		c.settle()
		return
	}

	c.logger.Warn("discarding session after navigation failure", "error", err)
	if rerr := c.release(); rerr != nil {
		c.logger.Warn("failed to release session", "error", rerr)
	}
}

// settle returns the controller to Ready after a failed navigation when the
// session survives it.
func (c *Controller) settle() {
	if c.sess != nil {
		c.state = StateReady
	}
}
