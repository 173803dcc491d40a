// Package app assembles the scraper stack from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/retail-session-scraper/internal/browser"
	"github.com/maltedev/retail-session-scraper/internal/config"
	"github.com/maltedev/retail-session-scraper/internal/events"
	"github.com/maltedev/retail-session-scraper/internal/parser"
	"github.com/maltedev/retail-session-scraper/internal/ratelimit"
	"github.com/maltedev/retail-session-scraper/internal/scraper"
	"github.com/maltedev/retail-session-scraper/internal/session"
)

// App owns the service and everything it needs to shut down.
type App struct {
	Service   *scraper.Service
	publisher *events.StreamPublisher
	logger    *slog.Logger
}

// New wires browser, session, parser and pacing into a service. No browser
// is started until the first operation. The product stream is attached only
// when a Redis address is configured.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	return newApp(ctx, cfg, browser.NewLauncher(cfg.BrowserOptions(), logger), logger)
}

func newApp(ctx context.Context, cfg *config.Config, launcher session.Launcher, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	site := scraper.DefaultSite()
	site.BaseURL = cfg.Site.BaseURL

	extractor, err := parser.NewHTMLExtractor(parser.DefaultSelectors(), site.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to build extractor: %w", err)
	}

	controller := session.New(launcher, cfg.SessionConfig(site.HomeURL()), logger)
	limiter := ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax)

	opts := []scraper.Option{scraper.WithRateLimiter(limiter)}

	a := &App{logger: logger}
	if cfg.Redis.Addr != "" {
		client, err := events.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.publisher = events.NewStreamPublisher(client, cfg.Redis.Stream, cfg.Redis.MaxLen, logger)
		opts = append(opts, scraper.WithEventSink(a.publisher))
		logger.Info("publishing products", "redis", cfg.Redis.Addr, "stream", cfg.Redis.Stream)
	}

	a.Service = scraper.NewService(controller, site, extractor, logger, opts...)

	logger.Info("scraper ready",
		"policy", controller.Policy(),
		"site", site.BaseURL,
		"headless", cfg.Browser.Headless)

	return a, nil
}

// Close releases the browser session and the stream connection.
func (a *App) Close() error {
	var errs []error
	if err := a.Service.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close session: %w", err))
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close publisher: %w", err))
		}
	}
	return errors.Join(errs...)
}
