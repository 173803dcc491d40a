package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/retail-session-scraper/internal/models"
	"github.com/maltedev/retail-session-scraper/internal/parser"
	"github.com/maltedev/retail-session-scraper/internal/ratelimit"
	"github.com/maltedev/retail-session-scraper/internal/session"
)

const interactionTimeout = 5 * time.Second

type Option func(*Service)

// WithRateLimiter replaces the pacing between page loads.
func WithRateLimiter(l *ratelimit.AdaptiveRateLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithEventSink publishes every product fetched.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.sink = sink }
}

// Service exposes the shop operations on top of one session navigator.
// Like the navigator, it serves one caller at a time.
type Service struct {
	nav       Navigator
	site      *Site
	extractor Extractor
	limiter   *ratelimit.AdaptiveRateLimiter
	sink      EventSink
	logger    *slog.Logger
}

func NewService(nav Navigator, site *Site, extractor Extractor, logger *slog.Logger, opts ...Option) *Service {
	if site == nil {
		site = DefaultSite()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		nav:       nav,
		site:      site,
		extractor: extractor,
		limiter:   ratelimit.NewAdaptiveRateLimiter(2*time.Second, 5*time.Second),
		logger:    logger.With("component", "scraper"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Search returns the result tiles for query. Under the per-operation policy
// a block yields an empty list; under the persistent policy it is returned
// as ErrBlocked.
func (s *Service) Search(ctx context.Context, query string, opts models.SearchOptions) (results []models.SearchResult, err error) {
	defer func(start time.Time) { observe("search", start, err) }(time.Now())

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if opts.Page < 1 {
		opts.Page = 1
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	target := s.site.SearchURL(query, opts)
	s.logger.Info("searching", "query", query, "page", opts.Page, "sort", opts.Sort)

	_, err = s.nav.Visit(ctx, target, func(p session.Page) error {
		html, err := p.Content()
		if err != nil {
			return fmt.Errorf("failed to get page content: %w", err)
		}
		results, err = s.extractor.SearchResults(html, p.URL())
		return err
	})
	if err != nil {
		if errors.Is(err, ErrBlocked) && s.nav.Policy() == session.PolicyPerOperation {
			s.logger.Warn("search blocked, returning no results", "query", query)
			return []models.SearchResult{}, nil
		}
		return nil, err
	}

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	s.logger.Info("search finished", "query", query, "results", len(results))
	return results, nil
}

// GetProductDetails loads one product by id or URL.
func (s *Service) GetProductDetails(ctx context.Context, idOrURL string) (product *models.Product, err error) {
	defer func(start time.Time) { observe("product", start, err) }(time.Now())

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.product(ctx, idOrURL)
}

func (s *Service) product(ctx context.Context, idOrURL string) (*models.Product, error) {
	target, err := s.site.ProductURL(idOrURL)
	if err != nil {
		return nil, err
	}

	s.logger.Info("fetching product", "product", idOrURL, "url", target)

	var product *models.Product
	_, err = s.nav.Visit(ctx, target, func(p session.Page) error {
		finalURL := p.URL()
		id := s.site.ExtractProductID(finalURL)
		if id == "" {
			return fmt.Errorf("%w: %s is not a product page", ErrNotFound, finalURL)
		}

		html, err := p.Content()
		if err != nil {
			return fmt.Errorf("failed to get page content: %w", err)
		}

		product, err = s.extractor.Product(html, finalURL, id)
		if errors.Is(err, parser.ErrNoTitle) {
			return fmt.Errorf("%w: %s", ErrNotFound, idOrURL)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.sink != nil {
		if err := s.sink.PublishProduct(ctx, product); err != nil {
			s.logger.Warn("failed to publish product", "id", product.ID, "error", err)
		}
	}

	return product, nil
}

// GetProductsList fetches each id or URL in order. It never fails: an item
// that cannot be fetched gets an entry carrying its error, and the batch moves
// on after a pacing pause. Entries are keyed by the input as given.
func (s *Service) GetProductsList(ctx context.Context, ids []string) []models.ProductEntry {
	start := time.Now()
	entries := make([]models.ProductEntry, 0, len(ids))
	failed := 0

	for i, id := range ids {
		if i > 0 {
			if err := s.limiter.Pause(ctx); err != nil {
				for _, rest := range ids[i:] {
					entries = append(entries, models.ProductEntry{ID: rest, Error: err.Error()})
					metricBatchItems.WithLabelValues("skipped").Inc()
				}
				failed += len(ids) - i
				break
			}
		}

		product, err := s.product(ctx, id)
		if err != nil {
			s.logger.Warn("batch item failed", "id", id, "error", err)
			if errors.Is(err, ErrBlocked) || errors.Is(err, ErrNavigationTimeout) {
				s.limiter.RecordError()
			}
			entries = append(entries, models.ProductEntry{ID: id, Error: err.Error()})
			metricBatchItems.WithLabelValues(outcomeOf(err)).Inc()
			failed++
			continue
		}

		s.limiter.RecordSuccess()
		entries = append(entries, models.ProductEntry{ID: id, Product: product})
		metricBatchItems.WithLabelValues("ok").Inc()
	}

	s.logger.Info("batch finished", "total", len(ids), "failed", failed, "duration", time.Since(start))
	return entries
}

// SetLocation enters city in the delivery-location dialog. Any failure is
// reported as an unsuccessful result.
func (s *Service) SetLocation(ctx context.Context, city string) models.LocationResult {
	city = strings.TrimSpace(city)
	result := models.LocationResult{City: city}
	if city == "" {
		return result
	}

	loc := s.site.Location
	_, err := s.nav.Visit(ctx, s.site.HomeURL(), func(p session.Page) error {
		if err := p.Click(loc.Open, interactionTimeout); err != nil {
			return fmt.Errorf("failed to open location dialog: %w", err)
		}
		if err := p.Fill(loc.Input, city, interactionTimeout); err != nil {
			return fmt.Errorf("failed to enter location: %w", err)
		}
		if err := p.Click(loc.Submit, interactionTimeout); err != nil {
			if err := p.Press(loc.Input, "Enter", interactionTimeout); err != nil {
				return fmt.Errorf("failed to submit location: %w", err)
			}
		}
		if loc.Confirm != "" {
			if err := p.Click(loc.Confirm, interactionTimeout); err != nil {
				s.logger.Debug("no location confirmation shown", "error", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to set location", "city", city, "error", err)
		return result
	}

	s.logger.Info("location set", "city", city)
	result.Success = true
	return result
}

// GetFilters returns the fixed sort catalog plus the filter group labels
// shown on the result page for query. Scraping the labels is best-effort.
func (s *Service) GetFilters(ctx context.Context, query string) models.FilterDescriptor {
	query = strings.TrimSpace(query)
	desc := models.FilterDescriptor{
		Query:       query,
		SortOptions: s.site.SortCatalog(),
		Filters:     []string{},
	}
	if query == "" {
		return desc
	}

	_, err := s.nav.Visit(ctx, s.site.SearchURL(query, models.SearchOptions{}), func(p session.Page) error {
		html, err := p.Content()
		if err != nil {
			return err
		}
		labels, err := s.extractor.FilterLabels(html)
		if err != nil {
			return err
		}
		desc.Filters = labels
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to scrape filter labels", "query", query, "error", err)
	}

	return desc
}

func (s *Service) GetCategories(ctx context.Context) (categories []models.Category, err error) {
	defer func(start time.Time) { observe("categories", start, err) }(time.Now())

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	home := s.site.HomeURL()
	_, err = s.nav.Visit(ctx, home, func(p session.Page) error {
		html, err := p.Content()
		if err != nil {
			return fmt.Errorf("failed to get page content: %w", err)
		}
		categories, err = s.extractor.Categories(html, p.URL())
		return err
	})
	if err != nil {
		return nil, err
	}

	return categories, nil
}

// Policy reports the session policy the service runs under.
func (s *Service) Policy() session.Policy {
	return s.nav.Policy()
}

func (s *Service) Close() error {
	return s.nav.Close()
}
