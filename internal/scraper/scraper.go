package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/retail-session-scraper/internal/models"
	"github.com/maltedev/retail-session-scraper/internal/session"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("product not found")

	// Re-exported so callers need not import the session package to match
	// navigation failures.
	ErrBlocked           = session.ErrBlocked
	ErrNavigationTimeout = session.ErrNavigationTimeout
)

// Extractor reads records out of rendered HTML. Implementations drop
// records they cannot identify instead of failing.
type Extractor interface {
	SearchResults(html, pageURL string) ([]models.SearchResult, error)
	Product(html, pageURL, id string) (*models.Product, error)
	Categories(html, pageURL string) ([]models.Category, error)
	FilterLabels(html string) ([]string, error)
}

// Navigator runs page visits through the session protocol.
type Navigator interface {
	Visit(ctx context.Context, target string, fn func(session.Page) error) (session.NavigationResult, error)
	Policy() session.Policy
	Close() error
}

// EventSink receives every product fetched.
type EventSink interface {
	PublishProduct(ctx context.Context, product *models.Product) error
}
