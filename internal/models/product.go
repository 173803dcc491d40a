package models

import (
	"time"
)

// Product is a best-effort record scraped from a product page. ID is always
// set on a returned product; every other field may be empty.
type Product struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Brand       string    `json:"brand,omitempty"`
	Price       *float64  `json:"price"`
	Currency    string    `json:"currency,omitempty"`
	Rating      *float64  `json:"rating"`
	ReviewCount int       `json:"review_count,omitempty"`
	Available   bool      `json:"available"`
	Description string    `json:"description,omitempty"`
	Images      []string  `json:"images"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// SearchResult is one tile of a search result page.
type SearchResult struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Price       *float64 `json:"price"`
	Rating      *float64 `json:"rating"`
	ReviewCount int      `json:"review_count,omitempty"`
	Image       string   `json:"image,omitempty"`
	Position    int      `json:"position"`
}

type Category struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ProductEntry is one slot of a batch fetch: either Product or Error is set.
type ProductEntry struct {
	ID      string   `json:"id"`
	Product *Product `json:"product,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func (e ProductEntry) Failed() bool {
	return e.Error != ""
}

type SearchOptions struct {
	Sort     string   `json:"sort,omitempty"`
	Page     int      `json:"page,omitempty"`
	PriceMin *float64 `json:"price_min,omitempty"`
	PriceMax *float64 `json:"price_max,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

type LocationResult struct {
	Success bool   `json:"success"`
	City    string `json:"city"`
}

type SortOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FilterDescriptor pairs the site's fixed sort catalog with filter group
// labels scraped from a result page.
type FilterDescriptor struct {
	Query       string       `json:"query,omitempty"`
	SortOptions []SortOption `json:"sort_options"`
	Filters     []string     `json:"filters"`
}

func NewProduct(id string) *Product {
	return &Product{
		ID:        id,
		Images:    make([]string, 0),
		ScrapedAt: time.Now(),
	}
}
