package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/retail-session-scraper/internal/models"
	"github.com/maltedev/retail-session-scraper/internal/session"
)

// Scraper is the operation surface the handlers serve.
type Scraper interface {
	Search(ctx context.Context, query string, opts models.SearchOptions) ([]models.SearchResult, error)
	GetProductDetails(ctx context.Context, idOrURL string) (*models.Product, error)
	GetProductsList(ctx context.Context, ids []string) []models.ProductEntry
	SetLocation(ctx context.Context, city string) models.LocationResult
	GetFilters(ctx context.Context, query string) models.FilterDescriptor
	GetCategories(ctx context.Context) ([]models.Category, error)
	Policy() session.Policy
}

type Handlers struct {
	scraper       Scraper
	batchMaxItems int
	logger        *slog.Logger
}

func NewHandlers(s Scraper, batchMaxItems int, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if batchMaxItems < 1 {
		batchMaxItems = 10
	}
	return &Handlers{
		scraper:       s,
		batchMaxItems: batchMaxItems,
		logger:        logger.With("component", "api"),
	}
}

type SearchResponse struct {
	Query   string                `json:"query"`
	Page    int                   `json:"page"`
	Count   int                   `json:"count"`
	Results []models.SearchResult `json:"results"`
}

type BatchRequest struct {
	IDs []string `json:"ids"`
}

type BatchResponse struct {
	Total    int                   `json:"total"`
	Failed   int                   `json:"failed"`
	Products []models.ProductEntry `json:"products"`
}

type LocationRequest struct {
	City string `json:"city"`
}

type CategoriesResponse struct {
	Count      int               `json:"count"`
	Categories []models.Category `json:"categories"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"policy": string(h.scraper.Policy()),
	})
}

// Search handles GET /api/v1/search?q=&sort=&page=&price_min=&price_max=&limit=
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		h.respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "q is required")
		return
	}

	opts, err := parseSearchOptions(q.Get("sort"), q.Get("page"), q.Get("price_min"), q.Get("price_max"), q.Get("limit"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error())
		return
	}

	results, err := h.scraper.Search(r.Context(), query, opts)
	if err != nil {
		h.fail(w, "search failed", err, "query", query)
		return
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}

	h.respondJSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Page:    page,
		Count:   len(results),
		Results: results,
	})
}

// GetProduct handles GET /api/v1/products/{id}. A full product URL may be
// passed as ?url= instead.
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "id")
	if u := r.URL.Query().Get("url"); u != "" {
		target = u
	}

	product, err := h.scraper.GetProductDetails(r.Context(), target)
	if err != nil {
		h.fail(w, "failed to get product", err, "product", target)
		return
	}

	h.respondJSON(w, http.StatusOK, product)
}

// GetProducts handles POST /api/v1/products/batch.
func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body")
		return
	}

	if len(req.IDs) == 0 {
		h.respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "ids is required")
		return
	}
	if len(req.IDs) > h.batchMaxItems {
		h.respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, fmt.Sprintf("at most %d ids per batch", h.batchMaxItems))
		return
	}

	entries := h.scraper.GetProductsList(r.Context(), req.IDs)

	failed := 0
	for _, e := range entries {
		if e.Failed() {
			failed++
		}
	}

	h.respondJSON(w, http.StatusOK, BatchResponse{
		Total:    len(entries),
		Failed:   failed,
		Products: entries,
	})
}

// SetLocation handles POST /api/v1/location. The outcome is reported in
// the body; the request itself only fails on bad input.
func (h *Handlers) SetLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body")
		return
	}

	if strings.TrimSpace(req.City) == "" {
		h.respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "city is required")
		return
	}

	h.respondJSON(w, http.StatusOK, h.scraper.SetLocation(r.Context(), req.City))
}

// GetFilters handles GET /api/v1/filters?q=
func (h *Handlers) GetFilters(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.scraper.GetFilters(r.Context(), r.URL.Query().Get("q")))
}

func (h *Handlers) GetCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.scraper.GetCategories(r.Context())
	if err != nil {
		h.fail(w, "failed to get categories", err)
		return
	}

	h.respondJSON(w, http.StatusOK, CategoriesResponse{
		Count:      len(categories),
		Categories: categories,
	})
}

func parseSearchOptions(sort, page, priceMin, priceMax, limit string) (models.SearchOptions, error) {
	opts := models.SearchOptions{Sort: sort}

	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return opts, fmt.Errorf("page must be a positive integer")
		}
		opts.Page = n
	}

	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("limit must be a non-negative integer")
		}
		opts.Limit = n
	}

	var err error
	if opts.PriceMin, err = parsePrice("price_min", priceMin); err != nil {
		return opts, err
	}
	if opts.PriceMax, err = parsePrice("price_max", priceMax); err != nil {
		return opts, err
	}

	if opts.PriceMin != nil && opts.PriceMax != nil && *opts.PriceMin > *opts.PriceMax {
		return opts, fmt.Errorf("price_min cannot be greater than price_max")
	}

	return opts, nil
}

func parsePrice(name, value string) (*float64, error) {
	if value == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%s must be a non-negative number", name)
	}
	return &v, nil
}

func (h *Handlers) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, append(attrs, "error", err)...)
	} else {
		h.logger.Warn(msg, append(attrs, "error", err)...)
	}
	h.respondError(w, status, code, err.Error())
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Success: false,
		Error:   &ErrorDetail{Code: code, Message: message},
	})
}
