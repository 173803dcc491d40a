package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/maltedev/retail-session-scraper/internal/scraper"
)

// Error codes returned in API responses.
const (
	ErrCodeBlocked           = "BLOCKED"
	ErrCodeNavigationTimeout = "NAVIGATION_TIMEOUT"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeCanceled          = "CANCELED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// classify maps an operation error to its HTTP status and API code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, scraper.ErrInvalidInput):
		return http.StatusBadRequest, ErrCodeInvalidInput
	case errors.Is(err, scraper.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, scraper.ErrBlocked):
		return http.StatusBadGateway, ErrCodeBlocked
	case errors.Is(err, scraper.ErrNavigationTimeout):
		return http.StatusGatewayTimeout, ErrCodeNavigationTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrCodeCanceled
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
