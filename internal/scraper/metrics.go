package scraper

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "retail_scraper",
		Name:      "operation_duration_seconds",
		Help:      "Duration of scraping operations.",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"operation", "outcome"})
	metricBatchItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "retail_scraper",
		Name:      "batch_items_total",
		Help:      "Products fetched in batches by outcome.",
	}, []string{"outcome"})
)

func observe(operation string, start time.Time, err error) {
	metricOperationDuration.WithLabelValues(operation, outcomeOf(err)).Observe(time.Since(start).Seconds())
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrNavigationTimeout):
		return "timeout"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
