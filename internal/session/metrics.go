package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsLaunched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "retail_scraper",
		Name:      "sessions_launched_total",
		Help:      "Number of browser sessions launched.",
	})
	metricSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "retail_scraper",
		Name:      "sessions_active",
		Help:      "Browser sessions currently alive.",
	})
	metricWarmups = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "retail_scraper",
		Name:      "warmups_total",
		Help:      "Warm-up visits performed.",
	})
	metricNavigations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "retail_scraper",
		Name:      "navigations_total",
		Help:      "Target navigations by outcome.",
	}, []string{"outcome"})
	metricBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "retail_scraper",
		Name:      "blocks_total",
		Help:      "Block detections by recovery outcome.",
	}, []string{"outcome"})
)

func recordNavigation(outcome string) {
	metricNavigations.WithLabelValues(outcome).Inc()
}

func recordBlock(outcome string) {
	metricBlocks.WithLabelValues(outcome).Inc()
}
