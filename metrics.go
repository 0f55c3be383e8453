package detailsmatter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detailsmatter_provider_requests_total",
			Help: "Total number of provider requests by model and status.",
		},
		[]string{"model", "status"},
	)

	providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detailsmatter_provider_request_duration_seconds",
			Help:    "Duration of provider requests by model.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"model"},
	)
)
