package evolution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detailsmatter_turns_total",
			Help: "Total number of generated turns by variant and outcome.",
		},
		[]string{"variant", "outcome"},
	)

	imageRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detailsmatter_image_retries_total",
			Help: "Total number of image-only retries by result.",
		},
		[]string{"result"},
	)

	directivesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detailsmatter_director_directives_total",
			Help: "Total number of director directives by action and source.",
		},
		[]string{"action", "source"},
	)
)
