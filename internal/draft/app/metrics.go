package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "draftly",
			Name:      "drafts_generated_total",
			Help:      "Total draft generation attempts.",
		},
		[]string{"provider", "mode", "status"}, // status: success, error_mailbox, error_provider, error_store
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "draftly",
			Name:      "draft_generation_duration_seconds",
			Help:      "Duration of end-to-end draft generation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "mode"},
	)
)
