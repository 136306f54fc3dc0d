package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "draftly",
			Name:      "draft_sends_total",
			Help:      "Total send pipeline outcomes.",
		},
		[]string{"outcome"}, // sent, already_sent, failed
	)

	deliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "draftly",
			Name:      "delivery_request_duration_seconds",
			Help:      "Duration of delivery channel requests.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
