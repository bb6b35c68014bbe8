package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strikegw_webhook_requests_total",
		Help: "Total number of inbound webhook requests by outcome.",
	}, []string{"outcome"})

	WebhookRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strikegw_webhook_rejections_total",
		Help: "Total number of inbound webhook requests rejected before dispatch, by reason.",
	}, []string{"reason"})

	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strikegw_webhook_events_enqueued_total",
		Help: "Total number of verified events handed to the consumer channel.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strikegw_webhook_events_dropped_total",
		Help: "Total number of verified events dropped because the consumer channel stayed full.",
	})

	EventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strikegw_webhook_events_duplicate_total",
		Help: "Total number of redelivered events suppressed by the receipt ledger.",
	})

	EnqueueWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "strikegw_webhook_enqueue_wait_seconds",
		Help:    "Time spent waiting for the consumer channel to accept an event.",
		Buckets: prometheus.DefBuckets,
	})

	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strikegw_upstream_requests_total",
		Help: "Total number of outbound API requests by method and status class.",
	}, []string{"method", "status"})
)
