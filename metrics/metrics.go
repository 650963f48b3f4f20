package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_events_ingested_total",
			Help: "Total number of events persisted, by source tag",
		},
		[]string{"source"},
	)

	WebhookRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_webhook_rejections_total",
			Help: "Total number of webhook requests rejected before ingestion",
		},
		[]string{"reason"},
	)

	StoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_store_failures_total",
			Help: "Total number of event store append failures, by channel",
		},
		[]string{"channel"},
	)

	ParseFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_parse_fallbacks_total",
			Help: "Total number of payloads that degraded past a parser tier",
		},
		[]string{"stage"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_ingest_duration_seconds",
			Help:    "Time from payload receipt to durable append",
			Buckets: prometheus.DefBuckets,
		},
	)

	TCPConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_tcp_connections_active",
			Help: "Number of currently open syslog TCP connections",
		},
	)

	TCPConnectionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_tcp_connections_rejected_total",
			Help: "Total number of TCP connections rejected by pool or per-IP limits",
		},
	)
)
