package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EntitiesCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_entities_created_total",
		Help: "Total number of catalog entities created",
	}, []string{"kind"})

	TreeMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_tree_mutations_total",
		Help: "Total number of committed category tree mutations",
	}, []string{"op"})

	TreeMutationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_tree_mutation_latency_seconds",
		Help:    "Latency of category tree mutations including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	SlugCollisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_slug_collisions_total",
		Help: "Total number of slug candidates rejected as already taken",
	}, []string{"kind"})

	TxRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_tx_retries_total",
		Help: "Total number of transactions retried after a write conflict",
	}, []string{"op"})

	ValidationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_validation_failures_total",
		Help: "Total number of writes rejected by validation",
	}, []string{"reason"})

	DeactivationsBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_deactivations_blocked_total",
		Help: "Total number of deactivations blocked by active dependents",
	}, []string{"kind"})

	VariantAssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_variant_assignments_total",
		Help: "Total number of variant attribute assignments by outcome",
	}, []string{"outcome"})

	SchemaCacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_schema_cache_requests_total",
		Help: "Total number of attribute schema cache lookups",
	}, []string{"result"})

	EventsPublishFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_events_publish_failed_total",
		Help: "Total number of catalog events that could not be published",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
