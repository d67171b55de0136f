// Package metrics exposes Prometheus collectors for the ingest pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ListingPagesTotal counts catalog listing pages walked per vendor.
	ListingPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_listing_pages_total",
			Help: "Total catalog listing pages processed, labeled by vendor.",
		},
		[]string{"vendor"},
	)

	// PagesFetchedTotal counts product pages fetched, labeled by vendor and
	// outcome (fetched, cached, skipped, failed).
	PagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_pages_fetched_total",
			Help: "Total product pages processed by the fetcher, labeled by vendor and outcome.",
		},
		[]string{"vendor", "outcome"},
	)

	// FetchRetriesTotal counts retried fetch attempts per vendor.
	FetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_fetch_retries_total",
			Help: "Total fetch retries, labeled by vendor.",
		},
		[]string{"vendor"},
	)

	// FetchDurationSeconds observes page render latency per vendor.
	FetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_fetch_duration_seconds",
			Help:    "Page fetch latency, labeled by vendor.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"vendor"},
	)

	// RecordsExtractedTotal counts canonical records produced, labeled by
	// vendor and outcome (extracted, skipped, failed).
	RecordsExtractedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_records_extracted_total",
			Help: "Total canonical records produced by the extractor, labeled by vendor and outcome.",
		},
		[]string{"vendor", "outcome"},
	)

	// RecordsPopulatedTotal counts populator record outcomes (ok, failed).
	RecordsPopulatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_records_populated_total",
			Help: "Total canonical records applied to the entity graph, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	// IndexSyncsTotal counts search document writes, labeled by index and
	// operation (upsert, delete).
	IndexSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_index_syncs_total",
			Help: "Total search index document operations, labeled by index and op.",
		},
		[]string{"index", "op"},
	)

	// IndexSyncFailuresTotal counts synchronizer failures per index.
	IndexSyncFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_index_sync_failures_total",
			Help: "Total search index synchronization failures, labeled by index.",
		},
		[]string{"index"},
	)
)
