// Package metrics exposes the Prometheus instrumentation shared across the
// pipeline, indexing orchestrator, and retrieval service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// StageDuration records how long each pipeline stage takes, labeled by
	// stage name and outcome (success/failure).
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dirc_pipeline_stage_duration_seconds",
		Help:    "Duration of each ingestion pipeline stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage", "outcome"})

	// IndexingOutcomes counts index_document results by outcome
	// (committed, rolled_back, busy, error).
	IndexingOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dirc_indexing_outcomes_total",
		Help: "Count of index_document outcomes by result.",
	}, []string{"outcome"})

	// RetrievalLatency records end-to-end search latency labeled by
	// technique (semantic, keyword, hybrid).
	RetrievalLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dirc_retrieval_latency_seconds",
		Help:    "Latency of search calls by technique.",
		Buckets: prometheus.DefBuckets,
	}, []string{"technique"})

	// ConsistencyChecks counts verify results by outcome (consistent,
	// inconsistent), letting an operator alert on drift between the three
	// indexes.
	ConsistencyChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dirc_consistency_checks_total",
		Help: "Count of verify() results by outcome.",
	}, []string{"outcome"})
)

// MustRegister registers every collector in this package against reg. Call
// once at process startup; a nil reg registers against the default
// registry.
func MustRegister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(StageDuration, IndexingOutcomes, RetrievalLatency, ConsistencyChecks)
}
