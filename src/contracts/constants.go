// Package contracts defines the domain types shared across the log-analysis core:
// input launches/test items/logs, the retrieval-side log document, analysis
// results, and the messages published to the message bus.
package contracts

// ErrorLevel is the minimum log_level considered for analysis. Logs below
// this level are never indexed or searched.
const ErrorLevel = 40000

// SuggestThreshold is the minimum predicted probability for a suggest
// result to be returned to the caller.
const SuggestThreshold = 0.40

// SimilarityDedupThreshold is the minimum per-field similarity required on
// all three dedup fields for a later suggest candidate to be dropped.
const SimilarityDedupThreshold = 0.98

// BulkChunkSize is the number of operations per bulk request to the index
// store.
const BulkChunkSize = 1000

// MaxHitsPerSearch caps the size of any single search response.
const MaxHitsPerSearch = 10000

// AnalyzerMode controls which launches/test items are eligible as
// candidates during analyze-query search.
type AnalyzerMode string

const (
	ModeAll           AnalyzerMode = "ALL"
	ModeLaunchName    AnalyzerMode = "LAUNCH_NAME"
	ModeCurrentLaunch AnalyzerMode = "CURRENT_LAUNCH"
)

// Message-bus routing keys (spec.md's AMQP routing keys, carried over the
// Kafka-protocol broker this module actually wires in).
const (
	RoutingKeyTrainModels = "train_models"
	RoutingKeyStatsInfo   = "stats_info"
)

// StatsIndexName is the secondary index that holds per-request statistics
// documents published alongside suggest responses.
const StatsIndexName = "rp_aa_stats"
