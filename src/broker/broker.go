// Package broker defines the interface analyzer-core uses to publish
// train_models and stats_info (see src/contracts.RoutingKeyTrainModels and
// RoutingKeyStatsInfo) and provides implementations.
package broker

import "context"

// Broker abstracts message publishing and consumption for the two routing
// keys analyzer-core emits: train_models (retrain.Registry, keyed by project
// id) and stats_info (pipeline.SuggestPipeline, keyed by project id too).
// An InMemoryBroker fan-out is enough for a single-process deployment or
// tests; RedpandaBroker backs the same interface for a real message-bus
// deployment.
type Broker interface {
	// Publish sends a message to a routing key with a key used for
	// partitioning by RedpandaBroker; InMemoryBroker ignores it.
	Publish(ctx context.Context, topic string, key string, value []byte) error

	// Subscribe returns a channel for consuming messages published to a
	// routing key. groupID drives Kafka consumer-group coordination in
	// RedpandaBroker; InMemoryBroker ignores it.
	Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error)

	// Close shuts down the broker connection gracefully.
	Close() error
}

// Message represents a consumed message from a broker.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Offset    int64
	Partition int32
	Timestamp int64
}
