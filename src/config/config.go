// Package config provides configuration management for the analyzer-core
// service: index-store connection settings, search tuning knobs, and the
// message-bus/persistence options the surrounding platform wires in.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SearchConfig holds the retrieval tuning knobs that shape every query
// QueryBuilder assembles and every score SimilarityCalculator/Featurizer
// compute.
type SearchConfig struct {
	MaxQueryTerms int
	MinDocFreq    int
	MinTermFreq   int
	MinWordLength int

	// MinShouldMatch is a percent string, e.g. "80%", matching the
	// Elasticsearch minimum_should_match wire format.
	MinShouldMatch           string
	SearchLogsMinSimilarity  float64
	SearchLogsMinShouldMatch string

	BoostUniqueID float64
	BoostAA       float64
	BoostLaunch   float64

	SimilarityWeightsFolder string
	SuggestBoostModelFolder string
	BoostModelFolder        string

	// DefectTypeModelFolders maps an issue type prefix (e.g. "pb", "ab",
	// "si") to the folder holding its trained defect-type model.
	DefectTypeModelFolders map[string]string
}

// Config holds the application configuration.
type Config struct {
	// EsHost is the base URL of the Elasticsearch-compatible index
	// store, e.g. "http://localhost:9200".
	EsHost                 string
	EsUseSSL               bool
	EsVerifyCerts          bool
	EsSSLShowWarn          bool
	EsCACert               string
	EsClientCert           string
	EsClientKey            string
	TurnOffSSLVerification bool

	// ExchangeName is the message-bus exchange train_models/stats_info
	// are published to. RedpandaBrokers carries the actual transport
	// address; empty means use the in-memory broker.
	ExchangeName    string
	RedpandaBrokers []string
	AppVersion      string

	// PostgresDSN backs the namespace/retraining-counter state store.
	// Empty means use the in-memory store.
	PostgresDSN string

	Search SearchConfig
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	host := os.Getenv("ES_HOST")
	if host == "" {
		return nil, fmt.Errorf("ES_HOST environment variable is required")
	}

	cfg := &Config{
		EsHost:                 host,
		EsUseSSL:               envBool("ES_USE_SSL", false),
		EsVerifyCerts:          envBool("ES_VERIFY_CERTS", true),
		EsSSLShowWarn:          envBool("ES_SSL_SHOW_WARN", true),
		EsCACert:               os.Getenv("ES_CA_CERT"),
		EsClientCert:           os.Getenv("ES_CLIENT_CERT"),
		EsClientKey:            os.Getenv("ES_CLIENT_KEY"),
		TurnOffSSLVerification: envBool("ES_TURN_OFF_SSL_VERIFICATION", false),
		ExchangeName:           envOr("EXCHANGE_NAME", "analyzer"),
		AppVersion:             envOr("APP_VERSION", "dev"),
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		Search:                 defaultSearchConfig(),
	}

	brokersEnv := os.Getenv("REDPANDA_BROKERS")
	if brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i, broker := range brokers {
			brokers[i] = strings.TrimSpace(broker)
		}
		cfg.RedpandaBrokers = brokers
	}

	if len(cfg.RedpandaBrokers) > 0 && cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required when REDPANDA_BROKERS is set (distributed mode)")
	}

	return cfg, nil
}

func defaultSearchConfig() SearchConfig {
	return SearchConfig{
		MaxQueryTerms:            envInt("MAX_QUERY_TERMS", 50),
		MinDocFreq:               envInt("MIN_DOC_FREQ", 1),
		MinTermFreq:              envInt("MIN_TERM_FREQ", 1),
		MinWordLength:            envInt("MIN_WORD_LENGTH", 2),
		MinShouldMatch:           envOr("MIN_SHOULD_MATCH", "80%"),
		SearchLogsMinSimilarity:  envFloat("SEARCH_LOGS_MIN_SIMILARITY", 0.9),
		SearchLogsMinShouldMatch: envOr("SEARCH_LOGS_MIN_SHOULD_MATCH", "90%"),
		BoostUniqueID:            envFloat("BOOST_UNIQUE_ID", 2.0),
		BoostAA:                  envFloat("BOOST_AA", -2.0),
		BoostLaunch:              envFloat("BOOST_LAUNCH", 2.0),
		SimilarityWeightsFolder:  os.Getenv("SIMILARITY_WEIGHTS_FOLDER"),
		SuggestBoostModelFolder:  os.Getenv("SUGGEST_BOOST_MODEL_FOLDER"),
		BoostModelFolder:         os.Getenv("BOOST_MODEL_FOLDER"),
		DefectTypeModelFolders:   map[string]string{},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
