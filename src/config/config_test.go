package config

import (
	"os"
	"testing"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	original, had := os.LookupEnv(key)
	if value == "" {
		os.Unsetenv(key)
	} else {
		os.Setenv(key, value)
	}
	t.Cleanup(func() {
		if had {
			os.Setenv(key, original)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("valid host", func(t *testing.T) {
		withEnv(t, "ES_HOST", "http://localhost:9200")
		withEnv(t, "REDPANDA_BROKERS", "")
		withEnv(t, "POSTGRES_DSN", "")

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("LoadFromEnv() unexpected error: %v", err)
		}
		if cfg.EsHost != "http://localhost:9200" {
			t.Errorf("EsHost = %v, want http://localhost:9200", cfg.EsHost)
		}
		if cfg.Search.MinShouldMatch != "80%" {
			t.Errorf("Search.MinShouldMatch default = %v, want 80%%", cfg.Search.MinShouldMatch)
		}
	})

	t.Run("missing host", func(t *testing.T) {
		withEnv(t, "ES_HOST", "")

		_, err := LoadFromEnv()
		if err == nil {
			t.Error("LoadFromEnv() expected error for missing ES_HOST, got nil")
		}
	})

	t.Run("distributed mode requires postgres dsn", func(t *testing.T) {
		withEnv(t, "ES_HOST", "http://localhost:9200")
		withEnv(t, "REDPANDA_BROKERS", "localhost:19092")
		withEnv(t, "POSTGRES_DSN", "")

		_, err := LoadFromEnv()
		if err == nil {
			t.Error("LoadFromEnv() expected error when brokers are set without POSTGRES_DSN")
		}
	})
}
