package testsupport

import (
	"path/filepath"
	"testing"

	"veracity/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"

	// Keep test retries fast.
	cfg.Queue.BackoffBaseSeconds = 0
	cfg.Notifications.BackoffBaseSeconds = 0
	cfg.Workers.PollIntervalSeconds = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithEscalationThreshold overrides the gate threshold on the test config.
func WithEscalationThreshold(threshold float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Escalation.Threshold = threshold
	}
}

// WithAdapterEndpoint points every HTTP provider at the given base URL,
// typically an httptest server.
func WithAdapterEndpoint(baseURL string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Adapters.Provenance.BaseURL = baseURL
		cfg.Adapters.Manipulation.BaseURL = baseURL
		cfg.Adapters.WebPresence.BaseURL = baseURL
		cfg.Adapters.Identity.BaseURL = baseURL
	}
}
