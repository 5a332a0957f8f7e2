package testsupport

import (
	"path/filepath"
	"testing"

	"tabsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults to a fast drain interval so worker tests do not wait on the
// production 30s period.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Sync.IntervalSeconds = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithMaxRetries overrides the sync retry budget on the test config.
func WithMaxRetries(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sync.MaxRetries = n
	}
}

// WithConflictWindowMinutes overrides the conflict recency window.
func WithConflictWindowMinutes(minutes int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Sync.ConflictWindowMinutes = minutes
	}
}
