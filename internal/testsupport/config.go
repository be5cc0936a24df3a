package testsupport

import (
	"path/filepath"
	"testing"

	"docket/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.DocumentDir = filepath.Join(base, "documents")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithRateLimitBackend overrides the rate limit backend on the test config.
func WithRateLimitBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.RateLimit.Backend = backend
	}
}

// WithPipelineStrategy overrides the pipeline strategy on the test config.
func WithPipelineStrategy(strategy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Strategy = strategy
	}
}

// WithClaimExpiryMinutes overrides the work queue claim expiry window.
func WithClaimExpiryMinutes(minutes int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.WorkQueue.ClaimExpiryMinutes = minutes
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
