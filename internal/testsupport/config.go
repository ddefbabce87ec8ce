package testsupport

import (
	"path/filepath"
	"testing"

	"assetcycle/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It configures one campaign ("42") and placeholder credentials so run-level
// validation passes, then applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ReviewDir = filepath.Join(base, "review")
	cfgVal.GoogleAds.DeveloperToken = "test"
	cfgVal.GoogleAds.ClientID = "test"
	cfgVal.GoogleAds.ClientSecret = "test"
	cfgVal.GoogleAds.RefreshToken = "test"
	cfgVal.GoogleAds.CustomerID = "1234567890"
	cfgVal.Campaigns = []config.Campaign{{ID: "42", Name: "Android"}}
	cfgVal.Rotation.Limits = map[string]config.TypeLimits{
		"VIDEO":       {Min: 0, Max: 20},
		"IMAGE":       {Min: 1, Max: 20},
		"HEADLINE":    {Min: 1, Max: 5},
		"DESCRIPTION": {Min: 1, Max: 5},
	}

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

// WithCampaigns replaces the managed campaign list.
func WithCampaigns(ids ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Campaigns = b.cfg.Campaigns[:0]
		for _, id := range ids {
			b.cfg.Campaigns = append(b.cfg.Campaigns, config.Campaign{ID: id, Name: id})
		}
	}
}

// WithLimits overrides the bounds for one asset type.
func WithLimits(assetType string, min, max int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Rotation.Limits[assetType] = config.TypeLimits{Min: min, Max: max}
	}
}

// WithRotation applies an arbitrary change to the rotation policy.
func WithRotation(fn func(*config.Rotation)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.Rotation)
	}
}

// WithNtfyTopic points notifications at the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
