package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"assetcycle/internal/config"
	"assetcycle/internal/creative"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "assetcycle")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "assetcycle.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Rotation.MinImpressions != 1000 {
		t.Fatalf("unexpected min impressions: %d", cfg.Rotation.MinImpressions)
	}
	if !cfg.Rotation.VerifyBeforeWrite {
		t.Fatal("expected verify_before_write enabled by default")
	}
	if got := cfg.LimitsFor(creative.TypeHeadline); got.Min != 1 || got.Max != 5 {
		t.Fatalf("unexpected headline limits: %+v", got)
	}
	if len(cfg.Campaigns) != 0 {
		t.Fatalf("expected no campaigns by default, got %d", len(cfg.Campaigns))
	}
	if err := cfg.ValidateForRun(); !errors.Is(err, config.ErrNoCampaigns) {
		t.Fatalf("expected ErrNoCampaigns, got %v", err)
	}
}

func TestLoadCustomConfigOverlaysLimitsAndLabels(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
data_dir = "~/ac-data"

[[campaigns]]
id = " 111-222 "

[[campaigns]]
id = "333"
name = "iOS"

[rotation]
min_impressions = 500
untouchable_labels = ["pending", "learning", "best"]
auto_remove_labels = ["low"]
manual_approval_labels = ["good"]

[rotation.limits.video]
min = 1
max = 10

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "ac-data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Campaigns[0].ID != "111-222" || cfg.Campaigns[0].Name != "111-222" {
		t.Fatalf("unexpected first campaign: %+v", cfg.Campaigns[0])
	}
	if _, ok := cfg.CampaignByID("333"); !ok {
		t.Fatal("expected campaign 333 to be found")
	}
	if got := cfg.LimitsFor(creative.TypeVideo); got.Min != 1 || got.Max != 10 {
		t.Fatalf("unexpected video limits: %+v", got)
	}
	if got := cfg.LimitsFor(creative.TypeImage); got.Min != 1 || got.Max != 20 {
		t.Fatalf("expected image limits to keep defaults, got %+v", got)
	}
	if strings.Join(cfg.Rotation.AutoRemoveLabels, ",") != "LOW" {
		t.Fatalf("expected uppercase labels, got %v", cfg.Rotation.AutoRemoveLabels)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadAppliesGoogleAdsEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GOOGLE_ADS_DEVELOPER_TOKEN", "dev-token")
	t.Setenv("GOOGLE_ADS_CLIENT_ID", "client")
	t.Setenv("GOOGLE_ADS_CLIENT_SECRET", "secret")
	t.Setenv("GOOGLE_ADS_REFRESH_TOKEN", "refresh")
	t.Setenv("GOOGLE_ADS_CUSTOMER_ID", "123-456-7890")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[google_ads]
developer_token = "from-file"
login_customer_id = "999"

[[campaigns]]
id = "42"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GoogleAds.DeveloperToken != "dev-token" {
		t.Fatalf("expected env to override developer token, got %q", cfg.GoogleAds.DeveloperToken)
	}
	if cfg.GoogleAds.CustomerID != "1234567890" {
		t.Fatalf("expected dashes stripped from customer id, got %q", cfg.GoogleAds.CustomerID)
	}
	if cfg.GoogleAds.LoginCustomerID != "999" {
		t.Fatalf("expected file value kept when env unset, got %q", cfg.GoogleAds.LoginCustomerID)
	}
	if err := cfg.ValidateForRun(); err != nil {
		t.Fatalf("expected config ready for run, got %v", err)
	}
}

func TestValidateRejectsBadRotation(t *testing.T) {
	cases := map[string]func(*config.Config){
		"unknown label": func(c *config.Config) {
			c.Rotation.AutoRemoveLabels = []string{"TERRIBLE"}
		},
		"overlapping sets": func(c *config.Config) {
			c.Rotation.ManualApprovalLabels = []string{"GOOD", "LOW"}
		},
		"max below min": func(c *config.Config) {
			c.Rotation.Limits = map[string]config.TypeLimits{"IMAGE": {Min: 3, Max: 2}}
		},
		"zero max": func(c *config.Config) {
			c.Rotation.Limits = map[string]config.TypeLimits{"VIDEO": {Min: 0, Max: 0}}
		},
		"negative impressions": func(c *config.Config) {
			c.Rotation.MinImpressions = -1
		},
		"duplicate campaign": func(c *config.Config) {
			c.Campaigns = []config.Campaign{{ID: "1"}, {ID: "1"}}
		},
		"zero budget": func(c *config.Config) {
			c.Run.BudgetSeconds = 0
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateCredentialsListsMissingKeys(t *testing.T) {
	cfg := config.Default()
	cfg.GoogleAds.DeveloperToken = "x"
	err := cfg.ValidateCredentials()
	if err == nil {
		t.Fatal("expected missing credential error")
	}
	if !strings.Contains(err.Error(), "google_ads.refresh_token") {
		t.Fatalf("expected refresh_token to be listed, got %v", err)
	}
	if strings.Contains(err.Error(), "developer_token") {
		t.Fatalf("developer_token is set and must not be listed: %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded map[string]any
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}
