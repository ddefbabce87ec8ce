package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"assetcycle/internal/creative"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	ReviewDir string `toml:"review_dir"`
}

// GoogleAds contains credentials and transport settings for the Google Ads
// REST API. Credential fields may be supplied through GOOGLE_ADS_* variables.
type GoogleAds struct {
	DeveloperToken     string  `toml:"developer_token" env:"GOOGLE_ADS_DEVELOPER_TOKEN"`
	ClientID           string  `toml:"client_id" env:"GOOGLE_ADS_CLIENT_ID"`
	ClientSecret       string  `toml:"client_secret" env:"GOOGLE_ADS_CLIENT_SECRET"`
	RefreshToken       string  `toml:"refresh_token" env:"GOOGLE_ADS_REFRESH_TOKEN"`
	CustomerID         string  `toml:"customer_id" env:"GOOGLE_ADS_CUSTOMER_ID"`
	LoginCustomerID    string  `toml:"login_customer_id" env:"GOOGLE_ADS_LOGIN_CUSTOMER_ID"`
	BaseURL            string  `toml:"base_url"`
	APIVersion         string  `toml:"api_version"`
	RequestTimeout     int     `toml:"request_timeout"`
	RequestsPerSecond  float64 `toml:"requests_per_second"`
	MaxRetries         int     `toml:"max_retries"`
	RetryBackoffMillis int     `toml:"retry_backoff_ms"`
}

// Campaign identifies one App campaign under management.
type Campaign struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// TypeLimits bounds how many assets of one type an ad may hold.
type TypeLimits struct {
	Min int `toml:"min"`
	Max int `toml:"max"`
}

// Rotation contains the decision and execution policy knobs.
type Rotation struct {
	MinImpressions       int64                 `toml:"min_impressions"`
	WindowDays           int                   `toml:"window_days"`
	UntouchableLabels    []string              `toml:"untouchable_labels"`
	AutoRemoveLabels     []string              `toml:"auto_remove_labels"`
	ManualApprovalLabels []string              `toml:"manual_approval_labels"`
	AutoAddReplacement   bool                  `toml:"auto_add_replacement"`
	VerifyBeforeWrite    bool                  `toml:"verify_before_write"`
	Limits               map[string]TypeLimits `toml:"limits"`
}

// Run contains batch-run settings.
type Run struct {
	BudgetSeconds int `toml:"budget_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Analysis       bool   `toml:"analysis"`
	Execution      bool   `toml:"execution"`
	Approvals      bool   `toml:"approvals"`
	Errors         bool   `toml:"errors"`
}

// Review contains settings for the spreadsheet review surface.
type Review struct {
	WorkbookName string `toml:"workbook_name"`
	SheetName    string `toml:"sheet_name"`
}

// Metrics contains settings for the Prometheus textfile export.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for assetcycle.
//
// Configuration sections by subsystem:
//   - Paths: data, log and review directories
//   - GoogleAds: API credentials, pacing and retry policy
//   - Campaigns: the App campaigns under management
//   - Rotation: decision thresholds, label sets and per-type asset limits
//   - Run: wall-clock budget per batch invocation
//   - Notifications: ntfy push notification settings
//   - Review: spreadsheet export/import of change requests
//   - Metrics: Prometheus textfile output
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	GoogleAds     GoogleAds     `toml:"google_ads"`
	Campaigns     []Campaign    `toml:"campaigns"`
	Rotation      Rotation      `toml:"rotation"`
	Run           Run           `toml:"run"`
	Notifications Notifications `toml:"notifications"`
	Review        Review        `toml:"review"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/assetcycle/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("assetcycle.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for batch runs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.ReviewDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file shared by the registry and request store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "assetcycle.db")
}

// LockPath returns the run lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "assetcycle.lock")
}

// WorkbookPath returns the default review workbook location.
func (c *Config) WorkbookPath() string {
	return filepath.Join(c.Paths.ReviewDir, c.Review.WorkbookName)
}

// LimitsFor returns the configured asset count bounds for an asset type.
func (c *Config) LimitsFor(t creative.AssetType) TypeLimits {
	if limits, ok := c.Rotation.Limits[string(t)]; ok {
		return limits
	}
	return defaultLimits()[string(t)]
}

// CampaignByID looks up a configured campaign.
func (c *Config) CampaignByID(id string) (Campaign, bool) {
	id = strings.TrimSpace(id)
	for _, campaign := range c.Campaigns {
		if campaign.ID == id {
			return campaign, true
		}
	}
	return Campaign{}, false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
