package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeGoogleAds(); err != nil {
		return err
	}
	c.normalizeCampaigns()
	c.normalizeRotation()
	c.normalizeReview()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ReviewDir) == "" {
		c.Paths.ReviewDir = defaultReviewDir
	}
	if c.Paths.ReviewDir, err = expandPath(c.Paths.ReviewDir); err != nil {
		return fmt.Errorf("paths.review_dir: %w", err)
	}
	if strings.TrimSpace(c.Metrics.TextfilePath) != "" {
		if c.Metrics.TextfilePath, err = expandPath(c.Metrics.TextfilePath); err != nil {
			return fmt.Errorf("metrics.textfile_path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeGoogleAds() error {
	if err := env.Parse(&c.GoogleAds); err != nil {
		return fmt.Errorf("google_ads env: %w", err)
	}
	c.GoogleAds.DeveloperToken = strings.TrimSpace(c.GoogleAds.DeveloperToken)
	c.GoogleAds.ClientID = strings.TrimSpace(c.GoogleAds.ClientID)
	c.GoogleAds.ClientSecret = strings.TrimSpace(c.GoogleAds.ClientSecret)
	c.GoogleAds.RefreshToken = strings.TrimSpace(c.GoogleAds.RefreshToken)
	c.GoogleAds.CustomerID = normalizeCustomerID(c.GoogleAds.CustomerID)
	c.GoogleAds.LoginCustomerID = normalizeCustomerID(c.GoogleAds.LoginCustomerID)
	c.GoogleAds.BaseURL = strings.TrimRight(strings.TrimSpace(c.GoogleAds.BaseURL), "/")
	if c.GoogleAds.BaseURL == "" {
		c.GoogleAds.BaseURL = defaultGoogleAdsBaseURL
	}
	c.GoogleAds.APIVersion = strings.TrimSpace(c.GoogleAds.APIVersion)
	if c.GoogleAds.APIVersion == "" {
		c.GoogleAds.APIVersion = defaultGoogleAdsAPIVersion
	}
	if c.GoogleAds.RequestTimeout <= 0 {
		c.GoogleAds.RequestTimeout = defaultGoogleAdsTimeout
	}
	if c.GoogleAds.RequestsPerSecond <= 0 {
		c.GoogleAds.RequestsPerSecond = defaultRequestsPerSecond
	}
	if c.GoogleAds.MaxRetries < 0 {
		c.GoogleAds.MaxRetries = 0
	}
	if c.GoogleAds.RetryBackoffMillis <= 0 {
		c.GoogleAds.RetryBackoffMillis = defaultRetryBackoffMillis
	}
	return nil
}

// Customer IDs are commonly copied from the UI as 123-456-7890.
func normalizeCustomerID(value string) string {
	return strings.ReplaceAll(strings.TrimSpace(value), "-", "")
}

func (c *Config) normalizeCampaigns() {
	campaigns := make([]Campaign, 0, len(c.Campaigns))
	for _, campaign := range c.Campaigns {
		campaign.ID = strings.TrimSpace(campaign.ID)
		campaign.Name = strings.TrimSpace(campaign.Name)
		if campaign.Name == "" {
			campaign.Name = campaign.ID
		}
		campaigns = append(campaigns, campaign)
	}
	c.Campaigns = campaigns
}

func (c *Config) normalizeRotation() {
	c.Rotation.UntouchableLabels = normalizeLabels(c.Rotation.UntouchableLabels)
	c.Rotation.AutoRemoveLabels = normalizeLabels(c.Rotation.AutoRemoveLabels)
	c.Rotation.ManualApprovalLabels = normalizeLabels(c.Rotation.ManualApprovalLabels)

	limits := defaultLimits()
	for key, value := range c.Rotation.Limits {
		normalized := strings.ToUpper(strings.TrimSpace(key))
		if normalized == "YOUTUBE_VIDEO" {
			normalized = "VIDEO"
		}
		limits[normalized] = value
	}
	c.Rotation.Limits = limits
}

func normalizeLabels(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToUpper(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func (c *Config) normalizeReview() {
	c.Review.WorkbookName = strings.TrimSpace(c.Review.WorkbookName)
	if c.Review.WorkbookName == "" {
		c.Review.WorkbookName = defaultWorkbookName
	}
	c.Review.SheetName = strings.TrimSpace(c.Review.SheetName)
	if c.Review.SheetName == "" {
		c.Review.SheetName = defaultSheetName
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
