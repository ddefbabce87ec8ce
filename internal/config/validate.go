package config

import (
	"errors"
	"fmt"
	"strings"

	"assetcycle/internal/creative"
)

// ErrNoCampaigns reports that no campaigns are configured; runs abort on it.
var ErrNoCampaigns = errors.New("no campaigns configured")

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCampaigns(); err != nil {
		return err
	}
	if err := c.validateRotation(); err != nil {
		return err
	}
	if err := c.validateGoogleAdsTransport(); err != nil {
		return err
	}
	if err := c.validateRun(); err != nil {
		return err
	}
	return nil
}

// ValidateForRun applies the checks that only matter when a batch run talks to
// the ad platform: at least one campaign and complete credentials.
func (c *Config) ValidateForRun() error {
	if len(c.Campaigns) == 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/assetcycle/config.toml"
		}
		return fmt.Errorf("%w: add [[campaigns]] entries to %s", ErrNoCampaigns, defaultPath)
	}
	return c.ValidateCredentials()
}

// ValidateCredentials checks the Google Ads credential set.
func (c *Config) ValidateCredentials() error {
	missing := make([]string, 0, 5)
	for key, value := range map[string]string{
		"google_ads.developer_token": c.GoogleAds.DeveloperToken,
		"google_ads.client_id":       c.GoogleAds.ClientID,
		"google_ads.client_secret":   c.GoogleAds.ClientSecret,
		"google_ads.refresh_token":   c.GoogleAds.RefreshToken,
		"google_ads.customer_id":     c.GoogleAds.CustomerID,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sortStrings(missing)
		return fmt.Errorf("missing required settings: %s (or set the matching GOOGLE_ADS_* env vars)", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) validateCampaigns() error {
	seen := make(map[string]struct{}, len(c.Campaigns))
	for i, campaign := range c.Campaigns {
		if campaign.ID == "" {
			return fmt.Errorf("campaigns[%d].id must be set", i)
		}
		if _, dup := seen[campaign.ID]; dup {
			return fmt.Errorf("campaigns[%d].id %q is listed twice", i, campaign.ID)
		}
		seen[campaign.ID] = struct{}{}
	}
	return nil
}

func (c *Config) validateRotation() error {
	r := c.Rotation
	if r.MinImpressions < 0 {
		return errors.New("rotation.min_impressions must be >= 0")
	}
	if r.WindowDays <= 0 {
		return errors.New("rotation.window_days must be positive")
	}
	owners := make(map[string]string)
	for key, labels := range map[string][]string{
		"rotation.untouchable_labels":     r.UntouchableLabels,
		"rotation.auto_remove_labels":     r.AutoRemoveLabels,
		"rotation.manual_approval_labels": r.ManualApprovalLabels,
	} {
		for _, value := range labels {
			if _, err := creative.MustParseLabel(value); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if prev, ok := owners[value]; ok {
				first, second := prev, key
				if second < first {
					first, second = second, first
				}
				return fmt.Errorf("label %s appears in both %s and %s", value, first, second)
			}
			owners[value] = key
		}
	}
	for key, limits := range r.Limits {
		if _, err := creative.ParseAssetType(key); err != nil {
			return fmt.Errorf("rotation.limits: %w", err)
		}
		if limits.Min < 0 {
			return fmt.Errorf("rotation.limits.%s.min must be >= 0", strings.ToLower(key))
		}
		if limits.Max <= 0 {
			return fmt.Errorf("rotation.limits.%s.max must be positive", strings.ToLower(key))
		}
		if limits.Max < limits.Min {
			return fmt.Errorf("rotation.limits.%s.max must be >= min", strings.ToLower(key))
		}
	}
	return nil
}

func (c *Config) validateGoogleAdsTransport() error {
	if err := ensurePositiveMap(map[string]int{
		"google_ads.request_timeout":    c.GoogleAds.RequestTimeout,
		"google_ads.retry_backoff_ms":   c.GoogleAds.RetryBackoffMillis,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.GoogleAds.MaxRetries > 10 {
		return errors.New("google_ads.max_retries must be <= 10")
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Run.BudgetSeconds <= 0 {
		return errors.New("run.budget_seconds must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sortStrings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func sortStrings(values []string) {
	for i := 1; i < len(values); i++ {
		for j := i; j > 0 && values[j] < values[j-1]; j-- {
			values[j], values[j-1] = values[j-1], values[j]
		}
	}
}
