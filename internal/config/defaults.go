package config

const (
	defaultDataDir              = "~/.local/share/assetcycle"
	defaultLogDir               = "~/.local/share/assetcycle/logs"
	defaultReviewDir            = "~/.local/share/assetcycle/review"
	defaultGoogleAdsBaseURL     = "https://googleads.googleapis.com"
	defaultGoogleAdsAPIVersion  = "v17"
	defaultGoogleAdsTimeout     = 30
	defaultRequestsPerSecond    = 5
	defaultMaxRetries           = 3
	defaultRetryBackoffMillis   = 500
	defaultMinImpressions       = 1000
	defaultWindowDays           = 30
	defaultRunBudgetSeconds     = 1500
	defaultNotifyRequestTimeout = 10
	defaultWorkbookName         = "change_requests.xlsx"
	defaultSheetName            = "Changes"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

func defaultLimits() map[string]TypeLimits {
	return map[string]TypeLimits{
		"VIDEO":       {Min: 0, Max: 20},
		"IMAGE":       {Min: 1, Max: 20},
		"HEADLINE":    {Min: 1, Max: 5},
		"DESCRIPTION": {Min: 1, Max: 5},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			ReviewDir: defaultReviewDir,
		},
		GoogleAds: GoogleAds{
			BaseURL:            defaultGoogleAdsBaseURL,
			APIVersion:         defaultGoogleAdsAPIVersion,
			RequestTimeout:     defaultGoogleAdsTimeout,
			RequestsPerSecond:  defaultRequestsPerSecond,
			MaxRetries:         defaultMaxRetries,
			RetryBackoffMillis: defaultRetryBackoffMillis,
		},
		Rotation: Rotation{
			MinImpressions:       defaultMinImpressions,
			WindowDays:           defaultWindowDays,
			UntouchableLabels:    []string{"PENDING", "LEARNING", "BEST"},
			AutoRemoveLabels:     []string{"LOW"},
			ManualApprovalLabels: []string{"GOOD"},
			AutoAddReplacement:   true,
			VerifyBeforeWrite:    true,
		},
		Run: Run{
			BudgetSeconds: defaultRunBudgetSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Analysis:       true,
			Execution:      true,
			Approvals:      true,
			Errors:         true,
		},
		Review: Review{
			WorkbookName: defaultWorkbookName,
			SheetName:    defaultSheetName,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
