package workflow

import (
	"time"

	"assetcycle/internal/changes"
	"assetcycle/internal/logging"
	"assetcycle/internal/notifications"
)

// RunError is a campaign-level failure collected during a run.
type RunError struct {
	CampaignID string `json:"campaign_id"`
	Message    string `json:"message"`
	Hint       string `json:"hint,omitempty"`
}

// ItemError is a change that did not execute cleanly.
type ItemError struct {
	ChangeID   int64           `json:"change_id"`
	CampaignID string          `json:"campaign_id"`
	Outcome    changes.Outcome `json:"outcome,omitempty"`
	Message    string          `json:"message"`
}

// ExecutionSummary reports one batch of change executions.
type ExecutionSummary struct {
	RunID           string        `json:"run_id"`
	Attempted       int           `json:"attempted"`
	Executed        int           `json:"executed"`
	Failed          int           `json:"failed"`
	Partial         int           `json:"partial_replace"`
	AlreadyTerminal int           `json:"already_terminal"`
	Interrupted     bool          `json:"interrupted"`
	Remaining       int           `json:"remaining"`
	Duration        time.Duration `json:"duration"`
	Errors          []ItemError   `json:"errors,omitempty"`
}

func (s *ExecutionSummary) interrupt(state *run, remaining int) {
	s.Interrupted = true
	s.Remaining = remaining
	logging.WarnWithContext(state.logger, "run budget exhausted; remaining changes left for next sweep", "budget_exhausted",
		logging.Int("remaining", remaining),
		logging.String(logging.FieldErrorHint, "raise run.budget_seconds or run execute again"),
		logging.String(logging.FieldImpact, "open changes stay queued"),
	)
}

func (s ExecutionSummary) payload() notifications.Payload {
	return notifications.Payload{
		"executed":    s.Executed,
		"failed":      s.Failed,
		"partial":     s.Partial,
		"interrupted": s.Interrupted,
		"remaining":   s.Remaining,
		"duration":    s.Duration,
	}
}

// AnalysisSummary reports one analysis run, including the AUTO changes it
// executed.
type AnalysisSummary struct {
	RunID      string           `json:"run_id"`
	Campaigns  int              `json:"campaigns"`
	Analyzed   int              `json:"analyzed"`
	Proposed   int              `json:"proposed"`
	Auto       int              `json:"auto"`
	Pending    int              `json:"pending"`
	Skipped    int              `json:"skipped"`
	Duplicates int              `json:"duplicates"`
	Anomalies  int              `json:"anomalies"`
	Failures   []RunError       `json:"failures,omitempty"`
	Execution  ExecutionSummary `json:"execution"`
	Duration   time.Duration    `json:"duration"`
}

// NoActionNeeded reports a run that proposed nothing and hit no errors.
func (s AnalysisSummary) NoActionNeeded() bool {
	return s.Proposed == 0 && len(s.Failures) == 0
}

func (s AnalysisSummary) payload() notifications.Payload {
	return notifications.Payload{
		"campaigns":         s.Campaigns,
		"analyzed":          s.Analyzed,
		"campaign_failures": len(s.Failures),
		"proposed":          s.Proposed,
		"auto":              s.Auto,
		"pending":           s.Pending,
		"executed":          s.Execution.Executed,
		"failed":            s.Execution.Failed,
		"partial":           s.Execution.Partial,
	}
}
