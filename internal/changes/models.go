package changes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"assetcycle/internal/creative"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Action is the mutation a change request applies to an ad.
type Action string

const (
	ActionAdd        Action = "ADD"
	ActionRemove     Action = "REMOVE"
	ActionReplace    Action = "REPLACE"
	ActionReactivate Action = "REACTIVATE"
)

// ParseAction converts a string into a known Action.
func ParseAction(value string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(value))); a {
	case ActionAdd, ActionRemove, ActionReplace, ActionReactivate:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", value)
	}
}

// TargetsExisting reports whether the action unlinks CurrentAssetID.
func (a Action) TargetsExisting() bool {
	return a == ActionRemove || a == ActionReplace
}

// LinksNew reports whether the action links NewAsset.
func (a Action) LinksNew() bool {
	return a == ActionAdd || a == ActionReplace || a == ActionReactivate
}

// ApprovalMode selects whether a change waits for a reviewer.
type ApprovalMode string

const (
	ApprovalAuto    ApprovalMode = "AUTO"
	ApprovalPending ApprovalMode = "PENDING"
)

// Status is the lifecycle state of a change request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusExecuted Status = "EXECUTED"
	StatusFailed   Status = "FAILED"
)

var allStatuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusExecuted, StatusFailed}

// AllStatuses returns the statuses in lifecycle order.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, error) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if s == normalized {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", value)
}

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusRejected || s == StatusFailed
}

// Open reports whether the change still awaits review or execution.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusApproved
}

// Outcome classifies the last execution attempt.
type Outcome string

const (
	OutcomeOK                     Outcome = "ok"
	OutcomeLimitExceeded          Outcome = "limit_exceeded"
	OutcomeAssetNotFound          Outcome = "asset_not_found"
	OutcomePlatformRejected       Outcome = "platform_rejected"
	OutcomePartialReplace         Outcome = "partial_replace"
	OutcomeUnknownAction          Outcome = "unknown_action"
	OutcomeCampaignDisabled       Outcome = "campaign_disabled"
	OutcomeConcurrentModification Outcome = "concurrent_modification"
	OutcomeAlreadyTerminal        Outcome = "already_terminal"
)

// SourceKind says where the asset linked by a change comes from.
type SourceKind string

const (
	SourcePlatformNative SourceKind = "PLATFORM_NATIVE"
	SourceRegistryReuse  SourceKind = "REGISTRY_REUSE"
	SourceExternal       SourceKind = "EXTERNAL"
)

// Source identifies the asset a change links. PLATFORM_NATIVE and
// REGISTRY_REUSE sources name an existing asset by ID; EXTERNAL sources carry
// the payload needed to create one.
type Source struct {
	Kind    SourceKind        `json:"kind" validate:"required,oneof=PLATFORM_NATIVE REGISTRY_REUSE EXTERNAL"`
	ID      string            `json:"id,omitempty"`
	Payload *creative.Payload `json:"payload,omitempty"`
}

// Describe renders the source for listings and the review workbook.
func (s *Source) Describe() string {
	if s == nil {
		return ""
	}
	if s.Kind != SourceExternal || s.Payload == nil {
		return fmt.Sprintf("%s %s", s.Kind, s.ID)
	}
	p := s.Payload
	for _, v := range []string{p.YouTubeVideoID, p.ImageURL, p.Text} {
		if strings.TrimSpace(v) != "" {
			return fmt.Sprintf("%s %s", s.Kind, v)
		}
	}
	return string(s.Kind)
}

// Change is one persisted change request.
type Change struct {
	ID             int64              `json:"id"`
	RunID          string             `json:"run_id,omitempty"`
	CampaignID     string             `json:"campaign_id" validate:"required"`
	AdGroupID      string             `json:"ad_group_id" validate:"required"`
	AdID           string             `json:"ad_id" validate:"required"`
	AssetType      creative.AssetType `json:"asset_type" validate:"required,oneof=VIDEO IMAGE HEADLINE DESCRIPTION"`
	Action         Action             `json:"action" validate:"required"`
	CurrentAssetID string             `json:"current_asset_id,omitempty"`
	NewAsset       *Source            `json:"new_asset,omitempty"`
	ApprovalMode   ApprovalMode       `json:"approval_mode" validate:"required,oneof=AUTO PENDING"`
	Status         Status             `json:"status"`
	Outcome        Outcome            `json:"outcome,omitempty"`
	Reason         string             `json:"reason" validate:"required"`
	Label          creative.Label     `json:"label,omitempty"`
	Impressions    int64              `json:"impressions" validate:"gte=0"`
	Snapshot       []creative.Ref     `json:"snapshot,omitempty"`
	ReviewerNote   string             `json:"reviewer_note,omitempty"`
	ResultMessage  string             `json:"result_message,omitempty"`
	AddedAssetID   string             `json:"added_asset_id,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	ReviewedAt     *time.Time         `json:"reviewed_at,omitempty"`
	ExecutedAt     *time.Time         `json:"executed_at,omitempty"`
}

// Executable reports whether an execution sweep should pick the change up.
func (c *Change) Executable() bool {
	return c.Status == StatusApproved || (c.Status == StatusPending && c.ApprovalMode == ApprovalAuto)
}

// NewAssetID returns the ID of the asset being linked, if known.
func (c *Change) NewAssetID() string {
	if c.NewAsset == nil {
		return ""
	}
	return c.NewAsset.ID
}

// Validate checks a change before it is appended. Unknown actions are left to
// the executor, which reports them as unknown_action.
func (c *Change) Validate() error {
	if c == nil {
		return errors.New("change is nil")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid change: %w", err)
	}
	if strings.TrimSpace(c.Reason) == "" {
		return errors.New("invalid change: reason is blank")
	}
	if c.Action.TargetsExisting() && strings.TrimSpace(c.CurrentAssetID) == "" {
		return fmt.Errorf("invalid change: %s needs current_asset_id", c.Action)
	}
	if c.Action == ActionAdd || c.Action == ActionReactivate {
		if c.CurrentAssetID != "" {
			return fmt.Errorf("invalid change: %s must not name current_asset_id", c.Action)
		}
	}
	if c.Action.LinksNew() {
		if c.NewAsset == nil {
			return fmt.Errorf("invalid change: %s needs new_asset", c.Action)
		}
		if err := c.NewAsset.validate(c.AssetType); err != nil {
			return fmt.Errorf("invalid change: %w", err)
		}
		if c.Action == ActionReactivate && c.NewAsset.Kind != SourceRegistryReuse {
			return errors.New("invalid change: REACTIVATE links a registry asset")
		}
	}
	return nil
}

func (s *Source) validate(t creative.AssetType) error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	switch s.Kind {
	case SourceExternal:
		if s.Payload == nil {
			return errors.New("EXTERNAL source needs a payload")
		}
		return s.Payload.Validate(t)
	default:
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("%s source needs an asset id", s.Kind)
		}
	}
	return nil
}

// Result is the outcome of one execution attempt as persisted by UpdateStatus.
type Result struct {
	Status       Status
	Outcome      Outcome
	Message      string
	AddedAssetID string
}

// ListFilter narrows List results.
type ListFilter struct {
	Statuses   []Status
	CampaignID string
	Limit      int
}
