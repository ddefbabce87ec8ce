package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"assetcycle/internal/creative"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Asset is the registry record for one creative asset.
type Asset struct {
	ID                 string               `json:"id" validate:"required"`
	Type               creative.AssetType   `json:"type" validate:"required,oneof=VIDEO IMAGE HEADLINE DESCRIPTION"`
	SourceType         creative.SourceType  `json:"source_type" validate:"required,oneof=PLATFORM_NATIVE EXTERNAL_VIDEO EXTERNAL_IMAGE REGISTRY_REUSE"`
	SourceID           string               `json:"source_id,omitempty"`
	Concept            string               `json:"concept,omitempty"`
	Name               string               `json:"name,omitempty"`
	Text               string               `json:"text,omitempty"`
	Status             creative.AssetStatus `json:"status" validate:"required,oneof=ACTIVE PAUSED"`
	BestPerformance    creative.Label       `json:"best_performance"`
	CurrentPerformance creative.Label       `json:"current_performance"`
	TimesActivated     int                  `json:"times_activated" validate:"gte=0"`
	TotalImpressions   int64                `json:"total_impressions" validate:"gte=0"`
	PauseReason        string               `json:"pause_reason,omitempty"`
	Archived           bool                 `json:"archived"`
	FirstSeenAt        time.Time            `json:"first_seen_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
	LastActivatedAt    *time.Time           `json:"last_activated_at,omitempty"`
	PausedAt           *time.Time           `json:"paused_at,omitempty"`
}

// Validate checks the record before it is written.
func (a *Asset) Validate() error {
	if a == nil {
		return fmt.Errorf("asset is nil")
	}
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("invalid asset %q: %w", a.ID, err)
	}
	if a.Type.IsText() && strings.TrimSpace(a.Text) == "" {
		return fmt.Errorf("invalid asset %q: %s assets need text", a.ID, a.Type)
	}
	if _, ok := a.BestPerformance.Rank(); !ok && a.BestPerformance != "" {
		return fmt.Errorf("invalid asset %q: best performance %s is not a ranked label", a.ID, a.BestPerformance)
	}
	return nil
}

// Ref returns the reference an ad collection holds for this asset.
func (a *Asset) Ref() creative.Ref {
	if a.Type.IsText() {
		return creative.Ref{Text: a.Text}
	}
	return creative.Ref{Asset: a.ID}
}

// Observation is one performance sample folded into the registry.
type Observation struct {
	AssetID     string
	Type        creative.AssetType
	Label       creative.Label
	Impressions int64
	Text        string
	Name        string
	At          time.Time
}

// ProtectionKind selects what a protection matches against.
type ProtectionKind string

const (
	ProtectConcept ProtectionKind = "concept"
	ProtectSource  ProtectionKind = "source"
)

// ParseProtectionKind converts a string into a ProtectionKind.
func ParseProtectionKind(value string) (ProtectionKind, error) {
	switch k := ProtectionKind(strings.ToLower(strings.TrimSpace(value))); k {
	case ProtectConcept, ProtectSource:
		return k, nil
	default:
		return "", fmt.Errorf("unknown protection kind %q (want concept or source)", value)
	}
}

// Protection excludes matching assets from replacement searches.
type Protection struct {
	Kind      ProtectionKind `json:"kind"`
	Value     string         `json:"value"`
	Reason    string         `json:"reason,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter narrows Query results. Zero values match everything.
type Filter struct {
	Type            creative.AssetType
	Status          creative.AssetStatus
	IncludeArchived bool
}

// CandidateQuery describes a replacement search.
type CandidateQuery struct {
	Type creative.AssetType
	// Labels lists the acceptable best-ever labels.
	Labels []creative.Label
}
