package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"assetcycle/internal/creative"
)

var (
	// ErrTransient marks failures that were retried and still failed
	// (rate limiting, 5xx, transport timeouts).
	ErrTransient = errors.New("transient platform failure")
	// ErrRejected marks requests the platform refused.
	ErrRejected = errors.New("platform rejected request")
	// ErrNotFound marks lookups for ads or campaigns that do not exist.
	ErrNotFound = errors.New("platform resource not found")
)

// PerformanceRow is one asset's metrics for the measurement window.
type PerformanceRow struct {
	CampaignID  string
	AdGroupID   string
	AdID        string
	AssetID     string
	AssetType   creative.AssetType
	Label       creative.Label
	Impressions int64
	Clicks      int64
	Conversions float64
	CostMicros  int64
	Text        string
	Name        string
}

// Ref returns the reference the ad holds for the row's asset.
func (r PerformanceRow) Ref() creative.Ref {
	if r.AssetType.IsText() {
		return creative.Ref{Text: r.Text}
	}
	return creative.Ref{Asset: r.AssetID}
}

// AdCollection is a fresh read of every asset field on one app ad.
type AdCollection struct {
	CampaignID   string
	AdGroupID    string
	AdID         string
	Headlines    []creative.Ref
	Descriptions []creative.Ref
	Images       []creative.Ref
	Videos       []creative.Ref
}

// Refs returns the collection for one asset type.
func (c AdCollection) Refs(t creative.AssetType) []creative.Ref {
	var refs []creative.Ref
	switch t {
	case creative.TypeHeadline:
		refs = c.Headlines
	case creative.TypeDescription:
		refs = c.Descriptions
	case creative.TypeImage:
		refs = c.Images
	case creative.TypeVideo:
		refs = c.Videos
	}
	out := make([]creative.Ref, len(refs))
	copy(out, refs)
	return out
}

// WithRefs returns a copy of the collection with one field replaced.
func (c AdCollection) WithRefs(t creative.AssetType, refs []creative.Ref) AdCollection {
	cp := make([]creative.Ref, len(refs))
	copy(cp, refs)
	switch t {
	case creative.TypeHeadline:
		c.Headlines = cp
	case creative.TypeDescription:
		c.Descriptions = cp
	case creative.TypeImage:
		c.Images = cp
	case creative.TypeVideo:
		c.Videos = cp
	}
	return c
}

// MutateResult reports the resource a collection write touched.
type MutateResult struct {
	ResourceName string
}

// CreateResult reports the resource name of a newly created asset.
type CreateResult struct {
	ResourceName string
}

// LinkedAsset names an asset both by resource name and by the reference an
// ad field holds for it. Text assets are held by value.
type LinkedAsset struct {
	ID   string
	Type creative.AssetType
	Ref  creative.Ref
}

// PerformanceSource queries per-asset performance for a campaign.
type PerformanceSource interface {
	QueryAssetPerformance(ctx context.Context, campaignID string, windowDays int) ([]PerformanceRow, error)
}

// AdAssets reads and writes ad asset collections. MutateAdAssets always
// replaces the whole collection of exactly one asset type field.
type AdAssets interface {
	GetAdAssetCollection(ctx context.Context, campaignID, adGroupID string) (AdCollection, error)
	MutateAdAssets(ctx context.Context, adID string, field creative.AssetType, refs []creative.Ref) (MutateResult, error)
	CampaignEnabled(ctx context.Context, campaignID string) (bool, error)
	// LinkedAds lists the ads that currently serve the asset.
	LinkedAds(ctx context.Context, asset LinkedAsset) ([]string, error)
}

// AssetCreator registers new creatives with the platform.
type AssetCreator interface {
	CreateAsset(ctx context.Context, t creative.AssetType, payload creative.Payload) (CreateResult, error)
}

// Client bundles every capability the engine needs.
type Client interface {
	PerformanceSource
	AdAssets
	AssetCreator
}

// Error wraps a structured platform failure.
type Error struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 4)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("http %d", e.StatusCode))
	}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	detail := strings.Join(parts, ": ")
	if e.Err != nil {
		if detail == "" {
			return e.Err.Error()
		}
		return detail + ": " + e.Err.Error()
	}
	return detail
}

func (e *Error) Unwrap() error {
	return e.Err
}
