package googleads

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"assetcycle/internal/creative"
	"assetcycle/internal/platform"
)

const gaqlDate = "2006-01-02"

var assetResourceName = regexp.MustCompile(`^customers/\d+/assets/\d+$`)

// int64String decodes int64 values that the REST API serialises as strings.
type int64String int64

func (v *int64String) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*v = 0
		return nil
	}
	parsed, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parse int64 %q: %w", data, err)
	}
	*v = int64String(parsed)
	return nil
}

type searchRequest struct {
	Query     string `json:"query"`
	PageToken string `json:"pageToken,omitempty"`
}

type searchResponse struct {
	Results       []searchRow `json:"results"`
	NextPageToken string      `json:"nextPageToken"`
}

type adTextAsset struct {
	Text string `json:"text"`
}

type adMediaAsset struct {
	Asset string `json:"asset"`
}

type appAd struct {
	Headlines     []adTextAsset  `json:"headlines,omitempty"`
	Descriptions  []adTextAsset  `json:"descriptions,omitempty"`
	Images        []adMediaAsset `json:"images,omitempty"`
	YoutubeVideos []adMediaAsset `json:"youtubeVideos,omitempty"`
}

type searchRow struct {
	Campaign struct {
		ID     int64String `json:"id"`
		Status string      `json:"status"`
	} `json:"campaign"`
	AdGroup struct {
		ID int64String `json:"id"`
	} `json:"adGroup"`
	AdGroupAd struct {
		Ad struct {
			ResourceName string `json:"resourceName"`
			AppAd        appAd  `json:"appAd"`
		} `json:"ad"`
	} `json:"adGroupAd"`
	Asset struct {
		ResourceName string `json:"resourceName"`
		Name         string `json:"name"`
		TextAsset    struct {
			Text string `json:"text"`
		} `json:"textAsset"`
	} `json:"asset"`
	View struct {
		FieldType        string `json:"fieldType"`
		PerformanceLabel string `json:"performanceLabel"`
	} `json:"adGroupAdAssetView"`
	Metrics struct {
		Impressions int64String `json:"impressions"`
		Clicks      int64String `json:"clicks"`
		Conversions float64     `json:"conversions"`
		CostMicros  int64String `json:"costMicros"`
	} `json:"metrics"`
}

func (c *Client) search(ctx context.Context, op, query string) ([]searchRow, error) {
	endpoint := c.customerPath("googleAds:search")
	var rows []searchRow
	req := searchRequest{Query: query}
	for {
		var resp searchResponse
		if err := c.post(ctx, op, endpoint, req, &resp); err != nil {
			return nil, err
		}
		rows = append(rows, resp.Results...)
		if resp.NextPageToken == "" {
			return rows, nil
		}
		req.PageToken = resp.NextPageToken
	}
}

// QueryAssetPerformance returns per-asset metrics for every enabled asset
// link in the campaign over the trailing window.
func (c *Client) QueryAssetPerformance(ctx context.Context, campaignID string, windowDays int) ([]platform.PerformanceRow, error) {
	id, err := numericID(campaignID)
	if err != nil {
		return nil, &platform.Error{Op: "query asset performance", Message: err.Error(), Err: platform.ErrRejected}
	}
	if windowDays <= 0 {
		windowDays = 30
	}
	end := c.now().UTC()
	start := end.AddDate(0, 0, -windowDays)
	query := fmt.Sprintf(`SELECT campaign.id, ad_group.id, ad_group_ad.ad.resource_name, asset.resource_name, asset.name, asset.text_asset.text, ad_group_ad_asset_view.field_type, ad_group_ad_asset_view.performance_label, metrics.impressions, metrics.clicks, metrics.conversions, metrics.cost_micros FROM ad_group_ad_asset_view WHERE campaign.id = %s AND ad_group_ad_asset_view.enabled = TRUE AND segments.date BETWEEN '%s' AND '%s'`,
		id, start.Format(gaqlDate), end.Format(gaqlDate))

	rows, err := c.search(ctx, "query asset performance", query)
	if err != nil {
		return nil, err
	}
	out := make([]platform.PerformanceRow, 0, len(rows))
	for _, row := range rows {
		assetType, ok := fieldAssetType(row.View.FieldType)
		if !ok {
			continue
		}
		out = append(out, platform.PerformanceRow{
			CampaignID:  strconv.FormatInt(int64(row.Campaign.ID), 10),
			AdGroupID:   strconv.FormatInt(int64(row.AdGroup.ID), 10),
			AdID:        row.AdGroupAd.Ad.ResourceName,
			AssetID:     row.Asset.ResourceName,
			AssetType:   assetType,
			Label:       creative.ParseLabel(row.View.PerformanceLabel),
			Impressions: int64(row.Metrics.Impressions),
			Clicks:      int64(row.Metrics.Clicks),
			Conversions: row.Metrics.Conversions,
			CostMicros:  int64(row.Metrics.CostMicros),
			Text:        row.Asset.TextAsset.Text,
			Name:        row.Asset.Name,
		})
	}
	return out, nil
}

// GetAdAssetCollection reads the app ad of an ad group with every asset
// field populated.
func (c *Client) GetAdAssetCollection(ctx context.Context, campaignID, adGroupID string) (platform.AdCollection, error) {
	op := "get ad asset collection"
	cid, err := numericID(campaignID)
	if err != nil {
		return platform.AdCollection{}, &platform.Error{Op: op, Message: err.Error(), Err: platform.ErrRejected}
	}
	gid, err := numericID(adGroupID)
	if err != nil {
		return platform.AdCollection{}, &platform.Error{Op: op, Message: err.Error(), Err: platform.ErrRejected}
	}
	query := fmt.Sprintf(`SELECT ad_group_ad.ad.resource_name, ad_group_ad.ad.app_ad.headlines, ad_group_ad.ad.app_ad.descriptions, ad_group_ad.ad.app_ad.images, ad_group_ad.ad.app_ad.youtube_videos FROM ad_group_ad WHERE campaign.id = %s AND ad_group.id = %s AND ad_group_ad.ad.type = 'APP_AD' AND ad_group_ad.status != 'REMOVED' LIMIT 1`, cid, gid)

	rows, err := c.search(ctx, op, query)
	if err != nil {
		return platform.AdCollection{}, err
	}
	if len(rows) == 0 {
		return platform.AdCollection{}, &platform.Error{Op: op, Message: fmt.Sprintf("no app ad in ad group %s", adGroupID), Err: platform.ErrNotFound}
	}
	ad := rows[0].AdGroupAd.Ad
	return platform.AdCollection{
		CampaignID:   campaignID,
		AdGroupID:    adGroupID,
		AdID:         ad.ResourceName,
		Headlines:    textRefs(ad.AppAd.Headlines),
		Descriptions: textRefs(ad.AppAd.Descriptions),
		Images:       mediaRefs(ad.AppAd.Images),
		Videos:       mediaRefs(ad.AppAd.YoutubeVideos),
	}, nil
}

// CampaignEnabled reports whether the campaign is currently serving.
func (c *Client) CampaignEnabled(ctx context.Context, campaignID string) (bool, error) {
	op := "campaign status"
	id, err := numericID(campaignID)
	if err != nil {
		return false, &platform.Error{Op: op, Message: err.Error(), Err: platform.ErrRejected}
	}
	rows, err := c.search(ctx, op, fmt.Sprintf(`SELECT campaign.id, campaign.status FROM campaign WHERE campaign.id = %s`, id))
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, &platform.Error{Op: op, Message: fmt.Sprintf("campaign %s", campaignID), Err: platform.ErrNotFound}
	}
	return rows[0].Campaign.Status == "ENABLED", nil
}

// LinkedAds lists the live ads whose asset fields still hold the asset.
func (c *Client) LinkedAds(ctx context.Context, asset platform.LinkedAsset) ([]string, error) {
	op := "linked ads"
	if !assetResourceName.MatchString(asset.ID) {
		return nil, &platform.Error{Op: op, Message: fmt.Sprintf("invalid asset resource name %q", asset.ID), Err: platform.ErrRejected}
	}
	query := fmt.Sprintf(`SELECT ad_group_ad.ad.resource_name FROM ad_group_ad_asset_view WHERE asset.resource_name = '%s' AND ad_group_ad_asset_view.enabled = TRUE AND ad_group_ad.status != 'REMOVED'`, asset.ID)

	rows, err := c.search(ctx, op, query)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(rows))
	var ads []string
	for _, row := range rows {
		name := row.AdGroupAd.Ad.ResourceName
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		ads = append(ads, name)
	}
	return ads, nil
}

func fieldAssetType(fieldType string) (creative.AssetType, bool) {
	switch strings.ToUpper(fieldType) {
	case "YOUTUBE_VIDEO":
		return creative.TypeVideo, true
	case "MARKETING_IMAGE", "PORTRAIT_MARKETING_IMAGE", "SQUARE_MARKETING_IMAGE":
		return creative.TypeImage, true
	case "HEADLINE":
		return creative.TypeHeadline, true
	case "DESCRIPTION":
		return creative.TypeDescription, true
	default:
		return "", false
	}
}

func textRefs(assets []adTextAsset) []creative.Ref {
	refs := make([]creative.Ref, 0, len(assets))
	for _, asset := range assets {
		refs = append(refs, creative.Ref{Text: asset.Text})
	}
	return refs
}

func mediaRefs(assets []adMediaAsset) []creative.Ref {
	refs := make([]creative.Ref, 0, len(assets))
	for _, asset := range assets {
		refs = append(refs, creative.Ref{Asset: asset.Asset})
	}
	return refs
}

// numericID guards GAQL literals against injection.
func numericID(value string) (string, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), "-", "")
	if _, err := strconv.ParseUint(value, 10, 64); err != nil {
		return "", fmt.Errorf("invalid id %q", value)
	}
	return value, nil
}
