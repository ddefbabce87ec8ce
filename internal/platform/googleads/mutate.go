package googleads

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"assetcycle/internal/creative"
	"assetcycle/internal/platform"
)

const maxImageBytes = 5 << 20

type mutateResponse struct {
	Results []struct {
		ResourceName string `json:"resourceName"`
	} `json:"results"`
}

// MutateAdAssets replaces one asset field of an ad with refs. The update
// mask names only that field so sibling collections are left untouched.
func (c *Client) MutateAdAssets(ctx context.Context, adID string, field creative.AssetType, refs []creative.Ref) (platform.MutateResult, error) {
	op := "mutate ad assets"
	mask := field.FieldMask()
	if mask == "" {
		return platform.MutateResult{}, &platform.Error{Op: op, Message: fmt.Sprintf("unknown asset field %q", field), Err: platform.ErrRejected}
	}
	key := camelCase(strings.TrimPrefix(mask, "app_ad."))
	items := make([]map[string]string, 0, len(refs))
	for _, ref := range refs {
		if field.IsText() {
			items = append(items, map[string]string{"text": ref.Text})
		} else {
			items = append(items, map[string]string{"asset": ref.Asset})
		}
	}
	payload := map[string]any{
		"operations": []map[string]any{{
			"update": map[string]any{
				"resourceName": c.adResourceName(adID),
				"appAd":        map[string]any{key: items},
			},
			"updateMask": camelMask(mask),
		}},
	}

	var resp mutateResponse
	if err := c.post(ctx, op, c.customerPath("ads:mutate"), payload, &resp); err != nil {
		return platform.MutateResult{}, err
	}
	result := platform.MutateResult{ResourceName: c.adResourceName(adID)}
	if len(resp.Results) > 0 && resp.Results[0].ResourceName != "" {
		result.ResourceName = resp.Results[0].ResourceName
	}
	return result, nil
}

// CreateAsset registers a new creative and returns its resource name.
func (c *Client) CreateAsset(ctx context.Context, t creative.AssetType, payload creative.Payload) (platform.CreateResult, error) {
	op := "create asset"
	if err := payload.Validate(t); err != nil {
		return platform.CreateResult{}, &platform.Error{Op: op, Message: err.Error(), Err: platform.ErrRejected}
	}
	asset := map[string]any{}
	if name := strings.TrimSpace(payload.Name); name != "" {
		asset["name"] = name
	}
	switch t {
	case creative.TypeVideo:
		asset["type"] = "YOUTUBE_VIDEO"
		asset["youtubeVideoAsset"] = map[string]string{"youtubeVideoId": payload.YouTubeVideoID}
	case creative.TypeImage:
		data, err := c.fetchImage(ctx, payload.ImageURL)
		if err != nil {
			return platform.CreateResult{}, &platform.Error{Op: op, Message: "fetch image", Err: fmt.Errorf("%w: %w", platform.ErrRejected, err)}
		}
		asset["type"] = "IMAGE"
		asset["imageAsset"] = map[string]string{"data": base64.StdEncoding.EncodeToString(data)}
	case creative.TypeHeadline, creative.TypeDescription:
		asset["type"] = "TEXT"
		asset["textAsset"] = map[string]string{"text": payload.Text}
	}

	body := map[string]any{"operations": []map[string]any{{"create": asset}}}
	var resp mutateResponse
	if err := c.post(ctx, op, c.customerPath("assets:mutate"), body, &resp); err != nil {
		return platform.CreateResult{}, err
	}
	if len(resp.Results) == 0 || resp.Results[0].ResourceName == "" {
		return platform.CreateResult{}, &platform.Error{Op: op, Message: "empty mutate response", Err: platform.ErrRejected}
	}
	return platform.CreateResult{ResourceName: resp.Results[0].ResourceName}, nil
}

func (c *Client) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return data, nil
}

func (c *Client) adResourceName(adID string) string {
	if strings.HasPrefix(adID, "customers/") {
		return adID
	}
	return fmt.Sprintf("customers/%s/ads/%s", c.customerID, adID)
}

func camelMask(mask string) string {
	parts := strings.Split(mask, ".")
	for i, part := range parts {
		parts[i] = camelCase(part)
	}
	return strings.Join(parts, ".")
}

func camelCase(snake string) string {
	words := strings.Split(snake, "_")
	for i := 1; i < len(words); i++ {
		if words[i] != "" {
			words[i] = strings.ToUpper(words[i][:1]) + words[i][1:]
		}
	}
	return strings.Join(words, "")
}
