package creative

import (
	"fmt"
	"strings"
)

// AssetType identifies which asset field of an app ad a creative belongs to.
type AssetType string

const (
	TypeVideo       AssetType = "VIDEO"
	TypeImage       AssetType = "IMAGE"
	TypeHeadline    AssetType = "HEADLINE"
	TypeDescription AssetType = "DESCRIPTION"
)

var allTypes = []AssetType{TypeVideo, TypeImage, TypeHeadline, TypeDescription}

// AllTypes returns the known asset types in display order.
func AllTypes() []AssetType {
	cp := make([]AssetType, len(allTypes))
	copy(cp, allTypes)
	return cp
}

// ParseAssetType converts a string into a known AssetType.
func ParseAssetType(value string) (AssetType, error) {
	switch AssetType(strings.ToUpper(strings.TrimSpace(value))) {
	case TypeVideo, "YOUTUBE_VIDEO":
		return TypeVideo, nil
	case TypeImage:
		return TypeImage, nil
	case TypeHeadline:
		return TypeHeadline, nil
	case TypeDescription:
		return TypeDescription, nil
	default:
		return "", fmt.Errorf("unknown asset type %q", value)
	}
}

// IsText reports whether the asset is linked by literal text rather than by
// asset resource name.
func (t AssetType) IsText() bool {
	return t == TypeHeadline || t == TypeDescription
}

// FieldMask returns the app ad field that holds assets of this type. Every
// collection write declares exactly this field and nothing else.
func (t AssetType) FieldMask() string {
	switch t {
	case TypeVideo:
		return "app_ad.youtube_videos"
	case TypeImage:
		return "app_ad.images"
	case TypeHeadline:
		return "app_ad.headlines"
	case TypeDescription:
		return "app_ad.descriptions"
	default:
		return ""
	}
}

// SourceType records where a registry asset came from.
type SourceType string

const (
	SourcePlatformNative SourceType = "PLATFORM_NATIVE"
	SourceExternalVideo  SourceType = "EXTERNAL_VIDEO"
	SourceExternalImage  SourceType = "EXTERNAL_IMAGE"
	SourceRegistryReuse  SourceType = "REGISTRY_REUSE"
)

// ParseSourceType converts a string into a known SourceType.
func ParseSourceType(value string) (SourceType, error) {
	switch s := SourceType(strings.ToUpper(strings.TrimSpace(value))); s {
	case SourcePlatformNative, SourceExternalVideo, SourceExternalImage, SourceRegistryReuse:
		return s, nil
	case "":
		return SourcePlatformNative, nil
	default:
		return "", fmt.Errorf("unknown source type %q", value)
	}
}

// AssetStatus is the registry-level liveness of an asset.
type AssetStatus string

const (
	StatusActive AssetStatus = "ACTIVE"
	StatusPaused AssetStatus = "PAUSED"
)

// ParseAssetStatus converts a string into a known AssetStatus.
func ParseAssetStatus(value string) (AssetStatus, error) {
	switch s := AssetStatus(strings.ToUpper(strings.TrimSpace(value))); s {
	case StatusActive, StatusPaused:
		return s, nil
	default:
		return "", fmt.Errorf("unknown asset status %q", value)
	}
}

// Ref is an opaque asset reference as held in an ad's asset collection.
// Media assets are linked by resource name, text assets by their literal text.
type Ref struct {
	Asset string `json:"asset,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Key returns the comparison key for the reference.
func (r Ref) Key() string {
	if r.Asset != "" {
		return r.Asset
	}
	return "text:" + r.Text
}

// IsZero reports whether the reference is empty.
func (r Ref) IsZero() bool {
	return r.Asset == "" && r.Text == ""
}

func (r Ref) String() string {
	if r.Asset != "" {
		return r.Asset
	}
	return fmt.Sprintf("%q", r.Text)
}

// ContainsRef reports whether refs holds a reference equal to target.
func ContainsRef(refs []Ref, target Ref) bool {
	key := target.Key()
	for _, ref := range refs {
		if ref.Key() == key {
			return true
		}
	}
	return false
}

// SameRefs reports whether two collections hold the same references in the
// same order.
func SameRefs(a, b []Ref) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key() != b[i].Key() {
			return false
		}
	}
	return true
}

// Payload describes a creative that does not exist on the platform yet.
type Payload struct {
	Name           string `json:"name,omitempty"`
	YouTubeVideoID string `json:"youtube_video_id,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	Text           string `json:"text,omitempty"`
	Concept        string `json:"concept,omitempty"`
	SourceID       string `json:"source_id,omitempty"`
}

// Validate checks that the payload carries the content its asset type needs.
func (p Payload) Validate(t AssetType) error {
	switch t {
	case TypeVideo:
		if strings.TrimSpace(p.YouTubeVideoID) == "" {
			return fmt.Errorf("video payload needs a YouTube video id")
		}
	case TypeImage:
		if strings.TrimSpace(p.ImageURL) == "" {
			return fmt.Errorf("image payload needs an image url")
		}
	case TypeHeadline, TypeDescription:
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("%s payload needs text", strings.ToLower(string(t)))
		}
	default:
		return fmt.Errorf("unknown asset type %q", t)
	}
	return nil
}
