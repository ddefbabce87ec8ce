package platform_test

import (
	"errors"
	"strings"
	"testing"

	"assetcycle/internal/creative"
	"assetcycle/internal/platform"
)

func TestErrorUnwrapsMarker(t *testing.T) {
	err := &platform.Error{Op: "mutate ad", StatusCode: 400, Code: "MEDIA_INCOMPATIBLE", Message: "aspect ratio", Err: platform.ErrRejected}
	if !errors.Is(err, platform.ErrRejected) {
		t.Fatal("expected ErrRejected in chain")
	}
	for _, fragment := range []string{"mutate ad", "http 400", "MEDIA_INCOMPATIBLE", "aspect ratio"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in %q", fragment, err.Error())
		}
	}
}

func TestCollectionRefsAreCopies(t *testing.T) {
	c := platform.AdCollection{Images: []creative.Ref{{Asset: "a"}}}
	refs := c.Refs(creative.TypeImage)
	refs[0] = creative.Ref{Asset: "b"}
	if c.Images[0].Asset != "a" {
		t.Fatal("Refs must not alias the collection")
	}
	updated := c.WithRefs(creative.TypeImage, append(refs, creative.Ref{Asset: "c"}))
	if len(updated.Images) != 2 || len(c.Images) != 1 {
		t.Fatalf("WithRefs must not mutate the receiver: %v %v", updated.Images, c.Images)
	}
}

func TestPerformanceRowRef(t *testing.T) {
	text := platform.PerformanceRow{AssetID: "customers/1/assets/5", AssetType: creative.TypeHeadline, Text: "Play free"}
	if text.Ref() != (creative.Ref{Text: "Play free"}) {
		t.Fatalf("unexpected text ref %v", text.Ref())
	}
	video := platform.PerformanceRow{AssetID: "customers/1/assets/6", AssetType: creative.TypeVideo}
	if video.Ref() != (creative.Ref{Asset: "customers/1/assets/6"}) {
		t.Fatalf("unexpected video ref %v", video.Ref())
	}
}
