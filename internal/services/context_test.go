package services_test

import (
	"context"
	"testing"

	"assetcycle/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-123")
	ctx = services.WithPhase(ctx, "execute")
	ctx = services.WithCampaignID(ctx, "42")
	ctx = services.WithChangeID(ctx, 7)

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-123" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if phase, ok := services.PhaseFromContext(ctx); !ok || phase != "execute" {
		t.Fatalf("unexpected phase: %v %v", phase, ok)
	}
	if id, ok := services.CampaignIDFromContext(ctx); !ok || id != "42" {
		t.Fatalf("unexpected campaign id: %v %v", id, ok)
	}
	if id, ok := services.ChangeIDFromContext(ctx); !ok || id != 7 {
		t.Fatalf("unexpected change id: %v %v", id, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPhase(ctx, "")
	ctx = services.WithRunID(ctx, "")
	if _, ok := services.PhaseFromContext(ctx); ok {
		t.Fatal("expected no phase value")
	}
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected no run id value")
	}
	if _, ok := services.ChangeIDFromContext(ctx); ok {
		t.Fatal("expected no change id value")
	}
}
