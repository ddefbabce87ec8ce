package services

import "context"

type contextKey string

const (
	runIDKey      contextKey = "run_id"
	phaseKey      contextKey = "phase"
	campaignIDKey contextKey = "campaign_id"
	changeIDKey   contextKey = "change_id"
)

// WithRunID annotates context with the batch run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the batch run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPhase annotates context with the run phase (analyze, execute).
func WithPhase(ctx context.Context, phase string) context.Context {
	if phase == "" {
		return ctx
	}
	return context.WithValue(ctx, phaseKey, phase)
}

// PhaseFromContext returns the run phase if present.
func PhaseFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(phaseKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithCampaignID annotates context with the campaign being processed.
func WithCampaignID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, campaignIDKey, id)
}

// CampaignIDFromContext returns the campaign identifier if present.
func CampaignIDFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(campaignIDKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithChangeID annotates context with the change request identifier.
func WithChangeID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, changeIDKey, id)
}

// ChangeIDFromContext extracts the change request identifier if present.
func ChangeIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(changeIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}
