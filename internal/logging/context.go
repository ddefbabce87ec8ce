package logging

import (
	"context"
	"log/slog"

	"assetcycle/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for batch run identifiers.
	FieldRunID = "run_id"
	// FieldPhase is the standardized structured logging key for run phases (analyze, execute).
	FieldPhase = "phase"
	// FieldCampaignID is the standardized structured logging key for campaign identifiers.
	FieldCampaignID = "campaign_id"
	// FieldChangeID is the standardized structured logging key for change request identifiers.
	FieldChangeID = "change_id"
	// FieldAdID is the standardized structured logging key for ad resource identifiers.
	FieldAdID = "ad_id"
	// FieldAssetID is the standardized structured logging key for asset resource names.
	FieldAssetID = "asset_id"
	// FieldAssetType is the standardized structured logging key for asset types.
	FieldAssetType = "asset_type"
	// FieldEventType classifies a log line for filtering (e.g. change_failed).
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if phase, ok := services.PhaseFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPhase, phase))
	}
	if id, ok := services.CampaignIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCampaignID, id))
	}
	if id, ok := services.ChangeIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldChangeID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
