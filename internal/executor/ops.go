package executor

import (
	"context"
	"fmt"
	"strings"

	"assetcycle/internal/changes"
	"assetcycle/internal/creative"
	"assetcycle/internal/logging"
	"assetcycle/internal/platform"
	"assetcycle/internal/registry"
)

// link appends the change's new asset to the ad (ADD, REACTIVATE and the
// first half of REPLACE).
func (e *Executor) link(ctx context.Context, change *changes.Change) (Result, error) {
	if change.NewAsset == nil {
		return fail(changes.OutcomeAssetNotFound, "%s without a new asset", change.Action), nil
	}

	var existing *registry.Asset
	switch change.NewAsset.Kind {
	case changes.SourceRegistryReuse, changes.SourcePlatformNative:
		asset, res, err := e.lookupNew(ctx, change)
		if err != nil || asset == nil {
			return res, err
		}
		existing = asset
	case changes.SourceExternal:
		if change.NewAsset.Payload == nil {
			return fail(changes.OutcomeAssetNotFound, "external source without payload"), nil
		}
	default:
		return fail(changes.OutcomeUnknownAction, "unknown source kind %q", change.NewAsset.Kind), nil
	}

	ad, res, err := e.read(ctx, change)
	if err != nil || !res.Success {
		return res, err
	}
	current := ad.Refs(change.AssetType)

	if existing != nil && creative.ContainsRef(current, existing.Ref()) {
		res := ok(fmt.Sprintf("%s already linked", existing.ID))
		res.AddedAssetID = existing.ID
		return res, nil
	}

	limits := e.rules.LimitsFor(change.AssetType)
	if len(current) >= limits.Max {
		return fail(changes.OutcomeLimitExceeded, "%s holds %d %s assets, maximum is %d", change.AdID, len(current), change.AssetType, limits.Max), nil
	}

	if existing == nil {
		created, res, err := e.create(ctx, change)
		if err != nil || created == nil {
			return res, err
		}
		existing = created
	}

	next := append(append([]creative.Ref(nil), current...), existing.Ref())
	res, err = e.write(ctx, change, current, next)
	if err != nil || !res.Success {
		return res, err
	}

	if err := e.registry.MarkActive(ctx, existing.ID); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "registry activation not recorded", "registry_update_failed",
			logging.String(logging.FieldAssetID, existing.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "times_activated may be low by one"),
		)
	}
	res = ok(fmt.Sprintf("linked %s (%d -> %d %s assets)", existing.ID, len(current), len(next), change.AssetType))
	res.AddedAssetID = existing.ID
	return res, nil
}

// lookupNew resolves a registry-backed source.
func (e *Executor) lookupNew(ctx context.Context, change *changes.Change) (*registry.Asset, Result, error) {
	id := change.NewAsset.ID
	asset, err := e.registry.Get(ctx, id)
	if err != nil {
		if ierr := interrupted(ctx, err); ierr != nil {
			return nil, Result{}, ierr
		}
		return nil, fail(changes.OutcomePlatformRejected, "registry lookup %s: %v", id, err), nil
	}
	if asset == nil {
		return nil, fail(changes.OutcomeAssetNotFound, "asset %s is not in the registry", id), nil
	}
	if asset.Type != change.AssetType {
		return nil, fail(changes.OutcomeAssetNotFound, "asset %s is %s, change targets %s", id, asset.Type, change.AssetType), nil
	}
	if change.Action == changes.ActionReactivate && asset.Status != creative.StatusPaused {
		return nil, fail(changes.OutcomeAssetNotFound, "asset %s is %s, only paused assets can be reactivated", id, asset.Status), nil
	}
	return asset, Result{}, nil
}

// create registers an external creative with the platform and records it in
// the registry as paused until the link succeeds.
func (e *Executor) create(ctx context.Context, change *changes.Change) (*registry.Asset, Result, error) {
	payload := *change.NewAsset.Payload
	created, err := e.creator.CreateAsset(ctx, change.AssetType, payload)
	if err != nil {
		if ierr := interrupted(ctx, err); ierr != nil {
			return nil, Result{}, ierr
		}
		return nil, platformFailure("create asset", err), nil
	}
	asset := &registry.Asset{
		ID:              created.ResourceName,
		Type:            change.AssetType,
		SourceType:      externalSourceType(change.AssetType),
		SourceID:        firstNonEmpty(payload.SourceID, payload.YouTubeVideoID, payload.ImageURL),
		Concept:         payload.Concept,
		Name:            payload.Name,
		Text:            payload.Text,
		Status:          creative.StatusPaused,
		BestPerformance: creative.LabelUnknown,
	}
	if err := e.registry.Put(ctx, asset); err != nil {
		return nil, fail(changes.OutcomePlatformRejected, "record created asset %s: %v", asset.ID, err), nil
	}
	return asset, Result{}, nil
}

func externalSourceType(t creative.AssetType) creative.SourceType {
	switch t {
	case creative.TypeVideo:
		return creative.SourceExternalVideo
	case creative.TypeImage:
		return creative.SourceExternalImage
	default:
		return creative.SourcePlatformNative
	}
}

// unlink removes the change's target from the ad (REMOVE and the second half
// of REPLACE). A target already gone reports asset_not_found with Success set.
func (e *Executor) unlink(ctx context.Context, change *changes.Change) (Result, error) {
	target, res, err := e.lookupTarget(ctx, change)
	if err != nil || target == nil {
		return res, err
	}
	ad, res, err := e.read(ctx, change)
	if err != nil || !res.Success {
		return res, err
	}
	current := ad.Refs(change.AssetType)
	ref := target.Ref()
	if !creative.ContainsRef(current, ref) {
		return Result{
			Kind:    changes.OutcomeAssetNotFound,
			Success: true,
			Message: fmt.Sprintf("%s no longer linked to %s; already resolved", target.ID, change.AdID),
		}, nil
	}

	limits := e.rules.LimitsFor(change.AssetType)
	if len(current)-1 < limits.Min {
		return fail(changes.OutcomeLimitExceeded, "%s holds %d %s assets, minimum is %d", change.AdID, len(current), change.AssetType, limits.Min), nil
	}

	next := make([]creative.Ref, 0, len(current)-1)
	for _, r := range current {
		if r.Key() != ref.Key() {
			next = append(next, r)
		}
	}
	res, err = e.write(ctx, change, current, next)
	if err != nil || !res.Success {
		return res, err
	}

	e.pauseUnlessLinked(ctx, change, target)
	return ok(fmt.Sprintf("unlinked %s (%d -> %d %s assets)", target.ID, len(current), len(next), change.AssetType)), nil
}

// pauseUnlessLinked records the unlinked asset as paused unless another ad
// still serves it. The ad write has already succeeded, so failures here only
// leave the registry stale.
func (e *Executor) pauseUnlessLinked(ctx context.Context, change *changes.Change, target *registry.Asset) {
	logger := logging.WithContext(ctx, e.logger)
	linked, err := e.ads.LinkedAds(ctx, platform.LinkedAsset{ID: target.ID, Type: change.AssetType, Ref: target.Ref()})
	if err != nil {
		logging.WarnWithContext(logger, "could not check other ads; registry pause skipped", "registry_update_failed",
			logging.String(logging.FieldAssetID, target.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "registry still lists the asset as active"),
		)
		return
	}
	for _, adID := range linked {
		if adID != change.AdID {
			logger.Info("asset still linked elsewhere; left active",
				logging.String(logging.FieldAssetID, target.ID),
				logging.String("linked_ad_id", adID),
			)
			return
		}
	}

	if err := e.registry.MarkPaused(ctx, target.ID, pauseReason(change)); err != nil {
		logging.WarnWithContext(logger, "registry pause not recorded", "registry_update_failed",
			logging.String(logging.FieldAssetID, target.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "registry still lists the asset as active"),
		)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
