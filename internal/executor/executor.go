package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"assetcycle/internal/changes"
	"assetcycle/internal/creative"
	"assetcycle/internal/decision"
	"assetcycle/internal/logging"
	"assetcycle/internal/platform"
	"assetcycle/internal/registry"
	"assetcycle/internal/services"
)

// ErrInterrupted is returned when the context ends mid-execution.
var ErrInterrupted = errors.New("execution interrupted")

// Result is the outcome of one execution attempt.
type Result struct {
	Kind         changes.Outcome
	Success      bool
	Message      string
	AddedAssetID string
}

// Status maps the result onto the change lifecycle. An empty status means
// the change must not transition.
func (r Result) Status() changes.Status {
	switch {
	case r.Kind == changes.OutcomeAlreadyTerminal:
		return ""
	case r.Success:
		return changes.StatusExecuted
	default:
		return changes.StatusFailed
	}
}

// Record converts the result into the persisted form.
func (r Result) Record() changes.Result {
	return changes.Result{Status: r.Status(), Outcome: r.Kind, Message: r.Message, AddedAssetID: r.AddedAssetID}
}

// Registry is the subset of the asset registry the executor reads and updates.
type Registry interface {
	Get(ctx context.Context, id string) (*registry.Asset, error)
	Put(ctx context.Context, asset *registry.Asset) error
	MarkActive(ctx context.Context, id string) error
	MarkPaused(ctx context.Context, id, reason string) error
}

// Executor turns change requests into platform mutations.
type Executor struct {
	rules    decision.Rules
	ads      platform.AdAssets
	creator  platform.AssetCreator
	registry Registry
	logger   *slog.Logger
}

// New constructs an executor.
func New(rules decision.Rules, ads platform.AdAssets, creator platform.AssetCreator, reg Registry, logger *slog.Logger) *Executor {
	return &Executor{
		rules:    rules,
		ads:      ads,
		creator:  creator,
		registry: reg,
		logger:   logging.NewComponentLogger(logger, "executor"),
	}
}

func ok(message string) Result {
	return Result{Kind: changes.OutcomeOK, Success: true, Message: message}
}

func fail(kind changes.Outcome, format string, args ...any) Result {
	return Result{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// interrupted converts context errors into ErrInterrupted.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "execute", "", ErrInterrupted.Error(), errors.Join(ErrInterrupted, ctx.Err()))
	}
	return nil
}

// platformFailure classifies an error from a platform call.
func platformFailure(op string, err error) Result {
	if errors.Is(err, platform.ErrNotFound) {
		return fail(changes.OutcomeAssetNotFound, "%s: %v", op, err)
	}
	return fail(changes.OutcomePlatformRejected, "%s: %v", op, err)
}

// Execute applies one change. Terminal changes are never re-applied.
func (e *Executor) Execute(ctx context.Context, change *changes.Change) (Result, error) {
	if change == nil {
		return fail(changes.OutcomeUnknownAction, "nil change"), nil
	}
	ctx = services.WithChangeID(services.WithCampaignID(ctx, change.CampaignID), change.ID)
	logger := logging.WithContext(ctx, e.logger).With(
		logging.String("action", string(change.Action)),
		logging.String(logging.FieldAdID, change.AdID),
		logging.String(logging.FieldAssetType, string(change.AssetType)),
	)

	if change.Status.Terminal() {
		logger.Info("change already terminal; nothing to do", logging.String("status", string(change.Status)))
		return Result{
			Kind:    changes.OutcomeAlreadyTerminal,
			Success: change.Status == changes.StatusExecuted,
			Message: fmt.Sprintf("change already %s", change.Status),
		}, nil
	}

	var (
		res Result
		err error
	)
	switch change.Action {
	case changes.ActionAdd, changes.ActionReactivate, changes.ActionRemove, changes.ActionReplace:
		res, err = e.execute(ctx, change)
	default:
		res = fail(changes.OutcomeUnknownAction, "unknown action %q", change.Action)
	}
	if err != nil {
		logging.WarnWithContext(logger, "change interrupted; left for next sweep", "change_interrupted",
			logging.Error(err),
			logging.String(logging.FieldImpact, "change status unchanged"),
		)
		return Result{}, err
	}

	attrs := []logging.Attr{
		logging.String("outcome", string(res.Kind)),
		logging.String("message", res.Message),
	}
	if res.AddedAssetID != "" {
		attrs = append(attrs, logging.String("added_asset_id", res.AddedAssetID))
	}
	switch {
	case res.Success:
		logger.Info("change executed", logging.Args(attrs...)...)
	case res.Kind == changes.OutcomePartialReplace:
		logging.WarnWithContext(logger, "replace only half applied; ad holds old and new asset", "partial_replace",
			append(attrs,
				logging.Alert("partial_replace"),
				logging.String(logging.FieldErrorHint, "remove the old asset by hand or queue a REMOVE change"),
				logging.String(logging.FieldImpact, "ad is one asset over the intended count"),
			)...,
		)
	default:
		logging.WarnWithContext(logger, "change failed", "change_failed",
			append(attrs,
				logging.String(logging.FieldErrorHint, hintFor(res.Kind)),
				logging.String(logging.FieldImpact, "ad left unchanged"),
			)...,
		)
	}
	return res, nil
}

func (e *Executor) execute(ctx context.Context, change *changes.Change) (Result, error) {
	enabled, err := e.ads.CampaignEnabled(ctx, change.CampaignID)
	if err != nil {
		if ierr := interrupted(ctx, err); ierr != nil {
			return Result{}, ierr
		}
		return platformFailure("campaign status", err), nil
	}
	if !enabled {
		return fail(changes.OutcomeCampaignDisabled, "campaign %s is not enabled", change.CampaignID), nil
	}

	switch change.Action {
	case changes.ActionAdd, changes.ActionReactivate:
		return e.link(ctx, change)
	case changes.ActionRemove:
		return e.unlink(ctx, change)
	case changes.ActionReplace:
		return e.replace(ctx, change)
	default:
		return fail(changes.OutcomeUnknownAction, "unknown action %q", change.Action), nil
	}
}

func (e *Executor) replace(ctx context.Context, change *changes.Change) (Result, error) {
	target, res, err := e.lookupTarget(ctx, change)
	if err != nil || target == nil {
		return res, err
	}
	ad, res, err := e.read(ctx, change)
	if err != nil || !res.Success {
		return res, err
	}
	if !creative.ContainsRef(ad.Refs(change.AssetType), target.Ref()) {
		return fail(changes.OutcomeAssetNotFound, "replace target %s no longer linked; nothing added", target.ID), nil
	}

	added, err := e.link(ctx, change)
	if err != nil {
		return Result{}, err
	}
	if !added.Success {
		return added, nil
	}

	removed, err := e.unlink(ctx, change)
	if err != nil {
		return Result{}, err
	}
	if removed.Kind != changes.OutcomeOK {
		return Result{
			Kind:         changes.OutcomePartialReplace,
			Message:      fmt.Sprintf("added %s but removing %s failed (%s): %s", added.AddedAssetID, change.CurrentAssetID, removed.Kind, removed.Message),
			AddedAssetID: added.AddedAssetID,
		}, nil
	}
	res = ok(fmt.Sprintf("replaced %s with %s", change.CurrentAssetID, added.AddedAssetID))
	res.AddedAssetID = added.AddedAssetID
	return res, nil
}

// lookupTarget loads the registry record of the asset being unlinked.
func (e *Executor) lookupTarget(ctx context.Context, change *changes.Change) (*registry.Asset, Result, error) {
	target, err := e.registry.Get(ctx, change.CurrentAssetID)
	if err != nil {
		if ierr := interrupted(ctx, err); ierr != nil {
			return nil, Result{}, ierr
		}
		return nil, fail(changes.OutcomePlatformRejected, "registry lookup %s: %v", change.CurrentAssetID, err), nil
	}
	if target == nil {
		return nil, fail(changes.OutcomeAssetNotFound, "asset %s is not in the registry", change.CurrentAssetID), nil
	}
	return target, Result{}, nil
}

// read fetches the ad's collection and checks it is still the ad the change
// was proposed against.
func (e *Executor) read(ctx context.Context, change *changes.Change) (platform.AdCollection, Result, error) {
	ad, err := e.ads.GetAdAssetCollection(ctx, change.CampaignID, change.AdGroupID)
	if err != nil {
		if ierr := interrupted(ctx, err); ierr != nil {
			return ad, Result{}, ierr
		}
		return ad, platformFailure("read ad collection", err), nil
	}
	if change.AdID != "" && ad.AdID != change.AdID {
		return ad, fail(changes.OutcomeAssetNotFound, "ad group %s now holds ad %s, not %s", change.AdGroupID, ad.AdID, change.AdID), nil
	}
	return ad, ok(""), nil
}

// write verifies the collection is unchanged since base was read, then
// replaces the type's field with refs.
func (e *Executor) write(ctx context.Context, change *changes.Change, base []creative.Ref, refs []creative.Ref) (Result, error) {
	if e.rules.VerifyBeforeWrite() {
		fresh, res, err := e.read(ctx, change)
		if err != nil || !res.Success {
			return res, err
		}
		if !creative.SameRefs(fresh.Refs(change.AssetType), base) {
			return fail(changes.OutcomeConcurrentModification, "%s collection on %s changed since it was read", change.AssetType, change.AdID), nil
		}
	}
	if _, err := e.ads.MutateAdAssets(ctx, change.AdID, change.AssetType, refs); err != nil {
		if ierr := interrupted(ctx, err); ierr != nil {
			return Result{}, ierr
		}
		return platformFailure("mutate ad assets", err), nil
	}
	return ok(""), nil
}

func hintFor(kind changes.Outcome) string {
	switch kind {
	case changes.OutcomeLimitExceeded:
		return "adjust rotation.limits or pair the change with an ADD/REMOVE"
	case changes.OutcomeAssetNotFound:
		return "refresh the registry; the asset or ad may have been removed"
	case changes.OutcomeConcurrentModification:
		return "the ad was edited elsewhere; rerun analysis to propose against the new state"
	case changes.OutcomeCampaignDisabled:
		return "enable the campaign or reject the change"
	case changes.OutcomeUnknownAction:
		return "reject the change; the action is not supported"
	default:
		return "inspect the platform error in the change result message"
	}
}

func pauseReason(change *changes.Change) string {
	parts := []string{fmt.Sprintf("removed by change #%d", change.ID)}
	if change.Label != "" {
		parts = append(parts, fmt.Sprintf("%s label", change.Label))
	}
	if change.Impressions > 0 {
		parts = append(parts, fmt.Sprintf("%d impressions", change.Impressions))
	}
	return strings.Join(parts, ", ")
}
