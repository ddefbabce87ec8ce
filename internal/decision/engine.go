package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"assetcycle/internal/changes"
	"assetcycle/internal/config"
	"assetcycle/internal/creative"
	"assetcycle/internal/logging"
	"assetcycle/internal/platform"
	"assetcycle/internal/registry"
	"assetcycle/internal/services"
)

// Kind is the action a classification settles on.
type Kind string

const (
	KindSkip    Kind = "SKIP"
	KindRemove  Kind = "REMOVE"
	KindReplace Kind = "REPLACE"
)

// Decision is the result of classifying one asset.
type Decision struct {
	Kind        Kind
	Mode        changes.ApprovalMode
	Replacement *registry.Asset
	// Note explains a SKIP or names the rule that fired.
	Note    string
	Anomaly bool
}

// Registry is the subset of the asset registry the engine reads and syncs.
type Registry interface {
	Observe(ctx context.Context, obs registry.Observation) (*registry.Asset, error)
	Candidates(ctx context.Context, q registry.CandidateQuery) ([]*registry.Asset, error)
}

// OpenChanges answers questions about undecided changes: whether an ad
// already has one for an asset, and which registry assets they will link.
type OpenChanges interface {
	HasOpen(ctx context.Context, adID, assetID string) (bool, error)
	ReservedAssets(ctx context.Context) ([]string, error)
}

// CollectionReader reads ad asset collections.
type CollectionReader interface {
	GetAdAssetCollection(ctx context.Context, campaignID, adGroupID string) (platform.AdCollection, error)
}

// Engine classifies live assets and builds change proposals.
type Engine struct {
	rules    Rules
	perf     platform.PerformanceSource
	ads      CollectionReader
	registry Registry
	open     OpenChanges
	logger   *slog.Logger
	printer  *message.Printer
}

// NewEngine constructs an engine. open may be nil to disable duplicate checks.
func NewEngine(rules Rules, perf platform.PerformanceSource, ads CollectionReader, reg Registry, open OpenChanges, logger *slog.Logger) *Engine {
	return &Engine{
		rules:    rules,
		perf:     perf,
		ads:      ads,
		registry: reg,
		open:     open,
		logger:   logging.NewComponentLogger(logger, "decision"),
		printer:  message.NewPrinter(language.English),
	}
}

// reservations tracks replacement candidates already promised to a proposal
// in the current run.
type reservations map[string]struct{}

func (r reservations) has(id string) bool {
	_, ok := r[id]
	return ok
}

// Classify decides what to do with one asset given the ad's current
// collection for the asset's type.
func (e *Engine) Classify(ctx context.Context, row platform.PerformanceRow, snapshot []creative.Ref) (Decision, error) {
	return e.classify(ctx, row, snapshot, reservations{})
}

func (e *Engine) classify(ctx context.Context, row platform.PerformanceRow, snapshot []creative.Ref, reserved reservations) (Decision, error) {
	label := row.Label
	switch {
	case e.rules.Untouchable(label):
		return Decision{Kind: KindSkip, Note: fmt.Sprintf("%s is untouchable", label)}, nil

	case e.rules.AutoRemove(label):
		if row.Impressions < e.rules.MinImpressions() {
			return Decision{Kind: KindSkip, Note: e.printer.Sprintf("%d impressions below threshold %d", row.Impressions, e.rules.MinImpressions())}, nil
		}
		decision := Decision{Kind: KindRemove, Mode: changes.ApprovalAuto, Note: "auto-remove"}
		if !e.rules.AutoAddReplacement() {
			return decision, nil
		}
		if len(snapshot) >= e.rules.LimitsFor(row.AssetType).Max {
			decision.Note = "auto-remove; ad at type maximum, no bundled replacement"
			return decision, nil
		}
		candidate, err := e.findReplacement(ctx, row.AssetType, replacementLabels(KindRemove, label), snapshot, reserved)
		if err != nil {
			return Decision{}, err
		}
		if candidate != nil {
			decision.Kind = KindReplace
			decision.Replacement = candidate
			decision.Note = "auto-remove with bundled replacement"
		}
		return decision, nil

	case e.rules.ManualApproval(label):
		labels := replacementLabels(KindReplace, label)
		if len(labels) == 0 {
			return Decision{Kind: KindSkip, Note: fmt.Sprintf("no label ranks above %s", label)}, nil
		}
		// The add runs before the remove, so a full ad would reject it.
		if len(snapshot) >= e.rules.LimitsFor(row.AssetType).Max {
			return Decision{Kind: KindSkip, Note: "ad at type maximum; manual replace would exceed it"}, nil
		}
		candidate, err := e.findReplacement(ctx, row.AssetType, labels, snapshot, reserved)
		if err != nil {
			return Decision{}, err
		}
		if candidate == nil {
			return Decision{Kind: KindSkip, Note: "no strictly better replacement"}, nil
		}
		return Decision{Kind: KindReplace, Mode: changes.ApprovalPending, Replacement: candidate, Note: "manual replace"}, nil

	case !label.Known():
		return Decision{Kind: KindSkip, Note: fmt.Sprintf("unrecognized label %q", label), Anomaly: true}, nil

	default:
		return Decision{Kind: KindSkip, Note: fmt.Sprintf("no rule for %s", label)}, nil
	}
}

// FindReplacement returns the best eligible paused asset of type t whose
// best-ever label is in labels and which the ad does not already hold.
func (e *Engine) FindReplacement(ctx context.Context, t creative.AssetType, labels []creative.Label, snapshot []creative.Ref) (*registry.Asset, error) {
	return e.findReplacement(ctx, t, labels, snapshot, reservations{})
}

func (e *Engine) findReplacement(ctx context.Context, t creative.AssetType, labels []creative.Label, snapshot []creative.Ref, reserved reservations) (*registry.Asset, error) {
	candidates, err := e.registry.Candidates(ctx, registry.CandidateQuery{Type: t, Labels: labels})
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "analyze", "candidate search", string(t), err)
	}
	for _, candidate := range candidates {
		if reserved.has(candidate.ID) {
			continue
		}
		if creative.ContainsRef(snapshot, candidate.Ref()) {
			continue
		}
		return candidate, nil
	}
	return nil, nil
}

// BuildChange packages an actionable decision into a change request.
func (e *Engine) BuildChange(row platform.PerformanceRow, d Decision, campaign config.Campaign, ad platform.AdCollection) *changes.Change {
	action := changes.ActionRemove
	if d.Kind == KindReplace {
		action = changes.ActionReplace
	}
	change := &changes.Change{
		CampaignID:     campaign.ID,
		AdGroupID:      ad.AdGroupID,
		AdID:           ad.AdID,
		AssetType:      row.AssetType,
		Action:         action,
		CurrentAssetID: row.AssetID,
		ApprovalMode:   d.Mode,
		Label:          row.Label,
		Impressions:    row.Impressions,
		Snapshot:       ad.Refs(row.AssetType),
	}
	if d.Replacement != nil {
		change.NewAsset = &changes.Source{Kind: changes.SourceRegistryReuse, ID: d.Replacement.ID}
	}
	change.Reason = e.reason(row, d, campaign)
	return change
}

func (e *Engine) reason(row platform.PerformanceRow, d Decision, campaign config.Campaign) string {
	var b strings.Builder
	b.WriteString(e.printer.Sprintf("%s %s in campaign %s: %s performance label with %d impressions over %d days",
		row.AssetType, describeRow(row), campaignLabel(campaign), row.Label, row.Impressions, e.rules.WindowDays()))
	if d.Mode == changes.ApprovalAuto {
		b.WriteString(e.printer.Sprintf(" (auto-remove threshold %d)", e.rules.MinImpressions()))
	}
	if d.Replacement == nil {
		b.WriteString("; remove without replacement")
		return b.String()
	}
	r := d.Replacement
	b.WriteString(e.printer.Sprintf("; replace with %s (best-ever %s, source %s", describeAsset(r), r.BestPerformance, r.SourceType))
	if r.SourceID != "" {
		b.WriteString(" " + r.SourceID)
	}
	if r.Concept != "" {
		b.WriteString(", concept " + r.Concept)
	}
	b.WriteString(e.printer.Sprintf(", activated %d times)", r.TimesActivated))
	return b.String()
}

func describeRow(row platform.PerformanceRow) string {
	if row.AssetType.IsText() && row.Text != "" {
		return fmt.Sprintf("%q (%s)", row.Text, row.AssetID)
	}
	if row.Name != "" {
		return fmt.Sprintf("%s (%s)", row.Name, row.AssetID)
	}
	return row.AssetID
}

func describeAsset(a *registry.Asset) string {
	if a.Type.IsText() && a.Text != "" {
		return fmt.Sprintf("%q (%s)", a.Text, a.ID)
	}
	if a.Name != "" {
		return fmt.Sprintf("%s (%s)", a.Name, a.ID)
	}
	return a.ID
}

func campaignLabel(c config.Campaign) string {
	if c.Name != "" && c.Name != c.ID {
		return fmt.Sprintf("%s (%s)", c.Name, c.ID)
	}
	return c.ID
}

// CampaignAnalysis is the outcome of analyzing one campaign.
type CampaignAnalysis struct {
	CampaignID string
	Rows       int
	Proposals  []*changes.Change
	Skipped    int
	Duplicates int
	Anomalies  int
}

// CampaignFailure records a campaign whose analysis was abandoned.
type CampaignFailure struct {
	CampaignID string
	Err        error
}

// Analysis aggregates one run across every configured campaign.
type Analysis struct {
	Campaigns []CampaignAnalysis
	Failures  []CampaignFailure
}

// Proposals returns every proposal across campaigns in analysis order.
func (a Analysis) Proposals() []*changes.Change {
	var out []*changes.Change
	for _, c := range a.Campaigns {
		out = append(out, c.Proposals...)
	}
	return out
}

// AnalyzeAll analyzes each campaign independently. A failing campaign is
// logged, recorded in Failures, and contributes no proposals.
func (e *Engine) AnalyzeAll(ctx context.Context, campaigns []config.Campaign) Analysis {
	var result Analysis
	reserved, err := e.openReservations(ctx)
	if err != nil {
		logging.ErrorWithContext(e.logger, "open change reservations unavailable; analysis skipped", "reservations_unavailable",
			logging.Error(err),
		)
		for _, campaign := range campaigns {
			result.Failures = append(result.Failures, CampaignFailure{CampaignID: campaign.ID, Err: err})
		}
		return result
	}
	for _, campaign := range campaigns {
		if err := ctx.Err(); err != nil {
			result.Failures = append(result.Failures, CampaignFailure{
				CampaignID: campaign.ID,
				Err:        services.Wrap(services.ErrTimeout, "analyze", "campaign", campaign.ID, err),
			})
			continue
		}
		campaignCtx := services.WithCampaignID(ctx, campaign.ID)
		analysis, err := e.analyzeCampaign(campaignCtx, campaign, reserved)
		if err != nil {
			logging.ErrorWithContext(logging.WithContext(campaignCtx, e.logger), "campaign analysis failed; campaign skipped this run", "campaign_analysis_failed",
				logging.Error(err),
			)
			result.Failures = append(result.Failures, CampaignFailure{CampaignID: campaign.ID, Err: err})
			continue
		}
		result.Campaigns = append(result.Campaigns, analysis)
	}
	return result
}

// AnalyzeCampaign syncs the campaign's performance into the registry and
// proposes changes for its live assets.
func (e *Engine) AnalyzeCampaign(ctx context.Context, campaign config.Campaign) (CampaignAnalysis, error) {
	reserved, err := e.openReservations(ctx)
	if err != nil {
		return CampaignAnalysis{CampaignID: campaign.ID}, err
	}
	return e.analyzeCampaign(ctx, campaign, reserved)
}

// openReservations seeds a run's reservations with the registry assets that
// earlier, still-open changes already promised to some ad.
func (e *Engine) openReservations(ctx context.Context) (reservations, error) {
	reserved := reservations{}
	if e.open == nil {
		return reserved, nil
	}
	ids, err := e.open.ReservedAssets(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "analyze", "open change reservations", "", err)
	}
	for _, id := range ids {
		reserved[id] = struct{}{}
	}
	return reserved, nil
}

func (e *Engine) analyzeCampaign(ctx context.Context, campaign config.Campaign, reserved reservations) (CampaignAnalysis, error) {
	logger := logging.WithContext(ctx, e.logger)
	result := CampaignAnalysis{CampaignID: campaign.ID}

	rows, err := e.perf.QueryAssetPerformance(ctx, campaign.ID, e.rules.WindowDays())
	if err != nil {
		return result, services.Wrap(services.ErrPlatform, "analyze", "query performance", campaign.ID, err)
	}
	result.Rows = len(rows)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].AdGroupID != rows[j].AdGroupID {
			return rows[i].AdGroupID < rows[j].AdGroupID
		}
		if rows[i].AssetType != rows[j].AssetType {
			return rows[i].AssetType < rows[j].AssetType
		}
		return rows[i].AssetID < rows[j].AssetID
	})

	for _, row := range rows {
		if _, err := e.registry.Observe(ctx, registry.Observation{
			AssetID:     row.AssetID,
			Type:        row.AssetType,
			Label:       row.Label,
			Impressions: row.Impressions,
			Text:        row.Text,
			Name:        row.Name,
		}); err != nil {
			return result, services.Wrap(services.ErrStorage, "analyze", "registry sync", row.AssetID, err)
		}
	}

	// Proposals are staged locally so a failure part-way through leaves the
	// campaign with none.
	var proposals []*changes.Change
	local := reservations{}
	ads := make(map[string]platform.AdCollection)
	for _, row := range rows {
		ad, ok := ads[row.AdGroupID]
		if !ok {
			ad, err = e.ads.GetAdAssetCollection(ctx, campaign.ID, row.AdGroupID)
			if err != nil {
				return result, services.Wrap(services.ErrPlatform, "analyze", "read ad collection", row.AdGroupID, err)
			}
			ads[row.AdGroupID] = ad
		}
		snapshot := ad.Refs(row.AssetType)
		if !creative.ContainsRef(snapshot, row.Ref()) {
			logger.Debug("asset no longer linked; skipped",
				logging.String(logging.FieldAssetID, row.AssetID),
				logging.String(logging.FieldAdID, ad.AdID),
			)
			result.Skipped++
			continue
		}

		if e.open != nil {
			open, err := e.open.HasOpen(ctx, ad.AdID, row.AssetID)
			if err != nil {
				return result, services.Wrap(services.ErrStorage, "analyze", "open change lookup", row.AssetID, err)
			}
			if open {
				result.Duplicates++
				logger.Debug("open change already covers asset; skipped",
					logging.String(logging.FieldAssetID, row.AssetID),
					logging.String(logging.FieldAdID, ad.AdID),
				)
				continue
			}
		}

		combined := reservations{}
		for id := range reserved {
			combined[id] = struct{}{}
		}
		for id := range local {
			combined[id] = struct{}{}
		}
		decision, err := e.classify(ctx, row, snapshot, combined)
		if err != nil {
			return result, err
		}
		attrs := append(logging.DecisionAttrs("classify", string(decision.Kind), decision.Note),
			logging.String(logging.FieldAssetID, row.AssetID),
			logging.String(logging.FieldAssetType, string(row.AssetType)),
			logging.String("label", string(row.Label)),
			logging.Int64("impressions", row.Impressions),
		)
		if decision.Anomaly {
			result.Anomalies++
			result.Skipped++
			logging.WarnWithContext(logger, "unrecognized performance label; asset skipped", "label_anomaly",
				append(attrs,
					logging.Alert("label_anomaly"),
					logging.String(logging.FieldErrorHint, "check whether the Google Ads API added a new performance label"),
					logging.String(logging.FieldImpact, "asset left unchanged"),
				)...,
			)
			continue
		}
		if decision.Kind == KindSkip {
			result.Skipped++
			logger.Debug("asset skipped", logging.Args(attrs...)...)
			continue
		}

		change := e.BuildChange(row, decision, campaign, ad)
		if runID, ok := services.RunIDFromContext(ctx); ok {
			change.RunID = runID
		}
		if decision.Replacement != nil {
			local[decision.Replacement.ID] = struct{}{}
		}
		proposals = append(proposals, change)
		logger.Info("change proposed", logging.Args(append(attrs,
			logging.String("action", string(change.Action)),
			logging.String("approval", string(change.ApprovalMode)),
			logging.String("replacement", change.NewAssetID()),
		)...)...)
	}

	for id := range local {
		reserved[id] = struct{}{}
	}
	result.Proposals = proposals
	logger.Info("campaign analyzed",
		logging.Int("rows", result.Rows),
		logging.Int("proposals", len(result.Proposals)),
		logging.Int("skipped", result.Skipped),
		logging.Int("duplicates", result.Duplicates),
		logging.Int("anomalies", result.Anomalies),
	)
	return result, nil
}

// IsPlatformFailure reports whether a campaign failure came from the ad platform.
func IsPlatformFailure(f CampaignFailure) bool {
	return errors.Is(f.Err, services.ErrPlatform)
}
