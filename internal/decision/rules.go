package decision

import (
	"fmt"

	"assetcycle/internal/config"
	"assetcycle/internal/creative"
)

// Limits bounds the number of assets of one type on an ad.
type Limits struct {
	Min int
	Max int
}

// Rules is the decision and execution policy. Build it with RulesFromConfig;
// the zero value skips everything.
type Rules struct {
	minImpressions     int64
	windowDays         int
	autoAddReplacement bool
	verifyBeforeWrite  bool
	untouchable        creative.LabelSet
	autoRemove         creative.LabelSet
	manualApproval     creative.LabelSet
	limits             map[creative.AssetType]Limits
}

// RulesFromConfig snapshots the rotation section of cfg.
func RulesFromConfig(cfg *config.Config) (Rules, error) {
	if cfg == nil {
		return Rules{}, fmt.Errorf("rules: config is nil")
	}
	r := cfg.Rotation
	untouchable, err := labelSet(r.UntouchableLabels)
	if err != nil {
		return Rules{}, fmt.Errorf("rules: untouchable labels: %w", err)
	}
	autoRemove, err := labelSet(r.AutoRemoveLabels)
	if err != nil {
		return Rules{}, fmt.Errorf("rules: auto-remove labels: %w", err)
	}
	manual, err := labelSet(r.ManualApprovalLabels)
	if err != nil {
		return Rules{}, fmt.Errorf("rules: manual-approval labels: %w", err)
	}
	limits := make(map[creative.AssetType]Limits, len(creative.AllTypes()))
	for _, t := range creative.AllTypes() {
		l := cfg.LimitsFor(t)
		limits[t] = Limits{Min: l.Min, Max: l.Max}
	}
	return Rules{
		minImpressions:     r.MinImpressions,
		windowDays:         r.WindowDays,
		autoAddReplacement: r.AutoAddReplacement,
		verifyBeforeWrite:  r.VerifyBeforeWrite,
		untouchable:        untouchable,
		autoRemove:         autoRemove,
		manualApproval:     manual,
		limits:             limits,
	}, nil
}

func labelSet(values []string) (creative.LabelSet, error) {
	labels := make([]creative.Label, 0, len(values))
	for _, value := range values {
		label, err := creative.MustParseLabel(value)
		if err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return creative.NewLabelSet(labels...), nil
}

func (r Rules) MinImpressions() int64    { return r.minImpressions }
func (r Rules) WindowDays() int          { return r.windowDays }
func (r Rules) AutoAddReplacement() bool { return r.autoAddReplacement }
func (r Rules) VerifyBeforeWrite() bool  { return r.verifyBeforeWrite }

func (r Rules) Untouchable(label creative.Label) bool    { return r.untouchable.Has(label) }
func (r Rules) AutoRemove(label creative.Label) bool     { return r.autoRemove.Has(label) }
func (r Rules) ManualApproval(label creative.Label) bool { return r.manualApproval.Has(label) }

// LimitsFor returns the count bounds for an asset type. Unknown types get
// bounds that block every write.
func (r Rules) LimitsFor(t creative.AssetType) Limits {
	if l, ok := r.limits[t]; ok {
		return l
	}
	return Limits{}
}

// replacementLabels lists the best-ever labels a candidate may carry to
// replace an asset currently labelled current. Removals accept any GOOD or
// BEST material; replacing a ranked asset requires strictly better material.
func replacementLabels(action Kind, current creative.Label) []creative.Label {
	pool := []creative.Label{creative.LabelBest, creative.LabelGood}
	if action != KindReplace {
		return pool
	}
	out := make([]creative.Label, 0, len(pool))
	for _, label := range pool {
		if label.Better(current) {
			out = append(out, label)
		}
	}
	return out
}
