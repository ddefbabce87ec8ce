package creative

import (
	"fmt"
	"strings"
)

// Label is the platform-assigned performance tier of an asset.
type Label string

const (
	LabelUnknown  Label = "UNKNOWN"
	LabelPending  Label = "PENDING"
	LabelLearning Label = "LEARNING"
	LabelLow      Label = "LOW"
	LabelGood     Label = "GOOD"
	LabelBest     Label = "BEST"
)

// ParseLabel converts a platform label into a Label. Values the platform
// reports for unscored assets (UNSPECIFIED, empty) map to UNKNOWN; anything
// else unrecognised is returned as-is so callers can flag it.
func ParseLabel(value string) Label {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	switch Label(normalized) {
	case LabelPending, LabelLearning, LabelLow, LabelGood, LabelBest, LabelUnknown:
		return Label(normalized)
	case "", "UNSPECIFIED":
		return LabelUnknown
	default:
		return Label(normalized)
	}
}

// MustParseLabel parses a label from configuration, rejecting unknown values.
func MustParseLabel(value string) (Label, error) {
	label := ParseLabel(value)
	if !label.Known() {
		return "", fmt.Errorf("unknown performance label %q", value)
	}
	return label, nil
}

// Known reports whether the label is one of the defined tiers.
func (l Label) Known() bool {
	switch l {
	case LabelUnknown, LabelPending, LabelLearning, LabelLow, LabelGood, LabelBest:
		return true
	default:
		return false
	}
}

// Rank orders labels UNKNOWN < LOW < GOOD < BEST. PENDING and LEARNING carry
// no evidence and are unranked (ok=false).
func (l Label) Rank() (rank int, ok bool) {
	switch l {
	case LabelUnknown:
		return 0, true
	case LabelLow:
		return 1, true
	case LabelGood:
		return 2, true
	case LabelBest:
		return 3, true
	default:
		return 0, false
	}
}

// Better reports whether l ranks strictly above other. Unranked labels are
// never better nor worse than anything.
func (l Label) Better(other Label) bool {
	lr, lok := l.Rank()
	or, ook := other.Rank()
	if !lok || !ook {
		return false
	}
	return lr > or
}

// RaiseBest returns the best-ever label after observing current. The result
// only moves upward and ignores unranked observations.
func RaiseBest(best, current Label) Label {
	if _, ok := best.Rank(); !ok {
		best = LabelUnknown
	}
	if current.Better(best) {
		return current
	}
	return best
}

// LabelSet is an immutable-by-convention set of labels.
type LabelSet map[Label]struct{}

// NewLabelSet builds a set from labels.
func NewLabelSet(labels ...Label) LabelSet {
	set := make(LabelSet, len(labels))
	for _, label := range labels {
		set[label] = struct{}{}
	}
	return set
}

// Has reports whether label is in the set.
func (s LabelSet) Has(label Label) bool {
	_, ok := s[label]
	return ok
}

// Sorted returns the labels ordered by rank, unranked labels first.
func (s LabelSet) Sorted() []Label {
	order := []Label{LabelPending, LabelLearning, LabelUnknown, LabelLow, LabelGood, LabelBest}
	out := make([]Label, 0, len(s))
	for _, label := range order {
		if s.Has(label) {
			out = append(out, label)
		}
	}
	return out
}
