package score

import (
	"sort"
	"strings"

	"github.com/ppiankov/omecscore/internal/model"
)

// TierTable maps a column identifier to its ordered numeric thresholds.
// Keys may be the full column ("group/field") or its trailing segment and
// are matched case-insensitively.
type TierTable map[string][]model.TierStep

// NewTierTable copies steps and sorts each column's thresholds from highest
// to lowest so the first satisfied step is the best one.
func NewTierTable(steps map[string][]model.TierStep) TierTable {
	t := make(TierTable, len(steps))
	for column, s := range steps {
		sorted := make([]model.TierStep, len(s))
		copy(sorted, s)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Min > sorted[j].Min
		})
		t[strings.ToLower(column)] = sorted
	}
	return t
}

// Lookup returns the thresholds for a rule, preferring an exact column match
func (t TierTable) Lookup(r model.Rule) ([]model.TierStep, bool) {
	if steps, ok := t[strings.ToLower(r.Column)]; ok {
		return steps, true
	}
	steps, ok := t[strings.ToLower(r.LookupKey())]
	return steps, ok
}

// Award returns the score of the first step whose Min is satisfied, or 0
func Award(steps []model.TierStep, value float64) float64 {
	for _, s := range steps {
		if value >= s.Min {
			return s.Score
		}
	}
	return 0
}
