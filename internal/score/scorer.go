package score

import (
	"math"
	"strconv"
	"strings"

	"github.com/ppiankov/omecscore/internal/model"
)

// Scorer evaluates submissions against a RuleSet. It holds no per-call
// state and is safe for concurrent use.
type Scorer struct {
	tiers TierTable
}

// NewScorer creates a scorer using the given numeric tier table
func NewScorer(tiers TierTable) *Scorer {
	if tiers == nil {
		tiers = TierTable{}
	}
	return &Scorer{tiers: tiers}
}

// ExtractValue finds the submission value for a rule column. Only the
// trailing "/" segment is used as the key, so two groups sharing an option
// name resolve to the same submission field.
func ExtractValue(sub model.Submission, column string) (string, bool) {
	key := column
	if i := strings.LastIndex(column, "/"); i >= 0 {
		key = column[i+1:]
	}
	return sub.Lookup(key)
}

// Evaluate scores every rule and builds the aggregate views
func (s *Scorer) Evaluate(rules *model.RuleSet, sub model.Submission) *model.ScoringResult {
	result := &model.ScoringResult{
		DetailedResults: []model.DetailedResult{},
	}
	if rules != nil {
		result.DetailedResults = make([]model.DetailedResult, 0, len(rules.Rules))
		for _, r := range rules.Rules {
			result.DetailedResults = append(result.DetailedResults, s.scoreRule(r, sub))
		}
	}

	for _, d := range result.DetailedResults {
		result.TotalScore += d.Score
		result.MaxPossibleScore += d.MaxScore
	}
	result.Percentage = percentage(result.TotalScore, result.MaxPossibleScore)

	result.SectionScores = aggregate(result.DetailedResults, func(d model.DetailedResult) string { return d.Section })
	result.GenderScores = aggregate(result.DetailedResults, func(d model.DetailedResult) string { return d.Gender })
	result.OMECPotentialScores = aggregate(result.DetailedResults, func(d model.DetailedResult) string { return d.Potential })

	return result
}

// scoreRule computes the detailed line for a single rule
func (s *Scorer) scoreRule(r model.Rule, sub model.Submission) model.DetailedResult {
	d := model.DetailedResult{
		Column:        r.Column,
		Name:          r.Name,
		Section:       r.Section,
		Gender:        r.Gender,
		Potential:     r.Potential,
		Type:          r.Type,
		ExpectedValue: r.ExpectedValue,
		MaxScore:      r.Score,
	}

	actual, ok := ExtractValue(sub, r.Column)
	if !ok {
		return d
	}
	d.ActualValue = actual
	d.Answered = true

	switch r.Type {
	case model.RuleTypeValue:
		d.Score = s.scoreValue(r, actual)
	default:
		// select, multiple_max and unrecognised types share exact matching;
		// multiple_max options are summed per group, never maxed.
		if actual == r.ExpectedValue {
			d.Score = r.Score
		}
	}

	return d
}

// scoreValue applies the column's tier table, or the clamped raw value when
// no table exists. Awards never exceed the rule's declared score.
func (s *Scorer) scoreValue(r model.Rule, actual string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}

	award := v
	if steps, ok := s.tiers.Lookup(r); ok {
		award = Award(steps, v)
	}

	award = math.Min(award, r.Score)
	if award < 0 {
		return 0
	}
	return award
}

// GroupScores sums multiple_max option scores per question group key
func GroupScores(rules *model.RuleSet, result *model.ScoringResult) []model.GroupScore {
	groups := []model.GroupScore{}
	if rules == nil || result == nil {
		return groups
	}

	index := make(map[string]int)
	for i, r := range rules.Rules {
		if r.Type != model.RuleTypeMultipleMax || i >= len(result.DetailedResults) {
			continue
		}
		key := r.GroupKey()
		idx, ok := index[key]
		if !ok {
			idx = len(groups)
			index[key] = idx
			groups = append(groups, model.GroupScore{GroupKey: key, Name: r.Name})
		}

		d := result.DetailedResults[i]
		groups[idx].Score += d.Score
		groups[idx].MaxScore += d.MaxScore
		if d.Score > 0 {
			groups[idx].Selected++
		}
	}

	return groups
}

// aggregate groups detailed results by a label, skipping empty labels.
// Output order is the order labels first appear.
func aggregate(details []model.DetailedResult, label func(model.DetailedResult) string) []model.CategoryScore {
	out := []model.CategoryScore{}
	index := make(map[string]int)

	for _, d := range details {
		l := label(d)
		if l == "" {
			continue
		}
		idx, ok := index[l]
		if !ok {
			idx = len(out)
			index[l] = idx
			out = append(out, model.CategoryScore{Label: l})
		}
		out[idx].Score += d.Score
		out[idx].MaxScore += d.MaxScore
		out[idx].QuestionCount++
	}

	for i := range out {
		out[i].Percentage = percentage(out[i].Score, out[i].MaxScore)
	}

	return out
}

// percentage returns score/max*100 rounded to two decimals, 0 when max is 0
func percentage(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	p := score / max * 100
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		p = 100
	}
	return math.Round(p*100) / 100
}
