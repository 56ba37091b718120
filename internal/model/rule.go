package model

import (
	"strings"
	"time"
)

// RuleType selects how a rule is evaluated against a submission value
type RuleType string

const (
	RuleTypeSelect      RuleType = "select"       // Exact match awards the rule score
	RuleTypeMultipleMax RuleType = "multiple_max" // Exact match per option, summed per question group
	RuleTypeValue       RuleType = "value"        // Numeric threshold scoring
)

// Known reports whether t is one of the enumerated rule types
func (t RuleType) Known() bool {
	switch t {
	case RuleTypeSelect, RuleTypeMultipleMax, RuleTypeValue:
		return true
	}
	return false
}

// Record is one raw rubric row keyed by header name
type Record map[string]string

// Rule is one scoring row of the rubric
type Rule struct {
	Column        string   `json:"column"`              // Field identifier, possibly "group/option"
	Name          string   `json:"name"`                // Human-readable question text
	Section       string   `json:"section,omitempty"`   // Empty means unclassified
	Gender        string   `json:"gender,omitempty"`    // Empty means unclassified
	Potential     string   `json:"potential,omitempty"` // Empty means unclassified
	ExpectedValue string   `json:"expectedValue"`       // Value that earns Score
	Score         float64  `json:"score"`               // Points on match, also the rule's max
	Type          RuleType `json:"type"`
}

// LookupKey returns the trailing path segment used to find the rule's value
func (r Rule) LookupKey() string {
	if i := strings.LastIndex(r.Column, "/"); i >= 0 {
		return r.Column[i+1:]
	}
	return r.Column
}

// GroupKey returns the question key shared by all options of a
// multi-option question: the column without its trailing option segment,
// so "grp/activities/fishing" belongs to "grp/activities". Columns without
// a "/" are their own group.
func (r Rule) GroupKey() string {
	if i := strings.LastIndex(r.Column, "/"); i >= 0 {
		return r.Column[:i]
	}
	return r.Column
}

// RuleSet is an immutable, ordered snapshot of loaded rules
type RuleSet struct {
	Rules    []Rule    `json:"rules"`
	LoadedAt time.Time `json:"loaded_at"`
}

// MaxPossibleScore sums the declared score of every rule
func (rs *RuleSet) MaxPossibleScore() float64 {
	var total float64
	for _, r := range rs.Rules {
		total += r.Score
	}
	return total
}

// Len returns the number of rules
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rules)
}

// QuestionGroup lists the option rules of one multiple_max question
type QuestionGroup struct {
	GroupKey string   `json:"groupKey"`
	Name     string   `json:"name"`
	Options  []string `json:"options"` // Full column identifiers, rubric order
	MaxScore float64  `json:"maxScore"`
}

// RuleSetSummary describes a loaded RuleSet for callers that do not need every rule
type RuleSetSummary struct {
	TotalRules        int              `json:"totalRules"`
	CountsByType      map[RuleType]int `json:"countsByType"`
	Sections          []string         `json:"sections"`
	Genders           []string         `json:"genders"`
	Potentials        []string         `json:"potentials"`
	MultipleMaxGroups []QuestionGroup  `json:"multipleMaxGroups"`
	MaxPossibleScore  float64          `json:"maxPossibleScore"`
	LoadedAt          time.Time        `json:"loadedAt"`
}

// Summary builds the RuleSetSummary for rs. Label and group lists keep
// first-appearance order.
func (rs *RuleSet) Summary() RuleSetSummary {
	s := RuleSetSummary{
		CountsByType:      make(map[RuleType]int),
		Sections:          []string{},
		Genders:           []string{},
		Potentials:        []string{},
		MultipleMaxGroups: []QuestionGroup{},
	}
	if rs == nil {
		return s
	}

	s.TotalRules = len(rs.Rules)
	s.MaxPossibleScore = rs.MaxPossibleScore()
	s.LoadedAt = rs.LoadedAt

	seenSection := make(map[string]bool)
	seenGender := make(map[string]bool)
	seenPotential := make(map[string]bool)
	groupIndex := make(map[string]int)

	for _, r := range rs.Rules {
		s.CountsByType[r.Type]++

		s.Sections = appendDistinct(s.Sections, seenSection, r.Section)
		s.Genders = appendDistinct(s.Genders, seenGender, r.Gender)
		s.Potentials = appendDistinct(s.Potentials, seenPotential, r.Potential)

		if r.Type != RuleTypeMultipleMax {
			continue
		}
		key := r.GroupKey()
		idx, ok := groupIndex[key]
		if !ok {
			idx = len(s.MultipleMaxGroups)
			groupIndex[key] = idx
			s.MultipleMaxGroups = append(s.MultipleMaxGroups, QuestionGroup{
				GroupKey: key,
				Name:     r.Name,
			})
		}
		g := &s.MultipleMaxGroups[idx]
		g.Options = append(g.Options, r.Column)
		g.MaxScore += r.Score
	}

	return s
}

func appendDistinct(list []string, seen map[string]bool, label string) []string {
	if label == "" || seen[label] {
		return list
	}
	seen[label] = true
	return append(list, label)
}
