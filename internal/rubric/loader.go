// Package rubric loads scoring rules from tabular rubric records and keeps
// the current RuleSet snapshot.
package rubric

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/omecscore/internal/model"
)

// ErrDataUnavailable is returned when the rubric source cannot be read
var ErrDataUnavailable = errors.New("rubric data unavailable")

// Rubric header names
const (
	FieldColumn        = "column"
	FieldName          = "name"
	FieldSection       = "section"
	FieldGender        = "gender"
	FieldPotential     = "potential"
	FieldExpectedValue = "expectedValue"
	FieldScore         = "score"
	FieldType          = "type"
)

// structural rows exported by the survey backend that never score
var reservedColumns = map[string]bool{
	"start": true,
	"end":   true,
	"today": true,
}

// Load converts raw rubric records into a RuleSet, dropping structural and
// incomplete rows. Input order is preserved.
func Load(records []model.Record) *model.RuleSet {
	rs := &model.RuleSet{
		Rules:    make([]model.Rule, 0, len(records)),
		LoadedAt: time.Now().UTC(),
	}

	for _, rec := range records {
		rule, ok := parseRecord(rec)
		if ok {
			rs.Rules = append(rs.Rules, rule)
		}
	}

	return rs
}

func parseRecord(rec model.Record) (model.Rule, bool) {
	f := normalizeRecord(rec)

	column := f[canonical(FieldColumn)]
	if column == "" || reservedColumns[strings.ToLower(column)] {
		return model.Rule{}, false
	}

	rawScore := f[canonical(FieldScore)]
	ruleType := strings.ToLower(f[canonical(FieldType)])
	if rawScore == "" || ruleType == "" {
		return model.Rule{}, false
	}

	return model.Rule{
		Column:        column,
		Name:          f[canonical(FieldName)],
		Section:       label(f[canonical(FieldSection)]),
		Gender:        label(f[canonical(FieldGender)]),
		Potential:     label(f[canonical(FieldPotential)]),
		ExpectedValue: f[canonical(FieldExpectedValue)],
		Score:         parseScore(rawScore),
		Type:          model.RuleType(ruleType),
	}, true
}

// parseScore returns 0 for anything that is not a finite, non-negative number
func parseScore(raw string) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// label maps empty and "N/A" classifications to the unclassified value ""
func label(s string) string {
	if strings.EqualFold(s, "N/A") {
		return ""
	}
	return s
}

// normalizeRecord keys the record by canonical header name with trimmed
// values. Headers are visited in sorted order; when several fold to the same
// name the first non-empty value wins.
func normalizeRecord(rec model.Record) map[string]string {
	headers := make([]string, 0, len(rec))
	for k := range rec {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	out := make(map[string]string, len(rec))
	for _, k := range headers {
		key := canonical(k)
		if out[key] != "" {
			continue
		}
		out[key] = strings.TrimSpace(rec[k])
	}
	return out
}

// canonical folds header spelling so "expectedValue", "Expected Value" and
// "expected_value" are the same field
func canonical(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	h = strings.ReplaceAll(h, "_", "")
	h = strings.ReplaceAll(h, " ", "")
	return strings.ReplaceAll(h, "-", "")
}
