package rubric

import (
	"strings"
	"testing"

	"github.com/ppiankov/omecscore/internal/model"
)

func TestLoad_FiltersStructuralAndIncompleteRows(t *testing.T) {
	records := []model.Record{
		{"column": "start", "score": "1", "type": "select"},
		{"column": "end", "score": "1", "type": "select"},
		{"column": "today", "score": "1", "type": "select"},
		{"column": "", "score": "1", "type": "select"},
		{"column": "q_noscore", "score": "", "type": "select"},
		{"column": "q_notype", "score": "2"},
		{"column": "q1", "name": "Is there a plan?", "section": "Governance", "expectedValue": "yes", "score": "2", "type": "select"},
		{"column": "g/a", "name": "Uses", "expectedValue": "a", "score": "1.5", "type": "multiple_max"},
	}

	rs := Load(records)
	if rs.Len() != 2 {
		t.Fatalf("Expected 2 rules, got %d: %+v", rs.Len(), rs.Rules)
	}

	first := rs.Rules[0]
	if first.Column != "q1" || first.Score != 2 || first.Type != model.RuleTypeSelect || first.Section != "Governance" {
		t.Errorf("Unexpected first rule: %+v", first)
	}
	if rs.Rules[1].Column != "g/a" || rs.Rules[1].Score != 1.5 {
		t.Errorf("Expected input order preserved, got %+v", rs.Rules[1])
	}
	if rs.LoadedAt.IsZero() {
		t.Error("Expected LoadedAt to be set")
	}
}

func TestLoad_BadScoreBecomesZero(t *testing.T) {
	rs := Load([]model.Record{
		{"column": "a", "score": "lots", "type": "select"},
		{"column": "b", "score": "-3", "type": "select"},
		{"column": "c", "score": "NaN", "type": "select"},
		{"column": "d", "score": " 4 ", "type": "value"},
	})

	want := []float64{0, 0, 0, 4}
	if rs.Len() != len(want) {
		t.Fatalf("Expected %d rules, got %d", len(want), rs.Len())
	}
	for i, w := range want {
		if rs.Rules[i].Score != w {
			t.Errorf("rule %s: expected score %v, got %v", rs.Rules[i].Column, w, rs.Rules[i].Score)
		}
	}
}

func TestLoad_NormalisesHeadersAndLabels(t *testing.T) {
	rs := Load([]model.Record{
		{
			" Column ":       "area/area_size_ha",
			"Expected Value": "",
			"expected_value": "x",
			"SECTION":        "N/A",
			"gender":         "n/a",
			"potential":      "High",
			"Score":          "3",
			"Type":           " Value ",
		},
	})

	if rs.Len() != 1 {
		t.Fatalf("Expected 1 rule, got %d", rs.Len())
	}
	r := rs.Rules[0]
	if r.Type != model.RuleTypeValue {
		t.Errorf("Expected type value, got %q", r.Type)
	}
	if r.Section != "" || r.Gender != "" {
		t.Errorf("Expected N/A labels to be unclassified, got section=%q gender=%q", r.Section, r.Gender)
	}
	if r.Potential != "High" {
		t.Errorf("Expected potential High, got %q", r.Potential)
	}
	if r.ExpectedValue != "x" {
		t.Errorf("Expected non-empty duplicate header to win, got %q", r.ExpectedValue)
	}
}

func TestLoad_DuplicateHeadersAreDeterministic(t *testing.T) {
	rec := model.Record{
		"column":         "q1",
		"expectedValue":  "a",
		"expected_value": "b",
		"Expected Value": "c",
		"score":          "1",
		"type":           "select",
	}

	for i := 0; i < 100; i++ {
		rs := Load([]model.Record{rec})
		if got := rs.Rules[0].ExpectedValue; got != "c" {
			t.Fatalf("load %d: expected the first header in sorted order to win, got %q", i, got)
		}
	}
}

func TestParseCSV(t *testing.T) {
	input := "\ufeffcolumn,name,section,gender,potential,expectedValue,score,type\n" +
		"start,,,,,,,\n" +
		"q1,\"Plan, written?\",Governance,Women,High,yes,2,select\n" +
		"q2,Short row,Biodiversity\n"

	records, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[1]["column"] != "q1" || records[1]["name"] != "Plan, written?" {
		t.Errorf("Unexpected record: %+v", records[1])
	}
	if _, ok := records[2]["score"]; ok {
		t.Error("Expected missing cells to be absent from short rows")
	}

	rs := Load(records)
	if rs.Len() != 1 {
		t.Errorf("Expected 1 scoring rule after filtering, got %d", rs.Len())
	}
}

func TestParseCSV_Empty(t *testing.T) {
	records, err := ParseCSV(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Expected no error for empty input, got %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}
