package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/omecscore/internal/model"
)

func sampleAssessment() *model.Assessment {
	return &model.Assessment{
		ID:           "0b6f4c1e-0000-4000-8000-000000000001",
		SubmissionID: "42",
		ScoredAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Result: &model.ScoringResult{
			TotalScore:       6,
			MaxPossibleScore: 8,
			Percentage:       75,
			DetailedResults: []model.DetailedResult{
				{Column: "q1", Name: "Plan | written?", ExpectedValue: "yes", ActualValue: "yes", Answered: true, Score: 5, MaxScore: 5},
				{Column: "q2", Name: "Area", ExpectedValue: "", Score: 0, MaxScore: 3},
			},
			SectionScores: []model.CategoryScore{
				{Label: "Governance", Score: 5, MaxScore: 5, Percentage: 100, QuestionCount: 1},
				{Label: "Biodiversity", Score: 1, MaxScore: 3, Percentage: 33.33, QuestionCount: 1},
			},
		},
		Groups: []model.GroupScore{{GroupKey: "uses", Name: "Uses", Score: 2, MaxScore: 3, Selected: 2}},
	}
}

func TestRenderer_Markdown(t *testing.T) {
	md := NewRenderer(true).Markdown(sampleAssessment())

	for _, want := range []string{
		"# OMEC Assessment: submission 42",
		"**6 / 8 points (75%)**",
		"## Sections",
		"| Biodiversity | 1 | 1 | 3 | 33.33 |",
		"## Multiple-choice Questions",
		"| Uses | 2 | 2 | 3 |",
		`Plan \| written?`,
		"_unanswered_",
		"Unanswered questions score 0",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Expected markdown to contain %q\n%s", want, md)
		}
	}
	if strings.Contains(md, "## Gender") {
		t.Error("Expected empty breakdowns to be omitted")
	}
}

func TestRenderer_Markdown_NoFooter(t *testing.T) {
	md := NewRenderer(false).Markdown(sampleAssessment())
	if strings.Contains(md, "Unanswered questions score 0") {
		t.Error("Expected footer to be omitted")
	}
}

func TestRenderer_RenderJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "42.json")
	if err := NewRenderer(true).RenderJSON(sampleAssessment(), path); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	result, _ := decoded["result"].(map[string]any)
	if result["percentage"] != 75.0 {
		t.Errorf("Expected percentage 75, got %v", result["percentage"])
	}
	if _, ok := result["omecPotentialScores"]; !ok {
		t.Error("Expected omecPotentialScores key")
	}
}

func TestRenderer_RenderSummary(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(true).RenderSummary(&buf, sampleAssessment())

	out := buf.String()
	if !strings.Contains(out, "42: 6 / 8 points (75%) [###############.....]") {
		t.Errorf("Unexpected summary header:\n%s", out)
	}
	if !strings.Contains(out, "Governance") {
		t.Error("Expected section lines")
	}
}

func TestRenderer_RenderBatchSummary(t *testing.T) {
	a := sampleAssessment()
	b := sampleAssessment()
	b.Result.Percentage = 50

	var buf bytes.Buffer
	NewRenderer(true).RenderBatchSummary(&buf, "run-1", []BatchRow{
		{SubmissionID: "1", Assessment: a},
		{SubmissionID: "2", Assessment: b},
		{SubmissionID: "3", Err: errors.New("submission not found")},
	})

	out := buf.String()
	for _, want := range []string{"Batch run-1", "✗ 3", "submission not found", "Scored: 2  Failed: 1  Mean: 62.5%"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in:\n%s", want, out)
		}
	}
}

func TestNum(t *testing.T) {
	tests := map[float64]string{0: "0", 100: "100", 33.33: "33.33", 62.5: "62.5", 1.005: "1"}
	for in, want := range tests {
		if got := num(in); got != want {
			t.Errorf("num(%v) = %q, want %q", in, got, want)
		}
	}
}
