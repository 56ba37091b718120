// Package report renders assessments as JSON, Markdown and terminal summaries.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/omecscore/internal/model"
)

// Renderer writes assessments to files and terminals
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes the assessment as indented JSON
func (r *Renderer) RenderJSON(a *model.Assessment, path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the assessment as a Markdown report
func (r *Renderer) RenderMarkdown(a *model.Assessment, path string) error {
	return writeFile(path, []byte(r.Markdown(a)))
}

// RenderLLMMarkdown writes a pre-rendered narrative document
func (r *Renderer) RenderLLMMarkdown(markdown, path string) error {
	return writeFile(path, []byte(markdown))
}

// Markdown renders the assessment as Markdown
func (r *Renderer) Markdown(a *model.Assessment) string {
	var b strings.Builder

	title := "OMEC Assessment"
	if a.SubmissionID != "" {
		title += ": submission " + a.SubmissionID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if !a.ScoredAt.IsZero() {
		fmt.Fprintf(&b, "- **Scored**: %s\n", a.ScoredAt.Format("2006-01-02 15:04:05 MST"))
	}
	if !a.RulesLoaded.IsZero() {
		fmt.Fprintf(&b, "- **Rubric loaded**: %s\n", a.RulesLoaded.Format("2006-01-02 15:04:05 MST"))
	}
	if a.ID != "" {
		fmt.Fprintf(&b, "- **Result ID**: %s\n", a.ID)
	}

	res := a.Result
	if res == nil {
		b.WriteString("\n_No result._\n")
		return b.String()
	}

	fmt.Fprintf(&b, "\n## Overall\n\n**%s / %s points (%s%%)**\n",
		num(res.TotalScore), num(res.MaxPossibleScore), num(res.Percentage))

	writeCategoryTable(&b, "Sections", res.SectionScores)
	writeCategoryTable(&b, "Gender", res.GenderScores)
	writeCategoryTable(&b, "OMEC Potential", res.OMECPotentialScores)

	if len(a.Groups) > 0 {
		b.WriteString("\n## Multiple-choice Questions\n\n")
		b.WriteString("| Question | Selected | Score | Max |\n|---|---:|---:|---:|\n")
		for _, g := range a.Groups {
			fmt.Fprintf(&b, "| %s | %d | %s | %s |\n", cell(groupTitle(g)), g.Selected, num(g.Score), num(g.MaxScore))
		}
	}

	b.WriteString("\n## Questions\n\n")
	b.WriteString("| Column | Question | Expected | Answer | Score | Max |\n|---|---|---|---|---:|---:|\n")
	for _, d := range res.DetailedResults {
		answer := d.ActualValue
		if !d.Answered {
			answer = "_unanswered_"
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s | %s |\n",
			d.Column, cell(d.Name), cell(d.ExpectedValue), cell(answer), num(d.Score), num(d.MaxScore))
	}

	if r.includeFooter {
		b.WriteString("\n---\n\n_Scores are computed from the rubric alone. Unanswered questions score 0._\n")
	}

	return b.String()
}

func writeCategoryTable(b *strings.Builder, title string, scores []model.CategoryScore) {
	if len(scores) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", title)
	b.WriteString("| Label | Questions | Score | Max | % |\n|---|---:|---:|---:|---:|\n")
	for _, c := range scores {
		fmt.Fprintf(b, "| %s | %d | %s | %s | %s |\n", cell(c.Label), c.QuestionCount, num(c.Score), num(c.MaxScore), num(c.Percentage))
	}
}

// RenderSummary prints a short terminal summary
func (r *Renderer) RenderSummary(w io.Writer, a *model.Assessment) {
	res := a.Result
	if res == nil {
		_, _ = fmt.Fprintln(w, "No result")
		return
	}

	label := a.SubmissionID
	if label == "" {
		label = "submission"
	}

	_, _ = fmt.Fprintf(w, "\n%s: %s / %s points (%s%%) %s\n",
		label, num(res.TotalScore), num(res.MaxPossibleScore), num(res.Percentage), bar(res.Percentage))

	if len(res.SectionScores) > 0 {
		_, _ = fmt.Fprintln(w, "\nSections:")
		for _, c := range res.SectionScores {
			_, _ = fmt.Fprintf(w, "  %-28s %6s%% %s\n", c.Label, num(c.Percentage), bar(c.Percentage))
		}
	}
	if len(res.OMECPotentialScores) > 0 {
		_, _ = fmt.Fprintln(w, "\nOMEC potential:")
		for _, c := range res.OMECPotentialScores {
			_, _ = fmt.Fprintf(w, "  %-28s %6s%%\n", c.Label, num(c.Percentage))
		}
	}
	if len(res.GenderScores) > 0 {
		_, _ = fmt.Fprintln(w, "\nGender:")
		for _, c := range res.GenderScores {
			_, _ = fmt.Fprintf(w, "  %-28s %6s%%\n", c.Label, num(c.Percentage))
		}
	}
	_, _ = fmt.Fprintln(w)
}

// BatchRow is one line of a batch summary
type BatchRow struct {
	SubmissionID string
	Assessment   *model.Assessment
	Err          error
}

// RenderBatchSummary prints one line per submission and a total
func (r *Renderer) RenderBatchSummary(w io.Writer, runID string, rows []BatchRow) {
	var ok, failed int
	var sum float64

	_, _ = fmt.Fprintf(w, "\nBatch %s\n\n", runID)
	for _, row := range rows {
		if row.Err != nil {
			failed++
			_, _ = fmt.Fprintf(w, "  ✗ %-20s %v\n", row.SubmissionID, row.Err)
			continue
		}
		ok++
		pct := row.Assessment.Result.Percentage
		sum += pct
		_, _ = fmt.Fprintf(w, "  ✓ %-20s %6s%% %s\n", row.SubmissionID, num(pct), bar(pct))
	}

	_, _ = fmt.Fprintf(w, "\nScored: %d  Failed: %d", ok, failed)
	if ok > 0 {
		_, _ = fmt.Fprintf(w, "  Mean: %s%%", num(round2(sum/float64(ok))))
	}
	_, _ = fmt.Fprintln(w)
}

func groupTitle(g model.GroupScore) string {
	if g.Name != "" {
		return g.Name
	}
	return g.GroupKey
}

func bar(pct float64) string {
	const width = 20
	filled := int(pct / 100 * width)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func num(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// cell escapes text for a Markdown table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
