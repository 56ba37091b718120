// Package llm produces an optional plain-language narrative of an
// assessment. Narratives are generated after scoring and never change a score.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/omecscore/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize generates a narrative of the assessment
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// SummarizeRequest contains the input for LLM summarization
type SummarizeRequest struct {
	Assessment model.Assessment

	// Prompt overrides the default prompt when set
	Prompt string

	// Model overrides the configured model when set
	Model string

	MaxTokens int
}

// SummarizeResponse contains the LLM's summary output
type SummarizeResponse struct {
	Summary string

	// QuotedFigures are the percentages the narrative mentions
	QuotedFigures []string

	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string
	Model    string
	APIKey   string

	// BaseURL for OpenAI-compatible endpoints such as Ollama
	BaseURL string

	Timeout time.Duration

	// StrictFigures rejects narratives quoting percentages that are not in the assessment
	StrictFigures bool

	MaxTokens int

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:      "", // Disabled by default
		Timeout:       30 * time.Second,
		StrictFigures: true,
		MaxTokens:     800,
	}
}

// BuildPrompt constructs the default prompt for an assessment
func BuildPrompt(a model.Assessment) string {
	var b strings.Builder

	b.WriteString(`You are summarising an OMEC assessment of a conservation area. The scores below were computed from a fixed rubric; you explain them, you do not re-score.

RULES:
1. Only quote percentages that appear in the figures below.
2. Do not speculate about answers that were not given.
3. Name the strongest and weakest sections.
4. Keep to 3-5 sentences.

`)

	if a.SubmissionID != "" {
		fmt.Fprintf(&b, "Submission: %s\n", a.SubmissionID)
	}
	if a.Result == nil {
		b.WriteString("No scoring result is available.\n")
		return b.String()
	}

	r := a.Result
	fmt.Fprintf(&b, "Overall: %s / %s points (%s%%)\n",
		formatFigure(r.TotalScore), formatFigure(r.MaxPossibleScore), formatFigure(r.Percentage))
	fmt.Fprintf(&b, "Questions answered: %d of %d\n", countAnswered(r.DetailedResults), len(r.DetailedResults))

	writeCategories(&b, "Sections", r.SectionScores)
	writeCategories(&b, "Gender dimension", r.GenderScores)
	writeCategories(&b, "OMEC potential", r.OMECPotentialScores)

	b.WriteString("\nProvide a short summary for a conservation practitioner.")
	return b.String()
}

func writeCategories(b *strings.Builder, title string, scores []model.CategoryScore) {
	if len(scores) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, c := range scores {
		fmt.Fprintf(b, "- %s: %s%% (%d questions)\n", c.Label, formatFigure(c.Percentage), c.QuestionCount)
	}
}

func countAnswered(details []model.DetailedResult) int {
	n := 0
	for _, d := range details {
		if d.Answered {
			n++
		}
	}
	return n
}
