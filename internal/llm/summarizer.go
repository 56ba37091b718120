package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/omecscore/internal/model"
)

// Summarizer attaches an optional narrative to assessments
type Summarizer struct {
	provider Provider
	config   Config
}

// NewSummarizer creates a summarizer. An empty provider yields a disabled summarizer.
func NewSummarizer(config Config) (*Summarizer, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return &Summarizer{provider: provider, config: config}, nil
}

// IsEnabled reports whether a provider is configured
func (s *Summarizer) IsEnabled() bool {
	return s != nil && s.provider != nil
}

// ProviderName returns the configured provider name, or "" when disabled
func (s *Summarizer) ProviderName() string {
	if !s.IsEnabled() {
		return ""
	}
	return s.provider.Name()
}

// GenerateSummary asks the provider for a narrative. Provider problems are
// reported as warnings on a disabled summary rather than as errors, so a
// failing LLM never fails scoring.
func (s *Summarizer) GenerateSummary(ctx context.Context, a model.Assessment) (*model.LLMSummary, error) {
	if !s.IsEnabled() {
		return nil, nil
	}

	summary := &model.LLMSummary{
		Provider: s.provider.Name(),
		Model:    s.config.Model,
	}

	if !s.provider.IsAvailable(ctx) {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("LLM provider %s is not available (check API key or endpoint)", s.provider.Name()))
		return summary, nil
	}

	resp, err := s.provider.Summarize(ctx, SummarizeRequest{
		Assessment: a,
		Model:      s.config.Model,
		MaxTokens:  s.config.MaxTokens,
	})
	if err != nil {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("LLM summary failed: %v", err))
		return summary, nil
	}

	summary.Enabled = true
	summary.SummaryMD = resp.Summary
	if resp.Model != "" {
		summary.Model = resp.Model
	}
	if resp.TokensUsed > 0 {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("Tokens used: %d", resp.TokensUsed))
	}
	if len(resp.QuotedFigures) > 0 {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("Verified %d quoted figures against the assessment", len(resp.QuotedFigures)))
	}

	return summary, nil
}

// RenderSeparateMarkdown renders the narrative as its own Markdown document
func RenderSeparateMarkdown(summary *model.LLMSummary) string {
	if summary == nil || !summary.Enabled {
		return ""
	}

	var b strings.Builder
	b.WriteString("# LLM Summary\n\n")
	b.WriteString("> GENERATED CONTENT. Scores were determined independently by the rubric; this text only describes them.\n\n")
	fmt.Fprintf(&b, "- **Provider**: %s\n", summary.Provider)
	if summary.Model != "" {
		fmt.Fprintf(&b, "- **Model**: %s\n", summary.Model)
	}
	b.WriteString("\n")

	if summary.SummaryMD == "" {
		b.WriteString("_No summary generated._\n")
	} else {
		b.WriteString(summary.SummaryMD)
		b.WriteString("\n")
	}

	if len(summary.Warnings) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, w := range summary.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}
