package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/omecscore/internal/model"
)

// MockProvider implements the Provider interface for testing
type MockProvider struct {
	name      string
	available bool
	response  *SummarizeResponse
	err       error
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	return m.available
}

func TestNewSummarizer_DisabledProvider(t *testing.T) {
	summarizer, err := NewSummarizer(Config{Provider: ""})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if summarizer.IsEnabled() {
		t.Error("Expected summarizer to be disabled")
	}
	if summarizer.ProviderName() != "" {
		t.Error("Expected empty provider name when disabled")
	}

	summary, err := summarizer.GenerateSummary(context.Background(), testAssessment())
	if err != nil || summary != nil {
		t.Errorf("Expected nil summary and no error when disabled, got %v, %v", summary, err)
	}
}

func TestNewSummarizer_UnknownProvider(t *testing.T) {
	if _, err := NewSummarizer(Config{Provider: "nope"}); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestSummarizer_GenerateSummary_ProviderUnavailable(t *testing.T) {
	summarizer := &Summarizer{
		provider: &MockProvider{name: "test-provider", available: false},
	}

	summary, err := summarizer.GenerateSummary(context.Background(), testAssessment())
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if summary == nil {
		t.Fatal("Expected summary object with warnings")
	}
	if summary.Enabled {
		t.Error("Expected summary to be marked as disabled")
	}
	if len(summary.Warnings) == 0 || !strings.Contains(summary.Warnings[0], "not available") {
		t.Errorf("Expected warning about provider unavailability, got %v", summary.Warnings)
	}
}

func TestSummarizer_GenerateSummary_Success(t *testing.T) {
	summarizer := &Summarizer{
		provider: &MockProvider{
			name:      "test-provider",
			available: true,
			response: &SummarizeResponse{
				Summary:       "Scores 75% overall.",
				QuotedFigures: []string{"75"},
				Model:         "test-model",
				TokensUsed:    150,
			},
		},
		config: Config{Model: "configured-model"},
	}

	summary, err := summarizer.GenerateSummary(context.Background(), testAssessment())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !summary.Enabled {
		t.Error("Expected summary to be enabled")
	}
	if summary.Provider != "test-provider" || summary.Model != "test-model" {
		t.Errorf("Unexpected provider/model: %s/%s", summary.Provider, summary.Model)
	}
	if summary.SummaryMD != "Scores 75% overall." {
		t.Errorf("Unexpected summary text: %s", summary.SummaryMD)
	}

	notes := strings.Join(summary.Warnings, "\n")
	if !strings.Contains(notes, "Tokens used: 150") {
		t.Error("Expected note about tokens used")
	}
	if !strings.Contains(notes, "Verified 1 quoted figures") {
		t.Error("Expected note about verified figures")
	}
}

func TestSummarizer_GenerateSummary_ProviderError(t *testing.T) {
	summarizer := &Summarizer{
		provider: &MockProvider{name: "test-provider", available: true, err: errors.New("quota exceeded")},
	}

	summary, err := summarizer.GenerateSummary(context.Background(), testAssessment())
	if err != nil {
		t.Fatalf("Expected provider errors to become warnings, got %v", err)
	}
	if summary.Enabled {
		t.Error("Expected summary to be disabled after provider error")
	}
	if len(summary.Warnings) == 0 || !strings.Contains(summary.Warnings[0], "quota exceeded") {
		t.Errorf("Expected warning to mention error: %v", summary.Warnings)
	}
}

func TestRenderSeparateMarkdown(t *testing.T) {
	if RenderSeparateMarkdown(nil) != "" {
		t.Error("Expected empty markdown when nil")
	}
	if RenderSeparateMarkdown(&model.LLMSummary{Enabled: false}) != "" {
		t.Error("Expected empty markdown when disabled")
	}

	md := RenderSeparateMarkdown(&model.LLMSummary{
		Enabled:   true,
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		SummaryMD: "Governance is strong.",
		Warnings:  []string{"Tokens used: 150"},
	})
	for _, want := range []string{"# LLM Summary", "GENERATED CONTENT", "determined independently", "openai", "gpt-4o-mini", "Governance is strong.", "## Notes", "Tokens used: 150"} {
		if !strings.Contains(md, want) {
			t.Errorf("Expected markdown to contain %q", want)
		}
	}

	empty := RenderSeparateMarkdown(&model.LLMSummary{Enabled: true, Provider: "openai"})
	if !strings.Contains(empty, "No summary generated") {
		t.Error("Expected message about no summary")
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(testAssessment())

	for _, want := range []string{"Submission: 42", "Overall: 6 / 8 points (75%)", "Questions answered: 2 of 2", "Sections:", "- Governance: 100% (1 questions)", "- Biodiversity: 33.33%"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "Gender dimension") {
		t.Error("Expected empty breakdowns to be omitted")
	}
}

func TestBuildPrompt_NoResult(t *testing.T) {
	if !strings.Contains(BuildPrompt(model.Assessment{}), "No scoring result") {
		t.Error("Expected prompt to note missing result")
	}
}

func TestConfigFromModel(t *testing.T) {
	c := ConfigFromModel(model.LLMConfig{Provider: "openai", Model: "gpt-4o-mini"}, model.UpstreamConfig{HTTPSProxy: "http://p:1"})
	if !c.StrictFigures {
		t.Error("Expected strict figures on by default")
	}
	if c.MaxTokens != 800 || c.Timeout == 0 {
		t.Errorf("Expected defaults to fill unset fields, got %+v", c)
	}
	if c.HTTPSProxy != "http://p:1" {
		t.Errorf("Expected proxy to be carried over, got %q", c.HTTPSProxy)
	}
}
