package llm

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/omecscore/internal/model"
	"github.com/ppiankov/omecscore/internal/util"
)

var percentPattern = regexp.MustCompile(`\d+(?:\.\d+)?\s?%`)

// OpenAIProvider implements Provider for OpenAI and OpenAI-compatible endpoints
type OpenAIProvider struct {
	client *openai.Client
	config Config
	name   string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Transport: util.NewTransport(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		name:   "openai",
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.name
}

// IsAvailable checks if the provider is reachable with the configured key
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// Summarize generates a summary using the Chat Completions API
func (p *OpenAIProvider) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error) {
	prompt := req.Prompt
	if prompt == "" {
		prompt = BuildPrompt(req.Assessment)
	}

	modelName := req.Model
	if modelName == "" {
		modelName = p.config.Model
	}
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 800
	}

	timeout := p.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You explain conservation assessment scores without changing or inventing figures.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from %s", p.name)
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	quoted := extractPercentages(summary)

	if p.config.StrictFigures {
		allowed := allowedFigures(req.Assessment)
		for _, q := range quoted {
			if !allowed[q] {
				return nil, fmt.Errorf("figure leak: narrative quoted %s%% which is not in the assessment", q)
			}
		}
	}

	return &SummarizeResponse{
		Summary:       summary,
		QuotedFigures: quoted,
		Model:         modelName,
		TokensUsed:    resp.Usage.TotalTokens,
	}, nil
}

// extractPercentages returns the distinct numeric parts of "NN%" mentions
func extractPercentages(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range percentPattern.FindAllString(text, -1) {
		num := strings.TrimSpace(strings.TrimSuffix(m, "%"))
		if f, err := strconv.ParseFloat(num, 64); err == nil {
			num = formatFigure(f)
		}
		if !seen[num] {
			seen[num] = true
			out = append(out, num)
		}
	}
	return out
}

// allowedFigures lists every percentage in the assessment, plus the
// whole-number and one-decimal roundings a narrative may use
func allowedFigures(a model.Assessment) map[string]bool {
	allowed := map[string]bool{"0": true, "100": true}
	if a.Result == nil {
		return allowed
	}

	add := func(p float64) {
		allowed[formatFigure(p)] = true
		allowed[strconv.FormatFloat(p, 'f', 0, 64)] = true
		allowed[formatFigure(roundTo(p, 1))] = true
	}

	add(a.Result.Percentage)
	for _, group := range [][]model.CategoryScore{a.Result.SectionScores, a.Result.GenderScores, a.Result.OMECPotentialScores} {
		for _, c := range group {
			add(c.Percentage)
		}
	}
	return allowed
}

func formatFigure(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func roundTo(f float64, decimals int) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(f, 'f', decimals, 64), 64)
	return v
}
