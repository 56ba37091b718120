// Package pipeline wires the rubric, the submission source and the scorer
// into the scoring service used by the CLI and the HTTP API.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/omecscore/internal/llm"
	"github.com/ppiankov/omecscore/internal/model"
	"github.com/ppiankov/omecscore/internal/report"
	"github.com/ppiankov/omecscore/internal/rubric"
	"github.com/ppiankov/omecscore/internal/score"
	"github.com/ppiankov/omecscore/internal/submission"
)

// ErrHistoryDisabled is returned by History when no result store is configured
var ErrHistoryDisabled = errors.New("result history is not configured")

// ResultStore persists assessments
type ResultStore interface {
	Save(ctx context.Context, a *model.Assessment) error
	ListBySubmission(ctx context.Context, submissionID string, limit int) ([]*model.Assessment, error)
}

// Dependencies are the collaborators of a Pipeline. Results and Summarizer
// are optional.
type Dependencies struct {
	Rules       *rubric.Store
	Submissions submission.Source
	Scorer      *score.Scorer
	Results     ResultStore
	Summarizer  *llm.Summarizer
	Renderer    *report.Renderer
	Logger      *zap.Logger
}

// Pipeline orchestrates rubric loading, submission fetching and scoring
type Pipeline struct {
	rules       *rubric.Store
	submissions submission.Source
	scorer      *score.Scorer
	results     ResultStore
	summarizer  *llm.Summarizer
	renderer    *report.Renderer
	logger      *zap.Logger
	now         func() time.Time
}

// New creates a pipeline from explicit dependencies
func New(deps Dependencies) *Pipeline {
	p := &Pipeline{
		rules:       deps.Rules,
		submissions: deps.Submissions,
		scorer:      deps.Scorer,
		results:     deps.Results,
		summarizer:  deps.Summarizer,
		renderer:    deps.Renderer,
		logger:      deps.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if p.scorer == nil {
		p.scorer = score.NewScorer(nil)
	}
	if p.renderer == nil {
		p.renderer = report.NewRenderer(true)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Rules returns the rubric snapshot store
func (p *Pipeline) Rules() *rubric.Store {
	return p.rules
}

// Evaluate scores an already flattened submission against the current rules
func (p *Pipeline) Evaluate(ctx context.Context, sub model.Submission) (*model.ScoringResult, error) {
	rs, err := p.rules.Get(ctx)
	if err != nil {
		return nil, err
	}
	return p.scorer.Evaluate(rs, sub), nil
}

// EvaluateRaw flattens a raw backend-shaped submission and assesses it.
// The submission ID is taken from its "_id" field when present.
func (p *Pipeline) EvaluateRaw(ctx context.Context, raw map[string]any) (*model.Assessment, error) {
	rs, err := p.rules.Get(ctx)
	if err != nil {
		return nil, err
	}

	sub := submission.Flatten(raw)
	id, _ := sub.Lookup("_id")
	return p.assess(ctx, rs, id, sub), nil
}

// EvaluateByID fetches a submission from the backend and assesses it
func (p *Pipeline) EvaluateByID(ctx context.Context, id string) (*model.Assessment, error) {
	if p.submissions == nil {
		return nil, fmt.Errorf("%w: no submission source configured", submission.ErrUpstreamUnavailable)
	}

	rs, err := p.rules.Get(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := p.submissions.FetchSubmission(ctx, id)
	if err != nil {
		return nil, err
	}

	return p.assess(ctx, rs, id, sub), nil
}

// ListSubmissionIDs lists every submission available upstream
func (p *Pipeline) ListSubmissionIDs(ctx context.Context) ([]string, error) {
	if p.submissions == nil {
		return nil, fmt.Errorf("%w: no submission source configured", submission.ErrUpstreamUnavailable)
	}
	return p.submissions.ListSubmissionIDs(ctx)
}

// LoadRules returns a summary of the current rules, loading them if needed
func (p *Pipeline) LoadRules(ctx context.Context) (*model.RuleSetSummary, error) {
	rs, err := p.rules.Get(ctx)
	if err != nil {
		return nil, err
	}
	summary := rs.Summary()
	return &summary, nil
}

// ReloadRules re-reads the rubric. The previous rules stay active on failure.
func (p *Pipeline) ReloadRules(ctx context.Context) (*model.RuleSetSummary, error) {
	rs, err := p.rules.Reload(ctx)
	if err != nil {
		return nil, err
	}
	summary := rs.Summary()
	return &summary, nil
}

// RuleSet returns the current rules
func (p *Pipeline) RuleSet(ctx context.Context) (*model.RuleSet, error) {
	return p.rules.Get(ctx)
}

// History lists stored results for a submission, newest first
func (p *Pipeline) History(ctx context.Context, submissionID string, limit int) ([]*model.Assessment, error) {
	if p.results == nil {
		return nil, ErrHistoryDisabled
	}
	return p.results.ListBySubmission(ctx, submissionID, limit)
}

// assess scores one submission against a fixed snapshot and decorates the
// result. Narrative and persistence failures are logged, never returned.
func (p *Pipeline) assess(ctx context.Context, rs *model.RuleSet, id string, sub model.Submission) *model.Assessment {
	sub = submission.ExpandSelections(sub, selectionGroups(rs))
	result := p.scorer.Evaluate(rs, sub)

	a := &model.Assessment{
		ID:           uuid.NewString(),
		SubmissionID: id,
		ScoredAt:     p.now(),
		RulesLoaded:  rs.LoadedAt,
		Result:       result,
		Groups:       score.GroupScores(rs, result),
	}

	// Narrative runs after scoring and never touches the result
	if p.summarizer.IsEnabled() {
		summary, err := p.summarizer.GenerateSummary(ctx, *a)
		if err != nil {
			p.logger.Warn("llm summary failed", zap.String("submission", id), zap.Error(err))
		} else if summary != nil {
			for _, w := range summary.Warnings {
				p.logger.Debug("llm note", zap.String("submission", id), zap.String("note", w))
			}
			a.LLM = summary
		}
	}

	if p.results != nil {
		if err := p.results.Save(ctx, a); err != nil {
			p.logger.Warn("store result failed", zap.String("submission", id), zap.Error(err))
		}
	}

	p.logger.Info("submission scored",
		zap.String("submission", id),
		zap.Float64("score", result.TotalScore),
		zap.Float64("max", result.MaxPossibleScore),
		zap.Float64("percentage", result.Percentage))

	return a
}

// selectionGroups returns the multiple_max group keys whose options are
// addressed as "group/option"
func selectionGroups(rs *model.RuleSet) []string {
	var keys []string
	for _, g := range rs.Summary().MultipleMaxGroups {
		for _, opt := range g.Options {
			if strings.Contains(opt, "/") {
				keys = append(keys, g.GroupKey)
				break
			}
		}
	}
	return keys
}

// RenderReport renders the assessment to the requested outputs and prints
// a terminal summary to w
func (p *Pipeline) RenderReport(w io.Writer, a *model.Assessment, jsonPath, mdPath string, verbose bool) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(a, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			_, _ = fmt.Fprintf(w, "✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := p.renderer.RenderMarkdown(a, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			_, _ = fmt.Fprintf(w, "✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	if a.LLM != nil && a.LLM.Enabled && mdPath != "" {
		llmPath := strings.TrimSuffix(mdPath, ".md") + ".llm.md"
		if err := p.renderer.RenderLLMMarkdown(llm.RenderSeparateMarkdown(a.LLM), llmPath); err != nil {
			p.logger.Warn("write llm summary failed", zap.String("path", llmPath), zap.Error(err))
		} else if verbose {
			_, _ = fmt.Fprintf(w, "✓ Wrote LLM Summary: %s\n", llmPath)
		}
	}

	p.renderer.RenderSummary(w, a)
	return nil
}

// Renderer returns the report renderer
func (p *Pipeline) Renderer() *report.Renderer {
	return p.renderer
}
