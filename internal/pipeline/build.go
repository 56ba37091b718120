package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/omecscore/internal/cache"
	"github.com/ppiankov/omecscore/internal/llm"
	"github.com/ppiankov/omecscore/internal/model"
	"github.com/ppiankov/omecscore/internal/report"
	"github.com/ppiankov/omecscore/internal/rubric"
	"github.com/ppiankov/omecscore/internal/score"
	"github.com/ppiankov/omecscore/internal/store"
	"github.com/ppiankov/omecscore/internal/submission"
	"github.com/ppiankov/omecscore/internal/worker"
)

// Build assembles a pipeline from configuration. The returned close
// function releases the result store, if one was opened.
func Build(ctx context.Context, cfg *model.Config, logger *zap.Logger) (*Pipeline, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	closeFn := func() error { return nil }

	rules := rubric.NewStore(
		rubric.NewCSVSource(cfg.Rubric.Source, cfg.Rubric.Timeout, cfg.Upstream.UserAgent),
		logger.Named("rubric"))

	var submissions submission.Source
	if cfg.Upstream.AssetUID != "" {
		submissions = submission.NewClient(cfg.Upstream,
			submission.WithLimiter(worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)),
			submission.WithCache(cache.New(cfg.Cache), 0),
			submission.WithLogger(logger.Named("upstream")))
	} else {
		logger.Debug("no upstream asset configured, fetching by ID is disabled")
	}

	var results ResultStore
	if cfg.Store.Driver != "" {
		st, err := store.Open(ctx, store.Driver(cfg.Store.Driver), cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open result store: %w", err)
		}
		logger.Debug("result store opened", zap.String("driver", string(st.Driver())))
		results = st
		closeFn = st.Close
	}

	var summarizer *llm.Summarizer
	if cfg.LLM.Provider != "" {
		s, err := llm.NewSummarizer(llm.ConfigFromModel(cfg.LLM, cfg.Upstream))
		if err != nil {
			logger.Warn("failed to initialize LLM provider", zap.Error(err))
		} else {
			summarizer = s
		}
	}

	p := New(Dependencies{
		Rules:       rules,
		Submissions: submissions,
		Scorer:      score.NewScorer(score.NewTierTable(cfg.Tiers)),
		Results:     results,
		Summarizer:  summarizer,
		Renderer:    report.NewRenderer(cfg.Output.IncludeFooter),
		Logger:      logger,
	})
	return p, closeFn, nil
}
