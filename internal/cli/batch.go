package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/omecscore/internal/pipeline"
	"github.com/ppiankov/omecscore/internal/report"
	"github.com/ppiankov/omecscore/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchAll     bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch [ids-file]",
	Short: "Score many submissions in parallel",
	Long: `Batch scores many submissions concurrently:
- Read submission IDs from a file (one per line, # comments allowed)
  or score every submission of the asset with --all
- Score in parallel against one rubric snapshot
- Write a JSON and Markdown report per submission plus a batch summary

Example:
  omecscore batch ids.txt
  omecscore batch --all --concurrency 8 --output-dir ./reports`,
	Args: func(cmd *cobra.Command, args []string) error {
		if batchAll && len(args) > 0 {
			return fmt.Errorf("use either an IDs file or --all, not both")
		}
		if !batchAll && len(args) != 1 {
			return fmt.Errorf("requires an IDs file or --all")
		}
		return nil
	},
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: concurrency.workers)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./omecscore-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&batchAll, "all", false, "score every submission of the configured asset")
	addCommonFlags(batchCmd)
}

// batchSummary is written next to the per-submission reports
type batchSummary struct {
	RunID     string            `json:"run_id"`
	StartedAt time.Time         `json:"started_at"`
	Duration  string            `json:"duration"`
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []batchSummaryRow `json:"results"`
}

type batchSummaryRow struct {
	SubmissionID string  `json:"submission_id"`
	ResultID     string  `json:"result_id,omitempty"`
	Percentage   float64 `json:"percentage,omitempty"`
	Error        string  `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	cfg, err := commandConfig()
	if err != nil {
		return err
	}
	if cfg.Upstream.AssetUID == "" {
		return fmt.Errorf("upstream.asset_uid is not configured (set OMECSCORE_UPSTREAM_ASSET_UID)")
	}
	if concurrency > 0 {
		cfg.Concurrency.Workers = concurrency
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	runID := uuid.NewString()
	started := time.Now().UTC()
	logger = logger.With(zap.String("run_id", runID))

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  omecscore batch %s\n", runID)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n\n", batchTimeout)

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, closeFn, err := pipeline.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	// Load the rubric once up front so a bad rubric fails fast
	if _, err := p.LoadRules(ctx); err != nil {
		return fmt.Errorf("load rubric: %w", err)
	}

	var ids []string
	if batchAll {
		ids, err = p.ListSubmissionIDs(ctx)
	} else {
		ids, err = worker.ReadIDsFromFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("list submissions: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ %d submissions to score\n\n", len(ids))

	processor := worker.NewBatchProcessor(p, cfg.Concurrency.Workers)
	done := 0
	processor.OnResult(func(r *worker.ScoreResult) {
		done++
		if r.Error != nil {
			logger.Warn("submission failed", zap.String("submission", r.SubmissionID), zap.Error(r.Error))
		}
		logger.Debug("batch progress", zap.Int("done", done), zap.Int("total", len(ids)))
	})

	results := processor.ProcessIDs(ctx, ids)

	summary := batchSummary{RunID: runID, StartedAt: started, Total: len(results)}
	rows := make([]report.BatchRow, 0, len(results))

	for _, r := range results {
		row := report.BatchRow{SubmissionID: r.SubmissionID, Assessment: r.Assessment, Err: r.Error}
		line := batchSummaryRow{SubmissionID: r.SubmissionID}

		if r.Error == nil {
			base := filepath.Join(outputDir, sanitizeFilename(r.SubmissionID))
			if err := p.RenderReport(io.Discard, r.Assessment, base+".json", base+".md", false); err != nil {
				row.Err = fmt.Errorf("write report: %w", err)
			}
		}

		if row.Err != nil {
			summary.Failed++
			line.Error = row.Err.Error()
		} else {
			summary.Succeeded++
			line.ResultID = r.Assessment.ID
			line.Percentage = r.Assessment.Result.Percentage
		}
		rows = append(rows, row)
		summary.Results = append(summary.Results, line)
	}

	summary.Duration = time.Since(started).Round(time.Millisecond).String()
	if err := writeBatchSummary(filepath.Join(outputDir, "batch-summary.json"), summary); err != nil {
		return err
	}

	p.Renderer().RenderBatchSummary(os.Stderr, runID, rows)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n\n", outputDir)

	if summary.Failed > 0 && summary.Succeeded == 0 {
		return fmt.Errorf("all %d submissions failed", summary.Failed)
	}
	return nil
}

func writeBatchSummary(path string, s batchSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal batch summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write batch summary: %w", err)
	}
	return nil
}

// sanitizeFilename turns a submission ID into a safe file name
func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "-",
	)
	s = replacer.Replace(strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		s = "submission"
	}
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
