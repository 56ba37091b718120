package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/omecscore/internal/model"
)

// Scorer scores one submission by its upstream ID
type Scorer interface {
	EvaluateByID(ctx context.Context, id string) (*model.Assessment, error)
}

// ScoreJob scores one submission
type ScoreJob struct {
	Index        int
	SubmissionID string
	Scorer       Scorer
}

// Execute runs the job
func (j *ScoreJob) Execute(ctx context.Context) Result {
	assessment, err := j.Scorer.EvaluateByID(ctx, j.SubmissionID)
	return &ScoreResult{
		Index:        j.Index,
		SubmissionID: j.SubmissionID,
		Assessment:   assessment,
		Error:        err,
	}
}

// ScoreResult is the outcome of one ScoreJob
type ScoreResult struct {
	Index        int
	SubmissionID string
	Assessment   *model.Assessment
	Error        error
}

// GetError returns the job error
func (r *ScoreResult) GetError() error {
	return r.Error
}

// BatchProcessor scores many submissions concurrently
type BatchProcessor struct {
	scorer      Scorer
	concurrency int
	onResult    func(*ScoreResult)
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(scorer Scorer, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		scorer:      scorer,
		concurrency: concurrency,
	}
}

// OnResult registers a callback invoked as each submission finishes
func (b *BatchProcessor) OnResult(fn func(*ScoreResult)) {
	b.onResult = fn
}

// ProcessIDs scores ids concurrently and returns results in input order.
// IDs that never ran because ctx ended carry ctx's error.
func (b *BatchProcessor) ProcessIDs(ctx context.Context, ids []string) []*ScoreResult {
	results := make([]*ScoreResult, len(ids))
	if len(ids) == 0 {
		return results
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	go func() {
		for i, id := range ids {
			if !pool.Submit(&ScoreJob{Index: i, SubmissionID: id, Scorer: b.scorer}) {
				break
			}
		}
		pool.Close()
	}()

	for r := range pool.Results() {
		sr := r.(*ScoreResult)
		results[sr.Index] = sr
		if b.onResult != nil {
			b.onResult(sr)
		}
	}

	for i, r := range results {
		if r == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			results[i] = &ScoreResult{Index: i, SubmissionID: ids[i], Error: err}
		}
	}

	return results
}

// ProcessFile reads submission IDs from a file and scores them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*ScoreResult, error) {
	ids, err := ReadIDsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read submission IDs: %w", err)
	}
	return b.ProcessIDs(ctx, ids), nil
}

// ReadIDsFromFile reads one submission ID per line, skipping blanks,
// "#" comments and duplicates
func ReadIDsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var ids []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			ids = append(ids, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return ids, nil
}
