package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/omecscore/internal/model"
	"github.com/ppiankov/omecscore/internal/pipeline"
)

var (
	outJSON      string
	outMD        string
	inputFile    string
	scoreTimeout time.Duration
	noCache      bool
	noFooter     bool
	llmProvider  string
	llmModel     string
)

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score [submission-id]",
	Short: "Score one submission",
	Long: `Score fetches one submission from the survey backend (or reads it from a
JSON file) and evaluates it against the current rubric.

Example:
  omecscore score 123456789
  omecscore score 123456789 --json result.json --md result.md
  omecscore score --file submission.json --rubric rubric.csv`,
	Args: func(cmd *cobra.Command, args []string) error {
		if inputFile == "" && len(args) != 1 {
			return fmt.Errorf("requires a submission ID or --file")
		}
		if inputFile != "" && len(args) > 0 {
			return fmt.Errorf("use either a submission ID or --file, not both")
		}
		return nil
	},
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path")
	scoreCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path")
	scoreCmd.Flags().StringVar(&inputFile, "file", "", "score a submission JSON file instead of fetching")
	scoreCmd.Flags().DurationVar(&scoreTimeout, "timeout", 2*time.Minute, "overall timeout")
	addCommonFlags(scoreCmd)
}

// addCommonFlags registers flags shared by the scoring commands
func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable cache (force fresh fetch)")
	cmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	cmd.Flags().StringVar(&llmProvider, "llm", "", "add an LLM narrative (openai, ollama)")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
}

// commandConfig loads the config and applies the scoring command flags
func commandConfig() (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if noFooter {
		cfg.Output.IncludeFooter = false
	}
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
		if cfg.LLM.APIKey == "" && llmProvider == "openai" {
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
			if cfg.LLM.APIKey == "" {
				return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
			}
		}
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	return cfg, nil
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), scoreTimeout)
	defer cancel()

	cfg, err := commandConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, closeFn, err := pipeline.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	var a *model.Assessment
	if inputFile != "" {
		raw, err := readSubmissionFile(inputFile)
		if err != nil {
			return err
		}
		a, err = p.EvaluateRaw(ctx, raw)
		if err != nil {
			return fmt.Errorf("score failed: %w", err)
		}
	} else {
		if cfg.Upstream.AssetUID == "" {
			return fmt.Errorf("upstream.asset_uid is not configured (set OMECSCORE_UPSTREAM_ASSET_UID or use --file)")
		}
		a, err = p.EvaluateByID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("score failed: %w", err)
		}
	}

	if cfg.Output.Verbose && a.LLM != nil && a.LLM.Enabled {
		fmt.Fprintf(os.Stderr, "✓ Generated LLM summary using %s/%s\n", a.LLM.Provider, a.LLM.Model)
	}

	if err := p.RenderReport(os.Stdout, a, outJSON, outMD, cfg.Output.Verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}

// readSubmissionFile reads one raw submission object, keeping numbers exact
func readSubmissionFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read submission: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse submission %s: %w", path, err)
	}
	if raw == nil {
		return nil, errors.New("submission file must contain a JSON object")
	}
	return raw, nil
}
