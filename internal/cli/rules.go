package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/omecscore/internal/model"
	"github.com/ppiankov/omecscore/internal/pipeline"
)

var (
	rulesJSON bool
	rulesFull bool
)

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Load the rubric and describe it",
	Long: `Rules loads the configured rubric and prints what it contains: rule
counts per type, sections, gender dimensions, OMEC potentials and the
multiple-choice question groups.

Example:
  omecscore rules --rubric https://docs.google.com/.../pub?output=csv
  omecscore rules --json --full`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.Flags().BoolVar(&rulesJSON, "json", false, "print JSON instead of text")
	rulesCmd.Flags().BoolVar(&rulesFull, "full", false, "include every rule")
}

func runRules(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// The result store is not needed to describe rules
	cfg.Store.Driver = ""
	p, closeFn, err := pipeline.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	rs, err := p.RuleSet(ctx)
	if err != nil {
		return err
	}
	summary := rs.Summary()

	out := cmd.OutOrStdout()
	if rulesJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if rulesFull {
			return enc.Encode(rs)
		}
		return enc.Encode(summary)
	}

	printSummary(out, cfg.Rubric.Source, summary)
	if rulesFull {
		_, _ = fmt.Fprintln(out, "\nRules:")
		for _, r := range rs.Rules {
			_, _ = fmt.Fprintf(out, "  %-40s %-13s %6g  expects %q\n", r.Column, r.Type, r.Score, r.ExpectedValue)
		}
	}
	return nil
}

func printSummary(w io.Writer, source string, s model.RuleSetSummary) {
	_, _ = fmt.Fprintf(w, "Rubric: %s\n", source)
	_, _ = fmt.Fprintf(w, "Loaded: %s\n\n", s.LoadedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Rules:              %d\n", s.TotalRules)
	for _, t := range []model.RuleType{model.RuleTypeSelect, model.RuleTypeMultipleMax, model.RuleTypeValue} {
		_, _ = fmt.Fprintf(w, "  %-17s %d\n", t+":", s.CountsByType[t])
	}
	var other int
	for t, n := range s.CountsByType {
		if !t.Known() {
			other += n
		}
	}
	if other > 0 {
		_, _ = fmt.Fprintf(w, "  %-17s %d (scored by exact match)\n", "other:", other)
	}
	_, _ = fmt.Fprintf(w, "Max possible score: %g\n\n", s.MaxPossibleScore)

	_, _ = fmt.Fprintf(w, "Sections:       %s\n", joinOrNone(s.Sections))
	_, _ = fmt.Fprintf(w, "Gender:         %s\n", joinOrNone(s.Genders))
	_, _ = fmt.Fprintf(w, "OMEC potential: %s\n", joinOrNone(s.Potentials))

	if len(s.MultipleMaxGroups) > 0 {
		_, _ = fmt.Fprintln(w, "\nMultiple-choice groups:")
		for _, g := range s.MultipleMaxGroups {
			_, _ = fmt.Fprintf(w, "  %-24s %d options, max %g\n", g.GroupKey, len(g.Options), g.MaxScore)
		}
	}
}

func joinOrNone(list []string) string {
	if len(list) == 0 {
		return "(none)"
	}
	return strings.Join(list, ", ")
}
