package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/omecscore/internal/pipeline"
)

var (
	historyLimit int
	historyJSON  bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history <submission-id>",
	Short: "List stored results for a submission",
	Long: `History lists earlier scoring results of a submission from the result
store (store.driver must be sqlite or postgres).

Example:
  omecscore history 123456789 --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of results (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Driver == "" {
		return fmt.Errorf("%w: set store.driver to sqlite or postgres", pipeline.ErrHistoryDisabled)
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

	list, err := p.History(ctx, args[0], historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list) == 0 {
		_, _ = fmt.Fprintf(out, "No stored results for submission %s\n", args[0])
		return nil
	}
	_, _ = fmt.Fprintf(out, "%-36s  %-20s  %10s  %8s\n", "RESULT", "SCORED", "SCORE", "PERCENT")
	for _, a := range list {
		_, _ = fmt.Fprintf(out, "%-36s  %-20s  %10s  %7.2f%%\n",
			a.ID, a.ScoredAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%g/%g", a.Result.TotalScore, a.Result.MaxPossibleScore), a.Result.Percentage)
	}
	return nil
}
