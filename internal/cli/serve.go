package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/omecscore/internal/api"
	"github.com/ppiankov/omecscore/internal/pipeline"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scoring HTTP API",
	Long: `Serve exposes scoring over HTTP:

  GET  /healthz
  GET  /api/rules                      rubric summary (?full=true for every rule)
  POST /api/rules/reload               re-read the rubric
  POST /api/score                      score a raw submission JSON body
  GET  /api/submissions/{id}/score     fetch and score a submission
  GET  /api/submissions/{id}/results   stored results, newest first

With rubric.reload_interval set, the rubric is re-read periodically.

Example:
  omecscore serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
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

	// A missing rubric is not fatal: the API answers 503 until a reload succeeds
	if _, err := p.LoadRules(ctx); err != nil {
		logger.Warn("initial rubric load failed", zap.Error(err))
	}

	if cfg.Rubric.ReloadInterval > 0 {
		go p.Rules().Watch(ctx, cfg.Rubric.ReloadInterval)
		logger.Info("periodic rubric reload enabled", zap.Duration("interval", cfg.Rubric.ReloadInterval))
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(p, api.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
			MaxBodyBytes:   cfg.Upstream.MaxBodyBytes,
			Logger:         logger.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		fmt.Fprintf(os.Stderr, "omecscore API on %s\n", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
