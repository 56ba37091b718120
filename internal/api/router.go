// Package api exposes the scoring service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ppiankov/omecscore/internal/model"
)

// Service is the scoring surface the HTTP handlers need
type Service interface {
	EvaluateRaw(ctx context.Context, raw map[string]any) (*model.Assessment, error)
	EvaluateByID(ctx context.Context, id string) (*model.Assessment, error)
	LoadRules(ctx context.Context) (*model.RuleSetSummary, error)
	ReloadRules(ctx context.Context) (*model.RuleSetSummary, error)
	RuleSet(ctx context.Context) (*model.RuleSet, error)
	History(ctx context.Context, submissionID string, limit int) ([]*model.Assessment, error)
}

// Options configure the router
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Logger         *zap.Logger
}

// NewRouter builds the HTTP handler for svc
func NewRouter(svc Service, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5_000_000
	}

	h := &handlers{svc: svc, maxBody: opts.MaxBodyBytes, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(opts.Logger), middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(ar chi.Router) {
		ar.Get("/rules", h.getRules)
		ar.Post("/rules/reload", h.reloadRules)
		ar.Post("/score", h.scoreRaw)
		ar.Route("/submissions/{id}", func(sr chi.Router) {
			sr.Get("/score", h.scoreByID)
			sr.Get("/results", h.results)
		})
	})

	return r
}

// RequestLogger logs each request with zap once it completes
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("client_ip", r.RemoteAddr),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}

			switch {
			case status >= 500:
				log.Error("Server error", fields...)
			case status >= 400:
				log.Warn("Client error", fields...)
			default:
				log.Debug("Request processed", fields...)
			}
		})
	}
}
