package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ppiankov/omecscore/internal/pipeline"
	"github.com/ppiankov/omecscore/internal/rubric"
	"github.com/ppiankov/omecscore/internal/submission"
)

// errBadRequest marks client input errors
var errBadRequest = errors.New("bad request")

type handlers struct {
	svc     Service
	maxBody int64
	logger  *zap.Logger
}

func (h *handlers) getRules(w http.ResponseWriter, r *http.Request) {
	if full, _ := strconv.ParseBool(r.URL.Query().Get("full")); full {
		rs, err := h.svc.RuleSet(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rs)
		return
	}

	summary, err := h.svc.LoadRules(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handlers) reloadRules(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.ReloadRules(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handlers) scoreRaw(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeSubmission(io.LimitReader(r.Body, h.maxBody))
	if err != nil {
		h.writeError(w, err)
		return
	}

	a, err := h.svc.EvaluateRaw(r.Context(), raw)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) scoreByID(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.EvaluateByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) results(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, fmt.Errorf("%w: invalid limit %q", errBadRequest, v))
			return
		}
		limit = n
	}

	list, err := h.svc.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// decodeSubmission reads one JSON object, keeping numbers as json.Number
func decodeSubmission(r io.Reader) (map[string]any, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: submission must be a JSON object", errBadRequest)
	}
	return raw, nil
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, submission.ErrSubmissionNotFound):
		return http.StatusNotFound
	case errors.Is(err, submission.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, rubric.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, pipeline.ErrHistoryDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
