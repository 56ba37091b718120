package submission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/omecscore/internal/cache"
	"github.com/ppiankov/omecscore/internal/model"
	"github.com/ppiankov/omecscore/internal/worker"
)

func noSleep(t *testing.T) {
	orig := sleepFunc
	sleepFunc = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { sleepFunc = orig })
}

func newTestClient(url string, opts ...ClientOption) *Client {
	return NewClient(model.UpstreamConfig{
		BaseURL:    url,
		AssetUID:   "aXyZ",
		Token:      "secret",
		Timeout:    5 * time.Second,
		UserAgent:  "test-agent",
		MaxRetries: 3,
	}, opts...)
}

func TestFetchSubmission_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/assets/aXyZ/data/42/" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("Expected format=json, got %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Token secret" {
			t.Errorf("Expected token header, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{
			"_id": 42,
			"governance/plan": "yes",
			"area/area_size_ha": 150,
			"_validation_status": {"uid": "validation_status_approved", "label": "Approved"}
		}`)
	}))
	defer server.Close()

	sub, err := newTestClient(server.URL).FetchSubmission(context.Background(), "42")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if v, _ := sub.Lookup("plan"); v != "yes" {
		t.Errorf("Expected plan=yes, got %q", v)
	}
	if v, _ := sub.Lookup("area_size_ha"); v != "150" {
		t.Errorf("Expected area_size_ha=150, got %q", v)
	}
	if v, _ := sub.Lookup("_validation_status"); v != "Approved" {
		t.Errorf("Expected validation label Approved, got %q", v)
	}
}

func TestFetchSubmission_NotFound(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()
	noSleep(t)

	_, err := newTestClient(server.URL).FetchSubmission(context.Background(), "404")
	if !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("Expected ErrSubmissionNotFound, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected 404 not to be retried, got %d attempts", attempts.Load())
	}
}

func TestFetchSubmission_TransientThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if n == 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, `{"q1": "yes"}`)
	}))
	defer server.Close()
	noSleep(t)

	sub, err := newTestClient(server.URL).FetchSubmission(context.Background(), "1")
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if v, _ := sub.Lookup("q1"); v != "yes" {
		t.Errorf("Unexpected submission: %v", sub)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchSubmission_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	noSleep(t)

	_, err := newTestClient(server.URL).FetchSubmission(context.Background(), "1")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("Expected ErrUpstreamUnavailable, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchSubmission_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchSubmission(context.Background(), "1")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Expected ErrUpstreamUnavailable for 403, got %v", err)
	}
}

func TestFetchSubmission_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<html>maintenance</html>`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchSubmission(context.Background(), "1")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestFetchSubmission_InvalidID(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	for _, id := range []string{"", "  ", "1/../2", "1?x"} {
		if _, err := client.FetchSubmission(context.Background(), id); !errors.Is(err, ErrSubmissionNotFound) {
			t.Errorf("id %q: expected ErrSubmissionNotFound, got %v", id, err)
		}
	}
}

func TestFetchSubmission_UsesCache(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		_, _ = fmt.Fprint(w, `{"q1": "yes"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL,
		WithCache(cache.NewMemoryCache(time.Minute, time.Minute), 0),
		WithLimiter(worker.NewLimiter(100, 10)))

	for i := 0; i < 3; i++ {
		if _, err := client.FetchSubmission(context.Background(), "7"); err != nil {
			t.Fatalf("FetchSubmission failed: %v", err)
		}
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected a single upstream request, got %d", attempts.Load())
	}
}

func TestListSubmissionIDs_FollowsPages(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = fmt.Fprint(w, `{"next": null, "results": [{"_id": 3}]}`)
			return
		}
		next := server.URL + "/api/v2/assets/aXyZ/data/?format=json&page=2"
		_, _ = fmt.Fprintf(w, `{"next": %q, "results": [{"_id": 1}, {"_id": 2}]}`, next)
	}))
	defer server.Close()

	ids, err := newTestClient(server.URL).ListSubmissionIDs(context.Background())
	if err != nil {
		t.Fatalf("ListSubmissionIDs failed: %v", err)
	}
	want := []string{"1", "2", "3"}
	if len(ids) != len(want) {
		t.Fatalf("Expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, ids[i])
		}
	}
}

func TestListSubmissionIDs_RepeatedNext(t *testing.T) {
	var requests atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		next := server.URL + "/api/v2/assets/aXyZ/data/?format=json&page=2"
		_, _ = fmt.Fprintf(w, `{"next": %q, "results": [{"_id": 1}]}`, next)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ListSubmissionIDs(context.Background())
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("Expected ErrUpstreamUnavailable, got %v", err)
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("Expected 2 requests before stopping, got %d", n)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"503", &statusError{Code: 503, Status: "503 Service Unavailable"}, true},
		{"500", &statusError{Code: 500, Status: "500 Internal Server Error"}, true},
		{"429", &statusError{Code: 429, Status: "429 Too Many Requests"}, true},
		{"404", &statusError{Code: 404, Status: "404 Not Found"}, false},
		{"401", &statusError{Code: 401, Status: "401 Unauthorized"}, false},
		{"connection refused", &transportError{err: errors.New("connection refused")}, true},
		{"cancelled", &transportError{err: context.Canceled}, false},
		{"read body", fmt.Errorf("read body: %w", errors.New("unexpected EOF")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.retryable {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}
