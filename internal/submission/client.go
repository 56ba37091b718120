// Package submission fetches survey submissions from the upstream backend
// and flattens them for scoring.
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/omecscore/internal/cache"
	"github.com/ppiankov/omecscore/internal/model"
	"github.com/ppiankov/omecscore/internal/util"
	"github.com/ppiankov/omecscore/internal/worker"
)

var (
	// ErrSubmissionNotFound is returned when the backend has no such submission
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrUpstreamUnavailable is returned for every other fetch failure
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Source provides flattened submissions
type Source interface {
	FetchSubmission(ctx context.Context, id string) (model.Submission, error)
	ListSubmissionIDs(ctx context.Context) ([]string, error)
}

// sleepFunc waits between retries (injectable for tests)
var sleepFunc = func(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// statusError is a non-2xx response from the backend
type statusError struct {
	Code   int
	Status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.Status)
}

// Client talks to a KoboToolbox-style REST API
type Client struct {
	httpClient *http.Client
	baseURL    string
	assetUID   string
	token      string
	userAgent  string
	maxBytes   int64
	maxRetries int
	limiter    *worker.Limiter
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// ClientOption customises a Client
type ClientOption func(*Client)

// WithLimiter rate-limits requests per host
func WithLimiter(l *worker.Limiter) ClientOption { return func(c *Client) { c.limiter = l } }

// WithCache caches raw submission payloads for ttl (0 uses the cache default)
func WithCache(ch cache.Cache, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = ch
		c.cacheTTL = ttl
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ClientOption { return func(c *Client) { c.logger = l } }

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(h *http.Client) ClientOption { return func(c *Client) { c.httpClient = h } }

// NewClient creates a client from upstream settings
func NewClient(cfg model.UpstreamConfig, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: util.NewTransport(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		assetUID:   cfg.AssetUID,
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		maxBytes:   cfg.MaxBodyBytes,
		maxRetries: cfg.MaxRetries,
		cache:      cache.Nop{},
		logger:     zap.NewNop(),
	}
	if c.maxBytes <= 0 {
		c.maxBytes = 5_000_000
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchSubmission retrieves one submission and flattens it
func (c *Client) FetchSubmission(ctx context.Context, id string) (model.Submission, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "/?#") {
		return nil, fmt.Errorf("%w: invalid submission id %q", ErrSubmissionNotFound, id)
	}

	key := cache.Key("submission", c.baseURL, c.assetUID, id)
	body, hit := c.cache.Get(key)
	if !hit {
		var err error
		body, err = c.getWithRetry(ctx, c.dataURL(id+"/"))
		if err != nil {
			return nil, c.classify(id, err)
		}
		if err := c.cache.Set(key, body, c.cacheTTL); err != nil {
			c.logger.Warn("cache submission", zap.String("id", id), zap.Error(err))
		}
	}

	raw, err := decodeObject(body)
	if err != nil {
		_ = c.cache.Delete(key)
		return nil, fmt.Errorf("%w: decode submission %s: %v", ErrUpstreamUnavailable, id, err)
	}

	return Flatten(raw), nil
}

// ListSubmissionIDs returns the IDs of every submission of the asset,
// following pagination links.
func (c *Client) ListSubmissionIDs(ctx context.Context) ([]string, error) {
	next := c.dataURL("") + "&fields=" + url.QueryEscape(`["_id"]`) + "&limit=1000"
	var ids []string
	visited := make(map[string]bool)

	for next != "" {
		if visited[next] {
			return nil, fmt.Errorf("%w: list submissions: pagination repeats %s", ErrUpstreamUnavailable, next)
		}
		visited[next] = true

		body, err := c.getWithRetry(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("%w: list submissions: %v", ErrUpstreamUnavailable, err)
		}

		var page struct {
			Next    *string          `json:"next"`
			Results []map[string]any `json:"results"`
		}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&page); err != nil {
			return nil, fmt.Errorf("%w: decode submission list: %v", ErrUpstreamUnavailable, err)
		}

		for _, r := range page.Results {
			if id, ok := model.Submission(r).Lookup("_id"); ok {
				ids = append(ids, id)
			}
		}

		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}

	return ids, nil
}

func (c *Client) dataURL(suffix string) string {
	return fmt.Sprintf("%s/api/v2/assets/%s/data/%s?format=json",
		c.baseURL, url.PathEscape(c.assetUID), suffix)
}

// classify maps a fetch failure onto the package's sentinel errors
func (c *Client) classify(id string, err error) error {
	var se *statusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
	}
	return fmt.Errorf("%w: submission %s: %v", ErrUpstreamUnavailable, id, err)
}

// getWithRetry retries transient failures with linear backoff
func (c *Client) getWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		body, err := c.get(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == c.maxRetries {
			break
		}

		backoff := time.Duration(attempt) * time.Second
		c.logger.Debug("retrying upstream request",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if err := sleepFunc(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// transportError wraps a failure to get any response at all
type transportError struct{ err error }

func (e *transportError) Error() string { return "fetch: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// isRetryable reports whether another attempt could succeed
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}

	var te *transportError
	return errors.As(err, &te)
}

func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("empty submission body")
	}
	return raw, nil
}
