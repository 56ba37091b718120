package rubric

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/omecscore/internal/model"
)

// Source provides raw rubric records
type Source interface {
	FetchRecords(ctx context.Context) ([]model.Record, error)
}

// CSVSource reads a rubric CSV from a local path or an http(s) URL
type CSVSource struct {
	location   string
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
}

// NewCSVSource creates a CSV rubric source. timeout only applies to URL locations.
func NewCSVSource(location string, timeout time.Duration, userAgent string) *CSVSource {
	return &CSVSource{
		location: location,
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		maxBytes:  10_000_000,
	}
}

// Location returns the configured path or URL
func (s *CSVSource) Location() string {
	return s.location
}

// FetchRecords reads and parses the rubric. Any failure wraps ErrDataUnavailable.
func (s *CSVSource) FetchRecords(ctx context.Context) ([]model.Record, error) {
	body, err := s.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	defer func() { _ = body.Close() }()

	records, err := ParseCSV(io.LimitReader(body, s.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	return records, nil
}

func (s *CSVSource) open(ctx context.Context) (io.ReadCloser, error) {
	if s.location == "" {
		return nil, fmt.Errorf("no rubric source configured")
	}

	if !strings.HasPrefix(s.location, "http://") && !strings.HasPrefix(s.location, "https://") {
		f, err := os.Open(s.location)
		if err != nil {
			return nil, fmt.Errorf("open rubric: %w", err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/csv,text/plain;q=0.9,*/*;q=0.8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rubric: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}
	return resp.Body, nil
}

// ParseCSV reads a header row followed by data rows into records. Rows may
// be shorter than the header; missing cells are absent from the record.
func ParseCSV(r io.Reader) ([]model.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return []model.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var records []model.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(records)+2, err)
		}

		rec := make(model.Record, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = row[i]
			}
		}
		records = append(records, rec)
	}

	return records, nil
}
