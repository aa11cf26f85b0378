package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/incidentlens/incidentlens/internal/clean"
	"github.com/incidentlens/incidentlens/internal/config"
)

// Source supplies one batch of raw rows per Fetch call.
type Source interface {
	Fetch(ctx context.Context) ([]clean.RawRecord, error)
}

// New returns the Source matching the dataset configuration.
func New(cfg config.DatasetConfig) (Source, error) {
	switch cfg.Type {
	case "file":
		return &fileSource{path: cfg.Path}, nil
	case "http":
		return &httpSource{
			url:    cfg.URL,
			client: buildHTTPClient(cfg),
		}, nil
	default:
		return nil, fmt.Errorf("source: unsupported dataset type %q", cfg.Type)
	}
}

// fileSource reads a CSV file from local disk.
type fileSource struct {
	path string
}

func (s *fileSource) Fetch(ctx context.Context) ([]clean.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("source: open %q: %w", s.path, err)
	}
	defer f.Close()
	return decodeCSV(f)
}

// httpSource fetches a CSV document over HTTP.
type httpSource struct {
	url    string
	client *http.Client
}

func (s *httpSource) Fetch(ctx context.Context) ([]clean.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("source: build request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source: unexpected status %d from %q", resp.StatusCode, s.url)
	}
	return decodeCSV(resp.Body)
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the dataset's auth and
// timeout settings.
func buildHTTPClient(cfg config.DatasetConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultFetchTimeout
	}
	return &http.Client{
		Transport: &authRoundTripper{base: http.DefaultTransport, auth: cfg.Auth},
		Timeout:   timeout,
	}
}

// decodeCSV reads a header row and turns every following line into a
// RawRecord. Lines whose field count does not match the header are
// skipped and counted, matching the pipeline's silent-drop posture.
func decodeCSV(r io.Reader) ([]clean.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // tolerate ragged rows; we skip them below

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("source: csv document is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("source: read csv header: %w", err)
	}

	var (
		rows    []clean.RawRecord
		skipped int
	)
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if len(fields) != len(header) {
			skipped++
			continue
		}
		row := make(clean.RawRecord, len(header))
		for i, name := range header {
			row[name] = fields[i]
		}
		rows = append(rows, row)
	}

	if skipped > 0 {
		slog.Warn("source: skipped malformed csv lines", "count", skipped)
	}
	return rows, nil
}
