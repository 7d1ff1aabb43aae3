// Package sheet reads the colour records from a spreadsheet published as CSV.
package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"whatisyourcolor/internal/config"
	"whatisyourcolor/internal/domain/color"
)

// maxBodySize caps how much of the published sheet is read
const maxBodySize = 10 << 20

// Client fetches the published sheet and maps its rows to records
type Client struct {
	url         string
	labelColumn string
	colorColumn string
	httpClient  *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a sheet client for cfg
func NewClient(cfg config.SheetConfig, opts ...Option) *Client {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		url:         cfg.URL,
		labelColumn: cfg.LabelColumn,
		colorColumn: cfg.ColorColumn,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	if c.labelColumn == "" {
		c.labelColumn = "name"
	}
	if c.colorColumn == "" {
		c.colorColumn = "colorCode"
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Fetch downloads the sheet and returns its records in sheet order
func (c *Client) Fetch(ctx context.Context) ([]color.Record, error) {
	if c.url == "" {
		return nil, fmt.Errorf("%w: sheet URL is not configured", color.ErrSourceUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", color.ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "text/csv")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", color.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: unexpected status %d", color.ErrSourceUnavailable, resp.StatusCode)
	}

	return Parse(io.LimitReader(resp.Body, maxBodySize), c.labelColumn, c.colorColumn)
}

// Parse reads CSV with a header row and maps labelColumn and colorColumn to
// records. Missing columns yield empty strings, extra columns are ignored and
// rows with both mapped fields empty are skipped. A leading BOM is stripped
// and invalid UTF-8 is replaced.
func Parse(r io.Reader, labelColumn, colorColumn string) ([]color.Record, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []color.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", color.ErrMalformedSnapshot, err)
	}

	labelIdx, colorIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case labelColumn:
			if labelIdx < 0 {
				labelIdx = i
			}
		case colorColumn:
			if colorIdx < 0 {
				colorIdx = i
			}
		}
	}

	records := []color.Record{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", color.ErrMalformedSnapshot, err)
		}

		rec := color.Record{
			Label:     field(row, labelIdx),
			ColorCode: field(row, colorIdx),
		}
		if rec.Label == "" && rec.ColorCode == "" {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
