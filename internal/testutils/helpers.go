package testutils

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/testcontainers/testcontainers-go"

	"whatisyourcolor/internal/config"
	"whatisyourcolor/internal/domain/color"
)

// Form field names used by NewTestConfig and FakeForm
const (
	TestLabelField = "entry.1208945866"
	TestColorField = "entry.184357747"
)

// NewTestConfig returns a valid configuration for the test environment. The
// sheet and form URLs are left empty; point them at fakes as needed.
func NewTestConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Port:        "0",
		Host:        "localhost",
		Sheet: config.SheetConfig{
			LabelColumn:     "name",
			ColorColumn:     "colorCode",
			RefreshInterval: 50 * time.Millisecond,
			FetchTimeout:    2 * time.Second,
		},
		Form: config.FormConfig{
			LabelField: TestLabelField,
			ColorField: TestColorField,
			Timeout:    2 * time.Second,
		},
		Layout:     config.LayoutConfig{Policy: "grid", CellSize: 15, MaxDelay: 5 * time.Second},
		Submission: config.SubmissionConfig{DuplicatePolicy: "show", RateLimit: 0, RateBurst: 1},
		Export: config.ExportConfig{
			Capability:     "auto",
			ShareURLExpiry: time.Hour,
			CardWidth:      120,
			CardHeight:     160,
			Scale:          1,
		},
		Cache:   config.CacheConfig{DefaultTTL: time.Hour},
		CORS:    config.CORSConfig{AllowedOrigins: []string{"*"}},
		Logging: &config.LoggingConfig{Level: "error", Format: "json", Output: "stdout"},
		Server: &config.ServerConfig{
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			IdleTimeout:     5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// SheetCSV renders records the way a published spreadsheet does
func SheetCSV(records []color.Record) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Timestamp", "name", "colorCode"})
	for _, r := range records {
		_ = w.Write([]string{"2024-01-01 00:00:00", r.Label, r.ColorCode})
	}
	w.Flush()
	return buf.String()
}

// FakeSheet serves a mutable CSV document over HTTP
type FakeSheet struct {
	Server *httptest.Server

	mu       sync.Mutex
	records  []color.Record
	status   int
	requests int
}

// NewFakeSheet starts a sheet server holding records
func NewFakeSheet(records ...color.Record) *FakeSheet {
	s := &FakeSheet{records: records, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

func (s *FakeSheet) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	status := s.status
	body := SheetCSV(s.records)
	s.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "unavailable", status)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	_, _ = io.WriteString(w, body)
}

// URL returns the CSV endpoint
func (s *FakeSheet) URL() string {
	return s.Server.URL + "/export?format=csv"
}

// Set replaces the served records
func (s *FakeSheet) Set(records ...color.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
}

// Append adds a row, as a form submission would
func (s *FakeSheet) Append(record color.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

// Fail makes the sheet answer with status until Fail(http.StatusOK)
func (s *FakeSheet) Fail(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Requests returns how many times the sheet was fetched
func (s *FakeSheet) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Close stops the server
func (s *FakeSheet) Close() {
	s.Server.Close()
}

// FakeForm records form posts. When Sheet is set, accepted posts are
// appended to it the way the real form feeds the spreadsheet.
type FakeForm struct {
	Server *httptest.Server
	Sheet  *FakeSheet

	mu          sync.Mutex
	submissions []color.Record
}

// NewFakeForm starts a form server
func NewFakeForm(sheet *FakeSheet) *FakeForm {
	f := &FakeForm{Sheet: sheet}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

func (f *FakeForm) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	record := color.Record{
		Label:     r.PostForm.Get(TestLabelField),
		ColorCode: r.PostForm.Get(TestColorField),
	}

	f.mu.Lock()
	f.submissions = append(f.submissions, record)
	f.mu.Unlock()

	if f.Sheet != nil {
		f.Sheet.Append(record)
	}
	w.WriteHeader(http.StatusOK)
}

// URL returns the form endpoint
func (f *FakeForm) URL() string {
	return f.Server.URL + "/formResponse"
}

// Submissions returns every record posted so far
func (f *FakeForm) Submissions() []color.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]color.Record(nil), f.submissions...)
}

// Close stops the server
func (f *FakeForm) Close() {
	f.Server.Close()
}

// MakeTestRequest creates an HTTP test request with the given parameters
func MakeTestRequest(method, url string, body io.Reader, headers map[string]string) *http.Request {
	req := httptest.NewRequest(method, url, body)

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return req
}

// MakeJSONRequest creates an HTTP test request with JSON body
func MakeJSONRequest(method, url string, payload any) *http.Request {
	var body io.Reader
	if payload != nil {
		jsonData, _ := json.Marshal(payload)
		body = bytes.NewReader(jsonData)
	}

	req := httptest.NewRequest(method, url, body)
	req.Header.Set("Content-Type", "application/json")

	return req
}

// AssertHTTPStatus checks if the HTTP response has the expected status code
func AssertHTTPStatus(t TestingInterface, resp *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if resp.Code != expectedStatus {
		t.Errorf("Expected status %d, got %d. Body: %s", expectedStatus, resp.Code, resp.Body.String())
	}
}

// AssertJSONResponse checks if the response contains valid JSON and optionally validates structure
func AssertJSONResponse(t TestingInterface, resp *httptest.ResponseRecorder, target any) error {
	t.Helper()
	if !strings.Contains(resp.Header().Get("Content-Type"), "application/json") {
		t.Errorf("Expected JSON response, got %s", resp.Header().Get("Content-Type"))
		return fmt.Errorf("not a JSON response")
	}

	if target != nil {
		if err := json.Unmarshal(resp.Body.Bytes(), target); err != nil {
			t.Errorf("Failed to unmarshal JSON response: %v", err)
			return err
		}
	}

	return nil
}

// TestingInterface defines the interface for testing frameworks (compatible with testing.T)
type TestingInterface interface {
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	Helper()
}

// WaitForContainer waits for a container to be ready with timeout
func WaitForContainer(ctx context.Context, container testcontainers.Container, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for container")
		case <-ticker.C:
			state, err := container.State(ctx)
			if err != nil {
				continue
			}
			if state.Running {
				return nil
			}
		}
	}
}

// RandomString generates a random string of specified length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.IntN(len(charset))]
	}
	return string(b)
}

// RandomRecord returns a record whose colour matches its label
func RandomRecord() color.Record {
	label := RandomString(8)
	return color.Record{Label: label, ColorCode: color.FromText(label)}
}
