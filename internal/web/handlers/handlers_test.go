package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatisyourcolor/internal/config"
	"whatisyourcolor/internal/domain/color"
	"whatisyourcolor/internal/observability"
	"whatisyourcolor/internal/platform/ratelimit"
	"whatisyourcolor/internal/services"
	"whatisyourcolor/internal/testutils"
	"whatisyourcolor/internal/web/live"
)

const iPhoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"

type testEnv struct {
	sheet     *testutils.FakeSheet
	form      *testutils.FakeForm
	container *services.Container
	router    http.Handler
}

func newTestEnv(t *testing.T, mutate func(*config.Config), records ...color.Record) *testEnv {
	t.Helper()

	sheet := testutils.NewFakeSheet(records...)
	form := testutils.NewFakeForm(sheet)

	cfg := testutils.NewTestConfig()
	cfg.Sheet.URL = sheet.URL()
	cfg.Form.URL = form.URL()
	if mutate != nil {
		mutate(cfg)
	}

	container, err := services.NewContainer(cfg, nil, nil, nil)
	require.NoError(t, err)

	hub := live.NewHub(container.LayoutEngine(), container.SnapshotService(), nil, cfg.CORS.AllowedOrigins)
	handler, err := New(container, hub, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		hub.Close()
		_ = container.Close(ctx)
		form.Close()
		sheet.Close()
	})

	return &testEnv{
		sheet:     sheet,
		form:      form,
		container: container,
		router:    handler.Routes(),
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) refresh(t *testing.T) {
	t.Helper()
	_, err := e.container.SnapshotService().Refresh(context.Background())
	require.NoError(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, color.Record{Label: "a", ColorCode: "#610000"})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	testutils.AssertHTTPStatus(t, rec, http.StatusOK)

	var health HealthResponse
	require.NoError(t, testutils.AssertJSONResponse(t, rec, &health))
	assert.Equal(t, "ok", health.Status)

	t.Run("not ready before the first snapshot", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
		testutils.AssertHTTPStatus(t, rec, http.StatusServiceUnavailable)

		var ready HealthResponse
		require.NoError(t, testutils.AssertJSONResponse(t, rec, &ready))
		assert.Equal(t, "unhealthy", ready.Status)
		assert.Contains(t, ready.Checks["snapshot"], "unhealthy")
	})

	t.Run("ready after refresh", func(t *testing.T) {
		env.refresh(t)

		rec := env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
		testutils.AssertHTTPStatus(t, rec, http.StatusOK)
	})
}

func TestIndexHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		userAgent  string
		capability string
	}{
		{"desktop", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", "download"},
		// Share needs storage, which is not configured here
		{"phone without storage", iPhoneUA, "download"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutils.MakeTestRequest(http.MethodGet, "/", nil, map[string]string{"User-Agent": tt.userAgent})
			rec := env.do(req)

			testutils.AssertHTTPStatus(t, rec, http.StatusOK)
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
			body := rec.Body.String()
			assert.Contains(t, body, "What is your color?")
			assert.Contains(t, body, `data-capability="`+tt.capability+`"`)
			assert.Contains(t, body, `data-cell="15"`)
		})
	}
}

func TestSubmitHandler(t *testing.T) {
	existing := color.Record{Label: "Bob", ColorCode: "#950501"}

	t.Run("new label is forwarded", func(t *testing.T) {
		env := newTestEnv(t, nil, existing)

		rec := env.do(testutils.MakeJSONRequest(http.MethodPost, "/api/colors", map[string]string{"label": "hello"}))
		testutils.AssertHTTPStatus(t, rec, http.StatusOK)

		var resp SubmitResponse
		require.NoError(t, testutils.AssertJSONResponse(t, rec, &resp))
		assert.True(t, resp.Submitted)
		assert.True(t, resp.Display)
		assert.False(t, resp.Duplicate)
		assert.Equal(t, "hello", resp.Candidate.Label)
		assert.Equal(t, "#d218e9", resp.Candidate.Color)
		assert.NotEmpty(t, resp.Candidate.Name)
		assert.Equal(t, color.CapabilityDownload, resp.Capability)

		assert.Eventually(t, func() bool {
			return len(env.form.Submissions()) == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, color.Record{Label: "hello", ColorCode: "#d218e9"}, env.form.Submissions()[0])
	})

	t.Run("form encoded body", func(t *testing.T) {
		env := newTestEnv(t, nil)

		body := strings.NewReader(url.Values{"label": {"a"}}.Encode())
		req := testutils.MakeTestRequest(http.MethodPost, "/api/colors", body, map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		})
		rec := env.do(req)
		testutils.AssertHTTPStatus(t, rec, http.StatusOK)

		var resp SubmitResponse
		require.NoError(t, testutils.AssertJSONResponse(t, rec, &resp))
		assert.Equal(t, "#610000", resp.Candidate.Color)
	})

	t.Run("empty label", func(t *testing.T) {
		env := newTestEnv(t, nil)

		rec := env.do(testutils.MakeJSONRequest(http.MethodPost, "/api/colors", map[string]string{"label": ""}))
		testutils.AssertHTTPStatus(t, rec, http.StatusNoContent)
		assert.Empty(t, rec.Body.String())
		assert.Zero(t, env.sheet.Requests(), "empty labels must not refresh")
	})

	t.Run("invalid body", func(t *testing.T) {
		env := newTestEnv(t, nil)

		req := testutils.MakeTestRequest(http.MethodPost, "/api/colors", strings.NewReader("{"), map[string]string{
			"Content-Type": "application/json",
		})
		rec := env.do(req)
		testutils.AssertHTTPStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("duplicate shown", func(t *testing.T) {
		env := newTestEnv(t, nil, existing)

		rec := env.do(testutils.MakeJSONRequest(http.MethodPost, "/api/colors", map[string]string{"label": "Bob"}))
		testutils.AssertHTTPStatus(t, rec, http.StatusOK)

		var resp SubmitResponse
		require.NoError(t, testutils.AssertJSONResponse(t, rec, &resp))
		assert.True(t, resp.Duplicate)
		assert.True(t, resp.Display)
		assert.False(t, resp.Submitted)
		assert.Equal(t, color.ReasonDuplicate, resp.Reason)

		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, env.form.Submissions())
	})

	t.Run("duplicate blocked", func(t *testing.T) {
		env := newTestEnv(t, func(c *config.Config) { c.Submission.DuplicatePolicy = "block" }, existing)

		rec := env.do(testutils.MakeJSONRequest(http.MethodPost, "/api/colors", map[string]string{"label": "Bob"}))
		testutils.AssertHTTPStatus(t, rec, http.StatusConflict)

		var resp ErrorResponse
		require.NoError(t, testutils.AssertJSONResponse(t, rec, &resp))
		assert.True(t, resp.Duplicate)
		assert.NotContains(t, rec.Body.String(), "#950501")
	})

	t.Run("sheet outage falls back to the current snapshot", func(t *testing.T) {
		env := newTestEnv(t, func(c *config.Config) { c.Submission.DuplicatePolicy = "block" }, existing)
		env.refresh(t)
		env.sheet.Fail(http.StatusServiceUnavailable)

		rec := env.do(testutils.MakeJSONRequest(http.MethodPost, "/api/colors", map[string]string{"label": "Bob"}))
		testutils.AssertHTTPStatus(t, rec, http.StatusConflict)
	})

	t.Run("rate limited", func(t *testing.T) {
		env := newTestEnv(t, func(c *config.Config) {
			c.Submission.RateLimit = 0.001
			c.Submission.RateBurst = 1
		})

		first := env.do(testutils.MakeJSONRequest(http.MethodPost, "/api/colors", map[string]string{"label": "x"}))
		testutils.AssertHTTPStatus(t, first, http.StatusOK)

		second := env.do(testutils.MakeJSONRequest(http.MethodPost, "/api/colors", map[string]string{"label": "y"}))
		testutils.AssertHTTPStatus(t, second, http.StatusTooManyRequests)
		assert.Equal(t, "1", second.Header().Get("Retry-After"))
	})
}

func TestDescribeHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		path   string
		status int
		color  string
	}{
		{"lowercase", "/api/colors/d218e9", http.StatusOK, "#d218e9"},
		{"uppercase", "/api/colors/D218E9", http.StatusOK, "#d218e9"},
		{"invalid", "/api/colors/blue", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, tt.path, nil))
			testutils.AssertHTTPStatus(t, rec, tt.status)
			if tt.status != http.StatusOK {
				return
			}

			var resp ColorResponse
			require.NoError(t, testutils.AssertJSONResponse(t, rec, &resp))
			assert.Equal(t, tt.color, resp.Color)
			assert.NotEmpty(t, resp.Name)
		})
	}
}

func TestCardHandler(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/colors/d218e9/card.png?label=hello", nil))
	testutils.AssertHTTPStatus(t, rec, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="color_image.png"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/colors/zzzzzz/card.png", nil))
	testutils.AssertHTTPStatus(t, rec, http.StatusBadRequest)
}

func TestShareHandler_WithoutStorageFallsBackToDownload(t *testing.T) {
	env := newTestEnv(t, nil)

	req := testutils.MakeJSONRequest(http.MethodPost, "/api/colors/d218e9/share", map[string]string{"label": "hello"})
	req.Header.Set("User-Agent", iPhoneUA)
	rec := env.do(req)
	testutils.AssertHTTPStatus(t, rec, http.StatusOK)

	var resp ShareResponse
	require.NoError(t, testutils.AssertJSONResponse(t, rec, &resp))
	assert.Equal(t, color.CapabilityDownload, resp.Capability)
	assert.Equal(t, "/api/colors/d218e9/card.png?label=hello", resp.URL)
	assert.Equal(t, "color_image.png", resp.Filename)
}

func TestShareHandler_ForeignLabelIsDropped(t *testing.T) {
	env := newTestEnv(t, nil)

	// "Bob" hashes to #950501, not #d218e9
	rec := env.do(testutils.MakeJSONRequest(http.MethodPost, "/api/colors/d218e9/share", map[string]string{"label": "Bob"}))
	testutils.AssertHTTPStatus(t, rec, http.StatusOK)

	var resp ShareResponse
	require.NoError(t, testutils.AssertJSONResponse(t, rec, &resp))
	assert.Equal(t, "/api/colors/d218e9/card.png", resp.URL)
}

func TestCardHandler_HugeLabel(t *testing.T) {
	env := newTestEnv(t, nil)

	label := strings.Repeat("w", 200000)
	target := "/api/colors/" + strings.TrimPrefix(color.FromText(label), "#") + "/card.png?label=" + label

	start := time.Now()
	rec := env.do(httptest.NewRequest(http.MethodGet, target, nil))
	testutils.AssertHTTPStatus(t, rec, http.StatusOK)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
}

func TestSnapshotHandler(t *testing.T) {
	records := []color.Record{
		{Label: "Alice", ColorCode: "#60a6c6"},
		{Label: "Bob", ColorCode: "#950501"},
	}
	env := newTestEnv(t, nil, records...)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	testutils.AssertHTTPStatus(t, rec, http.StatusOK)

	var before SnapshotResponse
	require.NoError(t, testutils.AssertJSONResponse(t, rec, &before))
	assert.Zero(t, before.Count)
	assert.Nil(t, before.FetchedAt)

	env.refresh(t)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))
	var after SnapshotResponse
	require.NoError(t, testutils.AssertJSONResponse(t, rec, &after))
	assert.Equal(t, 2, after.Count)
	assert.Equal(t, records, after.Records)
	assert.Equal(t, uint64(1), after.Version)
	assert.Equal(t, color.SourceRemote, after.Source)
	assert.NotNil(t, after.FetchedAt)
}

func TestMosaicHandler(t *testing.T) {
	records := make([]color.Record, 0, 30)
	for i := 0; i < 30; i++ {
		records = append(records, testutils.RandomRecord())
	}
	env := newTestEnv(t, nil, records...)
	env.refresh(t)

	t.Run("lays out every record in bounds", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/mosaic?width=100&height=60", nil))
		testutils.AssertHTTPStatus(t, rec, http.StatusOK)

		var mosaic live.Mosaic
		require.NoError(t, testutils.AssertJSONResponse(t, rec, &mosaic))
		assert.True(t, mosaic.Full)
		assert.Equal(t, 100, mosaic.Viewport.Width)
		require.Len(t, mosaic.Tiles, len(records))

		// Newest record first
		assert.Equal(t, records[len(records)-1].Label, mosaic.Tiles[0].Label)
		for _, tile := range mosaic.Tiles {
			assert.GreaterOrEqual(t, tile.X, 0)
			assert.LessOrEqual(t, tile.X, 100-15)
			assert.GreaterOrEqual(t, tile.Y, 0)
			assert.LessOrEqual(t, tile.Y, 60-15)
			assert.GreaterOrEqual(t, tile.Delay, 0.0)
			assert.Less(t, tile.Delay, 5.0)
		}
	})

	for _, query := range []string{"", "?width=100", "?width=0&height=10", "?width=abc&height=10", "?width=9223372036854775807&height=100"} {
		t.Run("bad viewport "+query, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, "/api/mosaic"+query, nil))
			testutils.AssertHTTPStatus(t, rec, http.StatusBadRequest)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req := testutils.MakeTestRequest(http.MethodOptions, "/api/colors", nil, map[string]string{
		"Origin":                        "https://example.org",
		"Access-Control-Request-Method": http.MethodPost,
	})
	rec := env.do(req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.New(0.001, 2, time.Minute)
	defer limiter.Stop()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(limiter, observability.NewNopLogger())(next)

	call := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/colors", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002"))

	// Other clients have their own bucket
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote   string
		expected string
	}{
		{"10.0.0.1:1234", "10.0.0.1"},
		{"[::1]:8080", "::1"},
		{"10.0.0.1", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			assert.Equal(t, tt.expected, clientIP(req))
		})
	}
}

func TestCardURL(t *testing.T) {
	assert.Equal(t, "/api/colors/d218e9/card.png", cardURL(color.Candidate{Color: "#d218e9"}))
	assert.Equal(t, "/api/colors/610000/card.png?label=a+b%26c", cardURL(color.Candidate{Label: "a b&c", Color: "#610000"}))
}

func TestSubmitResponseJSON(t *testing.T) {
	data, err := json.Marshal(SubmitResponse{
		Result:     color.Result{Candidate: color.NewCandidate("a"), Submitted: true, Display: true},
		Capability: color.CapabilityShare,
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "share", decoded["capability"])
	assert.Equal(t, true, decoded["submitted"])
	assert.Contains(t, decoded, "candidate")
}
