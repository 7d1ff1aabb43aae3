package form

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatisyourcolor/internal/config"
	"whatisyourcolor/internal/domain/color"
)

type capturedPost struct {
	contentType string
	values      url.Values
}

func newFormServer(t *testing.T, status int) (*httptest.Server, func() []capturedPost) {
	t.Helper()

	var mu sync.Mutex
	var posts []capturedPost

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		mu.Lock()
		posts = append(posts, capturedPost{
			contentType: r.Header.Get("Content-Type"),
			values:      r.PostForm,
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	return server, func() []capturedPost {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedPost(nil), posts...)
	}
}

func testConfig(u string) config.FormConfig {
	return config.FormConfig{
		URL:        u,
		LabelField: "entry.1208945866",
		ColorField: "entry.184357747",
		Timeout:    time.Second,
	}
}

func TestClient_Submit(t *testing.T) {
	server, posts := newFormServer(t, http.StatusOK)
	client := NewClient(testConfig(server.URL), nil)

	require.NoError(t, client.Submit(context.Background(), "Alice", "#60a6c6"))
	require.NoError(t, client.Close(context.Background()))

	got := posts()
	require.Len(t, got, 1)
	assert.Equal(t, "application/x-www-form-urlencoded", got[0].contentType)
	assert.Equal(t, "Alice", got[0].values.Get("entry.1208945866"))
	assert.Equal(t, "#60a6c6", got[0].values.Get("entry.184357747"))
}

func TestClient_SubmitDoesNotWait(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), nil)

	start := time.Now()
	require.NoError(t, client.Submit(context.Background(), "slow", "#000000"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(release)
	require.NoError(t, client.Close(context.Background()))
}

func TestClient_SubmitSurvivesCallerCancellation(t *testing.T) {
	server, posts := newFormServer(t, http.StatusOK)
	client := NewClient(testConfig(server.URL), nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, client.Submit(ctx, "Bob", "#950501"))
	cancel()

	require.NoError(t, client.Close(context.Background()))
	assert.Len(t, posts(), 1)
}

func TestClient_ServerErrorIsSwallowed(t *testing.T) {
	server, posts := newFormServer(t, http.StatusInternalServerError)
	client := NewClient(testConfig(server.URL), nil)

	assert.NoError(t, client.Submit(context.Background(), "x", "#780000"))
	require.NoError(t, client.Close(context.Background()))
	assert.Len(t, posts(), 1)
}

func TestClient_Closed(t *testing.T) {
	server, posts := newFormServer(t, http.StatusOK)
	client := NewClient(testConfig(server.URL), nil)

	require.NoError(t, client.Close(context.Background()))
	err := client.Submit(context.Background(), "late", "#000000")
	assert.ErrorIs(t, err, color.ErrSinkClosed)
	assert.Empty(t, posts())
}

func TestClient_MissingURL(t *testing.T) {
	client := NewClient(testConfig(""), nil)
	assert.ErrorIs(t, client.Submit(context.Background(), "x", "#000000"), color.ErrSinkClosed)
}

func TestClient_CloseTimesOut(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(testConfig(server.URL), nil)
	require.NoError(t, client.Submit(context.Background(), "stuck", "#000000"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, client.Close(ctx), context.DeadlineExceeded)
}
