package sheet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatisyourcolor/internal/config"
	"whatisyourcolor/internal/domain/color"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []color.Record
	}{
		{
			name:  "basic rows",
			input: "name,colorCode\nAlice,#60a6c6\nBob,#950501\n",
			expected: []color.Record{
				{Label: "Alice", ColorCode: "#60a6c6"},
				{Label: "Bob", ColorCode: "#950501"},
			},
		},
		{
			name:  "leading BOM is stripped",
			input: "\ufeffname,colorCode\nAlice,#60a6c6\n",
			expected: []color.Record{
				{Label: "Alice", ColorCode: "#60a6c6"},
			},
		},
		{
			name:  "extra columns ignored and header trimmed",
			input: "Timestamp, name ,colorCode,notes\n2024-01-01,Alice,#60a6c6,hi\n",
			expected: []color.Record{
				{Label: "Alice", ColorCode: "#60a6c6"},
			},
		},
		{
			name:  "missing colour column yields empty codes",
			input: "name\nAlice\nBob\n",
			expected: []color.Record{
				{Label: "Alice"},
				{Label: "Bob"},
			},
		},
		{
			name:  "short rows and blank lines",
			input: "name,colorCode\nAlice\n\n,\nBob,#950501\n\n",
			expected: []color.Record{
				{Label: "Alice"},
				{Label: "Bob", ColorCode: "#950501"},
			},
		},
		{
			name:  "quoted label with comma and quotes",
			input: "name,colorCode\n\"Smith, \"\"J\"\"\",#123456\n",
			expected: []color.Record{
				{Label: `Smith, "J"`, ColorCode: "#123456"},
			},
		},
		{
			name:  "unicode labels",
			input: "name,colorCode\n안녕하세요,#873fe2\n😀,#630d1b\n",
			expected: []color.Record{
				{Label: "안녕하세요", ColorCode: "#873fe2"},
				{Label: "😀", ColorCode: "#630d1b"},
			},
		},
		{
			name:     "header only",
			input:    "name,colorCode\n",
			expected: []color.Record{},
		},
		{
			name:     "empty body",
			input:    "",
			expected: []color.Record{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Parse(strings.NewReader(tt.input), "name", "colorCode")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, records)
		})
	}
}

func TestParse_InvalidUTF8IsReplaced(t *testing.T) {
	records, err := Parse(strings.NewReader("name,colorCode\nA\xffB,#000000\n"), "name", "colorCode")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "A\uFFFDB", records[0].Label)
}

func TestParse_CustomColumns(t *testing.T) {
	records, err := Parse(strings.NewReader("label,hex\nx,#ffffff\n"), "label", "hex")
	require.NoError(t, err)
	assert.Equal(t, []color.Record{{Label: "x", ColorCode: "#ffffff"}}, records)
}

func TestClient_Fetch(t *testing.T) {
	var gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("name,colorCode\nAlice,#60a6c6\n"))
	}))
	defer server.Close()

	client := NewClient(config.SheetConfig{URL: server.URL, FetchTimeout: time.Second})

	records, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []color.Record{{Label: "Alice", ColorCode: "#60a6c6"}}, records)
	assert.Equal(t, "text/csv", gotAccept)
}

func TestClient_FetchErrors(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(config.SheetConfig{URL: server.URL})
		_, err := client.Fetch(context.Background())
		assert.ErrorIs(t, err, color.ErrSourceUnavailable)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("transport error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		client := NewClient(config.SheetConfig{URL: url, FetchTimeout: time.Second})
		_, err := client.Fetch(context.Background())
		assert.ErrorIs(t, err, color.ErrSourceUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		client := NewClient(config.SheetConfig{URL: server.URL, FetchTimeout: 50 * time.Millisecond})
		_, err := client.Fetch(context.Background())
		assert.ErrorIs(t, err, color.ErrSourceUnavailable)
	})

	t.Run("missing URL", func(t *testing.T) {
		client := NewClient(config.SheetConfig{})
		_, err := client.Fetch(context.Background())
		assert.ErrorIs(t, err, color.ErrSourceUnavailable)
	})
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(config.SheetConfig{URL: "http://example.com"})
	assert.Equal(t, "name", client.labelColumn)
	assert.Equal(t, "colorCode", client.colorColumn)
	assert.Equal(t, 10*time.Second, client.httpClient.Timeout)

	custom := &http.Client{}
	client = NewClient(config.SheetConfig{}, WithHTTPClient(custom))
	assert.Same(t, custom, client.httpClient)
}
