package live

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatisyourcolor/internal/domain/color"
	"whatisyourcolor/internal/domain/layout"
)

type staticSnapshots struct {
	snapshot color.Snapshot
}

func (s staticSnapshots) Current() color.Snapshot {
	return s.snapshot
}

func testEngine(t *testing.T) layout.Engine {
	t.Helper()
	engine, err := layout.New(layout.PolicyDrop, layout.Options{Rand: rand.New(rand.NewPCG(1, 2))})
	require.NoError(t, err)
	return engine
}

func testHub(t *testing.T, records ...color.Record) *Hub {
	t.Helper()
	return NewHub(testEngine(t), staticSnapshots{color.Snapshot{Records: records, Version: 1}}, nil, []string{"*"})
}

func newTestClient(hub *Hub) *Client {
	return &Client{hub: hub, send: make(chan []byte, 10)}
}

func receiveMosaic(t *testing.T, ch <-chan []byte) Mosaic {
	t.Helper()

	select {
	case raw := <-ch:
		var envelope struct {
			Type string `json:"type"`
			Data Mosaic `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &envelope))
		require.Equal(t, TypeMosaic, envelope.Type)
		return envelope.Data
	case <-time.After(time.Second):
		t.Fatal("no mosaic received")
		return Mosaic{}
	}
}

func TestHub_AddRemoveClient(t *testing.T) {
	hub := testHub(t)
	client := newTestClient(hub)

	require.True(t, hub.addClient(client))
	assert.Equal(t, 1, hub.ClientCount())

	hub.removeClient(client)
	hub.removeClient(client) // idempotent
	assert.Equal(t, 0, hub.ClientCount())

	_, ok := <-client.send
	assert.False(t, ok, "send channel should be closed")

	// Sending to a removed client is a no-op
	assert.NotPanics(t, func() { hub.trySend(client, []byte("late")) })
}

func TestHub_SendRacesWithRemove(t *testing.T) {
	hub := testHub(t)

	for i := 0; i < 50; i++ {
		client := newTestClient(hub)
		require.True(t, hub.addClient(client))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				hub.trySend(client, []byte("x"))
			}
		}()
		go func() {
			defer wg.Done()
			hub.removeClient(client)
		}()
		wg.Wait()

		// Whatever was queued before removal is drained, then the channel is closed
		for range client.send {
		}
	}
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_FullBufferDropsClient(t *testing.T) {
	hub := testHub(t)
	client := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.addClient(client)

	client.send <- []byte("first")
	hub.trySend(client, []byte("second"))

	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_ClientWithoutViewportGetsNoMosaic(t *testing.T) {
	hub := testHub(t)
	client := newTestClient(hub)
	hub.addClient(client)

	hub.OnSnapshot(color.Snapshot{Records: []color.Record{{Label: "a", ColorCode: "#610000"}}, Version: 2})

	assert.Empty(t, client.send)
}

func TestHub_ResizeAndSnapshotUpdates(t *testing.T) {
	alice := color.Record{Label: "Alice", ColorCode: "#60a6c6"}
	bob := color.Record{Label: "Bob", ColorCode: "#950501"}

	hub := testHub(t, alice)
	client := newTestClient(hub)
	hub.addClient(client)

	vp, err := layout.NewViewport(150, 90)
	require.NoError(t, err)
	client.resize(vp)

	first := receiveMosaic(t, client.send)
	assert.True(t, first.Full)
	assert.Equal(t, vp, first.Viewport)
	require.Len(t, first.Tiles, 1)
	assert.Equal(t, "Alice", first.Tiles[0].Label)

	hub.OnSnapshot(color.Snapshot{Records: []color.Record{alice, bob}, Version: 2})

	second := receiveMosaic(t, client.send)
	assert.False(t, second.Full)
	assert.Equal(t, uint64(2), second.Version)
	require.Len(t, second.Tiles, 2)

	// Newest first; the existing tile keeps its place under the drop policy
	assert.Equal(t, "Bob", second.Tiles[0].Label)
	assert.Equal(t, first.Tiles[0], second.Tiles[1])

	for _, tile := range second.Tiles {
		assert.GreaterOrEqual(t, tile.X, 0)
		assert.LessOrEqual(t, tile.X, vp.Width-layout.DefaultCellSize)
		assert.GreaterOrEqual(t, tile.Y, 0)
		assert.LessOrEqual(t, tile.Y, vp.Height-layout.DefaultCellSize)
	}
}

func TestClient_HandleMessages(t *testing.T) {
	hub := testHub(t, color.Record{Label: "a", ColorCode: "#610000"})
	client := newTestClient(hub)
	hub.addClient(client)

	tests := []struct {
		name        string
		payload     string
		expectType  string
		expectError string
	}{
		{"viewport", `{"type":"viewport","width":30,"height":30}`, TypeMosaic, ""},
		{"bad json", `{`, TypeError, "invalid message"},
		{"unknown type", `{"type":"dance"}`, TypeError, "unknown message type"},
		{"empty viewport", `{"type":"viewport","width":0,"height":10}`, TypeError, "invalid viewport"},
		{"oversized viewport", `{"type":"viewport","width":9223372036854775807,"height":100}`, TypeError, "invalid viewport"},
		{"too tall viewport", `{"type":"viewport","width":100,"height":20000}`, TypeError, "invalid viewport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client.handle([]byte(tt.payload))

			raw := <-client.send
			var msg struct {
				Type string          `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			require.NoError(t, json.Unmarshal(raw, &msg))
			assert.Equal(t, tt.expectType, msg.Type)
			if tt.expectError != "" {
				assert.Contains(t, string(msg.Data), tt.expectError)
			}
		})
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		expect  bool
	}{
		{"wildcard", []string{"*"}, "https://evil.test", true},
		{"listed", []string{"https://app.test"}, "https://app.test", true},
		{"not listed", []string{"https://app.test"}, "https://evil.test", false},
		{"no origin header", []string{"https://app.test"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.expect, originChecker(tt.allowed)(r))
		})
	}
}

func TestHub_ServeWS(t *testing.T) {
	hub := testHub(t, color.Record{Label: "a", ColorCode: "#610000"})
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?width=60&height=60"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() Message {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, TypeConnected, read().Type)
	assert.Equal(t, TypeMosaic, read().Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "viewport", "width": 90, "height": 45}))
	assert.Equal(t, TypeMosaic, read().Type)

	hub.OnSnapshot(color.Snapshot{Records: []color.Record{{Label: "b", ColorCode: "#620000"}}, Version: 2})
	assert.Equal(t, TypeMosaic, read().Type)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())
}
