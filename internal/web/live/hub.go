// Package live pushes the mosaic layout to connected browsers over WebSocket.
// Every connection keeps its own layout board so tiles stay where they were
// when the snapshot changes.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"whatisyourcolor/internal/domain/color"
	"whatisyourcolor/internal/domain/layout"
	"whatisyourcolor/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBuffer     = 32
)

// Message types
const (
	TypeConnected = "connected"
	TypeMosaic    = "mosaic"
	TypeViewport  = "viewport"
	TypeError     = "error"
)

// Message is the JSON envelope sent to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Mosaic is the payload of a mosaic message. Full is true when every
// position was recomputed, e.g. after a resize.
type Mosaic struct {
	Version  uint64          `json:"version"`
	Viewport layout.Viewport `json:"viewport"`
	Full     bool            `json:"full"`
	Tiles    []layout.Tile   `json:"tiles"`
}

// clientMessage is what browsers send.
type clientMessage struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// SnapshotReader is the part of the snapshot store the hub needs.
type SnapshotReader interface {
	Current() color.Snapshot
}

// Hub tracks connected clients and pushes layout updates to them.
type Hub struct {
	engine    layout.Engine
	snapshots SnapshotReader
	logger    *observability.Logger
	upgrader  websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]bool
	keys    []layout.Key
	version uint64
	closed  bool

	clientGauge metric.Int64UpDownCounter
}

// Client is one WebSocket connection and its layout board.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu    sync.Mutex
	board *layout.Board
}

// NewHub creates a hub laying tiles out with engine. allowedOrigins follows
// the CORS setting; "*" accepts any origin.
func NewHub(engine layout.Engine, snapshots SnapshotReader, logger *observability.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	clientGauge, err := otel.Meter("whatisyourcolor/web/live").Int64UpDownCounter(
		"live.clients",
		metric.WithDescription("Number of connected mosaic clients"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		clientGauge = nil
	}

	h := &Hub{
		engine:      engine,
		snapshots:   snapshots,
		logger:      logger.Component("live"),
		clients:     make(map[*Client]bool),
		clientGauge: clientGauge,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	current := snapshots.Current()
	h.keys = layout.KeysFor(current.Records)
	h.version = current.Version

	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// OnSnapshot re-lays every client's board for a new snapshot. It is meant to
// be registered with the snapshot store and never blocks on the network.
func (h *Hub) OnSnapshot(snapshot color.Snapshot) {
	keys := layout.KeysFor(snapshot.Records)

	h.mu.Lock()
	h.keys = keys
	h.version = snapshot.Version
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.update(keys, snapshot.Version)
	}
}

// current returns the latest keys and version under the read lock
func (h *Hub) current() ([]layout.Key, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.keys, h.version
}

// trySend queues data for client, dropping the client when its buffer is full.
// The send happens under the read lock so removeClient cannot close the
// channel underneath it; removed clients are skipped.
func (h *Hub) trySend(client *Client, data []byte) {
	h.mu.RLock()
	if !h.clients[client] {
		h.mu.RUnlock()
		return
	}
	select {
	case client.send <- data:
		h.mu.RUnlock()
		return
	default:
	}
	h.mu.RUnlock()

	h.logger.Warn(context.Background()).Msg("Client send buffer full, dropping client")
	h.removeClient(client)
}

func (h *Hub) addClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = true
	if h.clientGauge != nil {
		h.clientGauge.Add(context.Background(), 1)
	}
	return true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		if h.clientGauge != nil {
			h.clientGauge.Add(context.Background(), -1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.removeClient(client)
	}
}

// ServeWS upgrades the request. Optional width and height query parameters
// give the initial viewport so the first mosaic is pushed on connect.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context()).Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if !h.addClient(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	_, version := h.current()
	if data, err := json.Marshal(Message{Type: TypeConnected, Data: map[string]any{"version": version}}); err == nil {
		h.trySend(client, data)
	}

	width, _ := strconv.Atoi(r.URL.Query().Get("width"))
	height, _ := strconv.Atoi(r.URL.Query().Get("height"))
	if vp, err := layout.NewViewport(width, height); err == nil {
		client.resize(vp)
	}
}

// resize handles a viewport message and pushes a full mosaic.
func (c *Client) resize(vp layout.Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Keys are read under c.mu so a concurrent OnSnapshot is applied after us
	keys, version := c.hub.current()
	if c.board == nil {
		c.board = layout.NewBoard(c.hub.engine, vp)
		c.board.Update(keys)
	} else {
		c.board.Resize(vp)
	}
	c.push(version, true)
}

// update lays out keys on the board; clients without a viewport are skipped
func (c *Client) update(keys []layout.Key, version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.board == nil {
		return
	}
	c.board.Update(keys)
	c.push(version, false)
}

// push must be called with c.mu held so mosaics are queued in order
func (c *Client) push(version uint64, full bool) {
	data, err := encodeMosaic(c.board, version, full)
	if err != nil {
		c.hub.logger.Error(context.Background()).Err(err).Msg("Failed to encode mosaic")
		return
	}
	c.hub.trySend(c, data)
}

func encodeMosaic(board *layout.Board, version uint64, full bool) ([]byte, error) {
	return json.Marshal(Message{
		Type: TypeMosaic,
		Data: Mosaic{
			Version:  version,
			Viewport: board.Viewport(),
			Full:     full,
			Tiles:    board.Tiles(),
		},
	})
}

func (c *Client) sendError(text string) {
	if data, err := json.Marshal(Message{Type: TypeError, Data: map[string]string{"message": text}}); err == nil {
		c.hub.trySend(c, data)
	}
}

// readPump reads viewport messages and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		// Closing send makes writePump close the connection
		c.hub.removeClient(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug(context.Background()).Err(err).Msg("WebSocket read error")
			}
			return
		}
		c.handle(payload)
	}
}

func (c *Client) handle(payload []byte) {
	var msg clientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.sendError("invalid message")
		return
	}

	switch msg.Type {
	case TypeViewport:
		vp, err := layout.NewViewport(msg.Width, msg.Height)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.resize(vp)
	default:
		c.sendError("unknown message type")
	}
}

// writePump writes queued messages and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per message so every frame is valid JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
