package handlers

import (
	"net/http"
	"strconv"
	"time"

	"whatisyourcolor/internal/domain/color"
	"whatisyourcolor/internal/domain/layout"
	"whatisyourcolor/internal/web/live"
)

// SnapshotResponse is the visible snapshot
type SnapshotResponse struct {
	Version   uint64         `json:"version"`
	FetchedAt *time.Time     `json:"fetched_at,omitempty"`
	Source    string         `json:"source,omitempty"`
	Count     int            `json:"count"`
	Records   []color.Record `json:"records"`
}

func (h *Handler) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := h.container.SnapshotService().Current()

	response := SnapshotResponse{
		Version: snapshot.Version,
		Source:  snapshot.Source,
		Count:   snapshot.Len(),
		Records: snapshot.Records,
	}
	if snapshot.Loaded() {
		response.FetchedAt = &snapshot.FetchedAt
	}

	h.writeJSON(w, http.StatusOK, response)
}

// mosaicHandler lays out the current snapshot for a viewport. Every call is
// a full recompute; the WebSocket feed keeps positions between updates.
func (h *Handler) mosaicHandler(w http.ResponseWriter, r *http.Request) {
	width, errW := strconv.Atoi(r.URL.Query().Get("width"))
	height, errH := strconv.Atoi(r.URL.Query().Get("height"))
	if errW != nil || errH != nil {
		h.writeError(w, http.StatusBadRequest, ErrorResponse{Error: "width and height are required"})
		return
	}

	vp, err := layout.NewViewport(width, height)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	snapshot := h.container.SnapshotService().Current()
	board := layout.NewBoard(h.container.LayoutEngine(), vp)
	board.Update(layout.KeysFor(snapshot.Records))

	h.writeJSON(w, http.StatusOK, live.Mosaic{
		Version:  snapshot.Version,
		Viewport: vp,
		Full:     true,
		Tiles:    board.Tiles(),
	})
}
