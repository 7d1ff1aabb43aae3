package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"whatisyourcolor/internal/domain/color"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageData feeds templates/index.html
type pageData struct {
	Title      string
	Capability color.Capability
	CellSize   int
	Policy     string
}

func parsePage() (*template.Template, error) {
	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}
	return page, nil
}

func (h *Handler) indexHandler(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Title:      "What is your color?",
		Capability: h.container.ExportService().Capability(r.UserAgent()),
		CellSize:   h.config.Layout.CellSize,
		Policy:     h.config.Layout.Policy,
	}

	// Render to a buffer so a template error still yields a clean 500
	var buf bytes.Buffer
	if err := h.page.Execute(&buf, data); err != nil {
		h.logger.Error(r.Context()).Err(err).Msg("Failed to render page")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes()) //nolint:errcheck // Client may have gone away
}
