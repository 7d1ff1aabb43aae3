package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"whatisyourcolor/internal/domain/color"
)

const maxSubmitBody = 4 << 10 // 4KB is plenty for one label

// submitRequest is the body of POST /api/colors
type submitRequest struct {
	Label string `json:"label"`
}

// SubmitResponse is the gate result plus the export mechanism for this device
type SubmitResponse struct {
	color.Result
	Capability color.Capability `json:"capability"`
}

// ColorResponse describes a single colour code
type ColorResponse struct {
	Color      string           `json:"color"`
	Name       string           `json:"name"`
	Capability color.Capability `json:"capability"`
}

// ShareResponse is returned by the share endpoint. When storage is not
// configured the URL points at the download endpoint instead.
type ShareResponse struct {
	Capability color.Capability `json:"capability"`
	URL        string           `json:"url"`
	Filename   string           `json:"filename"`
}

// ErrorResponse is the JSON body of every API error
type ErrorResponse struct {
	Error     string `json:"error"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// submitHandler runs one submit cycle for the posted label
func (h *Handler) submitHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SubmitColor", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	label, err := readLabel(w, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		h.writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	submissions := h.container.SubmissionService()
	result, err := submissions.AttemptSubmit(ctx, label)
	if err != nil {
		if errors.Is(err, color.ErrEmptyLabel) {
			// Nothing to do, the page stays as it is
			w.WriteHeader(http.StatusNoContent)
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission failed")
		h.logger.Error(ctx).Err(err).Msg("Submission failed")
		h.writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "submission failed"})
		return
	}

	span.SetAttributes(
		attribute.Bool("submission.submitted", result.Submitted),
		attribute.Bool("submission.duplicate", result.Duplicate),
	)

	if result.Duplicate && !result.Display {
		h.writeError(w, http.StatusConflict, ErrorResponse{Error: "this name has already been submitted", Duplicate: true})
		return
	}

	h.writeJSON(w, http.StatusOK, SubmitResponse{
		Result:     result,
		Capability: h.container.ExportService().Capability(r.UserAgent()),
	})
}

// readLabel accepts a JSON body or a classic form post
func readLabel(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBody)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return "", err
		}
		return r.PostForm.Get("label"), nil
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", err
	}
	return req.Label, nil
}

// describeHandler names a colour code
func (h *Handler) describeHandler(w http.ResponseWriter, r *http.Request) {
	exports := h.container.ExportService()

	candidate, err := exports.Candidate("", chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid color code"})
		return
	}

	h.writeJSON(w, http.StatusOK, ColorResponse{
		Color:      candidate.Color,
		Name:       candidate.Name,
		Capability: exports.Capability(r.UserAgent()),
	})
}

// cardHandler streams the card as a download
func (h *Handler) cardHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exports := h.container.ExportService()

	candidate, err := exports.Candidate(r.URL.Query().Get("label"), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid color code"})
		return
	}

	export, err := exports.Export(ctx, color.CapabilityDownload, candidate)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to export image"})
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data) //nolint:errcheck // Client may have gone away
}

// shareHandler uploads the card and returns a share URL
func (h *Handler) shareHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exports := h.container.ExportService()

	label := r.URL.Query().Get("label")
	if r.ContentLength > 0 {
		if body, err := readLabel(w, r); err == nil && body != "" {
			label = body
		}
	}

	candidate, err := exports.Candidate(label, chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid color code"})
		return
	}

	export, err := exports.Export(ctx, color.CapabilityShare, candidate)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to export image"})
		return
	}

	response := ShareResponse{
		Capability: export.Capability,
		URL:        export.URL,
		Filename:   export.Filename,
	}
	if export.Capability == color.CapabilityDownload {
		response.URL = cardURL(candidate)
	}

	h.writeJSON(w, http.StatusOK, response)
}

// cardURL is the download endpoint for candidate
func cardURL(candidate color.Candidate) string {
	code := strings.TrimPrefix(candidate.Color, "#")
	u := "/api/colors/" + code + "/card.png"
	if candidate.Label != "" {
		u += "?" + url.Values{"label": {candidate.Label}}.Encode()
	}
	return u
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn(context.Background()).Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	h.writeJSON(w, status, body)
}
