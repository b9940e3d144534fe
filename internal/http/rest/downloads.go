// Package rest exposes the HTTP surface of the service: download
// submission, the SSE progress stream, the status snapshot, metadata
// lookups, and completed-artifact serving.
package rest

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vidgrab/vidgrab/internal/download"
	"github.com/vidgrab/vidgrab/internal/logctx"
	"github.com/vidgrab/vidgrab/internal/telemetry"
	"github.com/vidgrab/vidgrab/internal/validate"
	"github.com/vidgrab/vidgrab/internal/ytdlp"
)

// statusOutputLines is how many trailing log lines the status snapshot
// includes per download.
const statusOutputLines = 10

// DownloadHandler serves the download lifecycle endpoints.
type DownloadHandler struct {
	orchestrator *download.Orchestrator
	tracker      *download.Tracker
	tool         download.Tool
	telemetry    *telemetry.Telemetry
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(orch *download.Orchestrator, tracker *download.Tracker, tool download.Tool, t *telemetry.Telemetry) *DownloadHandler {
	return &DownloadHandler{
		orchestrator: orch,
		tracker:      tracker,
		tool:         tool,
		telemetry:    t,
	}
}

func (h *DownloadHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/downloads", h.Create)
	r.Get("/downloads/status", h.Status)
	r.Get("/downloads/{downloadID}/progress", h.Progress)
	r.Delete("/downloads/{downloadID}", h.Cancel)
	r.Post("/metadata", h.Metadata)

	return r
}

// DownloadResponse is the accept response for a submitted download.
type DownloadResponse struct {
	Success    bool   `json:"success"`
	DownloadID string `json:"downloadId"`
	Filename   string `json:"filename,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Create accepts a download request. The response is optimistic: once
// validation passes the request is accepted and the id returned, before the
// subprocess has produced any output. Failures after this point are only
// visible on the progress stream.
func (h *DownloadHandler) Create(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req download.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("failed to decode download request", "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})

		return
	}

	if verr := validateDownloadRequest(&req); verr != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Reason})

		return
	}

	id := h.orchestrator.Start(r.Context(), req)

	logger.Info("download accepted", "download_id", id, "url", req.URL, "format", req.Format)

	writeJSON(w, http.StatusAccepted, DownloadResponse{
		Success:    true,
		DownloadID: id,
		Filename:   "downloading...",
	})
}

// Cancel terminates an active download. The record disappears from the
// active view; open progress streams observe a terminal cancelled event.
func (h *DownloadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "downloadID")

	if !h.orchestrator.Cancel(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active download with that id"})

		return
	}

	logctx.LoggerFromContext(r.Context()).Info("download cancelled", "download_id", id)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// statusEntry is one download in the status snapshot.
type statusEntry struct {
	ID          string          `json:"id"`
	Status      download.Status `json:"status"`
	Progress    float64         `json:"progress"`
	Filename    string          `json:"filename,omitempty"`
	Error       string          `json:"error,omitempty"`
	LastUpdated string          `json:"lastUpdated"`
	Output      []string        `json:"output"`
}

// Status returns an observability snapshot of every tracked download.
func (h *DownloadHandler) Status(w http.ResponseWriter, r *http.Request) {
	snaps := h.tracker.Snapshots()

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].LastUpdated.After(snaps[j].LastUpdated)
	})

	entries := make([]statusEntry, 0, len(snaps))

	for _, snap := range snaps {
		output := snap.Output
		if len(output) > statusOutputLines {
			output = output[len(output)-statusOutputLines:]
		}

		entries = append(entries, statusEntry{
			ID:          snap.ID,
			Status:      snap.Status,
			Progress:    snap.Progress,
			Filename:    snap.Filename,
			Error:       snap.Error,
			LastUpdated: snap.LastUpdated.Format(time.RFC3339),
			Output:      output,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalDownloads": len(entries),
		"downloads":      entries,
	})
}

func validateDownloadRequest(req *download.Request) *download.ValidationError {
	if req.URL == "" {
		return &download.ValidationError{Field: "url", Reason: "URL is required"}
	}

	if req.Format == "" || (!ytdlp.IsPresetFormat(req.Format) && req.Format != ytdlp.FormatCustom) {
		return &download.ValidationError{
			Field:  "format",
			Reason: "Valid format is required (best, 1080p, 720p, 480p, audio, or custom)",
		}
	}

	if !validate.IsValidURL(req.URL) {
		return &download.ValidationError{Field: "url", Reason: "Invalid URL format"}
	}

	if !validate.IsVideoURL(req.URL) {
		return &download.ValidationError{Field: "url", Reason: "URL is not from a supported video platform"}
	}

	if req.Format == ytdlp.FormatCustom && req.CustomFormat == "" {
		return &download.ValidationError{
			Field:  "customFormat",
			Reason: `Custom format is required when format is "custom"`,
		}
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
