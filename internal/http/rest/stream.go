package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vidgrab/vidgrab/internal/download"
	"github.com/vidgrab/vidgrab/internal/logctx"
)

const (
	// A client may open the stream before the orchestrator's record is
	// visible. The lookup is retried on a short interval for a bounded
	// number of attempts (~3s total) before giving up.
	recordWaitInterval = 500 * time.Millisecond
	recordWaitAttempts = 6

	// Fallback poll for the rare case a published update was dropped.
	streamPollInterval = time.Second
)

// ProgressEvent is one server-sent event on the progress stream.
type ProgressEvent struct {
	Type       string   `json:"type"`
	DownloadID string   `json:"downloadId"`
	Progress   *float64 `json:"progress,omitempty"`
	Output     []string `json:"output,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Progress streams download state to the client as server-sent events until
// a terminal event is reached or the client disconnects. Events carry the
// full current state, so the client may always trust the latest one.
func (h *DownloadHandler) Progress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	id := chi.URLParam(r, "downloadID")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Download ID is required"})

		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})

		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.telemetry.IncrementProgressStreams()
	defer h.telemetry.DecrementProgressStreams()

	// Subscribe before the initial read so no update between the two is
	// missed.
	updates, cancel := h.tracker.Subscribe(id)
	defer cancel()

	snap, found := h.waitForRecord(ctx, id)
	if !found {
		h.sendEvent(w, flusher, ProgressEvent{
			Type:       "error",
			DownloadID: id,
			Error:      "Download not found - may have failed to start",
		})

		return
	}

	if h.sendSnapshot(w, flusher, snap) {
		return
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("progress stream client disconnected", "download_id", id)

			return
		case snap := <-updates:
			if h.sendSnapshot(w, flusher, snap) {
				return
			}
		case <-ticker.C:
			snap, ok := h.tracker.Get(id)
			if !ok {
				h.sendEvent(w, flusher, ProgressEvent{
					Type:       "error",
					DownloadID: id,
					Error:      "Download not found",
				})

				return
			}

			if h.sendSnapshot(w, flusher, snap) {
				return
			}
		}
	}
}

// waitForRecord retries the registry lookup on a fixed interval with a
// bounded attempt counter, covering the race between stream connect and the
// orchestrator's record creation.
func (h *DownloadHandler) waitForRecord(ctx context.Context, id string) (download.Snapshot, bool) {
	snap, ok := h.tracker.Get(id)
	if ok {
		return snap, true
	}

	for attempt := 0; attempt < recordWaitAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return download.Snapshot{}, false
		case <-time.After(recordWaitInterval):
		}

		if snap, ok := h.tracker.Get(id); ok {
			return snap, true
		}
	}

	return download.Snapshot{}, false
}

// sendSnapshot emits the event matching a snapshot and reports whether the
// stream is finished (terminal state reached or the write failed).
func (h *DownloadHandler) sendSnapshot(w http.ResponseWriter, flusher http.Flusher, snap download.Snapshot) bool {
	switch snap.Status {
	case download.Complete:
		progress := 100.0
		h.sendEvent(w, flusher, ProgressEvent{
			Type:       "complete",
			DownloadID: snap.ID,
			Progress:   &progress,
			Filename:   snap.Filename,
		})

		return true
	case download.Error:
		h.sendEvent(w, flusher, ProgressEvent{
			Type:       "error",
			DownloadID: snap.ID,
			Error:      snap.Error,
		})

		return true
	default:
		progress := snap.Progress

		return !h.sendEvent(w, flusher, ProgressEvent{
			Type:       "progress",
			DownloadID: snap.ID,
			Progress:   &progress,
			Output:     snap.Output,
		})
	}
}

func (h *DownloadHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, ev ProgressEvent) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		return false
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return false
	}

	flusher.Flush()

	return true
}
