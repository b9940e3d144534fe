package rest

import (
	"encoding/json"
	"net/http"

	"github.com/vidgrab/vidgrab/internal/download"
	"github.com/vidgrab/vidgrab/internal/logctx"
	"github.com/vidgrab/vidgrab/internal/validate"
)

// MetadataRequest is a metadata lookup for a single URL.
type MetadataRequest struct {
	URL string `json:"url"`
}

// Metadata fetches video metadata without downloading, so clients can show
// a title, thumbnail, and duration before the user commits to a download.
func (h *DownloadHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	var req MetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})

		return
	}

	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "URL is required"})

		return
	}

	if !validate.IsValidURL(req.URL) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid URL format"})

		return
	}

	if !validate.IsVideoURL(req.URL) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "URL is not from a supported video platform"})

		return
	}

	meta, err := h.tool.FetchMetadata(ctx, req.URL)
	if err != nil {
		logger.Error("metadata fetch failed", "url", req.URL, "err", err)
		writeJSON(w, http.StatusInternalServerError, download.Classify(err))

		return
	}

	writeJSON(w, http.StatusOK, meta)
}
