package rest

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/vidgrab/vidgrab/internal/logctx"
)

// contentTypes maps the media extensions the downloader produces to their
// MIME types. Anything else is served as a generic byte stream.
var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
}

// FileHandler serves completed download artifacts and removes each one a
// short grace period after it is fetched.
type FileHandler struct {
	dir   string
	grace time.Duration
}

// NewFileHandler creates a new file handler rooted at dir.
func NewFileHandler(dir string, grace time.Duration) *FileHandler {
	return &FileHandler{dir: dir, grace: grace}
}

func (h *FileHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/{filename}", h.Serve)
	r.Head("/{filename}", h.Serve)

	return r
}

// Serve streams a completed artifact to the client. After a successful GET
// the file is deleted once the grace period elapses, so a client can retry
// a failed transfer but the disk does not fill up.
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	// Base strips any path components, confining lookups to the download
	// directory.
	filename := filepath.Base(chi.URLParam(r, "filename"))
	if filename == "." || filename == "/" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid filename"})

		return
	}

	path := filepath.Join(h.dir, filename)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})

			return
		}

		logger.Error("failed to stat file", "path", path, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read file"})

		return
	}

	if info.IsDir() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})

		return
	}

	contentType, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Cache-Control", "no-cache")

	http.ServeFile(w, r, path)

	if r.Method != http.MethodGet {
		return
	}

	logger.Info("file served",
		"filename", filename,
		"size", humanize.Bytes(uint64(info.Size())),
	)

	h.scheduleRemoval(logger, path, filename)
}

// scheduleRemoval deletes the artifact after the grace period. Removal
// failures are logged only; the retention sweeper is the backstop.
func (h *FileHandler) scheduleRemoval(logger *slog.Logger, path, filename string) {
	time.AfterFunc(h.grace, func() {
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("failed to remove served file", "filename", filename, "err", err)
			}

			return
		}

		logger.Info("removed served file", "filename", filename)
	})
}
