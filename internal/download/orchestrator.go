package download

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/vidgrab/vidgrab/internal/logctx"
	"github.com/vidgrab/vidgrab/internal/notifier"
	"github.com/vidgrab/vidgrab/internal/telemetry"
	"github.com/vidgrab/vidgrab/internal/validate"
	"github.com/vidgrab/vidgrab/internal/ytdlp"
)

const dirPerm = 0755

// Tool abstracts the yt-dlp client so tests can substitute a deterministic
// double for the real subprocess.
type Tool interface {
	FetchMetadata(ctx context.Context, url string) (*ytdlp.Metadata, error)
	Start(ctx context.Context, args []string, onStdout, onStderr func(line string)) (ytdlp.Proc, error)
}

// Request describes one download submission.
type Request struct {
	URL              string `json:"url"`
	Format           string `json:"format"`
	CustomFormat     string `json:"customFormat,omitempty"`
	IncludeSubtitles bool   `json:"includeSubtitles,omitempty"`
	SubtitleLanguage string `json:"subtitleLanguage,omitempty"`
	CustomFilename   string `json:"customFilename,omitempty"`
	EmbedThumbnail   bool   `json:"embedThumbnail,omitempty"`
}

// Orchestrator ties a download together: it allocates the id and tracker
// record, resolves the output filename, drives the yt-dlp process, and
// finalizes the record from the exit status. It is the single writer of a
// record's core fields.
type Orchestrator struct {
	tracker     *Tracker
	tool        Tool
	downloadDir string
	telemetry   *telemetry.Telemetry
	notifier    notifier.Notifier

	mu      sync.Mutex
	procs   map[string]ytdlp.Proc
	pending map[string]bool
}

// NewOrchestrator creates an orchestrator. telemetry may be nil.
func NewOrchestrator(tracker *Tracker, tool Tool, downloadDir string, t *telemetry.Telemetry) *Orchestrator {
	return &Orchestrator{
		tracker:     tracker,
		tool:        tool,
		downloadDir: downloadDir,
		telemetry:   t,
		procs:       make(map[string]ytdlp.Proc),
		pending:     make(map[string]bool),
	}
}

// Start accepts a download and returns its id immediately. The subprocess
// runs detached from the caller's request lifetime; failures after this
// point surface only through the tracker record and the progress stream.
func (o *Orchestrator) Start(ctx context.Context, req Request) string {
	id := newDownloadID()
	o.tracker.Create(id)

	// Detach from the request context but keep its logger: the HTTP
	// response returns long before the download finishes.
	runCtx := logctx.WithLogger(context.Background(), logctx.LoggerFromContext(ctx))

	go o.run(runCtx, id, req)

	return id
}

// SetNotifier installs an outcome notifier. Must be called before Start.
func (o *Orchestrator) SetNotifier(n notifier.Notifier) {
	o.notifier = n
}

// Cancel terminates the process behind an active download. A cancel landing
// between accept and process registration is remembered and applied as soon
// as the process appears. Returns false if the id has no active download.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.Lock()

	proc, ok := o.procs[id]
	if !ok {
		if snap, tracked := o.tracker.Get(id); tracked && !snap.Status.Terminal() {
			o.pending[id] = true
			o.mu.Unlock()

			return true
		}

		o.mu.Unlock()

		return false
	}

	o.mu.Unlock()

	proc.Cancel()

	return true
}

func (o *Orchestrator) run(ctx context.Context, id string, req Request) {
	logger := logctx.LoggerFromContext(ctx).With("download_id", id)
	started := time.Now()

	o.telemetry.IncrementActiveDownloads()
	defer o.telemetry.DecrementActiveDownloads()

	if err := os.MkdirAll(o.downloadDir, dirPerm); err != nil {
		logger.Error("failed to create download directory", "dir", o.downloadDir, "err", err)
		o.finalize(ctx, id, started, &SystemError{Op: "create download directory", Err: err})

		return
	}

	filename := o.resolveFilename(ctx, id, req)

	format := req.Format
	if format == ytdlp.FormatCustom {
		format = req.CustomFormat
	}

	embedThumbnail := req.EmbedThumbnail && req.Format == ytdlp.FormatAudio

	args := ytdlp.BuildDownloadArgs(ytdlp.DownloadOptions{
		URL:              req.URL,
		Format:           format,
		IncludeSubtitles: req.IncludeSubtitles,
		SubtitleLanguage: req.SubtitleLanguage,
		EmbedThumbnail:   embedThumbnail,
		OutputPath:       filepath.Join(o.downloadDir, filename),
	})

	proc, err := o.tool.Start(ctx, args,
		func(line string) {
			o.tracker.AppendOutput(id, line)

			if pct, ok := ytdlp.ParseProgress(line); ok {
				o.tracker.UpdateProgress(id, pct)
			}
		},
		func(line string) {
			o.tracker.AppendOutput(id, "[error] "+line)
		},
	)
	if err != nil {
		logger.Error("failed to start yt-dlp", "err", err)

		o.mu.Lock()
		delete(o.pending, id)
		o.mu.Unlock()

		o.finalize(ctx, id, started, err)

		return
	}

	o.mu.Lock()
	o.procs[id] = proc
	cancelled := o.pending[id]
	delete(o.pending, id)
	o.mu.Unlock()

	if cancelled {
		proc.Cancel()
	}

	err = proc.Wait()

	o.mu.Lock()
	delete(o.procs, id)
	o.mu.Unlock()

	if err != nil {
		logger.Error("download failed", "err", err)
		o.finalize(ctx, id, started, err)

		return
	}

	logger.Info("download completed", "filename", filename, "duration", time.Since(started).String())
	o.tracker.Complete(id, filename)
	o.telemetry.RecordDownload("complete", time.Since(started))
	o.notify(ctx, "✅ Download finished: "+filename)
}

// finalize records a failed or cancelled outcome. Cancelled downloads are
// dropped from the active view entirely; other failures stay visible until
// the retention sweep.
func (o *Orchestrator) finalize(ctx context.Context, id string, started time.Time, err error) {
	if errors.Is(err, ytdlp.ErrCancelled) {
		o.tracker.Fail(id, "download cancelled")
		o.tracker.Remove(id)
		o.telemetry.RecordDownload("cancelled", time.Since(started))

		return
	}

	message := Classify(err).Message
	o.tracker.Fail(id, message)
	o.telemetry.RecordDownload("error", time.Since(started))
	o.notify(ctx, "❌ Download failed: "+message)
}

// notify delivers the outcome out of band so a slow webhook never delays
// record finalization.
func (o *Orchestrator) notify(ctx context.Context, content string) {
	if o.notifier == nil {
		return
	}

	logger := logctx.LoggerFromContext(ctx)

	go func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := o.notifier.Notify(notifyCtx, content); err != nil {
			logger.Error("failed to send notification", "err", err)
		}
	}()
}

// resolveFilename fixes the output filename before the process starts;
// yt-dlp is told to write to this exact path. Preference order: sanitized
// custom name, sanitized video title, generic name carrying the id.
func (o *Orchestrator) resolveFilename(ctx context.Context, id string, req Request) string {
	ext := ytdlp.ExtensionForFormat(req.Format)

	if req.CustomFilename != "" {
		return validate.SanitizeFilename(req.CustomFilename) + "." + ext
	}

	md, err := o.tool.FetchMetadata(ctx, req.URL)
	if err != nil || md.Title == "" {
		logctx.LoggerFromContext(ctx).Warn("metadata fetch failed, using generic filename", "download_id", id, "err", err)

		return "download_" + id + "." + ext
	}

	return validate.SanitizeFilename(md.Title) + "." + ext
}

// newDownloadID returns a unique identifier for one download attempt
// (timestamp + random suffix).
func newDownloadID() string {
	rnd := make([]byte, 4)
	_, _ = rand.Read(rnd)

	return "download_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + hex.EncodeToString(rnd)
}

// ActiveCount reports how many processes are currently running.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.procs)
}
