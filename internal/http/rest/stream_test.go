package rest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// eventReader consumes server-sent events from a live response body.
type eventReader struct {
	t       *testing.T
	scanner *bufio.Scanner
}

func newEventReader(t *testing.T, r io.Reader) *eventReader {
	t.Helper()

	return &eventReader{t: t, scanner: bufio.NewScanner(r)}
}

func (er *eventReader) next() ProgressEvent {
	er.t.Helper()

	for er.scanner.Scan() {
		payload, ok := strings.CutPrefix(er.scanner.Text(), "data: ")
		if !ok {
			continue
		}

		var ev ProgressEvent
		require.NoError(er.t, json.Unmarshal([]byte(payload), &ev))

		return ev
	}

	er.t.Fatal("stream ended before an event arrived")

	return ProgressEvent{}
}

func (er *eventReader) closed() bool {
	return !er.scanner.Scan()
}

func decodeEvents(t *testing.T, body string) []ProgressEvent {
	t.Helper()

	var events []ProgressEvent

	for _, line := range strings.Split(body, "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var ev ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(payload), &ev))

		events = append(events, ev)
	}

	return events
}

func TestProgressStreamCompletedDownload(t *testing.T) {
	h, tracker := newTestHandler(t, &stubTool{})

	tracker.Create("dl1")
	tracker.Complete("dl1", "video.mp4")

	req := httptest.NewRequest(http.MethodGet, "/downloads/dl1/progress", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := decodeEvents(t, rec.Body.String())
	require.Len(t, events, 1)
	require.Equal(t, "complete", events[0].Type)
	require.Equal(t, "dl1", events[0].DownloadID)
	require.Equal(t, "video.mp4", events[0].Filename)
	require.NotNil(t, events[0].Progress)
	require.InDelta(t, 100, *events[0].Progress, 0.001)
}

func TestProgressStreamFailedDownload(t *testing.T) {
	h, tracker := newTestHandler(t, &stubTool{})

	tracker.Create("dl1")
	tracker.Fail("dl1", "Network error occurred while downloading")

	req := httptest.NewRequest(http.MethodGet, "/downloads/dl1/progress", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	events := decodeEvents(t, rec.Body.String())
	require.Len(t, events, 1)
	require.Equal(t, "error", events[0].Type)
	require.Equal(t, "Network error occurred while downloading", events[0].Error)
}

func TestProgressStreamUnknownDownload(t *testing.T) {
	h, _ := newTestHandler(t, &stubTool{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/downloads/ghost/progress", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	events := decodeEvents(t, rec.Body.String())
	require.Len(t, events, 1)
	require.Equal(t, "error", events[0].Type)
	require.Equal(t, "Download not found - may have failed to start", events[0].Error)
}

func TestProgressStreamLiveUpdates(t *testing.T) {
	h, tracker := newTestHandler(t, &stubTool{})

	server := httptest.NewServer(h.Routes())
	defer server.Close()

	tracker.Create("dl1")

	resp, err := http.Get(server.URL + "/downloads/dl1/progress")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := newEventReader(t, resp.Body)

	// Initial state arrives immediately.
	ev := events.next()
	require.Equal(t, "progress", ev.Type)
	require.NotNil(t, ev.Progress)
	require.InDelta(t, 0, *ev.Progress, 0.001)

	tracker.UpdateProgress("dl1", 50)

	ev = events.next()
	require.Equal(t, "progress", ev.Type)
	require.InDelta(t, 50, *ev.Progress, 0.001)

	tracker.Complete("dl1", "done.mp4")

	// Intermediate events may arrive from the fallback poll; the terminal
	// event always closes the stream.
	for {
		ev = events.next()
		if ev.Type == "complete" {
			break
		}

		require.Equal(t, "progress", ev.Type)
	}

	require.Equal(t, "done.mp4", ev.Filename)

	// The handler closes the stream after the terminal event.
	require.True(t, events.closed())
}

func TestProgressStreamCancelledDownload(t *testing.T) {
	tool := &stubTool{blockWait: make(chan struct{})}
	h, _ := newTestHandler(t, tool)
	routes := h.Routes()

	server := httptest.NewServer(routes)
	defer server.Close()

	rec := postJSON(t, routes, "/downloads", map[string]any{
		"url":    "https://www.youtube.com/watch?v=abc",
		"format": "best",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted DownloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	resp, err := http.Get(server.URL + "/downloads/" + accepted.DownloadID + "/progress")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := newEventReader(t, resp.Body)

	ev := events.next()
	require.Equal(t, "progress", ev.Type)

	req := httptest.NewRequest(http.MethodDelete, "/downloads/"+accepted.DownloadID, nil)
	del := httptest.NewRecorder()
	routes.ServeHTTP(del, req)
	require.Equal(t, http.StatusOK, del.Code)

	// The stream observes the terminal cancelled event even though the
	// record is removed right after it is published.
	for {
		ev = events.next()
		if ev.Type == "error" {
			break
		}

		require.Equal(t, "progress", ev.Type)
	}

	require.Equal(t, "download cancelled", ev.Error)
	require.True(t, events.closed())
}
