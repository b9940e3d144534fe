package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vidgrab/vidgrab/internal/ytdlp"
)

// fakeProc is a controllable stand-in for a running yt-dlp process.
type fakeProc struct {
	waitErr   error
	release   chan struct{}
	cancelled bool
	mu        sync.Mutex
}

func newFakeProc(waitErr error) *fakeProc {
	return &fakeProc{waitErr: waitErr, release: make(chan struct{})}
}

func (p *fakeProc) Wait() error {
	<-p.release

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelled {
		return ytdlp.ErrCancelled
	}

	return p.waitErr
}

func (p *fakeProc) Cancel() {
	p.mu.Lock()

	if p.cancelled {
		p.mu.Unlock()

		return
	}

	p.cancelled = true
	p.mu.Unlock()

	close(p.release)
}

func (p *fakeProc) finish() {
	close(p.release)
}

// fakeTool implements Tool with canned responses and captured callbacks.
// startGate, when set, holds Start until the test releases it.
type fakeTool struct {
	mu          sync.Mutex
	proc        *fakeProc
	startErr    error
	startGate   chan struct{}
	metadata    *ytdlp.Metadata
	metadataErr error
	onStdout    func(string)
	started     bool
	gotArgs     []string
}

func (f *fakeTool) FetchMetadata(ctx context.Context, url string) (*ytdlp.Metadata, error) {
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}

	if f.metadata != nil {
		return f.metadata, nil
	}

	return &ytdlp.Metadata{Title: "Some Video"}, nil
}

func (f *fakeTool) Start(ctx context.Context, args []string, onStdout, onStderr func(line string)) (ytdlp.Proc, error) {
	if f.startGate != nil {
		<-f.startGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return nil, f.startErr
	}

	f.started = true
	f.gotArgs = args
	f.onStdout = onStdout

	return f.proc, nil
}

func (f *fakeTool) hasStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.started
}

func (f *fakeTool) emitStdout(line string) {
	f.mu.Lock()
	fn := f.onStdout
	f.mu.Unlock()

	if fn != nil {
		fn(line)
	}
}

func TestOrchestratorGeneratesUniqueIDs(t *testing.T) {
	tr := NewTracker(nil)
	tool := &fakeTool{proc: newFakeProc(nil)}
	orch := NewOrchestrator(tr, tool, t.TempDir(), nil)

	seen := make(map[string]bool)

	for i := 0; i < 20; i++ {
		id := orch.Start(context.Background(), Request{URL: "https://youtu.be/abc", Format: ytdlp.FormatBest})
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestOrchestratorSuccessfulDownload(t *testing.T) {
	tr := NewTracker(nil)
	proc := newFakeProc(nil)
	tool := &fakeTool{proc: proc}
	orch := NewOrchestrator(tr, tool, t.TempDir(), nil)

	id := orch.Start(context.Background(), Request{
		URL:            "https://youtu.be/abc",
		Format:         ytdlp.Format720p,
		CustomFilename: "my video",
	})

	// The record is visible immediately, before the process produces output.
	snap, ok := tr.Get(id)
	require.True(t, ok)
	require.Equal(t, Downloading, snap.Status)

	require.Eventually(t, tool.hasStarted, time.Second, 5*time.Millisecond)

	tool.emitStdout("[download]  45.2% of ~100.00MiB at 5.00MiB/s")

	require.Eventually(t, func() bool {
		snap, _ := tr.Get(id)

		return snap.Progress > 45 && snap.Progress < 46
	}, time.Second, 5*time.Millisecond)

	proc.finish()

	require.Eventually(t, func() bool {
		snap, _ := tr.Get(id)

		return snap.Status == Complete
	}, time.Second, 5*time.Millisecond)

	snap, _ = tr.Get(id)
	require.Equal(t, "my_video.mp4", snap.Filename)
	require.InDelta(t, 100, snap.Progress, 0.001)
}

func TestOrchestratorFilenameFromMetadata(t *testing.T) {
	tr := NewTracker(nil)
	proc := newFakeProc(nil)
	tool := &fakeTool{proc: proc, metadata: &ytdlp.Metadata{Title: "Cool Title"}}
	orch := NewOrchestrator(tr, tool, t.TempDir(), nil)

	id := orch.Start(context.Background(), Request{URL: "https://youtu.be/abc", Format: ytdlp.FormatAudio})

	require.Eventually(t, tool.hasStarted, time.Second, 5*time.Millisecond)
	proc.finish()

	require.Eventually(t, func() bool {
		snap, _ := tr.Get(id)

		return snap.Status == Complete
	}, time.Second, 5*time.Millisecond)

	snap, _ := tr.Get(id)
	require.Equal(t, "Cool_Title.mp3", snap.Filename)
}

func TestOrchestratorFallbackFilenameOnMetadataFailure(t *testing.T) {
	tr := NewTracker(nil)
	proc := newFakeProc(nil)
	tool := &fakeTool{proc: proc, metadataErr: errors.New("no metadata")}
	orch := NewOrchestrator(tr, tool, t.TempDir(), nil)

	id := orch.Start(context.Background(), Request{URL: "https://youtu.be/abc", Format: ytdlp.FormatBest})

	require.Eventually(t, tool.hasStarted, time.Second, 5*time.Millisecond)
	proc.finish()

	require.Eventually(t, func() bool {
		snap, _ := tr.Get(id)

		return snap.Status == Complete
	}, time.Second, 5*time.Millisecond)

	snap, _ := tr.Get(id)
	require.Equal(t, "download_"+id+".mp4", snap.Filename)
}

func TestOrchestratorSpawnFailure(t *testing.T) {
	tr := NewTracker(nil)
	tool := &fakeTool{startErr: fmt.Errorf("failed to spawn yt-dlp: %w", ytdlp.ErrToolUnavailable)}
	orch := NewOrchestrator(tr, tool, t.TempDir(), nil)

	id := orch.Start(context.Background(), Request{URL: "https://youtu.be/abc", Format: ytdlp.FormatBest})

	require.Eventually(t, func() bool {
		snap, _ := tr.Get(id)

		return snap.Status == Error
	}, time.Second, 5*time.Millisecond)

	snap, _ := tr.Get(id)
	require.Equal(t, "Required system tools are not installed", snap.Error)
}

func TestOrchestratorExitFailure(t *testing.T) {
	tr := NewTracker(nil)
	proc := newFakeProc(&ytdlp.ExitError{Code: 1, Stderr: "ERROR: Video unavailable"})
	tool := &fakeTool{proc: proc}
	orch := NewOrchestrator(tr, tool, t.TempDir(), nil)

	id := orch.Start(context.Background(), Request{URL: "https://youtu.be/abc", Format: ytdlp.FormatBest})

	require.Eventually(t, tool.hasStarted, time.Second, 5*time.Millisecond)
	proc.finish()

	require.Eventually(t, func() bool {
		snap, _ := tr.Get(id)

		return snap.Status == Error
	}, time.Second, 5*time.Millisecond)

	snap, _ := tr.Get(id)
	require.Equal(t, "This video is not available for download", snap.Error)
}

func TestOrchestratorCancel(t *testing.T) {
	tr := NewTracker(nil)
	proc := newFakeProc(nil)
	tool := &fakeTool{proc: proc}
	orch := NewOrchestrator(tr, tool, t.TempDir(), nil)

	id := orch.Start(context.Background(), Request{URL: "https://youtu.be/abc", Format: ytdlp.FormatBest})

	require.Eventually(t, func() bool {
		return orch.ActiveCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.True(t, orch.Cancel(id))

	// Cancelled downloads disappear from the registry entirely.
	require.Eventually(t, func() bool {
		_, ok := tr.Get(id)

		return !ok && orch.ActiveCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestratorCancelBeforeProcessRegisters(t *testing.T) {
	tr := NewTracker(nil)
	gate := make(chan struct{})
	proc := newFakeProc(nil)
	tool := &fakeTool{proc: proc, startGate: gate}
	orch := NewOrchestrator(tr, tool, t.TempDir(), nil)

	id := orch.Start(context.Background(), Request{URL: "https://youtu.be/abc", Format: ytdlp.FormatBest})

	// The process has not registered yet; the cancel must still stick.
	require.True(t, orch.Cancel(id))

	close(gate)

	require.Eventually(t, func() bool {
		_, ok := tr.Get(id)

		return !ok && orch.ActiveCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestratorCancelUnknownID(t *testing.T) {
	tr := NewTracker(nil)
	orch := NewOrchestrator(tr, &fakeTool{proc: newFakeProc(nil)}, t.TempDir(), nil)

	require.False(t, orch.Cancel("nope"))

	// Terminal records with no process are not cancellable either.
	tr.Create("done")
	tr.Complete("done", "a.mp4")
	require.False(t, orch.Cancel("done"))
}
