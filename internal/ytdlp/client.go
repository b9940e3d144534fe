// Package ytdlp wraps invocation of the yt-dlp binary: building argument
// lists, spawning download processes with incremental output delivery, and
// fetching video metadata.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vidgrab/vidgrab/internal/logctx"
	"golang.org/x/sync/errgroup"
)

// ErrToolUnavailable indicates yt-dlp could not be spawned at all, typically
// because it is not installed or not on PATH.
var ErrToolUnavailable = errors.New("yt-dlp is not installed or not on PATH")

// ErrCancelled indicates the process was terminated by an explicit cancel,
// not by its own failure.
var ErrCancelled = errors.New("download cancelled")

// stderrTailLines bounds how much captured stderr is kept for diagnostics.
const stderrTailLines = 20

// ExitError reports a yt-dlp run that started but exited nonzero.
type ExitError struct {
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("yt-dlp exited with code %d: %s", e.Code, e.Stderr)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Proc is a handle on a running yt-dlp process.
type Proc interface {
	// Wait blocks until the process exits. It returns nil on success,
	// ErrCancelled after Cancel, or an *ExitError on nonzero exit.
	Wait() error
	// Cancel terminates the process. Safe to call more than once.
	Cancel()
}

// Client invokes the yt-dlp binary.
type Client struct {
	binPath         string
	metadataTimeout time.Duration
}

// NewClient creates a client for the given yt-dlp binary path.
func NewClient(binPath string, metadataTimeout time.Duration) *Client {
	return &Client{
		binPath:         binPath,
		metadataTimeout: metadataTimeout,
	}
}

// Version probes the installed yt-dlp version. Used as an availability check
// at startup.
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, []string{"--version"})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

// Start spawns yt-dlp with the given arguments and streams its output
// line-by-line to the callbacks as it is produced. Lines must reach the
// callbacks before the process exits; progress would otherwise only become
// visible after completion.
func (c *Client) Start(ctx context.Context, args []string, onStdout, onStderr func(line string)) (Proc, error) {
	runCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(runCtx, c.binPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()

		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()

		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	p := &proc{cmd: cmd, cancel: cancel}

	if err := cmd.Start(); err != nil {
		cancel()

		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("failed to spawn %s: %w", c.binPath, ErrToolUnavailable)
		}

		return nil, fmt.Errorf("failed to spawn %s: %w", c.binPath, err)
	}

	logctx.LoggerFromContext(ctx).Debug("spawned yt-dlp", "pid", cmd.Process.Pid, "args", args)

	// Both pipes must be drained concurrently or yt-dlp can stall on a
	// full pipe buffer.
	wg, _ := errgroup.WithContext(runCtx)
	wg.Go(func() error {
		return scanLines(stdout, onStdout)
	})
	wg.Go(func() error {
		return scanLines(stderr, func(line string) {
			p.recordStderr(line)

			if onStderr != nil {
				onStderr(line)
			}
		})
	})
	p.readers = wg

	return p, nil
}

type proc struct {
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	readers   *errgroup.Group
	cancelled atomic.Bool
	stderr    []string
}

func (p *proc) recordStderr(line string) {
	p.stderr = append(p.stderr, line)
	if len(p.stderr) > stderrTailLines {
		p.stderr = p.stderr[len(p.stderr)-stderrTailLines:]
	}
}

func (p *proc) Cancel() {
	if p.cancelled.CompareAndSwap(false, true) {
		// Ask nicely first; the context cancel below hard-kills.
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
		}

		p.cancel()
	}
}

func (p *proc) Wait() error {
	// Pipes must be fully drained before cmd.Wait closes them.
	_ = p.readers.Wait()

	err := p.cmd.Wait()
	p.cancel()

	if p.cancelled.Load() {
		return ErrCancelled
	}

	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{
			Code:   exitErr.ExitCode(),
			Stderr: strings.Join(p.stderr, "\n"),
			Err:    err,
		}
	}

	return fmt.Errorf("yt-dlp process error: %w", err)
}

// run executes yt-dlp to completion and returns its buffered stdout. Used
// for short-lived invocations (metadata, version probe), not downloads.
func (c *Client) run(ctx context.Context, args []string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.binPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("failed to spawn %s: %w", c.binPath, ErrToolUnavailable)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{
				Code:   exitErr.ExitCode(),
				Stderr: tailOf(stderr.String(), stderrTailLines),
				Err:    err,
			}
		}

		return "", fmt.Errorf("yt-dlp process error: %w", err)
	}

	return stdout.String(), nil
}

func scanLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if fn != nil {
			fn(scanner.Text())
		}
	}

	return scanner.Err()
}

func tailOf(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return strings.Join(lines, "\n")
}
