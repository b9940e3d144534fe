package download

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vidgrab/vidgrab/internal/ytdlp"
)

// ValidationError represents a request rejected before any download was
// registered: bad or missing URL, unsupported platform, or a missing field.
type ValidationError struct {
	Field  string // Request field that failed validation
	Reason string // Human-readable explanation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ToolError represents a yt-dlp run that started but reported failure:
// unavailable video, private content, network trouble.
type ToolError struct {
	Reason string // Summary of why the tool failed
	Err    error  // Underlying error, if any
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("yt-dlp failed: %s", e.Reason)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// SystemError represents an environment problem not fixable by retrying the
// same request: tool missing, disk full, permission denied.
type SystemError struct {
	Op  string // The operation that failed
	Err error  // Underlying error, if any
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("system error during %s", e.Op)
}

func (e *SystemError) Unwrap() error {
	return e.Err
}

// UserMessage is the client-facing rendering of a failure.
type UserMessage struct {
	Message     string   `json:"error"`
	Type        string   `json:"type"`
	Recoverable bool     `json:"recoverable"`
	Suggestions []string `json:"suggestions"`
}

// Classify maps an error onto a user-facing message with remediation
// suggestions. Tool failures are classified by substring-matching yt-dlp's
// stderr into a small set of known causes.
func Classify(err error) UserMessage {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return UserMessage{
			Message:     validationErr.Error(),
			Type:        "warning",
			Recoverable: true,
			Suggestions: []string{
				"Check that the URL is valid and accessible",
				"Make sure the URL is from a supported platform",
			},
		}
	}

	if errors.Is(err, ytdlp.ErrToolUnavailable) {
		return UserMessage{
			Message:     "Required system tools are not installed",
			Type:        "error",
			Recoverable: false,
			Suggestions: []string{
				"Install yt-dlp and ffmpeg",
				"Make sure they are in your system PATH",
			},
		}
	}

	var systemErr *SystemError
	if errors.As(err, &systemErr) {
		return classifySystem(systemErr)
	}

	var exitErr *ytdlp.ExitError
	if errors.As(err, &exitErr) {
		return classifyToolOutput(exitErr.Stderr)
	}

	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return classifyToolOutput(toolErr.Reason)
	}

	return UserMessage{
		Message:     "An unexpected error occurred",
		Type:        "error",
		Recoverable: true,
		Suggestions: []string{"Try again or contact support if the problem persists"},
	}
}

func classifyToolOutput(detail string) UserMessage {
	lower := strings.ToLower(detail)

	switch {
	case strings.Contains(lower, "video unavailable"):
		return UserMessage{
			Message:     "This video is not available for download",
			Type:        "error",
			Recoverable: false,
			Suggestions: []string{
				"The video may be private or deleted",
				"Try a different video URL",
			},
		}
	case strings.Contains(lower, "private video"):
		return UserMessage{
			Message:     "This video is private and cannot be downloaded",
			Type:        "error",
			Recoverable: false,
			Suggestions: []string{"Try a public video instead"},
		}
	case strings.Contains(lower, "network"):
		return UserMessage{
			Message:     "Network error occurred while downloading",
			Type:        "error",
			Recoverable: true,
			Suggestions: []string{
				"Check your internet connection",
				"Try again in a few moments",
			},
		}
	}

	return UserMessage{
		Message:     "Download failed due to an unexpected error",
		Type:        "error",
		Recoverable: true,
		Suggestions: []string{
			"Try again with a different format",
			"Check if the video is still available",
		},
	}
}

func classifySystem(err *SystemError) UserMessage {
	lower := strings.ToLower(err.Error())
	if err.Err != nil {
		lower += " " + strings.ToLower(err.Err.Error())
	}

	switch {
	case strings.Contains(lower, "no space") || strings.Contains(lower, "disk space"):
		return UserMessage{
			Message:     "Not enough disk space to complete download",
			Type:        "error",
			Recoverable: false,
			Suggestions: []string{
				"Free up some disk space",
				"Try downloading to a different location",
			},
		}
	case strings.Contains(lower, "not found") || strings.Contains(lower, "no such file"):
		return UserMessage{
			Message:     "Required system tools are not installed",
			Type:        "error",
			Recoverable: false,
			Suggestions: []string{
				"Install yt-dlp and ffmpeg",
				"Make sure they are in your system PATH",
			},
		}
	case strings.Contains(lower, "permission"):
		return UserMessage{
			Message:     "Permission denied while accessing files",
			Type:        "error",
			Recoverable: false,
			Suggestions: []string{
				"Check file permissions",
				"Try running with appropriate permissions",
			},
		}
	}

	return UserMessage{
		Message:     "System error occurred during download",
		Type:        "error",
		Recoverable: true,
		Suggestions: []string{"Try again in a few moments"},
	}
}
