// Package validate holds the pure input checks performed before a download
// is accepted: URL well-formedness, platform support, and filename hygiene.
package validate

import (
	"net/url"
	"regexp"
	"strings"
)

var videoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/watch`),
	regexp.MustCompile(`youtu\.be/`),
	regexp.MustCompile(`vimeo\.com/`),
	regexp.MustCompile(`dailymotion\.com/`),
	regexp.MustCompile(`twitch\.tv/`),
	regexp.MustCompile(`tiktok\.com/`),
	regexp.MustCompile(`instagram\.com/`),
	regexp.MustCompile(`twitter\.com/`),
	regexp.MustCompile(`x\.com/`),
}

var playlistPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/playlist`),
	regexp.MustCompile(`youtube\.com/watch.*list=`),
	regexp.MustCompile(`youtu\.be/.*list=`),
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRuns      = regexp.MustCompile(`\s+`)
)

// IsValidURL reports whether s parses as an absolute http(s) URL.
func IsValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsVideoURL reports whether the URL belongs to a supported video platform.
func IsVideoURL(s string) bool {
	if !IsValidURL(s) {
		return false
	}

	for _, p := range videoPatterns {
		if p.MatchString(s) {
			return true
		}
	}

	return false
}

// IsPlaylistURL reports whether the URL points at a playlist rather than a
// single video.
func IsPlaylistURL(s string) bool {
	if !IsValidURL(s) {
		return false
	}

	for _, p := range playlistPatterns {
		if p.MatchString(s) {
			return true
		}
	}

	return false
}

// SanitizeFilename replaces characters that are unsafe in filenames and
// collapses whitespace runs into underscores.
func SanitizeFilename(name string) string {
	s := unsafeFilenameChars.ReplaceAllString(name, "_")
	s = whitespaceRuns.ReplaceAllString(s, "_")

	return strings.TrimSpace(s)
}
