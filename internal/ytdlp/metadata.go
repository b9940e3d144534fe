package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Metadata is the subset of yt-dlp's JSON dump the service cares about.
type Metadata struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Thumbnail      string          `json:"thumbnail"`
	Duration       float64         `json:"duration"`
	Uploader       string          `json:"uploader"`
	IsPlaylist     bool            `json:"isPlaylist"`
	PlaylistVideos []PlaylistVideo `json:"playlistVideos,omitempty"`
}

// PlaylistVideo is one entry of a playlist dump.
type PlaylistVideo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
	URL       string  `json:"url"`
}

// rawMetadata mirrors the yt-dlp field names before mapping.
type rawMetadata struct {
	Type      string     `json:"_type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Thumbnail string     `json:"thumbnail"`
	Duration  float64    `json:"duration"`
	Uploader  string     `json:"uploader"`
	Channel   string     `json:"channel"`
	Entries   []rawEntry `json:"entries"`
}

type rawEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Thumbnail  string  `json:"thumbnail"`
	Duration   float64 `json:"duration"`
	URL        string  `json:"url"`
	WebpageURL string  `json:"webpage_url"`
}

// FetchMetadata runs a metadata-only yt-dlp invocation and parses the JSON
// dump. Playlists are detected either by the _type marker or by yt-dlp
// emitting one JSON object per line.
func (c *Client) FetchMetadata(ctx context.Context, url string) (*Metadata, error) {
	args := append(append([]string{}, metadataArgs...), url)

	out, err := c.run(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("failed to extract metadata: %w", err)
	}

	return parseMetadata(out)
}

func parseMetadata(out string) (*Metadata, error) {
	lines := nonEmptyLines(out)
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty metadata output")
	}

	var raw rawMetadata
	if err := json.Unmarshal([]byte(lines[0]), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse metadata output: %w", err)
	}

	// Multiple JSON lines mean yt-dlp dumped playlist entries one per line.
	if len(lines) > 1 && raw.Type != "playlist" {
		raw.Type = "playlist"

		for _, line := range lines[1:] {
			var entry rawEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				return nil, fmt.Errorf("failed to parse playlist entry: %w", err)
			}

			raw.Entries = append(raw.Entries, entry)
		}
	}

	md := &Metadata{
		ID:        raw.ID,
		Title:     raw.Title,
		Thumbnail: raw.Thumbnail,
		Duration:  raw.Duration,
		Uploader:  raw.Uploader,
	}

	if md.Title == "" {
		md.Title = "Unknown Title"
	}

	if md.Uploader == "" {
		md.Uploader = raw.Channel
	}

	if raw.Type == "playlist" {
		md.IsPlaylist = true

		for i, entry := range raw.Entries {
			videoURL := entry.URL
			if videoURL == "" {
				videoURL = entry.WebpageURL
			}

			id := entry.ID
			if id == "" {
				id = fmt.Sprintf("%d", i)
			}

			md.PlaylistVideos = append(md.PlaylistVideos, PlaylistVideo{
				ID:        id,
				Title:     entry.Title,
				Thumbnail: entry.Thumbnail,
				Duration:  entry.Duration,
				URL:       videoURL,
			})
		}
	}

	return md, nil
}

func nonEmptyLines(s string) []string {
	var lines []string

	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	return lines
}
