package ytdlp

// Format preset names accepted by the download API. Anything else must come
// in as an explicit format selector via the "custom" format.
const (
	FormatBest   = "best"
	Format1080p  = "1080p"
	Format720p   = "720p"
	Format480p   = "480p"
	FormatAudio  = "audio"
	FormatCustom = "custom"
)

var formatPresets = map[string][]string{
	FormatBest: {
		"-f", "bestvideo[height<=2160]+bestaudio[ext=m4a]/bestvideo[height<=2160]+bestaudio/bestvideo+bestaudio/best[height<=2160]/best",
		"--merge-output-format", "mp4",
		"--embed-metadata",
		"--embed-thumbnail",
		"--remux-video", "mp4",
	},
	Format1080p: {
		"-f", "bestvideo[height<=1080]+bestaudio[ext=m4a]/bestvideo[height<=1080]+bestaudio/best[height<=1080]",
		"--merge-output-format", "mp4",
		"--embed-metadata",
		"--embed-thumbnail",
		"--remux-video", "mp4",
	},
	Format720p: {
		"-f", "bestvideo[height<=720]+bestaudio[ext=m4a]/bestvideo[height<=720]+bestaudio/best[height<=720]",
		"--merge-output-format", "mp4",
		"--embed-metadata",
		"--embed-thumbnail",
		"--remux-video", "mp4",
	},
	Format480p: {
		"-f", "bestvideo[height<=480]+bestaudio[ext=m4a]/bestvideo[height<=480]+bestaudio/best[height<=480]",
		"--merge-output-format", "mp4",
		"--embed-metadata",
		"--embed-thumbnail",
		"--remux-video", "mp4",
	},
	FormatAudio: {
		"-f", "bestaudio[ext=m4a]/bestaudio/best",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "320K",
		"--embed-metadata",
		"--embed-thumbnail",
	},
}

// progressArgs force line-buffered, parseable progress output so percentages
// are visible while the process is still running.
var progressArgs = []string{
	"--newline",
	"--progress-template",
	"[download] %(progress._percent_str)s of %(progress._total_bytes_str)s at %(progress._speed_str)s ETA %(progress._eta_str)s",
}

var subtitleArgs = []string{
	"--write-subs",
	"--write-auto-subs",
	"--sub-format", "srt/best",
}

var thumbnailArgs = []string{
	"--write-thumbnail",
	"--embed-thumbnail",
}

var metadataArgs = []string{
	"--dump-single-json",
	"--no-download",
	"--flat-playlist",
}

// IsPresetFormat reports whether name is one of the predefined quality tiers.
func IsPresetFormat(name string) bool {
	_, ok := formatPresets[name]

	return ok
}

// ExtensionForFormat returns the container extension the preset produces.
func ExtensionForFormat(format string) string {
	if format == FormatAudio {
		return "mp3"
	}

	return "mp4"
}

// DownloadOptions describes one yt-dlp download invocation. Format is either
// a preset name or, for custom downloads, a raw yt-dlp format selector.
type DownloadOptions struct {
	URL              string
	Format           string
	IncludeSubtitles bool
	SubtitleLanguage string
	EmbedThumbnail   bool
	OutputPath       string
}

// BuildDownloadArgs assembles the yt-dlp argument list for a download.
func BuildDownloadArgs(opts DownloadOptions) []string {
	args := []string{"--no-warnings", "--ignore-errors"}
	args = append(args, progressArgs...)

	if preset, ok := formatPresets[opts.Format]; ok {
		args = append(args, preset...)

		if opts.Format == FormatAudio && opts.EmbedThumbnail {
			args = append(args, thumbnailArgs...)
		}
	} else {
		args = append(args,
			"-f", opts.Format,
			"--merge-output-format", "mp4",
			"--embed-metadata",
			"--embed-thumbnail",
		)
	}

	if opts.IncludeSubtitles {
		args = append(args, subtitleArgs...)

		if opts.SubtitleLanguage != "" {
			args = append(args, "--sub-langs", opts.SubtitleLanguage)
		}
	}

	args = append(args, "-o", opts.OutputPath)
	args = append(args, opts.URL)

	return args
}
