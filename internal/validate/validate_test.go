package validate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsValidURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{name: "https url", url: "https://youtube.com/watch?v=abc", want: true},
		{name: "http url", url: "http://example.com/video", want: true},
		{name: "ftp scheme", url: "ftp://example.com/file", want: false},
		{name: "missing scheme", url: "youtube.com/watch?v=abc", want: false},
		{name: "missing host", url: "https://", want: false},
		{name: "empty string", url: "", want: false},
		{name: "not a url", url: "::::not a url", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsValidURL(tt.url))
		})
	}
}

func TestIsVideoURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{name: "youtube watch", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: true},
		{name: "youtu.be short", url: "https://youtu.be/dQw4w9WgXcQ", want: true},
		{name: "vimeo", url: "https://vimeo.com/123456", want: true},
		{name: "dailymotion", url: "https://www.dailymotion.com/video/x1234", want: true},
		{name: "twitch", url: "https://www.twitch.tv/somechannel", want: true},
		{name: "tiktok", url: "https://www.tiktok.com/@user/video/1", want: true},
		{name: "instagram", url: "https://www.instagram.com/p/abc/", want: true},
		{name: "twitter", url: "https://twitter.com/user/status/1", want: true},
		{name: "x.com", url: "https://x.com/user/status/1", want: true},
		{name: "unsupported platform", url: "https://example.com/video.mp4", want: false},
		{name: "invalid url", url: "youtube.com/watch?v=abc", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsVideoURL(tt.url))
		})
	}
}

func TestIsPlaylistURL(t *testing.T) {
	require.True(t, IsPlaylistURL("https://www.youtube.com/playlist?list=PL123"))
	require.True(t, IsPlaylistURL("https://www.youtube.com/watch?v=abc&list=PL123"))
	require.True(t, IsPlaylistURL("https://youtu.be/abc?list=PL123"))
	require.False(t, IsPlaylistURL("https://www.youtube.com/watch?v=abc"))
	require.False(t, IsPlaylistURL("https://vimeo.com/123456"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "unsafe characters", in: `a<b>c:d"e/f\g|h?i*j`, want: "a_b_c_d_e_f_g_h_i_j"},
		{name: "whitespace runs", in: "My   Cool\tVideo", want: "My_Cool_Video"},
		{name: "clean name untouched", in: "already_clean-name.mp4", want: "already_clean-name.mp4"},
		{name: "path traversal flattened", in: "../../etc/passwd", want: ".._.._etc_passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}
