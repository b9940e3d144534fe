package ytdlp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMetadataSingleVideo(t *testing.T) {
	out := `{"id":"abc123","title":"A Video","thumbnail":"https://i.ytimg.com/vi/abc123/hq.jpg","duration":212.5,"uploader":"Some Channel"}`

	md, err := parseMetadata(out)
	require.NoError(t, err)

	require.Equal(t, "abc123", md.ID)
	require.Equal(t, "A Video", md.Title)
	require.Equal(t, "Some Channel", md.Uploader)
	require.InDelta(t, 212.5, md.Duration, 0.001)
	require.False(t, md.IsPlaylist)
	require.Empty(t, md.PlaylistVideos)
}

func TestParseMetadataPlaylistType(t *testing.T) {
	out := `{"_type":"playlist","id":"PL1","title":"My List","entries":[{"id":"v1","title":"First","url":"https://youtube.com/watch?v=v1","duration":10},{"id":"v2","title":"Second","webpage_url":"https://youtube.com/watch?v=v2","duration":20}]}`

	md, err := parseMetadata(out)
	require.NoError(t, err)

	require.True(t, md.IsPlaylist)
	require.Len(t, md.PlaylistVideos, 2)
	require.Equal(t, "https://youtube.com/watch?v=v1", md.PlaylistVideos[0].URL)
	require.Equal(t, "https://youtube.com/watch?v=v2", md.PlaylistVideos[1].URL)
}

func TestParseMetadataMultiLineDump(t *testing.T) {
	// One JSON object per line means a flat playlist dump.
	out := `{"id":"PL1","title":"My List"}
{"id":"v1","title":"First","url":"https://youtube.com/watch?v=v1"}
{"id":"v2","title":"Second","url":"https://youtube.com/watch?v=v2"}`

	md, err := parseMetadata(out)
	require.NoError(t, err)

	require.True(t, md.IsPlaylist)
	require.Len(t, md.PlaylistVideos, 2)
	require.Equal(t, "First", md.PlaylistVideos[0].Title)
}

func TestParseMetadataDefaults(t *testing.T) {
	md, err := parseMetadata(`{"id":"abc","channel":"Chan"}`)
	require.NoError(t, err)

	require.Equal(t, "Unknown Title", md.Title)
	require.Equal(t, "Chan", md.Uploader)
}

func TestParseMetadataInvalid(t *testing.T) {
	_, err := parseMetadata("")
	require.Error(t, err)

	_, err = parseMetadata("not json")
	require.Error(t, err)
}
