package ytdlp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProgress(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		want      float64
		wantMatch bool
	}{
		{
			name:      "download line with size",
			line:      "[download]  45.2% of ~100.00MiB at 5.00MiB/s",
			want:      45.2,
			wantMatch: true,
		},
		{
			name:      "download line at zero",
			line:      "[download]   0.0% of 10.00MiB",
			want:      0,
			wantMatch: true,
		},
		{
			name:      "download line at hundred",
			line:      "[download] 100% of 10.00MiB in 00:02",
			want:      100,
			wantMatch: true,
		},
		{
			name:      "percent of form without download prefix",
			line:      "  12.5% of 42.00MiB",
			want:      12.5,
			wantMatch: true,
		},
		{
			name:      "bare percent",
			line:      "progress: 87.3%",
			want:      87.3,
			wantMatch: true,
		},
		{
			name:      "no percentage at all",
			line:      "completed successfully",
			wantMatch: false,
		},
		{
			name:      "out of range percentage",
			line:      "150% done",
			wantMatch: false,
		},
		{
			name:      "empty line",
			line:      "",
			wantMatch: false,
		},
		{
			name:      "merger line without percent",
			line:      "[Merger] Merging formats into \"out.mp4\"",
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseProgress(tt.line)

			require.Equal(t, tt.wantMatch, ok)

			if tt.wantMatch {
				require.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestParseProgressPrefersDownloadPrefix(t *testing.T) {
	// The bracketed download percentage wins over any other percentage on
	// the same line.
	got, ok := ParseProgress("[download]  30.0% of ~1.00GiB (90% fragment)")

	require.True(t, ok)
	require.InDelta(t, 30.0, got, 0.001)
}
