package ytdlp

import (
	"math"
	"regexp"
	"strconv"
)

// Progress patterns tried in priority order. The explicit download prefix
// wins over the size indicator, which wins over a bare percentage.
var progressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`),
	regexp.MustCompile(`(\d+(?:\.\d+)?)%\s+of`),
	regexp.MustCompile(`(\d+(?:\.\d+)?)%`),
}

// ParseProgress extracts a completion percentage from one line of yt-dlp
// output. It reports false when no pattern matches or when the matched value
// is not a finite number within [0,100].
func ParseProgress(line string) (float64, bool) {
	for _, p := range progressPatterns {
		m := p.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil || math.IsNaN(pct) || math.IsInf(pct, 0) {
			continue
		}

		if pct < 0 || pct > 100 {
			continue
		}

		return pct, true
	}

	return 0, false
}
