package mirror

import (
	"github.com/hlsmirror/go-hlsmirror/internal/playlist"
)

// FetchLength selects how many leading segments of a media playlist are
// mirrored. The zero value selects every segment. It is applied once per
// media playlist, independently for each rendition of a master playlist.
type FetchLength struct {
	// Duration selects segments until their cumulative duration reaches
	// this many seconds, including the segment that crosses the
	// threshold. If the threshold is never reached, every segment is
	// selected.
	Duration float64

	// Count caps the number of leading segments.
	Count int
}

// Window returns the leading slice of segments selected by the policy.
func (l FetchLength) Window(segments []playlist.Segment) []playlist.Segment {
	switch {
	case l.Duration > 0:
		sum := 0.0
		for i, segment := range segments {
			sum += segment.Duration
			if sum >= l.Duration {
				return segments[:i+1]
			}
		}
		return segments
	case l.Count > 0:
		if l.Count < len(segments) {
			return segments[:l.Count]
		}
		return segments
	default:
		return segments
	}
}
