package playlist

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/grafov/m3u8"
)

// ErrParse reports bytes that do not match the m3u8 grammar.
var ErrParse = errors.New("playlist: not a valid m3u8 playlist")

// Variant is one rendition reference inside a master playlist. Attributes
// are carried opaquely and never reinterpreted.
type Variant struct {
	URI        string
	Bandwidth  uint32
	Resolution string
	Codecs     string
	Audio      string
	Video      string
	Subtitles  string
}

// Segment is one playable chunk reference inside a media playlist.
type Segment struct {
	URI      string
	Duration float64
}

// Master enumerates alternative renditions of the same content, in
// playlist order.
type Master struct {
	Variants []Variant
}

// Media enumerates the ordered segments composing one rendition.
type Media struct {
	Segments []Segment
}

// Parse classifies raw manifest bytes. Exactly one of master, media is
// non-nil on success; both playlists are immutable snapshots of the bytes.
func Parse(data []byte) (*Master, *Media, error) {
	pl, kind, err := m3u8.Decode(*bytes.NewBuffer(data), true)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	switch kind {
	case m3u8.MASTER:
		mp, ok := pl.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, nil, ErrParse
		}

		master := &Master{Variants: make([]Variant, 0, len(mp.Variants))}
		for _, v := range mp.Variants {
			if v == nil {
				continue
			}
			master.Variants = append(master.Variants, Variant{
				URI:        v.URI,
				Bandwidth:  v.Bandwidth,
				Resolution: v.Resolution,
				Codecs:     v.Codecs,
				Audio:      v.Audio,
				Video:      v.Video,
				Subtitles:  v.Subtitles,
			})
		}
		return master, nil, nil
	case m3u8.MEDIA:
		mp, ok := pl.(*m3u8.MediaPlaylist)
		if !ok {
			return nil, nil, ErrParse
		}

		media := &Media{}
		for _, s := range mp.Segments {
			if s == nil {
				continue
			}
			media.Segments = append(media.Segments, Segment{
				URI:      s.URI,
				Duration: s.Duration,
			})
		}
		return nil, media, nil
	}

	return nil, nil, ErrParse
}
