package playback

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Segment is one media segment entry in an HLS media playlist.
type Segment struct {
	Sequence int
	Duration float64
	URI      string
}

// MediaPlaylist is the parsed form of an HLS live media playlist.
type MediaPlaylist struct {
	TargetDuration int
	MediaSequence  int
	Segments       []Segment
	Ended          bool
}

// ParseMediaPlaylist parses an HLS media playlist. Only the tags the live
// fetch loop needs are interpreted; unknown tags are skipped. Sequence
// numbers are assigned from #EXT-X-MEDIA-SEQUENCE upward so the caller can
// detect new segments across refreshes.
func ParseMediaPlaylist(body string) (*MediaPlaylist, error) {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "#EXTM3U" {
		return nil, fmt.Errorf("not an m3u8 playlist")
	}

	pl := &MediaPlaylist{TargetDuration: 1}
	duration := -1.0
	seq := 0

	for _, raw := range lines[1:] {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			if v, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:")); err == nil && v > 0 {
				pl.TargetDuration = v
			}
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			if v, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:")); err == nil {
				pl.MediaSequence = v
				seq = v
			}
		case strings.HasPrefix(line, "#EXTINF:"):
			spec := strings.TrimPrefix(line, "#EXTINF:")
			if i := strings.IndexByte(spec, ','); i >= 0 {
				spec = spec[:i]
			}
			if v, err := strconv.ParseFloat(spec, 64); err == nil {
				duration = v
			}
		case line == "#EXT-X-ENDLIST":
			pl.Ended = true
		case strings.HasPrefix(line, "#"):
			// unhandled tag
		default:
			if duration < 0 {
				duration = float64(pl.TargetDuration)
			}
			pl.Segments = append(pl.Segments, Segment{Sequence: seq, Duration: duration, URI: line})
			seq++
			duration = -1
		}
	}
	return pl, nil
}

// ResolveSegmentURL resolves a segment URI against the playlist URL.
func ResolveSegmentURL(playlistURL, segmentURI string) (string, error) {
	base, err := url.Parse(playlistURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(segmentURI)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
