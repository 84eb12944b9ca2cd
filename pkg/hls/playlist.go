package hls

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"
)

// BuildMediaPlaylist renders a variant's index.m3u8 contents per
// spec.md §4.H: a version-3 playlist with the current sliding window
// of segments, a media sequence number equal to the oldest kept
// segment's sequence, and a discontinuity tag before any segment that
// followed a PCR discontinuity. endlist appends #EXT-X-ENDLIST, used
// only when the caller requested VOD finalization.
func BuildMediaPlaylist(targetDuration time.Duration, segments []Segment, endlist bool) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(targetDuration.Seconds())))

	var seq int64
	if len(segments) > 0 {
		seq = segments[0].Sequence
	}
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", seq)

	for _, s := range segments {
		if s.Discontinuity {
			b.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n%s\n", s.Duration, s.Name)
	}

	if endlist {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

// VariantInfo describes one rendition for the master playlist.
type VariantInfo struct {
	Name      string
	Bandwidth int
	Width     int
	Height    int
	Codecs    string
}

// BuildMasterPlaylist renders a master playlist listing each variant's
// bandwidth/resolution/codec string and its media-playlist URI.
func BuildMasterPlaylist(variants []VariantInfo) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, v := range variants {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d,CODECS=\"%s\"\n",
			v.Bandwidth, v.Width, v.Height, v.Codecs)
		fmt.Fprintf(&b, "%s/index.m3u8\n", v.Name)
	}
	return b.String()
}

// WriteMasterPlaylist atomically writes master.m3u8 under outDir,
// for the pkg/variant driver to call once its variants' output
// directories are known.
func WriteMasterPlaylist(outDir string, variants []VariantInfo) error {
	content := BuildMasterPlaylist(variants)
	return atomicWriteFile(filepath.Join(outDir, "master.m3u8"), []byte(content))
}
