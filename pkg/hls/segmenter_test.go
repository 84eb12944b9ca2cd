package hls

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bkataru-workshop/vdkio/pkg/av"
	"github.com/bkataru-workshop/vdkio/pkg/mpegts"
)

func videoPacket(pts int64, isKey bool) *av.Packet {
	return &av.Packet{
		PTS: pts, DTS: pts, IsKey: isKey, MediaKind: av.Video,
		Payload: []byte{0x65, 0x01, 0x02},
	}
}

func newTestSegmenter(t *testing.T, window int) *Segmenter {
	dir := t.TempDir()
	s, err := New(Config{
		OutDir:         dir,
		VariantName:    "v0",
		TargetDuration: 6 * time.Second,
		Window:         window,
		ClockRate:      1, // treat PTS units as whole seconds, matching scenario S7
		MuxerConfig:    mpegts.Config{VideoStreamType: mpegts.StreamTypeH264},
	})
	require.NoError(t, err)
	return s
}

func TestSegmenterOpensSegmentsOnlyAtKeyFrames(t *testing.T) {
	s := newTestSegmenter(t, 5)

	require.NoError(t, s.Write(videoPacket(0, true)))
	require.NoError(t, s.Write(videoPacket(2, true)))
	require.NoError(t, s.Write(videoPacket(5, true)))
	require.NoError(t, s.Write(videoPacket(7, true)))  // elapsed=7 >= 6s: closes [0,7)
	require.NoError(t, s.Write(videoPacket(13, true))) // elapsed=6 >= 6s: closes [7,13)
	require.NoError(t, s.Close())

	segs := s.Segments()
	require.Len(t, segs, 2)
	require.InDelta(t, 7.0, segs[0].Duration, 1e-9)
	require.InDelta(t, 6.0, segs[1].Duration, 1e-9)
}

func TestMediaPlaylistMatchesScenarioS7EXTINFValues(t *testing.T) {
	s := newTestSegmenter(t, 5)
	for _, pts := range []int64{0, 2, 5, 7, 13} {
		require.NoError(t, s.Write(videoPacket(pts, true)))
	}
	require.NoError(t, s.Close())

	content, err := os.ReadFile(filepath.Join(s.dir, "index.m3u8"))
	require.NoError(t, err)
	require.Contains(t, string(content), "#EXTINF:7.000,")
	require.Contains(t, string(content), "#EXTINF:6.000,")
}

func TestSegmenterRejectsOpeningASegmentOnANonKeyFrame(t *testing.T) {
	s := newTestSegmenter(t, 5)
	require.NoError(t, s.Write(videoPacket(0, true)))
	// A non-key-frame access unit arriving past the target duration
	// must not split the segment: only a key frame opens a new one.
	require.NoError(t, s.Write(&av.Packet{PTS: 8, DTS: 8, MediaKind: av.Video, Payload: []byte{0x41, 0x02}}))
	require.True(t, s.open, "segment must still be open: the access unit at PTS=8 was not a key frame")

	require.NoError(t, s.Write(videoPacket(9, true)))
	require.NoError(t, s.Close())

	// Every closed segment's start PTS coincides with a key frame fed
	// to Write: 0 is the only key frame before the 9s close.
	segs := s.Segments()
	require.Len(t, segs, 1)
	require.InDelta(t, 9.0, segs[0].Duration, 1e-9)
}

func TestPlaylistSlidingWindowMatchesFilesOnDisk(t *testing.T) {
	s := newTestSegmenter(t, 2)
	for seq := int64(0); seq < 5; seq++ {
		require.NoError(t, s.Write(videoPacket(seq*7, true)))
	}
	require.NoError(t, s.Close())

	segs := s.Segments()
	require.Len(t, segs, 2)

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	var tsFiles []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".ts" {
			tsFiles = append(tsFiles, e.Name())
		}
	}
	require.Len(t, tsFiles, 2)

	var seqs []int64
	for _, seg := range segs {
		seqs = append(seqs, seg.Sequence)
	}
	require.ElementsMatch(t, []int64{2, 3}, seqs)
}

func TestMediaSequenceNumberIsMonotonicAcrossWindowSlides(t *testing.T) {
	s := newTestSegmenter(t, 2)
	var prevSeq int64 = -1
	for seq := int64(0); seq < 6; seq++ {
		require.NoError(t, s.Write(videoPacket(seq*7, true)))
		for _, seg := range s.Segments() {
			require.Greater(t, seg.Sequence, prevSeq-1)
		}
		if len(s.Segments()) > 0 {
			newest := s.Segments()[len(s.Segments())-1].Sequence
			require.GreaterOrEqual(t, newest, prevSeq)
			prevSeq = newest
		}
	}
}

func TestBuildMasterPlaylistListsVariants(t *testing.T) {
	out := BuildMasterPlaylist([]VariantInfo{
		{Name: "720p", Bandwidth: 2000000, Width: 1280, Height: 720, Codecs: "avc1.64001f"},
	})
	require.Contains(t, out, "#EXT-X-STREAM-INF:BANDWIDTH=2000000,RESOLUTION=1280x720,CODECS=\"avc1.64001f\"")
	require.Contains(t, out, "720p/index.m3u8")
}

func TestCloseInVODModeAppendsEndlist(t *testing.T) {
	s := newTestSegmenter(t, 5)
	s.cfg.VOD = true
	require.NoError(t, s.Write(videoPacket(0, true)))
	require.NoError(t, s.Write(videoPacket(7, true)))
	require.NoError(t, s.Close())

	content, err := os.ReadFile(filepath.Join(s.dir, "index.m3u8"))
	require.NoError(t, err)
	require.Contains(t, string(content), "#EXT-X-ENDLIST")
}
