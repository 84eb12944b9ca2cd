package hls

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bkataru-workshop/vdkio/pkg/av"
	"github.com/bkataru-workshop/vdkio/pkg/mpegts"
)

// Config configures one variant's Segmenter.
type Config struct {
	OutDir      string
	VariantName string

	// TargetDuration defaults to 6s.
	TargetDuration time.Duration
	// Window is the sliding-window segment retention count, default 5.
	Window int
	// VOD, when true, makes Close append #EXT-X-ENDLIST instead of
	// leaving the playlist open for more segments.
	VOD bool

	// ClockRate is the video track's RTP clock rate (ticks per
	// second) that Packet.PTS/DTS are expressed in; default 90000.
	ClockRate int

	MuxerConfig mpegts.Config
}

func (c *Config) setDefaults() {
	if c.TargetDuration == 0 {
		c.TargetDuration = 6 * time.Second
	}
	if c.Window == 0 {
		c.Window = 5
	}
	if c.ClockRate == 0 {
		c.ClockRate = 90000
	}
}

// Segmenter closes a new TS file at every video key frame once the
// current segment has run at least TargetDuration, and keeps a
// sliding-window media playlist in sync with the files on disk, per
// spec.md §4.H.
type Segmenter struct {
	ID  uuid.UUID
	cfg Config
	dir string

	buf *bytes.Buffer
	mux *mpegts.Muxer

	open        bool
	segStartPTS int64
	lastPTS     int64
	pendingDisc bool

	nextSeq  int64
	segments []Segment
}

// New creates the variant's output directory and an empty Segmenter.
func New(cfg Config) (*Segmenter, error) {
	cfg.setDefaults()
	dir := filepath.Join(cfg.OutDir, cfg.VariantName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Segmenter{ID: uuid.New(), cfg: cfg, dir: dir}, nil
}

func (s *Segmenter) clockRate() float64 {
	return float64(s.cfg.ClockRate)
}

// Write admits one av.Packet, opening or closing a segment as needed
// before muxing the packet into the current segment's TS stream. A
// new segment opens on the very first packet and on every video key
// frame arriving once duration_elapsed >= TargetDuration.
func (s *Segmenter) Write(pkt *av.Packet) error {
	isKeyFrameStart := pkt.MediaKind == av.Video && pkt.IsKey

	switch {
	case !s.open:
		if err := s.startSegment(pkt.PTS); err != nil {
			return err
		}
	case isKeyFrameStart:
		elapsed := float64(pkt.PTS-s.segStartPTS) / s.clockRate()
		if elapsed >= s.cfg.TargetDuration.Seconds() {
			if err := s.closeSegment(pkt.PTS); err != nil {
				return err
			}
			if err := s.startSegment(pkt.PTS); err != nil {
				return err
			}
		}
	}

	s.lastPTS = pkt.PTS
	return s.mux.WriteAccessUnit(pkt)
}

// MarkDiscontinuity flags the segment currently being written (or the
// next one, if none is open) as following a source discontinuity, so
// the playlist carries #EXT-X-DISCONTINUITY before it.
func (s *Segmenter) MarkDiscontinuity() {
	s.pendingDisc = true
}

func (s *Segmenter) startSegment(pts int64) error {
	s.buf = &bytes.Buffer{}
	s.mux = mpegts.NewMuxer(s.buf, s.cfg.MuxerConfig)
	s.segStartPTS = pts
	s.open = true
	return s.mux.WritePATPMT()
}

func (s *Segmenter) closeSegment(nextPTS int64) error {
	duration := float64(nextPTS-s.segStartPTS) / s.clockRate()
	return s.finalize(duration)
}

func (s *Segmenter) finalize(duration float64) error {
	name := fmt.Sprintf("seg_%d.ts", s.nextSeq)
	if err := atomicWriteFile(filepath.Join(s.dir, name), s.buf.Bytes()); err != nil {
		return err
	}

	s.segments = append(s.segments, Segment{
		Sequence:      s.nextSeq,
		Duration:      duration,
		Name:          name,
		Discontinuity: s.pendingDisc,
	})
	s.pendingDisc = false
	s.nextSeq++
	s.open = false

	s.trimWindow()
	return s.writePlaylist(false)
}

// trimWindow deletes segment files that have fallen out of the
// sliding window and drops them from the in-memory list.
func (s *Segmenter) trimWindow() {
	if len(s.segments) <= s.cfg.Window {
		return
	}
	drop := len(s.segments) - s.cfg.Window
	for _, seg := range s.segments[:drop] {
		os.Remove(filepath.Join(s.dir, seg.Name))
	}
	s.segments = s.segments[drop:]
}

func (s *Segmenter) writePlaylist(endlist bool) error {
	content := BuildMediaPlaylist(s.cfg.TargetDuration, s.segments, endlist)
	return atomicWriteFile(filepath.Join(s.dir, "index.m3u8"), []byte(content))
}

// Segments returns the sliding window currently referenced by the
// playlist.
func (s *Segmenter) Segments() []Segment {
	return s.segments
}

// Close finalizes any in-progress segment that has accumulated at
// least one second of media (per spec.md §5's cancellation posture;
// a shorter tail is dropped rather than written as a near-empty
// file), then, in VOD mode, rewrites the playlist with
// #EXT-X-ENDLIST.
func (s *Segmenter) Close() error {
	if s.open {
		duration := float64(s.lastPTS-s.segStartPTS) / s.clockRate()
		if duration >= 1.0 {
			if err := s.finalize(duration); err != nil {
				return err
			}
		} else {
			s.open = false
		}
	}
	if s.cfg.VOD {
		return s.writePlaylist(true)
	}
	return nil
}
