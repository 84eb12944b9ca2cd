// Package mediasession owns, per SDP media track, the pipeline spec.md
// §4.F describes: jitter buffer in, depacketizer in the middle,
// av.Packet stream out. New package — the teacher exposes the
// depacketizer stage on its own (pkg/rtph264, pkg/format/rtph265,
// pkg/rtpaac) but nowhere assembles it with a jitter buffer into one
// owned session the way a server-side ingest pipeline needs; this
// package is that assembly, built from the teacher's per-decoder idiom.
package mediasession

import (
	"context"
	"time"

	"github.com/pion/rtp"

	"github.com/bkataru-workshop/vdkio/pkg/av"
	"github.com/bkataru-workshop/vdkio/pkg/codec/h264"
	"github.com/bkataru-workshop/vdkio/pkg/codec/h265"
	depackaac "github.com/bkataru-workshop/vdkio/pkg/depacketizer/aac"
	depackh264 "github.com/bkataru-workshop/vdkio/pkg/depacketizer/h264"
	depackh265 "github.com/bkataru-workshop/vdkio/pkg/depacketizer/h265"
	"github.com/bkataru-workshop/vdkio/pkg/jitterbuffer"
)

// Depacketizer is satisfied by pkg/depacketizer/{h264,h265,aac}.Decoder.
type Depacketizer interface {
	Decode(pkt *rtp.Packet) ([][]byte, error)
}

// Config configures one Session. Fields mirror the teacher's
// ClientConf-style config-struct idiom (SPEC_FULL.md AMBIENT STACK).
type Config struct {
	StreamID  uint8
	ClockRate int
	MediaKind av.MediaKind
	Codec     av.CodecType

	Depacketizer   Depacketizer
	BufferCapacity int
	MaxDelay       time.Duration
	ReorderWindow  int

	// Now defaults to time.Now; tests inject a fake clock.
	Now func() time.Time
	// Logf defaults to a no-op sink, matching the teacher's
	// injectable-logger idiom rather than a global logger.
	Logf func(format string, args ...any)
}

func (c *Config) setDefaults() {
	if c.BufferCapacity == 0 {
		c.BufferCapacity = 128
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 200 * time.Millisecond
	}
	if c.ReorderWindow == 0 {
		c.ReorderWindow = 10
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logf == nil {
		c.Logf = func(string, ...any) {}
	}
}

// Session is a single media track's RTP-in / access-unit-out
// pipeline: jitterbuffer.Buffer -> Depacketizer -> av.Packet.
type Session struct {
	cfg Config
	buf *jitterbuffer.Buffer
	ts  tsUnwrapper

	h264Params h264.Params
	h265Params h265.Params

	droppedBitstream uint64

	out chan *av.Packet
}

// New allocates a Session and its jitter buffer per cfg.
func New(cfg Config) *Session {
	cfg.setDefaults()
	return &Session{
		cfg: cfg,
		buf: jitterbuffer.New(cfg.BufferCapacity, cfg.MaxDelay, cfg.ReorderWindow),
		out: make(chan *av.Packet, 256), // spec.md §5: bounded channel, capacity 256
	}
}

// Packets returns the channel av.Packets are emitted on. Closed once
// Run returns.
func (s *Session) Packets() <-chan *av.Packet {
	return s.out
}

// HandleRTP admits an incoming RTP packet into the jitter buffer.
// Safe to call concurrently with Run, matching spec.md §4.C's
// single-producer/single-consumer model (HandleRTP is the producer).
func (s *Session) HandleRTP(pkt *rtp.Packet, arrival time.Time) {
	s.buf.Insert(pkt, arrival)
}

// Stats returns the underlying jitter buffer's reception statistics.
func (s *Session) Stats() jitterbuffer.Stats {
	return s.buf.Stats()
}

// DroppedBitstream counts InvalidBitstream errors absorbed from the
// depacketizer: per spec.md §7, these are logged and counted, never
// propagated to the session owner.
func (s *Session) DroppedBitstream() uint64 {
	return s.droppedBitstream
}

// Run drains the jitter buffer until ctx is cancelled, polling at a
// quarter of MaxDelay so a gap flush is never observed more than
// MaxDelay/4 late. Closes the Packets channel on return.
func (s *Session) Run(ctx context.Context) {
	defer close(s.out)

	interval := s.cfg.MaxDelay / 4
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drain(ctx)
		}
	}
}

func (s *Session) drain(ctx context.Context) {
	for {
		pkt, ok := s.buf.Pop(s.cfg.Now())
		if !ok {
			return
		}
		for _, pktOut := range s.handleRTPPacket(pkt) {
			select {
			case s.out <- pktOut:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleRTPPacket feeds pkt through the depacketizer and, once one
// or more access units are complete, builds their av.Packets.
// Bitstream errors are absorbed per spec.md §7. AAC access units are
// emitted one av.Packet per AU (an AAC RTP packet may aggregate
// several); H.264/H.265 access units are always a single Packet
// carrying every NALU joined Annex-B style.
func (s *Session) handleRTPPacket(pkt *rtp.Packet) []*av.Packet {
	ts := s.ts.Unwrap(pkt.Timestamp)

	nalus, err := s.cfg.Depacketizer.Decode(pkt)
	if err != nil {
		if isMorePacketsNeeded(err) {
			return nil
		}
		s.droppedBitstream++
		s.cfg.Logf("mediasession: dropping access unit: %v", err)
		return nil
	}

	switch s.cfg.Codec {
	case av.H264:
		for _, n := range nalus {
			s.h264Params.Observe(n)
		}
		return []*av.Packet{{
			StreamID:  s.cfg.StreamID,
			PTS:       ts,
			DTS:       ts, // POC-based DTS reconstruction not implemented; see DESIGN.md
			IsKey:     h264.ContainsIDR(nalus),
			Payload:   h264.JoinAnnexB(nalus),
			MediaKind: av.Video,
		}}
	case av.H265:
		for _, n := range nalus {
			s.h265Params.Observe(n)
		}
		return []*av.Packet{{
			StreamID:  s.cfg.StreamID,
			PTS:       ts,
			DTS:       ts,
			IsKey:     h265.ContainsIRAP(nalus),
			Payload:   h264.JoinAnnexB(nalus),
			MediaKind: av.Video,
		}}
	case av.AAC:
		pkts := make([]*av.Packet, len(nalus))
		for i, au := range nalus {
			pkts[i] = &av.Packet{
				StreamID:  s.cfg.StreamID,
				PTS:       ts,
				DTS:       ts,
				Payload:   au,
				MediaKind: av.Audio,
			}
		}
		return pkts
	default:
		return nil
	}
}

// isMorePacketsNeeded reports whether err is one of the depacketizer
// packages' ErrMorePacketsNeeded sentinels: not an error at all from
// a session's point of view, just an in-progress access unit.
func isMorePacketsNeeded(err error) bool {
	return err == depackh264.ErrMorePacketsNeeded ||
		err == depackh265.ErrMorePacketsNeeded ||
		err == depackaac.ErrMorePacketsNeeded
}
