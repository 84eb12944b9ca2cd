// Package mpegts muxes av.Packets into an endless MPEG-2 Transport
// Stream: 188-byte packets carrying a PAT/PMT pair plus one PES per
// access unit, per spec.md §4.G. Hand-built rather than delegated to
// a third-party TS library — see DESIGN.md's DOMAIN STACK notes on why
// mediacommon/astits were dropped for this package: the wire-level
// framing this spec asks for (PCR cadence, discontinuity handling,
// per-PID continuity counters) is exactly the engineering in scope.
package mpegts

import (
	"io"

	"github.com/bkataru-workshop/vdkio/errs"
	"github.com/bkataru-workshop/vdkio/pkg/av"
)

const (
	// PacketSize is the fixed MPEG-TS packet length.
	PacketSize = 188
	// SyncByte starts every TS packet.
	SyncByte = 0x47

	PIDPAT          uint16 = 0x0000
	DefaultPMTPID   uint16 = 4096
	DefaultVideoPID uint16 = 256
	DefaultAudioPID uint16 = 257
)

// StreamType is the PMT stream_type byte identifying an elementary
// stream's codec.
type StreamType byte

const (
	StreamTypeH264 StreamType = 0x1B
	StreamTypeH265 StreamType = 0x24
	StreamTypeAAC  StreamType = 0x0F
)

// StreamTypeFor maps an av.CodecType to its PMT stream_type.
func StreamTypeFor(c av.CodecType) (StreamType, error) {
	switch c {
	case av.H264:
		return StreamTypeH264, nil
	case av.H265:
		return StreamTypeH265, nil
	case av.AAC:
		return StreamTypeAAC, nil
	default:
		return 0, errs.New(errs.Unsupported, "mpegts.StreamTypeFor", c, nil)
	}
}

const (
	streamIDVideo = 0xE0
	streamIDAudio = 0xC0

	// pcrIntervalTicks is 40ms in the 90kHz PTS timebase spec.md §4.G
	// uses for PCR cadence.
	pcrIntervalTicks = 3600
	// maxPCRGapTicks is 0.7s in the same timebase; exceeding it (or a
	// regression) forces a discontinuity.
	maxPCRGapTicks = 63000
)

// Config configures one Muxer's PID assignment and program layout.
type Config struct {
	ProgramNumber uint16
	PMTPID        uint16

	VideoPID        uint16
	VideoStreamType StreamType

	HasAudio        bool
	AudioPID        uint16
	AudioStreamType StreamType
}

func (c *Config) setDefaults() {
	if c.ProgramNumber == 0 {
		c.ProgramNumber = 1
	}
	if c.PMTPID == 0 {
		c.PMTPID = DefaultPMTPID
	}
	if c.VideoPID == 0 {
		c.VideoPID = DefaultVideoPID
	}
	if c.AudioPID == 0 {
		c.AudioPID = DefaultAudioPID
	}
}

// Muxer writes a single program's PAT/PMT/PES/PCR stream of TS
// packets to an io.Writer, one Muxer per HLS variant (§4.I feeds N of
// these from one mediasession.Session).
type Muxer struct {
	cfg Config
	w   io.Writer

	cc map[uint16]byte

	havePCR    bool
	lastPCRPTS int64

	totalBytes int
}

// NewMuxer allocates a Muxer writing to w.
func NewMuxer(w io.Writer, cfg Config) *Muxer {
	cfg.setDefaults()
	return &Muxer{
		cfg: cfg,
		w:   w,
		cc:  make(map[uint16]byte),
	}
}

// TotalBytes returns the number of TS-packet bytes written so far.
func (m *Muxer) TotalBytes() int {
	return m.totalBytes
}

// WritePAT writes one Program Association Table TS packet.
func (m *Muxer) WritePAT() error {
	return m.writeSection(PIDPAT, BuildPAT(m.cfg.ProgramNumber, m.cfg.PMTPID))
}

// WritePMT writes one Program Map Table TS packet naming the video
// stream and, if configured, the audio stream.
func (m *Muxer) WritePMT() error {
	streams := []PMTStream{{PID: m.cfg.VideoPID, Type: m.cfg.VideoStreamType}}
	if m.cfg.HasAudio {
		streams = append(streams, PMTStream{PID: m.cfg.AudioPID, Type: m.cfg.AudioStreamType})
	}
	return m.writeSection(m.cfg.PMTPID, BuildPMT(m.cfg.ProgramNumber, m.cfg.VideoPID, streams))
}

// WritePATPMT writes PAT then PMT. Per spec.md §4.G this is called at
// session start and again before every IDR that opens a new HLS
// segment, so late joiners and segment boundaries both see a fresh
// program definition.
func (m *Muxer) WritePATPMT() error {
	if err := m.WritePAT(); err != nil {
		return err
	}
	return m.WritePMT()
}

// WriteAccessUnit muxes one av.Packet into a PES packet on its
// stream's PID, inserting a PCR on the video PID per the cadence and
// discontinuity rules spec.md §4.G defines.
func (m *Muxer) WriteAccessUnit(p *av.Packet) error {
	isVideo := p.MediaKind == av.Video

	var pid uint16
	var streamID byte
	if isVideo {
		pid, streamID = m.cfg.VideoPID, streamIDVideo
	} else {
		pid, streamID = m.cfg.AudioPID, streamIDAudio
	}

	withPCR, discontinuity := false, false
	var pcrValue int64
	if isVideo {
		withPCR, discontinuity = m.shouldInsertPCR(p.PTS)
		if withPCR {
			pcrValue = p.PTS * 300
		}
	}

	pes := BuildPES(streamID, p.PTS, p.DTS, p.DTS != p.PTS, p.Payload)
	return m.packetizePID(pid, pes, true, pcrValue, withPCR, discontinuity, isVideo && p.IsKey)
}

// shouldInsertPCR decides, for a video access unit's PTS, whether this
// access unit's first TS packet should carry a PCR and whether a
// source-timebase discontinuity was detected.
func (m *Muxer) shouldInsertPCR(pts int64) (withPCR, discontinuity bool) {
	if !m.havePCR {
		m.havePCR = true
		m.lastPCRPTS = pts
		return true, false
	}

	delta := pts - m.lastPCRPTS
	if delta < 0 || delta > maxPCRGapTicks {
		discontinuity = true
	}
	if discontinuity || delta >= pcrIntervalTicks {
		withPCR = true
		m.lastPCRPTS = pts
	}
	if discontinuity {
		for pid := range m.cc {
			m.cc[pid] = 0
		}
	}
	return
}

// writeSection packs a PSI section (PAT or PMT body, CRC already
// appended) into a single TS packet: pointer_field 0x00, the section
// bytes, then 0xFF stuffing out to 184 payload bytes — the standard
// PSI padding convention (table_id 0xFF is reserved for stuffing), not
// an adaptation field.
func (m *Muxer) writeSection(pid uint16, section []byte) error {
	payload := make([]byte, 0, 184)
	payload = append(payload, 0x00)
	payload = append(payload, section...)

	if len(payload) > 184 {
		return errs.New(errs.InvalidInput, "mpegts.writeSection", len(payload), nil)
	}
	for len(payload) < 184 {
		payload = append(payload, 0xFF)
	}

	pkt := make([]byte, PacketSize)
	pkt[0] = SyncByte
	pkt[1] = 0x40 | byte((pid>>8)&0x1F) // payload_unit_start_indicator=1
	pkt[2] = byte(pid)

	cc := m.cc[pid]
	pkt[3] = 0x10 | (cc & 0x0F) // adaptation_field_control='01' (payload only)
	m.cc[pid] = (cc + 1) & 0x0F

	copy(pkt[4:], payload)

	if _, err := m.w.Write(pkt); err != nil {
		return err
	}
	m.totalBytes += PacketSize
	return nil
}

// packetizePID splits payload (a full PES packet) into consecutive
// 188-byte TS packets on pid. pusi marks the first packet's
// payload_unit_start_indicator. withPCR/discontinuity/randomAccess
// apply only to the first packet, via an adaptation field; a packet
// whose payload chunk would otherwise be short is padded with
// adaptation-field stuffing bytes (0xFF) instead, per spec.md §4.G's
// byte-exact framing.
func (m *Muxer) packetizePID(pid uint16, payload []byte, pusi bool, pcr int64, withPCR, discontinuity, randomAccess bool) error {
	cc := m.cc[pid]
	first := true

	for first || len(payload) > 0 {
		wantPCR := withPCR && first
		wantDisc := discontinuity && first
		wantRA := randomAccess && first

		pcrBytes := 0
		if wantPCR {
			pcrBytes = 6
		}

		withAF := wantPCR || wantDisc || wantRA
		var n, stuffing, afLen int

		if !withAF && len(payload) >= 184 {
			n = 184
		} else {
			withAF = true
			overhead := 2 + pcrBytes // adaptation_field_length byte + flags byte + optional PCR
			max := 184 - overhead
			n = len(payload)
			if n > max {
				n = max
			}
			stuffing = max - n
			afLen = 1 + pcrBytes + stuffing
		}

		pkt := make([]byte, PacketSize)
		pkt[0] = SyncByte

		pusiBit := byte(0)
		if pusi && first {
			pusiBit = 0x40
		}
		pkt[1] = pusiBit | byte((pid>>8)&0x1F)
		pkt[2] = byte(pid)

		hasPayload := n > 0
		afc := byte(0x01)
		switch {
		case withAF && hasPayload:
			afc = 0x03
		case withAF && !hasPayload:
			afc = 0x02
		}
		pkt[3] = afc<<4 | (cc & 0x0F)
		if hasPayload {
			cc = (cc + 1) & 0x0F
		}

		pos := 4
		if withAF {
			pkt[pos] = byte(afLen)
			pos++
			flags := byte(0)
			if wantDisc {
				flags |= 0x80
			}
			if wantRA {
				flags |= 0x40
			}
			if wantPCR {
				flags |= 0x10
			}
			pkt[pos] = flags
			pos++
			if wantPCR {
				writePCR(pkt[pos:pos+6], pcr)
				pos += 6
			}
			for i := 0; i < stuffing; i++ {
				pkt[pos+i] = 0xFF
			}
			pos += stuffing
		}

		copy(pkt[pos:], payload[:n])
		payload = payload[n:]

		if _, err := m.w.Write(pkt); err != nil {
			return err
		}
		m.totalBytes += PacketSize
		first = false
	}

	m.cc[pid] = cc
	return nil
}
