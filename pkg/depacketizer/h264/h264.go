// Package h264 depacketizes RTP/H.264 (RFC 6184) into access units:
// runs of NALUs delimited by the RTP marker bit. Grounded on the
// teacher's pkg/format/rtph264.Decoder, rewritten against
// github.com/pion/rtp directly and errs instead of bare fmt.Errorf.
package h264

import (
	"bytes"

	"github.com/pion/rtp"

	"github.com/bkataru-workshop/vdkio/errs"
	"github.com/bkataru-workshop/vdkio/pkg/codec/h264"
)

// ErrMorePacketsNeeded is returned when an access unit is still being
// assembled and more RTP packets are required before Decode can
// return anything.
var ErrMorePacketsNeeded = errs.New(errs.ProtocolError, "depacketizer/h264", "need more packets", nil)

func joinFragments(fragments [][]byte, size int) []byte {
	ret := make([]byte, size)
	n := 0
	for _, p := range fragments {
		n += copy(ret[n:], p)
	}
	return ret
}

func isAllZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// Decoder reassembles an AVC bitstream's NALUs out of a RTP/H.264
// payload stream: single-NALU, STAP-A aggregation, and FU-A
// fragmentation, per RFC 6184 §5.
type Decoder struct {
	firstPacketReceived bool
	fragments           [][]byte
	fragmentsSize       int
	fragmentNextSeqNum  uint16
	annexBMode          bool

	frameBuffer     [][]byte
	frameBufferLen  int
	frameBufferSize int
}

func (d *Decoder) resetFragments() {
	d.fragments = d.fragments[:0]
	d.fragmentsSize = 0
}

func (d *Decoder) decodeNALUs(pkt *rtp.Packet) ([][]byte, error) {
	if len(pkt.Payload) < 1 {
		d.resetFragments()
		return nil, errs.New(errs.InvalidBitstream, "depacketizer/h264.Decode", "payload too short", nil)
	}

	typ := h264.NALUType(pkt.Payload[0] & 0x1F)
	var nalus [][]byte

	switch typ {
	case h264.NALUTypeFUA:
		if len(pkt.Payload) < 2 {
			return nil, errs.New(errs.InvalidBitstream, "depacketizer/h264.Decode", "invalid FU-A size", nil)
		}

		start := pkt.Payload[1] >> 7
		end := (pkt.Payload[1] >> 6) & 0x01

		if start == 1 {
			d.resetFragments()

			nri := (pkt.Payload[0] >> 5) & 0x03
			innerTyp := pkt.Payload[1] & 0x1F
			d.fragmentsSize = len(pkt.Payload[1:])
			d.fragments = append(d.fragments, []byte{(nri << 5) | innerTyp}, pkt.Payload[2:])
			d.fragmentNextSeqNum = pkt.SequenceNumber + 1
			d.firstPacketReceived = true

			// RFC 6184 forbids a FU from carrying both Start and End,
			// but some cameras emit exactly that for small P-frames.
			if end != 0 {
				nalus = [][]byte{joinFragments(d.fragments, d.fragmentsSize)}
				d.resetFragments()
				break
			}

			return nil, ErrMorePacketsNeeded
		}

		if d.fragmentsSize == 0 {
			if !d.firstPacketReceived {
				return nil, errs.New(errs.ProtocolError, "depacketizer/h264.Decode",
					"non-starting fragment without previous starting fragment", nil)
			}
			return nil, errs.New(errs.InvalidBitstream, "depacketizer/h264.Decode", "non-starting FU-A", nil)
		}

		if pkt.SequenceNumber != d.fragmentNextSeqNum {
			d.resetFragments()
			return nil, errs.New(errs.ProtocolError, "depacketizer/h264.Decode", "missing RTP packet", nil)
		}

		d.fragmentsSize += len(pkt.Payload[2:])
		if d.fragmentsSize > h264.MaxAccessUnitSize {
			d.resetFragments()
			return nil, errs.New(errs.InvalidBitstream, "depacketizer/h264.Decode", d.fragmentsSize, nil)
		}

		d.fragments = append(d.fragments, pkt.Payload[2:])
		d.fragmentNextSeqNum++

		if end != 1 {
			return nil, ErrMorePacketsNeeded
		}

		nalus = [][]byte{joinFragments(d.fragments, d.fragmentsSize)}
		d.resetFragments()

	case h264.NALUTypeSTAPA:
		d.resetFragments()

		payload := pkt.Payload[1:]

		for {
			if len(payload) < 2 {
				return nil, errs.New(errs.InvalidBitstream, "depacketizer/h264.Decode", "invalid STAP-A size", nil)
			}

			size := uint16(payload[0])<<8 | uint16(payload[1])
			payload = payload[2:]

			if size == 0 && isAllZero(payload) {
				break
			}
			if int(size) > len(payload) {
				return nil, errs.New(errs.InvalidBitstream, "depacketizer/h264.Decode", "invalid STAP-A size", nil)
			}

			nalus = append(nalus, payload[:size])
			payload = payload[size:]

			if len(payload) == 0 {
				break
			}
		}

		if nalus == nil {
			return nil, errs.New(errs.InvalidBitstream, "depacketizer/h264.Decode", "empty STAP-A", nil)
		}

		d.firstPacketReceived = true

	case h264.NALUTypeSTAPB, h264.NALUTypeMTAP16, h264.NALUTypeMTAP24, h264.NALUTypeFUB:
		d.resetFragments()
		d.firstPacketReceived = true
		return nil, errs.New(errs.Unsupported, "depacketizer/h264.Decode", typ, nil)

	default:
		d.resetFragments()
		d.firstPacketReceived = true
		nalus = [][]byte{pkt.Payload}
	}

	return d.removeAnnexB(nalus)
}

// Decode accumulates NALUs from pkt into the in-progress access unit,
// returning it once pkt carries the RTP marker bit.
func (d *Decoder) Decode(pkt *rtp.Packet) ([][]byte, error) {
	nalus, err := d.decodeNALUs(pkt)
	if err != nil {
		return nil, err
	}
	l := len(nalus)

	if (d.frameBufferLen + l) > h264.MaxNALUsPerAccessUnit {
		d.frameBuffer, d.frameBufferLen, d.frameBufferSize = nil, 0, 0
		return nil, errs.New(errs.InvalidBitstream, "depacketizer/h264.Decode", d.frameBufferLen+l, nil)
	}

	addSize := 0
	for _, nalu := range nalus {
		addSize += len(nalu)
	}

	if (d.frameBufferSize + addSize) > h264.MaxAccessUnitSize {
		d.frameBuffer, d.frameBufferLen, d.frameBufferSize = nil, 0, 0
		return nil, errs.New(errs.InvalidBitstream, "depacketizer/h264.Decode", d.frameBufferSize+addSize, nil)
	}

	d.frameBuffer = append(d.frameBuffer, nalus...)
	d.frameBufferLen += l
	d.frameBufferSize += addSize

	if !pkt.Marker {
		return nil, ErrMorePacketsNeeded
	}

	ret := d.frameBuffer
	d.frameBuffer, d.frameBufferLen, d.frameBufferSize = nil, 0, 0
	return ret, nil
}

// removeAnnexB re-splits a single NALU that some cameras wrap in
// Annex B start codes instead of sending as a bare RTP payload.
func (d *Decoder) removeAnnexB(nalus [][]byte) ([][]byte, error) {
	if len(nalus) == 1 {
		nalu := nalus[0]

		if !d.annexBMode && bytes.Contains(nalu, []byte{0x00, 0x00, 0x00, 0x01}) {
			d.annexBMode = true
		}

		if d.annexBMode {
			if !bytes.HasPrefix(nalu, []byte{0x00, 0x00, 0x00, 0x01}) {
				nalu = append([]byte{0x00, 0x00, 0x00, 0x01}, nalu...)
			}
			return h264.SplitAnnexB(nalu)
		}
	}

	return nalus, nil
}
