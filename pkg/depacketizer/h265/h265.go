// Package h265 depacketizes RTP/H.265 (RFC 7798) into access units:
// runs of NALUs delimited by the RTP marker bit. Grounded on the
// teacher's pkg/format/rtph265.Decoder, rewritten against
// github.com/pion/rtp directly and errs instead of bare fmt.Errorf.
package h265

import (
	"github.com/pion/rtp"

	"github.com/bkataru-workshop/vdkio/errs"
	"github.com/bkataru-workshop/vdkio/pkg/codec/h265"
)

// ErrMorePacketsNeeded is returned when an access unit is still being
// assembled and more RTP packets are required before Decode can
// return anything.
var ErrMorePacketsNeeded = errs.New(errs.ProtocolError, "depacketizer/h265", "need more packets", nil)

func joinFragments(fragments [][]byte, size int) []byte {
	ret := make([]byte, size)
	n := 0
	for _, p := range fragments {
		n += copy(ret[n:], p)
	}
	return ret
}

func auSize(au [][]byte) int {
	s := 0
	for _, nalu := range au {
		s += len(nalu)
	}
	return s
}

// Decoder reassembles a H.265 bitstream's NALUs out of a RTP/H.265
// payload stream: single-NALU, aggregation units, and fragmentation
// units, per RFC 7798 §4.4.
//
// Decoding-order numbers are not handled: DONL/DOND fields are neither
// parsed nor detected, and every payload is read as if it carried none.
type Decoder struct {
	firstPacketReceived bool
	fragments           [][]byte
	fragmentsSize       int
	fragmentNextSeqNum  uint16

	frameBuffer     [][]byte
	frameBufferLen  int
	frameBufferSize int
}

func (d *Decoder) resetFragments() {
	d.fragments = d.fragments[:0]
	d.fragmentsSize = 0
}

func (d *Decoder) decodeNALUs(pkt *rtp.Packet) ([][]byte, error) {
	if len(pkt.Payload) < 2 {
		d.resetFragments()
		return nil, errs.New(errs.InvalidBitstream, "depacketizer/h265.Decode", "payload too short", nil)
	}

	typ := h265.NALUType((pkt.Payload[0] >> 1) & 0x3F)
	var nalus [][]byte

	switch typ {
	case h265.NALUTypeAggregationUnit:
		d.resetFragments()

		payload := pkt.Payload[2:]

		for {
			if len(payload) < 2 {
				return nil, errs.New(errs.InvalidBitstream, "depacketizer/h265.Decode", "invalid aggregation unit size", nil)
			}

			size := uint16(payload[0])<<8 | uint16(payload[1])
			payload = payload[2:]

			if size == 0 || int(size) > len(payload) {
				return nil, errs.New(errs.InvalidBitstream, "depacketizer/h265.Decode", "invalid aggregation unit size", nil)
			}

			nalus = append(nalus, payload[:size])
			payload = payload[size:]

			if len(payload) == 0 {
				break
			}
		}

		d.firstPacketReceived = true

	case h265.NALUTypeFragmentationUnit:
		if len(pkt.Payload) < 3 {
			d.resetFragments()
			return nil, errs.New(errs.InvalidBitstream, "depacketizer/h265.Decode", "payload too short", nil)
		}

		start := pkt.Payload[2] >> 7
		end := (pkt.Payload[2] >> 6) & 0x01

		if start == 1 {
			d.resetFragments()

			if end != 0 {
				return nil, errs.New(errs.InvalidBitstream, "depacketizer/h265.Decode",
					"fragmentation unit cannot carry both start and end", nil)
			}

			innerTyp := pkt.Payload[2] & 0x3F
			head := uint16(pkt.Payload[0]&0x81)<<8 | uint16(innerTyp)<<9 | uint16(pkt.Payload[1])
			d.fragmentsSize = len(pkt.Payload[1:])
			d.fragments = append(d.fragments, []byte{byte(head >> 8), byte(head)}, pkt.Payload[3:])
			d.fragmentNextSeqNum = pkt.SequenceNumber + 1
			d.firstPacketReceived = true

			return nil, ErrMorePacketsNeeded
		}

		if d.fragmentsSize == 0 {
			if !d.firstPacketReceived {
				return nil, errs.New(errs.ProtocolError, "depacketizer/h265.Decode",
					"non-starting fragment without previous starting fragment", nil)
			}
			return nil, errs.New(errs.InvalidBitstream, "depacketizer/h265.Decode", "non-starting fragmentation unit", nil)
		}

		if pkt.SequenceNumber != d.fragmentNextSeqNum {
			d.resetFragments()
			return nil, errs.New(errs.ProtocolError, "depacketizer/h265.Decode", "missing RTP packet", nil)
		}

		d.fragmentsSize += len(pkt.Payload[3:])
		if d.fragmentsSize > h265.MaxAccessUnitSize {
			d.resetFragments()
			return nil, errs.New(errs.InvalidBitstream, "depacketizer/h265.Decode", d.fragmentsSize, nil)
		}

		d.fragments = append(d.fragments, pkt.Payload[3:])
		d.fragmentNextSeqNum++

		if end != 1 {
			return nil, ErrMorePacketsNeeded
		}

		nalus = [][]byte{joinFragments(d.fragments, d.fragmentsSize)}
		d.resetFragments()

	case h265.NALUTypePACI:
		d.resetFragments()
		return nil, errs.New(errs.Unsupported, "depacketizer/h265.Decode", "PACI", nil)

	default:
		d.resetFragments()
		nalus = [][]byte{pkt.Payload}
	}

	return nalus, nil
}

// Decode accumulates NALUs from pkt into the in-progress access unit,
// returning it once pkt carries the RTP marker bit.
func (d *Decoder) Decode(pkt *rtp.Packet) ([][]byte, error) {
	nalus, err := d.decodeNALUs(pkt)
	if err != nil {
		return nil, err
	}
	l := len(nalus)

	if (d.frameBufferLen + l) > h265.MaxNALUsPerAccessUnit {
		d.frameBuffer, d.frameBufferLen, d.frameBufferSize = nil, 0, 0
		return nil, errs.New(errs.InvalidBitstream, "depacketizer/h265.Decode", d.frameBufferLen+l, nil)
	}

	addSize := auSize(nalus)

	if (d.frameBufferSize + addSize) > h265.MaxAccessUnitSize {
		d.frameBuffer, d.frameBufferLen, d.frameBufferSize = nil, 0, 0
		return nil, errs.New(errs.InvalidBitstream, "depacketizer/h265.Decode", d.frameBufferSize+addSize, nil)
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
