// Package rtp validates and unmarshals RTP/RTCP packets on top of
// github.com/pion/rtp and github.com/pion/rtcp, which the teacher
// depends on directly. pion's library implements RFC 3550 wire
// parsing but leaves several of spec.md §4.B's validation rules to the
// caller (version check, CSRC-count bound, padding-length sanity);
// this package adds exactly those.
package rtp

import (
	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/bkataru-workshop/vdkio/errs"
)

const supportedVersion = 2

// maxCSRC is RTP's 4-bit CC field ceiling (spec.md §3: "For CSRC=15...
// fails with MalformedPacket").
const maxCSRC = 15

// ParsePacket unmarshals an RTP packet and validates it per spec.md
// §4.B: version must be 2, CSRC count must not hit the reserved
// maximum, and padding length must not exceed the payload.
func ParsePacket(buf []byte) (*rtp.Packet, error) {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(buf); err != nil {
		return nil, errs.New(errs.ProtocolError, "rtp.ParsePacket", nil, err)
	}

	if pkt.Version != supportedVersion {
		return nil, errs.New(errs.ProtocolError, "rtp.ParsePacket", pkt.Version, nil)
	}

	if len(pkt.CSRC) >= maxCSRC {
		return nil, errs.New(errs.ProtocolError, "rtp.ParsePacket", len(pkt.CSRC), nil)
	}

	// pion's Unmarshal already rejects a padding length that exceeds
	// the payload (spec.md §4.B's "padding_length <= payload_length"),
	// erroring out before returning here.

	return pkt, nil
}

// ParseRTCP demultiplexes a RTCP compound packet by type byte
// (SR=200, RR=201, SDES=202, BYE=203, APP=204 per spec.md §4.B) and
// fully parses each sub-report.
func ParseRTCP(buf []byte) ([]rtcp.Packet, error) {
	pkts, err := rtcp.Unmarshal(buf)
	if err != nil {
		return nil, errs.New(errs.ProtocolError, "rtp.ParseRTCP", nil, err)
	}
	return pkts, nil
}
