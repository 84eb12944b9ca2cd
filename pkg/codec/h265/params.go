package h265

import "github.com/bkataru-workshop/vdkio/errs"

// Params accumulates the out-of-band parameter sets a H.265 stream
// needs before it can be muxed: the most recently seen VPS, SPS and
// PPS. Grounded on original_source's codec::h265 `is_ready` check
// (SPEC_FULL.md §4.D supplement), mirroring pkg/codec/h264.Params.
type Params struct {
	VPS []byte
	SPS []byte
	PPS []byte
}

// Observe updates Params from a depacketized NALU, recording it if
// it is a VPS, SPS or PPS and leaving Params unchanged otherwise.
func (p *Params) Observe(nalu []byte) {
	if len(nalu) < 2 {
		return
	}
	switch Type(nalu) {
	case NALUTypeVPS:
		p.VPS = nalu
	case NALUTypeSPS:
		p.SPS = nalu
	case NALUTypePPS:
		p.PPS = nalu
	}
}

// Ready reports whether a VPS, SPS and PPS have all been observed.
func (p *Params) Ready() bool {
	return p.VPS != nil && p.SPS != nil && p.PPS != nil
}

// Dimensions parses the current SPS and returns its picture width
// and height.
func (p *Params) Dimensions() (width, height int, err error) {
	if p.SPS == nil {
		return 0, 0, errs.New(errs.InvalidInput, "h265.Params.Dimensions", "no SPS observed", nil)
	}
	sps, err := ParseSPS(p.SPS)
	if err != nil {
		return 0, 0, err
	}
	return sps.Width(), sps.Height(), nil
}

// ExtraData returns the VPS+SPS+PPS concatenation used as a H.265
// track's CodecData.ExtraData, each NALU prefixed with a 4-byte
// 0x00000001 Annex-B start code (the same framing h264.JoinAnnexB
// produces).
func (p *Params) ExtraData() []byte {
	if !p.Ready() {
		return nil
	}
	nalus := [][]byte{p.VPS, p.SPS, p.PPS}
	size := 0
	for _, n := range nalus {
		size += 4 + len(n)
	}
	out := make([]byte, size)
	pos := 0
	for _, n := range nalus {
		pos += copy(out[pos:], []byte{0x00, 0x00, 0x00, 0x01})
		pos += copy(out[pos:], n)
	}
	return out
}
