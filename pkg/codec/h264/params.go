package h264

import "github.com/bkataru-workshop/vdkio/errs"

// Params accumulates the out-of-band parameter sets a H.264 stream
// needs before it can be muxed: the most recently seen SPS and PPS.
// Grounded on original_source's codec::h264 `is_ready` check
// (SPEC_FULL.md §4.D supplement) — a depacketized stream can only be
// handed to the muxer once both sets have been observed at least
// once, since the TS muxer needs width/height and the extradata
// blob up front.
type Params struct {
	SPS []byte
	PPS []byte
}

// Observe updates Params from a depacketized NALU, recording it if
// it is a SPS or PPS and leaving Params unchanged otherwise.
func (p *Params) Observe(nalu []byte) {
	if len(nalu) == 0 {
		return
	}
	switch Type(nalu) {
	case NALUTypeSPS:
		p.SPS = nalu
	case NALUTypePPS:
		p.PPS = nalu
	}
}

// Ready reports whether both a SPS and a PPS have been observed.
func (p *Params) Ready() bool {
	return p.SPS != nil && p.PPS != nil
}

// Dimensions parses the current SPS and returns its picture width
// and height.
func (p *Params) Dimensions() (width, height int, err error) {
	if p.SPS == nil {
		return 0, 0, errs.New(errs.InvalidInput, "h264.Params.Dimensions", "no SPS observed", nil)
	}
	sps, err := ParseSPS(p.SPS)
	if err != nil {
		return 0, 0, err
	}
	return sps.Width(), sps.Height(), nil
}

// ExtraData returns the Annex-B-framed SPS+PPS concatenation used as
// a H.264 track's CodecData.ExtraData.
func (p *Params) ExtraData() []byte {
	if !p.Ready() {
		return nil
	}
	return JoinAnnexB([][]byte{p.SPS, p.PPS})
}
