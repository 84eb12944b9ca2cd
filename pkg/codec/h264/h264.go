// Package h264 parses H.264 (ISO/IEC 14496-10) Annex B bitstreams far
// enough to support RTP depacketization and MPEG-TS repackaging:
// NALU splitting/joining, NALU typing, keyframe detection, and
// SPS-derived picture dimensions. Grounded on the teacher's
// pkg/h264 (annexb.go, idrpresent.go, sps.go, h264.go).
package h264

// MaxAccessUnitSize bounds the total size of NALUs making up a single
// access unit, matching the teacher's pkg/h264.MaxAccessUnitSize.
const MaxAccessUnitSize = 3 * 1024 * 1024

// MaxNALUsPerAccessUnit bounds the NALU count of a single access
// unit, matching the teacher's pkg/h264.MaxNALUsPerAccessUnit.
const MaxNALUsPerAccessUnit = 20

// Type returns the NALU type carried in a NALU's header byte.
func Type(nalu []byte) NALUType {
	return NALUType(nalu[0] & 0x1F)
}

// ContainsIDR reports whether any of the given NALUs is a coded
// slice of an IDR picture (spec.md §4.D's keyframe predicate).
func ContainsIDR(nalus [][]byte) bool {
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		if Type(nalu) == NALUTypeIDR {
			return true
		}
	}
	return false
}

// IsParameterSet reports whether typ is a SPS or PPS, the NALUs that
// must be cached and prepended to the stream whenever they change.
func IsParameterSet(typ NALUType) bool {
	return typ == NALUTypeSPS || typ == NALUTypePPS
}
