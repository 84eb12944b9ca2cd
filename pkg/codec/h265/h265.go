// Package h265 parses H.265/HEVC (ITU-T H.265) bitstreams far enough
// to support RTP depacketization and MPEG-TS repackaging: NALU
// typing, keyframe detection, and SPS-derived picture dimensions.
// Grounded on the teacher's pkg/h265 (sps.go), with the profile/level
// parsing it skips over adapted to read through pkg/bitreader instead
// of the teacher's pkg/bits (buf, *pos) pair.
package h265

// MaxAccessUnitSize bounds the total size of NALUs making up a single
// access unit, matching the teacher's pkg/h265.MaxAccessUnitSize.
const MaxAccessUnitSize = 3 * 1024 * 1024

// MaxNALUsPerAccessUnit bounds the NALU count of a single access
// unit, matching the teacher's pkg/h265.MaxNALUsPerAccessUnit.
const MaxNALUsPerAccessUnit = 20

// Type returns the NALU type carried in a two-byte H.265 NALU header.
func Type(nalu []byte) NALUType {
	return NALUType((nalu[0] >> 1) & 0x3F)
}

// ContainsIRAP reports whether any of the given NALUs starts an
// Intra Random Access Point picture (spec.md §4.D's keyframe
// predicate for H.265).
func ContainsIRAP(nalus [][]byte) bool {
	for _, nalu := range nalus {
		if len(nalu) < 2 {
			continue
		}
		if Type(nalu).IsIRAP() {
			return true
		}
	}
	return false
}

// IsParameterSet reports whether typ is a VPS, SPS or PPS.
func IsParameterSet(typ NALUType) bool {
	return typ == NALUTypeVPS || typ == NALUTypeSPS || typ == NALUTypePPS
}
