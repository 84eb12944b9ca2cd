// Package aac parses and builds AAC bitstream framing: raw ADTS
// frames and the MPEG-4 AudioSpecificConfig carried out-of-band (in
// SDP fmtp or an MP4 esds box). RTP depacketization (RFC 3640) lives
// in pkg/depacketizer/aac; this package only knows about the AAC
// frame formats themselves. Grounded on the teacher's pkg/aac.
package aac

// MaxAccessUnitSize bounds a single AAC access unit, matching the
// teacher's pkg/aac.MaxAccessUnitSize.
const MaxAccessUnitSize = 5 * 1024

// AudioType is the MPEG-4 Audio Object Type (ISO/IEC 14496-3 Table
// 1.17). Only AAC-LC is supported, per SPEC_FULL.md's AAC Open
// Question decision (no HE-AAC/SBR, no LATM/LOAS).
type AudioType int

// AudioTypeAACLC is the Low Complexity AAC profile.
const AudioTypeAACLC AudioType = 2

// sampleRates is ISO/IEC 14496-3's sampling_frequency_index table.
var sampleRates = [13]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000,
	22050, 16000, 12000, 11025, 8000, 7350,
}

var reverseSampleRates = func() map[int]int {
	m := make(map[int]int, len(sampleRates))
	for i, r := range sampleRates {
		m[r] = i
	}
	return m
}()
