package h265

import "fmt"

// NALUType is the type field of a H.265 NAL unit header (bits 1-6 of
// the two-byte header), ITU-T H.265 Table 7-1.
type NALUType uint8

const (
	NALUTypeTrailN     NALUType = 0
	NALUTypeTrailR     NALUType = 1
	NALUTypeTSAN       NALUType = 2
	NALUTypeTSAR       NALUType = 3
	NALUTypeSTSAN      NALUType = 4
	NALUTypeSTSAR      NALUType = 5
	NALUTypeRADLN      NALUType = 6
	NALUTypeRADLR      NALUType = 7
	NALUTypeRASLN      NALUType = 8
	NALUTypeRASLR      NALUType = 9
	NALUTypeBLAWLP     NALUType = 16
	NALUTypeBLAWRADL   NALUType = 17
	NALUTypeBLAN       NALUType = 18
	NALUTypeIDRWRADL   NALUType = 19
	NALUTypeIDRNLP     NALUType = 20
	NALUTypeCRA        NALUType = 21
	NALUTypeVPS        NALUType = 32
	NALUTypeSPS        NALUType = 33
	NALUTypePPS        NALUType = 34
	NALUTypeAUD        NALUType = 35
	NALUTypeEOS        NALUType = 36
	NALUTypeEOB        NALUType = 37
	NALUTypeFD         NALUType = 38
	NALUTypePrefixSEI  NALUType = 39
	NALUTypeSuffixSEI  NALUType = 40

	// RTP-only pseudo NAL unit types (RFC 7798 §4.4), never carried
	// over Annex B, only meaningful inside a depacketizer.
	NALUTypeAggregationUnit   NALUType = 48
	NALUTypeFragmentationUnit NALUType = 49
	NALUTypePACI              NALUType = 50
)

// String implements fmt.Stringer.
func (t NALUType) String() string {
	switch t {
	case NALUTypeTrailN:
		return "TrailN"
	case NALUTypeTrailR:
		return "TrailR"
	case NALUTypeBLAWLP:
		return "BLAWLP"
	case NALUTypeBLAWRADL:
		return "BLAWRADL"
	case NALUTypeBLAN:
		return "BLAN"
	case NALUTypeIDRWRADL:
		return "IDRWRADL"
	case NALUTypeIDRNLP:
		return "IDRNLP"
	case NALUTypeCRA:
		return "CRA"
	case NALUTypeVPS:
		return "VPS"
	case NALUTypeSPS:
		return "SPS"
	case NALUTypePPS:
		return "PPS"
	case NALUTypeAUD:
		return "AUD"
	case NALUTypePrefixSEI:
		return "PrefixSEI"
	case NALUTypeSuffixSEI:
		return "SuffixSEI"
	default:
		return fmt.Sprintf("unknown (%d)", uint8(t))
	}
}

// IsIRAP reports whether typ identifies an Intra Random Access Point
// picture (spec.md §4.D's H.265 keyframe predicate: BLA/IDR/CRA, NAL
// unit types 16 through 21).
func (t NALUType) IsIRAP() bool {
	return t >= NALUTypeBLAWLP && t <= NALUTypeCRA
}
