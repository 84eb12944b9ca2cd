package h264

import "fmt"

// NALUType is the type field of a H.264 NAL unit header (the low 5
// bits of the first byte), ISO/IEC 14496-10 Table 7-1.
type NALUType uint8

const (
	NALUTypeNonIDR                         NALUType = 1
	NALUTypeDataPartitionA                 NALUType = 2
	NALUTypeDataPartitionB                 NALUType = 3
	NALUTypeDataPartitionC                 NALUType = 4
	NALUTypeIDR                            NALUType = 5
	NALUTypeSEI                            NALUType = 6
	NALUTypeSPS                            NALUType = 7
	NALUTypePPS                            NALUType = 8
	NALUTypeAccessUnitDelimiter             NALUType = 9
	NALUTypeEndOfSequence                  NALUType = 10
	NALUTypeEndOfStream                    NALUType = 11
	NALUTypeFillerData                     NALUType = 12
	NALUTypeSPSExtension                   NALUType = 13
	NALUTypePrefix                         NALUType = 14
	NALUTypeSubsetSPS                      NALUType = 15
	NALUTypeSliceLayerWithoutPartitioning  NALUType = 19
	NALUTypeSliceExtension                 NALUType = 20
	NALUTypeSTAPA                          NALUType = 24
	NALUTypeSTAPB                          NALUType = 25
	NALUTypeMTAP16                         NALUType = 26
	NALUTypeMTAP24                         NALUType = 27
	NALUTypeFUA                            NALUType = 28
	NALUTypeFUB                            NALUType = 29
)

// String implements fmt.Stringer.
func (t NALUType) String() string {
	switch t {
	case NALUTypeNonIDR:
		return "NonIDR"
	case NALUTypeDataPartitionA:
		return "DataPartitionA"
	case NALUTypeDataPartitionB:
		return "DataPartitionB"
	case NALUTypeDataPartitionC:
		return "DataPartitionC"
	case NALUTypeIDR:
		return "IDR"
	case NALUTypeSEI:
		return "SEI"
	case NALUTypeSPS:
		return "SPS"
	case NALUTypePPS:
		return "PPS"
	case NALUTypeAccessUnitDelimiter:
		return "AccessUnitDelimiter"
	case NALUTypeEndOfSequence:
		return "EndOfSequence"
	case NALUTypeEndOfStream:
		return "EndOfStream"
	case NALUTypeFillerData:
		return "FillerData"
	case NALUTypeSPSExtension:
		return "SPSExtension"
	case NALUTypePrefix:
		return "Prefix"
	case NALUTypeSubsetSPS:
		return "SubsetSPS"
	case NALUTypeSliceLayerWithoutPartitioning:
		return "SliceLayerWithoutPartitioning"
	case NALUTypeSliceExtension:
		return "SliceExtension"
	default:
		return fmt.Sprintf("unknown (%d)", uint8(t))
	}
}
