package h265

import (
	"github.com/bkataru-workshop/vdkio/errs"
	"github.com/bkataru-workshop/vdkio/pkg/bitreader"
)

var subWidthC = [4]uint32{1, 2, 2, 1}
var subHeightC = [4]uint32{1, 2, 1, 1}

// ConformanceWindow is the conformance cropping window of a SPS.
type ConformanceWindow struct {
	LeftOffset   uint32
	RightOffset  uint32
	TopOffset    uint32
	BottomOffset uint32
}

// ProfileTierLevel is the profile_tier_level() structure of a SPS,
// trimmed to the fields spec.md §4.D needs (none, directly) but kept
// so parsing can skip over it at the right bit offset. Grounded on
// the teacher's pkg/h265.SPS_ProfileLevelTier.
type ProfileTierLevel struct {
	GeneralProfileIdc uint8
	GeneralLevelIdc   uint8
}

func (p *ProfileTierLevel) parse(r *bitreader.Reader, maxNumSubLayersMinus1 uint8) error {
	if _, err := r.ReadBits(2); err != nil { // general_profile_space
		return err
	}
	if _, err := r.ReadBits(1); err != nil { // general_tier_flag
		return err
	}
	v, err := r.ReadBits(5)
	if err != nil {
		return err
	}
	p.GeneralProfileIdc = uint8(v)

	compatFlags := make([]bool, 32)
	for j := 0; j < 32; j++ {
		b, err := r.ReadBool()
		if err != nil {
			return err
		}
		compatFlags[j] = b
	}

	if _, err := r.ReadBits(4); err != nil { // progressive/interlaced/non_packed/frame_only
		return err
	}

	special := p.GeneralProfileIdc == 5 || p.GeneralProfileIdc == 9 ||
		p.GeneralProfileIdc == 10 || p.GeneralProfileIdc == 11 ||
		compatFlags[5] || compatFlags[9] || compatFlags[10] || compatFlags[11]
	if special {
		if _, err := r.ReadBits(9); err != nil { // max_12bit .. lower_bit_rate constraint flags
			return err
		}
		if _, err := r.ReadBits(1); err != nil { // max_14bit_constraint_flag
			return err
		}
		if _, err := r.ReadBits(33); err != nil {
			return err
		}
	} else {
		if _, err := r.ReadBits(43); err != nil {
			return err
		}
	}

	if _, err := r.ReadBits(1); err != nil { // general_inbld_flag / reserved bit
		return err
	}

	v, err = r.ReadBits(8)
	if err != nil {
		return err
	}
	p.GeneralLevelIdc = uint8(v)

	subLayerProfilePresent := make([]bool, maxNumSubLayersMinus1)
	subLayerLevelPresent := make([]bool, maxNumSubLayersMinus1)
	for j := uint8(0); j < maxNumSubLayersMinus1; j++ {
		b1, err := r.ReadBool()
		if err != nil {
			return err
		}
		b2, err := r.ReadBool()
		if err != nil {
			return err
		}
		subLayerProfilePresent[j] = b1
		subLayerLevelPresent[j] = b2
	}

	if maxNumSubLayersMinus1 > 0 {
		if _, err := r.ReadBits(int(8-maxNumSubLayersMinus1) * 2); err != nil {
			return err
		}
	}

	for i := uint8(0); i < maxNumSubLayersMinus1; i++ {
		if subLayerProfilePresent[i] {
			return errs.New(errs.Unsupported, "h265.ProfileTierLevel.parse", "sub_layer_profile not supported", nil)
		}
		if subLayerLevelPresent[i] {
			return errs.New(errs.Unsupported, "h265.ProfileTierLevel.parse", "sub_layer_level not supported", nil)
		}
	}

	return nil
}

// SPS is a parsed H.265 sequence parameter set, grounded on the
// teacher's pkg/h265.SPS and trimmed to what spec.md §4.D needs.
type SPS struct {
	VPSID                 uint8
	MaxNumSubLayersMinus1 uint8
	ProfileTierLevel      ProfileTierLevel
	ID                    uint8

	ChromaFormatIdc        uint32
	SeparateColourPlane    bool
	PicWidthInLumaSamples  uint32
	PicHeightInLumaSamples uint32

	ConformanceWindow *ConformanceWindow
}

// ParseSPS decodes a H.265 SPS NALU (2-byte header included, with
// emulation prevention bytes still in place).
func ParseSPS(nalu []byte) (*SPS, error) {
	if len(nalu) < 2 {
		return nil, errs.New(errs.InvalidBitstream, "h265.ParseSPS", "buffer too short", nil)
	}

	typ := NALUType((nalu[0] >> 1) & 0x3F)
	if typ != NALUTypeSPS {
		return nil, errs.New(errs.InvalidBitstream, "h265.ParseSPS", "not a SPS", nil)
	}

	rbsp := bitreader.RemoveEmulationPrevention(nalu[2:])
	r := bitreader.New(rbsp)

	s := &SPS{}
	var err error

	v, err := r.ReadBits(4)
	if err != nil {
		return nil, err
	}
	s.VPSID = uint8(v)

	v, err = r.ReadBits(3)
	if err != nil {
		return nil, err
	}
	s.MaxNumSubLayersMinus1 = uint8(v)

	if _, err = r.ReadBool(); err != nil { // temporal_id_nesting_flag
		return nil, err
	}

	if err := s.ProfileTierLevel.parse(r, s.MaxNumSubLayersMinus1); err != nil {
		return nil, err
	}

	id, err := r.ReadUE()
	if err != nil {
		return nil, err
	}
	s.ID = uint8(id)

	if s.ChromaFormatIdc, err = r.ReadUE(); err != nil {
		return nil, err
	}
	if s.ChromaFormatIdc == 3 {
		if s.SeparateColourPlane, err = r.ReadBool(); err != nil {
			return nil, err
		}
	}

	if s.PicWidthInLumaSamples, err = r.ReadUE(); err != nil {
		return nil, err
	}
	if s.PicHeightInLumaSamples, err = r.ReadUE(); err != nil {
		return nil, err
	}

	conformanceWindowFlag, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if conformanceWindowFlag {
		cw := &ConformanceWindow{}
		if cw.LeftOffset, err = r.ReadUE(); err != nil {
			return nil, err
		}
		if cw.RightOffset, err = r.ReadUE(); err != nil {
			return nil, err
		}
		if cw.TopOffset, err = r.ReadUE(); err != nil {
			return nil, err
		}
		if cw.BottomOffset, err = r.ReadUE(); err != nil {
			return nil, err
		}
		s.ConformanceWindow = cw
	}

	return s, nil
}

// Width returns the decoded picture width in pixels.
func (s *SPS) Width() int {
	w := s.PicWidthInLumaSamples
	if s.ConformanceWindow != nil && int(s.ChromaFormatIdc) < len(subWidthC) {
		cropUnitX := subWidthC[s.ChromaFormatIdc]
		w -= (s.ConformanceWindow.LeftOffset + s.ConformanceWindow.RightOffset) * cropUnitX
	}
	return int(w)
}

// Height returns the decoded picture height in pixels.
func (s *SPS) Height() int {
	h := s.PicHeightInLumaSamples
	if s.ConformanceWindow != nil && int(s.ChromaFormatIdc) < len(subHeightC) {
		cropUnitY := subHeightC[s.ChromaFormatIdc]
		h -= (s.ConformanceWindow.TopOffset + s.ConformanceWindow.BottomOffset) * cropUnitY
	}
	return int(h)
}
