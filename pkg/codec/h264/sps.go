package h264

import (
	"github.com/bkataru-workshop/vdkio/errs"
	"github.com/bkataru-workshop/vdkio/pkg/bitreader"
)

// FrameCropping is the frame cropping part of a SPS.
type FrameCropping struct {
	LeftOffset   uint32
	RightOffset  uint32
	TopOffset    uint32
	BottomOffset uint32
}

// SPS is a parsed H.264 sequence parameter set. Grounded on the
// teacher's pkg/h264.SPS, trimmed to the fields spec.md §4.D needs
// (codec dimensions) plus the ones required to compute them
// correctly, and read through pkg/bitreader instead of the
// third-party icza/bitio dependency used by one historical revision
// of the teacher (see DESIGN.md).
type SPS struct {
	ProfileIdc uint8
	LevelIdc   uint8
	ID         uint32

	ChromaFormatIdc     uint32
	SeparateColourPlane bool

	PicWidthInMbsMinus1  uint32
	PicHeightInMbsMinus1 uint32
	FrameMbsOnlyFlag     bool

	FrameCropping *FrameCropping

	TimingInfoPresent bool
	NumUnitsInTick    uint32
	TimeScale         uint32
}

func readScalingList(r *bitreader.Reader, size int) error {
	lastScale := int32(8)
	nextScale := int32(8)
	for j := 0; j < size; j++ {
		if nextScale != 0 {
			delta, err := r.ReadSE()
			if err != nil {
				return err
			}
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}

// ParseSPS decodes a SPS NALU (with emulation-prevention bytes still
// in place; the forbidden_zero_bit/nal_ref_idc/nal_unit_type header
// byte is also still in place) into its width/height-relevant fields.
func ParseSPS(nalu []byte) (*SPS, error) {
	rbsp := bitreader.RemoveEmulationPrevention(nalu)
	if len(rbsp) < 4 {
		return nil, errs.New(errs.InvalidBitstream, "h264.ParseSPS", "buffer too short", nil)
	}

	forbidden := rbsp[0] >> 7
	nalRefIdc := (rbsp[0] >> 5) & 0x03
	typ := NALUType(rbsp[0] & 0x1F)
	if forbidden != 0 {
		return nil, errs.New(errs.InvalidBitstream, "h264.ParseSPS", "forbidden_zero_bit set", nil)
	}
	if nalRefIdc != 3 {
		return nil, errs.New(errs.InvalidBitstream, "h264.ParseSPS", "wrong nal_ref_idc", nil)
	}
	if typ != NALUTypeSPS {
		return nil, errs.New(errs.InvalidBitstream, "h264.ParseSPS", "not a SPS", nil)
	}

	s := &SPS{ProfileIdc: rbsp[1], LevelIdc: rbsp[3]}

	r := bitreader.New(rbsp[4:])
	var err error

	if s.ID, err = r.ReadUE(); err != nil {
		return nil, err
	}

	// chroma_format_idc is only present in the high-profile bitstream
	// paths below; baseline/main/extended profiles never encode it and
	// the format defaults to 1 (4:2:0), per the teacher's pkg/h264/sps.go.
	s.ChromaFormatIdc = 1

	switch s.ProfileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		if s.ChromaFormatIdc, err = r.ReadUE(); err != nil {
			return nil, err
		}
		if s.ChromaFormatIdc == 3 {
			if s.SeparateColourPlane, err = r.ReadBool(); err != nil {
				return nil, err
			}
		}
		if _, err = r.ReadUE(); err != nil { // bit_depth_luma_minus8
			return nil, err
		}
		if _, err = r.ReadUE(); err != nil { // bit_depth_chroma_minus8
			return nil, err
		}
		if _, err = r.ReadBool(); err != nil { // qpprime_y_zero_transform_bypass_flag
			return nil, err
		}
		scalingMatrixPresent, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		if scalingMatrixPresent {
			lim := 8
			if s.ChromaFormatIdc == 3 {
				lim = 12
			}
			for i := 0; i < lim; i++ {
				present, err := r.ReadBool()
				if err != nil {
					return nil, err
				}
				if present {
					size := 16
					if i >= 6 {
						size = 64
					}
					if err := readScalingList(r, size); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	if _, err = r.ReadUE(); err != nil { // log2_max_frame_num_minus4
		return nil, err
	}

	picOrderCntType, err := r.ReadUE()
	if err != nil {
		return nil, err
	}
	switch picOrderCntType {
	case 0:
		if _, err = r.ReadUE(); err != nil { // log2_max_pic_order_cnt_lsb_minus4
			return nil, err
		}
	case 1:
		if _, err = r.ReadBool(); err != nil { // delta_pic_order_always_zero_flag
			return nil, err
		}
		if _, err = r.ReadSE(); err != nil { // offset_for_non_ref_pic
			return nil, err
		}
		if _, err = r.ReadSE(); err != nil { // offset_for_top_to_bottom_field
			return nil, err
		}
		numRefFrames, err := r.ReadUE()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < numRefFrames; i++ {
			if _, err = r.ReadSE(); err != nil { // offset_for_ref_frame[i]
				return nil, err
			}
		}
	}

	if _, err = r.ReadUE(); err != nil { // max_num_ref_frames
		return nil, err
	}
	if _, err = r.ReadBool(); err != nil { // gaps_in_frame_num_value_allowed_flag
		return nil, err
	}
	if s.PicWidthInMbsMinus1, err = r.ReadUE(); err != nil {
		return nil, err
	}
	if s.PicHeightInMbsMinus1, err = r.ReadUE(); err != nil {
		return nil, err
	}
	if s.FrameMbsOnlyFlag, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if !s.FrameMbsOnlyFlag {
		if _, err = r.ReadBool(); err != nil { // mb_adaptive_frame_field_flag
			return nil, err
		}
	}
	if _, err = r.ReadBool(); err != nil { // direct_8x8_inference_flag
		return nil, err
	}

	frameCroppingFlag, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if frameCroppingFlag {
		fc := &FrameCropping{}
		if fc.LeftOffset, err = r.ReadUE(); err != nil {
			return nil, err
		}
		if fc.RightOffset, err = r.ReadUE(); err != nil {
			return nil, err
		}
		if fc.TopOffset, err = r.ReadUE(); err != nil {
			return nil, err
		}
		if fc.BottomOffset, err = r.ReadUE(); err != nil {
			return nil, err
		}
		s.FrameCropping = fc
	}

	vuiPresent, err := r.ReadBool()
	if err != nil {
		// VUI and everything after it is optional trailing data; a
		// truncated tail past this point doesn't invalidate the
		// dimensions already parsed.
		return s, nil //nolint:nilerr
	}
	if vuiPresent {
		s.parseVUITimingOnly(r)
	}

	return s, nil
}

// parseVUITimingOnly reads just enough of the VUI to expose the
// frame rate (spec.md §4.D doesn't require the rest of it), bailing
// out silently on any parse error since the dimensions have already
// been read.
func (s *SPS) parseVUITimingOnly(r *bitreader.Reader) {
	aspectRatioPresent, err := r.ReadBool()
	if err != nil {
		return
	}
	if aspectRatioPresent {
		idc, err := r.ReadBits(8)
		if err != nil {
			return
		}
		if idc == 255 {
			if _, err = r.ReadBits(32); err != nil {
				return
			}
		}
	}
	overscanPresent, err := r.ReadBool()
	if err != nil {
		return
	}
	if overscanPresent {
		if _, err = r.ReadBool(); err != nil {
			return
		}
	}
	videoSignalPresent, err := r.ReadBool()
	if err != nil {
		return
	}
	if videoSignalPresent {
		if _, err = r.ReadBits(3); err != nil {
			return
		}
		if _, err = r.ReadBool(); err != nil {
			return
		}
		colourDescPresent, err := r.ReadBool()
		if err != nil {
			return
		}
		if colourDescPresent {
			if _, err = r.ReadBits(24); err != nil {
				return
			}
		}
	}
	chromaLocPresent, err := r.ReadBool()
	if err != nil {
		return
	}
	if chromaLocPresent {
		if _, err = r.ReadUE(); err != nil {
			return
		}
		if _, err = r.ReadUE(); err != nil {
			return
		}
	}
	timingPresent, err := r.ReadBool()
	if err != nil {
		return
	}
	s.TimingInfoPresent = timingPresent
	if timingPresent {
		numUnits, err := r.ReadBits(32)
		if err != nil {
			return
		}
		timeScale, err := r.ReadBits(32)
		if err != nil {
			return
		}
		s.NumUnitsInTick = uint32(numUnits)
		s.TimeScale = uint32(timeScale)
	}
}

// Width returns the decoded picture width in pixels.
func (s *SPS) Width() int {
	w := int((s.PicWidthInMbsMinus1 + 1) * 16)
	if s.FrameCropping != nil {
		cropUnitX := 1
		if s.ChromaFormatIdc == 0 {
			cropUnitX = 1
		} else {
			cropUnitX = 2
		}
		w -= int(s.FrameCropping.LeftOffset+s.FrameCropping.RightOffset) * cropUnitX
	}
	return w
}

// Height returns the decoded picture height in pixels.
func (s *SPS) Height() int {
	f := uint32(0)
	if s.FrameMbsOnlyFlag {
		f = 1
	}
	h := int((2 - f) * (s.PicHeightInMbsMinus1 + 1) * 16)
	if s.FrameCropping != nil {
		cropUnitY := 2 * int(2-f)
		if s.ChromaFormatIdc == 0 {
			cropUnitY = int(2 - f)
		}
		h -= int(s.FrameCropping.TopOffset+s.FrameCropping.BottomOffset) * cropUnitY
	}
	return h
}

// FPS returns the frame rate derived from VUI timing info, or 0 if
// not present.
func (s *SPS) FPS() float64 {
	if !s.TimingInfoPresent || s.NumUnitsInTick == 0 {
		return 0
	}
	return float64(s.TimeScale) / (2 * float64(s.NumUnitsInTick))
}
