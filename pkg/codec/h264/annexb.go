package h264

import (
	"github.com/bkataru-workshop/vdkio/errs"
)

// MaxNALUSize bounds a single NALU at a generous 250 Mbps-class
// bitstream's worst case, matching the teacher's pkg/h264.
const MaxNALUSize = 3 * 1024 * 1024

// SplitAnnexB splits a byte stream encoded with Annex B start codes
// (0x000001 or 0x00000001) into individual NALUs. Grounded on the
// teacher's pkg/h264.AnnexBUnmarshal, generalized to use errs instead
// of bare fmt.Errorf.
func SplitAnnexB(buf []byte) ([][]byte, error) {
	n := len(buf)

	zeroCount := 0
	i := 0
firstStartCode:
	for ; i < n; i++ {
		switch buf[i] {
		case 0:
			zeroCount++
		case 1:
			break firstStartCode
		default:
			return nil, errs.New(errs.InvalidBitstream, "h264.SplitAnnexB", buf[i], nil)
		}
	}
	if i == n {
		return nil, errs.New(errs.InvalidBitstream, "h264.SplitAnnexB", "no start code", nil)
	}

	if zeroCount != 2 && zeroCount != 3 {
		return nil, errs.New(errs.InvalidBitstream, "h264.SplitAnnexB", "initial delimiter not found", nil)
	}

	start := i + 1
	var nalus [][]byte
	zeroCount = 0
	delimStart := start

	emit := func(end int) error {
		if end-start > MaxNALUSize {
			return errs.New(errs.InvalidBitstream, "h264.SplitAnnexB", end-start, nil)
		}
		nalu := buf[start:end]
		if len(nalu) == 0 {
			return errs.New(errs.InvalidBitstream, "h264.SplitAnnexB", "empty NALU", nil)
		}
		nalus = append(nalus, nalu)
		return nil
	}

	for i = start; i < n; i++ {
		switch buf[i] {
		case 0:
			if zeroCount == 0 {
				delimStart = i
			}
			zeroCount++
		case 1:
			if zeroCount == 2 || zeroCount == 3 {
				if err := emit(delimStart); err != nil {
					return nil, err
				}
				start = i + 1
			}
			zeroCount = 0
		default:
			zeroCount = 0
		}
	}

	if err := emit(n); err != nil {
		return nil, err
	}

	return nalus, nil
}

// JoinAnnexB re-encodes NALUs with 4-byte Annex B start codes.
func JoinAnnexB(nalus [][]byte) []byte {
	size := 0
	for _, nalu := range nalus {
		size += 4 + len(nalu)
	}
	buf := make([]byte, size)
	pos := 0
	for _, nalu := range nalus {
		pos += copy(buf[pos:], []byte{0x00, 0x00, 0x00, 0x01})
		pos += copy(buf[pos:], nalu)
	}
	return buf
}
