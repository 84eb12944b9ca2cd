package h265

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Fixtures grounded on the teacher's pkg/h265/sps_test.go.
func TestParseSPS1920x1080(t *testing.T) {
	nalu := []byte{
		0x42, 0x01, 0x01, 0x01, 0x60, 0x00, 0x00, 0x03,
		0x00, 0x90, 0x00, 0x00, 0x03, 0x00, 0x00, 0x03,
		0x00, 0x78, 0xa0, 0x03, 0xc0, 0x80, 0x10, 0xe5,
		0x96, 0x66, 0x69, 0x24, 0xca, 0xe0, 0x10, 0x00,
		0x00, 0x03, 0x00, 0x10, 0x00, 0x00, 0x03, 0x01,
		0xe0, 0x80,
	}
	sps, err := ParseSPS(nalu)
	require.NoError(t, err)
	require.Equal(t, 1920, sps.Width())
	require.Equal(t, 1080, sps.Height())
	require.Equal(t, uint8(1), sps.ProfileTierLevel.GeneralProfileIdc)
}

func TestParseSPS1920x800(t *testing.T) {
	nalu := []byte{
		0x42, 0x01, 0x01, 0x01, 0x60, 0x00, 0x00, 0x03,
		0x00, 0x90, 0x00, 0x00, 0x03, 0x00, 0x00, 0x03,
		0x00, 0x78, 0xa0, 0x03, 0xc0, 0x80, 0x32, 0x16,
		0x59, 0x59, 0xa4, 0x93, 0x2b, 0xc0, 0x5a, 0x80,
		0x80, 0x80, 0x82, 0x00, 0x00, 0x07, 0xd2, 0x00,
		0x00, 0xbb, 0x80, 0x10,
	}
	sps, err := ParseSPS(nalu)
	require.NoError(t, err)
	require.Equal(t, 1920, sps.Width())
	require.Equal(t, 800, sps.Height())
}

func TestParseSPS1280x720(t *testing.T) {
	nalu := []byte{
		0x42, 0x01, 0x01, 0x04, 0x08, 0x00, 0x00, 0x03,
		0x00, 0x98, 0x08, 0x00, 0x00, 0x03, 0x00, 0x00,
		0x5d, 0x90, 0x00, 0x50, 0x10, 0x05, 0xa2, 0x29,
		0x4b, 0x74, 0x94, 0x98, 0x5f, 0xfe, 0x00, 0x02,
		0x00, 0x02, 0xd4, 0x04, 0x04, 0x04, 0x10, 0x00,
		0x00, 0x03, 0x00, 0x10, 0x00, 0x00, 0x03, 0x01,
		0xe0, 0x80,
	}
	sps, err := ParseSPS(nalu)
	require.NoError(t, err)
	require.Equal(t, 1280, sps.Width())
	require.Equal(t, 720, sps.Height())
	require.Equal(t, uint32(3), sps.ChromaFormatIdc)
}

func TestIsIRAP(t *testing.T) {
	require.True(t, NALUTypeIDRWRADL.IsIRAP())
	require.True(t, NALUTypeCRA.IsIRAP())
	require.False(t, NALUTypeTrailR.IsIRAP())
}

func TestContainsIRAP(t *testing.T) {
	sps := []byte{byte(NALUTypeSPS) << 1, 0}
	idr := []byte{byte(NALUTypeIDRNLP) << 1, 0}
	require.True(t, ContainsIRAP([][]byte{sps, idr}))
	require.False(t, ContainsIRAP([][]byte{sps}))
}
