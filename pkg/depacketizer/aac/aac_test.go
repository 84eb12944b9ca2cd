package aac

import (
	"errors"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func header(seq uint16, marker bool) rtp.Header {
	return rtp.Header{
		Version:        2,
		Marker:         marker,
		PayloadType:    97,
		SequenceNumber: seq,
		Timestamp:      1000,
		SSRC:           0xabcd,
	}
}

// singleAUPayload builds a RFC 3640 generic payload: 16-bit AU-headers-length
// (in bits) followed by one 16-bit AU-header (13-bit size, 3-bit
// index) and the AU itself. SizeLength=13, IndexLength=3 is the
// conventional SDP fmtp configuration used throughout the test suite.
func singleAUPayload(au []byte) []byte {
	headersLenBits := 16               // SizeLength(13) + IndexLength(3)
	header16 := uint16(len(au))<<3 | 0 // size in top 13 bits, index=0 in low 3 bits
	return append([]byte{
		byte(headersLenBits >> 8), byte(headersLenBits),
		byte(header16 >> 8), byte(header16),
	}, au...)
}

func TestDecodeSingleAU(t *testing.T) {
	d := &Decoder{SizeLength: 13, IndexLength: 3, IndexDeltaLength: 3}
	pkt := &rtp.Packet{Header: header(1, true), Payload: singleAUPayload([]byte{1, 2, 3, 4})}

	aus, err := d.Decode(pkt)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{1, 2, 3, 4}}, aus)
}

func TestDecodeMultipleAUsInOnePacket(t *testing.T) {
	d := &Decoder{SizeLength: 13, IndexLength: 3, IndexDeltaLength: 3}

	au1 := []byte{1, 2}
	au2 := []byte{3, 4, 5}

	headersLenBits := 16 + 13 + 3 // first header(size+index) + second header(size+delta)
	h1 := uint16(len(au1))<<3 | 0
	h2 := uint16(len(au2))<<3 | 0

	payload := []byte{
		byte(headersLenBits >> 8), byte(headersLenBits),
	}
	// pack h1 (16 bits) then h2 (16 bits) MSB-first, byte-aligned here
	// since both headers are exactly 16 bits.
	payload = append(payload, byte(h1>>8), byte(h1), byte(h2>>8), byte(h2))
	payload = append(payload, au1...)
	payload = append(payload, au2...)

	pkt := &rtp.Packet{Header: header(2, true), Payload: payload}
	aus, err := d.Decode(pkt)
	require.NoError(t, err)
	require.Equal(t, [][]byte{au1, au2}, aus)
}

func TestDecodeFragmentedAU(t *testing.T) {
	d := &Decoder{SizeLength: 13, IndexLength: 3, IndexDeltaLength: 3}

	fullAU := []byte{1, 2, 3, 4, 5, 6}
	payload := singleAUPayload(fullAU)

	start := &rtp.Packet{Header: header(10, false), Payload: payload}
	_, err := d.Decode(start)
	require.True(t, errors.Is(err, ErrMorePacketsNeeded))
}

func TestDecodeRejectsNonzeroAUIndex(t *testing.T) {
	d := &Decoder{SizeLength: 13, IndexLength: 3, IndexDeltaLength: 3}

	au := []byte{1, 2}
	headersLenBits := 16
	h1 := uint16(len(au))<<3 | 1 // nonzero AU-index

	payload := []byte{
		byte(headersLenBits >> 8), byte(headersLenBits),
		byte(h1 >> 8), byte(h1),
	}
	payload = append(payload, au...)

	pkt := &rtp.Packet{Header: header(3, true), Payload: payload}
	_, err := d.Decode(pkt)
	require.Error(t, err)
}

func TestDecodeInvalidHeadersLengthZero(t *testing.T) {
	d := &Decoder{SizeLength: 13, IndexLength: 3, IndexDeltaLength: 3}
	pkt := &rtp.Packet{Header: header(4, true), Payload: []byte{0x00, 0x00, 1, 2}}
	_, err := d.Decode(pkt)
	require.Error(t, err)
}

func TestDecodeUnwrapsADTS(t *testing.T) {
	d := &Decoder{SizeLength: 13, IndexLength: 3, IndexDeltaLength: 3}

	rawAU := []byte{0xAA, 0xBB, 0xCC}
	adtsFrame := []byte{
		0xFF, 0xF1, // syncword + MPEG-4 + layer + protection absent
		0x4C,                     // profile(AAC-LC-1=01)<<6 | sampleRateIndex(3=48000)<<2 | private(0) | channel-high-bit
		0x80,                     // channel low bits | frame length high bits
		0x00,                     // frame length mid bits
		byte((0x1F << 5) & 0xFF), // frame length low bits | fullness high bits
		0x00,
	}
	adtsFrame = append(adtsFrame, rawAU...)
	// Recompute frame length field precisely instead of hand-picking bits.
	frameLen := len(adtsFrame)
	adtsFrame[3] = (adtsFrame[3] & 0xC0) | byte((frameLen>>11)&0x03)
	adtsFrame[4] = byte((frameLen >> 3) & 0xFF)
	adtsFrame[5] = byte((frameLen&0x07)<<5) | (adtsFrame[5] & 0x1F)

	pkt := &rtp.Packet{Header: header(5, true), Payload: singleAUPayload(adtsFrame)}
	aus, err := d.Decode(pkt)
	require.NoError(t, err)
	require.Equal(t, [][]byte{rawAU}, aus)
}
