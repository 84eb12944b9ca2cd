package h265

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
		PayloadType:    96,
		SequenceNumber: seq,
		Timestamp:      1000,
		SSRC:           0xabcd,
	}
}

func TestDecodeSingleNALU(t *testing.T) {
	d := &Decoder{}
	pkt := &rtp.Packet{Header: header(1, true), Payload: []byte{0x26, 0x01, 0xaa, 0xbb}}

	nalus, err := d.Decode(pkt)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0x26, 0x01, 0xaa, 0xbb}}, nalus)
}

func TestDecodeAggregationUnit(t *testing.T) {
	d := &Decoder{}

	// NAL header type field (bits 1-6) = 48 (aggregation unit).
	typByte := byte(48 << 1)
	pkt := &rtp.Packet{
		Header: header(10, true),
		Payload: []byte{
			typByte, 0x00,
			0x00, 0x02, 0x26, 0x01,
			0x00, 0x02, 0x02, 0x03,
		},
	}
	nalus, err := d.Decode(pkt)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0x26, 0x01}, {0x02, 0x03}}, nalus)
}

func TestDecodeFragmentationUnit(t *testing.T) {
	d := &Decoder{}

	typByte := byte(49 << 1)
	start := &rtp.Packet{
		Header:  header(20, false),
		Payload: []byte{typByte, 0x01, 0x80 | 0x01, 0xaa, 0xbb}, // FU header: start=1, type=1
	}
	_, err := d.Decode(start)
	require.True(t, errors.Is(err, ErrMorePacketsNeeded))

	end := &rtp.Packet{
		Header:  header(21, true),
		Payload: []byte{typByte, 0x01, 0x40, 0xcc},
	}
	nalus, err := d.Decode(end)
	require.NoError(t, err)
	require.Len(t, nalus, 1)
	require.Equal(t, []byte{0xaa, 0xbb, 0xcc}, nalus[0][2:])
}

func TestDecodeFragmentationUnitBothStartAndEndRejected(t *testing.T) {
	d := &Decoder{}
	typByte := byte(49 << 1)
	pkt := &rtp.Packet{
		Header:  header(30, true),
		Payload: []byte{typByte, 0x01, 0xC1, 0xaa},
	}
	_, err := d.Decode(pkt)
	require.Error(t, err)
}

func TestDecodeMissingPacketDiscardsFragment(t *testing.T) {
	d := &Decoder{}
	typByte := byte(49 << 1)

	start := &rtp.Packet{
		Header:  header(40, false),
		Payload: []byte{typByte, 0x01, 0x81, 0xaa},
	}
	_, err := d.Decode(start)
	require.True(t, errors.Is(err, ErrMorePacketsNeeded))

	skipped := &rtp.Packet{
		Header:  header(42, true),
		Payload: []byte{typByte, 0x01, 0x00, 0xbb},
	}
	_, err = d.Decode(skipped)
	require.Error(t, err)
}

func TestDecodeAccumulatesUntilMarker(t *testing.T) {
	d := &Decoder{}

	first := &rtp.Packet{Header: header(50, false), Payload: []byte{0x42, 0x01, 0x01}}
	_, err := d.Decode(first)
	require.True(t, errors.Is(err, ErrMorePacketsNeeded))

	second := &rtp.Packet{Header: header(51, true), Payload: []byte{0x26, 0x01, 0x02}}
	nalus, err := d.Decode(second)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0x42, 0x01, 0x01}, {0x26, 0x01, 0x02}}, nalus)
}
