package mediasession

import (
	"context"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/bkataru-workshop/vdkio/pkg/av"
	depackh264 "github.com/bkataru-workshop/vdkio/pkg/depacketizer/h264"
)

func header(seq uint16, ts uint32, marker bool) rtp.Header {
	return rtp.Header{
		Version:        2,
		Marker:         marker,
		PayloadType:    96,
		SequenceNumber: seq,
		Timestamp:      ts,
		SSRC:           0xabcd,
	}
}

func TestSessionEmitsH264AccessUnit(t *testing.T) {
	now := time.Unix(0, 0)
	s := New(Config{
		StreamID:      1,
		ClockRate:     90000,
		MediaKind:     av.Video,
		Codec:         av.H264,
		Depacketizer:  &depackh264.Decoder{},
		MaxDelay:      20 * time.Millisecond,
		ReorderWindow: 10,
		Now:           func() time.Time { return now },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.HandleRTP(&rtp.Packet{Header: header(1, 1000, true), Payload: []byte{0x65, 0xaa}}, now)

	pkt := <-s.Packets()
	require.Equal(t, int64(0), pkt.PTS)
	require.True(t, pkt.IsKey)
	require.Equal(t, av.Video, pkt.MediaKind)
	require.Contains(t, string(pkt.Payload), string([]byte{0x65, 0xaa}))
}

func TestSessionRebasesPTSToFirstTimestamp(t *testing.T) {
	now := time.Unix(0, 0)
	s := New(Config{
		StreamID:     1,
		ClockRate:    90000,
		MediaKind:    av.Video,
		Codec:        av.H264,
		Depacketizer: &depackh264.Decoder{},
		MaxDelay:     20 * time.Millisecond,
		Now:          func() time.Time { return now },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.HandleRTP(&rtp.Packet{Header: header(1, 5000, true), Payload: []byte{0x67, 0x01}}, now)
	first := <-s.Packets()
	require.Equal(t, int64(0), first.PTS)

	s.HandleRTP(&rtp.Packet{Header: header(2, 5900, true), Payload: []byte{0x65, 0x02}}, now)
	second := <-s.Packets()
	require.Equal(t, int64(900), second.PTS)
}

func TestSessionDropsInvalidBitstreamWithoutPropagating(t *testing.T) {
	now := time.Unix(0, 0)
	s := New(Config{
		StreamID:     1,
		ClockRate:    90000,
		MediaKind:    av.Video,
		Codec:        av.H264,
		Depacketizer: &depackh264.Decoder{},
		MaxDelay:     20 * time.Millisecond,
		Now:          func() time.Time { return now },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// Empty payload is rejected by the depacketizer as InvalidBitstream.
	s.HandleRTP(&rtp.Packet{Header: header(1, 1000, true), Payload: []byte{}}, now)

	s.HandleRTP(&rtp.Packet{Header: header(2, 2000, true), Payload: []byte{0x65, 0x01}}, now)
	pkt := <-s.Packets()
	require.Equal(t, int64(1000), pkt.PTS)

	require.Eventually(t, func() bool { return s.DroppedBitstream() == 1 }, time.Second, time.Millisecond)
}

func TestSessionObservesH264Params(t *testing.T) {
	now := time.Unix(0, 0)
	s := New(Config{
		StreamID:     1,
		MediaKind:    av.Video,
		Codec:        av.H264,
		Depacketizer: &depackh264.Decoder{},
		MaxDelay:     20 * time.Millisecond,
		Now:          func() time.Time { return now },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	sps := []byte{0x67, 0x42, 0x00, 0x1e}
	pps := []byte{0x68, 0xce, 0x3c, 0x80}
	s.HandleRTP(&rtp.Packet{Header: header(1, 1000, true), Payload: sps}, now)
	<-s.Packets()
	s.HandleRTP(&rtp.Packet{Header: header(2, 1000, true), Payload: pps}, now)
	<-s.Packets()

	require.True(t, s.h264Params.Ready())
}
