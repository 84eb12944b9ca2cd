package rtcpstats

import (
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func newTestReceiver(t *testing.T) *Receiver {
	v := uint32(0x65f83afb)
	r, err := New(90000, &v, time.Hour, time.Now, nil)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestReportNilBeforeFirstPacket(t *testing.T) {
	r := newTestReceiver(t)
	require.Nil(t, r.Report(time.Now()))
}

func TestReportBasic(t *testing.T) {
	r := newTestReceiver(t)

	r.ProcessSenderReport(&rtcp.SenderReport{
		SSRC:        0xba9da416,
		NTPTime:     0xe363887a17ced916,
		RTPTime:     0xafb45733,
		PacketCount: 714,
		OctetCount:  859127,
	}, time.Date(2008, 5, 20, 22, 15, 20, 0, time.UTC))

	require.NoError(t, r.ProcessPacket(&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    96,
			SequenceNumber: 946,
			Timestamp:      0xafb45733,
			SSRC:           0xba9da416,
		},
		Payload: []byte{0, 0},
	}, time.Date(2008, 5, 20, 22, 15, 20, 0, time.UTC)))

	require.NoError(t, r.ProcessPacket(&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    96,
			SequenceNumber: 947,
			Timestamp:      0xafb45733 + 90000,
			SSRC:           0xba9da416,
		},
		Payload: []byte{0, 0},
	}, time.Date(2008, 5, 20, 22, 15, 21, 0, time.UTC)))

	got := r.Report(time.Date(2008, 5, 20, 22, 15, 22, 0, time.UTC))

	want := &rtcp.ReceiverReport{
		SSRC: 0x65f83afb,
		Reports: []rtcp.ReceptionReport{
			{
				SSRC:               0xba9da416,
				LastSequenceNumber: 947,
				LastSenderReport:   0x887a17ce,
				Delay:              2 * 65536,
			},
		},
	}
	require.Equal(t, want, got)
}

func TestReportSequenceCycleOverflow(t *testing.T) {
	r := newTestReceiver(t)

	r.ProcessSenderReport(&rtcp.SenderReport{
		SSRC:    0xba9da416,
		NTPTime: 0xe363887a17ced916,
		RTPTime: 1287981738,
	}, time.Date(2008, 5, 20, 22, 15, 20, 0, time.UTC))

	require.NoError(t, r.ProcessPacket(&rtp.Packet{
		Header: rtp.Header{SequenceNumber: 0xffff, Timestamp: 0xafb45733, SSRC: 0xba9da416},
	}, time.Date(2008, 5, 20, 22, 15, 20, 0, time.UTC)))

	require.NoError(t, r.ProcessPacket(&rtp.Packet{
		Header: rtp.Header{SequenceNumber: 0x0000, Timestamp: 0xafb45733, SSRC: 0xba9da416},
	}, time.Date(2008, 5, 20, 22, 15, 20, 0, time.UTC)))

	got := r.Report(time.Date(2008, 5, 20, 22, 15, 21, 0, time.UTC))
	want := &rtcp.ReceiverReport{
		SSRC: 0x65f83afb,
		Reports: []rtcp.ReceptionReport{
			{
				SSRC:               0xba9da416,
				LastSequenceNumber: 1<<16 | 0x0000,
				LastSenderReport:   0x887a17ce,
				Delay:              1 * 65536,
			},
		},
	}
	require.Equal(t, want, got)
}

func TestReportPacketLost(t *testing.T) {
	r := newTestReceiver(t)

	r.ProcessSenderReport(&rtcp.SenderReport{
		SSRC:    0xba9da416,
		NTPTime: 0xe363887a17ced916,
		RTPTime: 1287981738,
	}, time.Date(2008, 5, 20, 22, 15, 20, 0, time.UTC))

	require.NoError(t, r.ProcessPacket(&rtp.Packet{
		Header: rtp.Header{SequenceNumber: 0x0120, Timestamp: 0xafb45733, SSRC: 0xba9da416},
	}, time.Date(2008, 5, 20, 22, 15, 20, 0, time.UTC)))

	require.NoError(t, r.ProcessPacket(&rtp.Packet{
		Header: rtp.Header{SequenceNumber: 0x0122, Timestamp: 0xafb45733, SSRC: 0xba9da416},
	}, time.Date(2008, 5, 20, 22, 15, 20, 0, time.UTC)))

	got := r.Report(time.Date(2008, 5, 20, 22, 15, 21, 0, time.UTC))
	require.Equal(t, uint32(1), got.(*rtcp.ReceiverReport).Reports[0].TotalLost)
	require.Equal(t, fractionLost(1, 3), got.(*rtcp.ReceiverReport).Reports[0].FractionLost)
}

func TestReportWrongSSRCRejected(t *testing.T) {
	r := newTestReceiver(t)

	require.NoError(t, r.ProcessPacket(&rtp.Packet{
		Header: rtp.Header{SequenceNumber: 1, SSRC: 0xaaaaaaaa},
	}, time.Now()))

	err := r.ProcessPacket(&rtp.Packet{
		Header: rtp.Header{SequenceNumber: 2, SSRC: 0xbbbbbbbb},
	}, time.Now())
	require.Error(t, err)
}

func TestReportJitterAccumulates(t *testing.T) {
	r := newTestReceiver(t)

	require.NoError(t, r.ProcessPacket(&rtp.Packet{
		Header: rtp.Header{SequenceNumber: 946, Timestamp: 0xafb45733, SSRC: 0xba9da416},
	}, time.Date(2008, 5, 20, 22, 15, 20, 0, time.UTC)))

	require.NoError(t, r.ProcessPacket(&rtp.Packet{
		Header: rtp.Header{SequenceNumber: 947, Timestamp: 0xafb45733 + 45000, SSRC: 0xba9da416},
	}, time.Date(2008, 5, 20, 22, 15, 21, 0, time.UTC)))

	got := r.Report(time.Date(2008, 5, 20, 22, 15, 22, 0, time.UTC))
	require.InDelta(t, float64(45000)/16, float64(got.(*rtcp.ReceiverReport).Reports[0].Jitter), 1)
}

func TestWallClockForRTPRequiresSenderReport(t *testing.T) {
	r := newTestReceiver(t)
	_, ok := r.WallClockForRTP(1000)
	require.False(t, ok)
}
