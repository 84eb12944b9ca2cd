// Package rtcpstats generates outgoing RTCP receiver reports for an
// ingested RTP stream. It is grounded directly on the teacher's
// pkg/rtcpreceiver.RTCPReceiver: a background goroutine wakes on a
// ticker and emits a report built from state accumulated under a
// mutex by ProcessPacket/ProcessSenderReport, the one shared-mutable
// exception spec.md §5 allows between the network-receive goroutine
// and the reporting goroutine.
package rtcpstats

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/bkataru-workshop/vdkio/errs"
)

// DefaultPeriod is the interval at which reports are emitted, per
// RTCP's "every few seconds" guidance (RFC 3550 §6.2) as the teacher
// applies it.
const DefaultPeriod = 10 * time.Second

func randUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, errs.New(errs.Io, "rtcpstats.randUint32", nil, err)
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// ntpToGo converts an RTCP NTP 64-bit fixed-point timestamp (seconds
// since 1900-01-01) to a time.Time.
func ntpToGo(v uint64) time.Time {
	nano := int64((v>>32)*1e9+(v&0xFFFFFFFF)) - 2208988800*1e9
	return time.Unix(0, nano)
}

// Receiver accumulates reception state for one RTP stream (one SSRC)
// and periodically emits RTCP ReceiverReport packets via WritePacket.
type Receiver struct {
	ClockRate   int
	Period      time.Duration
	Now         func() time.Time
	WritePacket func(rtcp.Packet)

	receiverSSRC uint32

	mu sync.Mutex

	haveFirstPacket     bool
	seqCycles           uint16
	lastSeq             uint16
	senderSSRC          uint32
	timeInitialized     bool
	lastTimestampRTP    uint32
	lastTimestampSystem time.Time
	totalLost           uint32
	lostSinceReport     uint32
	countSinceReport    uint32
	jitter              float64

	haveFirstSR  bool
	lastSRNTP    uint64
	lastSRRTP    uint32
	lastSRSystem time.Time

	terminate chan struct{}
	done      chan struct{}
}

// New starts a Receiver's background report goroutine. If
// receiverSSRC is nil, a random one is generated, matching the
// teacher's behavior for an outgoing RTCP source identifier.
func New(clockRate int, receiverSSRC *uint32, period time.Duration, now func() time.Time, writePacket func(rtcp.Packet)) (*Receiver, error) {
	if receiverSSRC == nil {
		v, err := randUint32()
		if err != nil {
			return nil, err
		}
		receiverSSRC = &v
	}
	if now == nil {
		now = time.Now
	}
	if period <= 0 {
		period = DefaultPeriod
	}

	r := &Receiver{
		ClockRate:    clockRate,
		Period:       period,
		Now:          now,
		WritePacket:  writePacket,
		receiverSSRC: *receiverSSRC,
		terminate:    make(chan struct{}),
		done:         make(chan struct{}),
	}

	go r.run()

	return r, nil
}

// Close stops the background report goroutine and waits for it to
// exit.
func (r *Receiver) Close() {
	close(r.terminate)
	<-r.done
}

func (r *Receiver) run() {
	defer close(r.done)

	t := time.NewTicker(r.Period)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if report := r.Report(r.Now()); report != nil {
				r.WritePacket(report)
			}
		case <-r.terminate:
			return
		}
	}
}

// Report builds the next outgoing RTCP receiver report from
// accumulated state, resetting the interval counters, or returns nil
// if no RTP packet has been seen yet.
func (r *Receiver) Report(system time.Time) rtcp.Packet {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.haveFirstPacket {
		return nil
	}

	rr := &rtcp.ReceiverReport{
		SSRC: r.receiverSSRC,
		Reports: []rtcp.ReceptionReport{
			{
				SSRC:               r.senderSSRC,
				LastSequenceNumber: uint32(r.seqCycles)<<16 | uint32(r.lastSeq),
				FractionLost:       fractionLost(r.lostSinceReport, r.countSinceReport),
				TotalLost:          r.totalLost,
				Jitter:             uint32(r.jitter),
			},
		},
	}

	if r.haveFirstSR {
		rr.Reports[0].LastSenderReport = uint32(r.lastSRNTP >> 16)
		rr.Reports[0].Delay = uint32(system.Sub(r.lastSRSystem).Seconds() * 65536)
	}

	r.lostSinceReport = 0
	r.countSinceReport = 0

	return rr
}

func fractionLost(lost, total uint32) uint8 {
	if total == 0 {
		return 0
	}
	return uint8(float64(lost*256) / float64(total))
}

// ProcessPacket folds one received RTP packet into the running
// statistics: sequence-number-cycle tracking, cumulative/interval
// loss counting, and the RFC 3550 §A.8 jitter estimate.
func (r *Receiver) ProcessPacket(pkt *rtp.Packet, arrival time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.haveFirstPacket {
		r.haveFirstPacket = true
		r.countSinceReport = 1
		r.lastSeq = pkt.SequenceNumber
		r.senderSSRC = pkt.SSRC
		r.timeInitialized = true
		r.lastTimestampRTP = pkt.Timestamp
		r.lastTimestampSystem = arrival
		return nil
	}

	if pkt.SSRC != r.senderSSRC {
		return errs.New(errs.ProtocolError, "rtcpstats.ProcessPacket", pkt.SSRC, nil)
	}

	diff := int32(pkt.SequenceNumber) - int32(r.lastSeq)
	if diff < -0x0FFF {
		r.seqCycles++
	}

	if pkt.SequenceNumber != r.lastSeq+1 {
		lost := uint32(uint16(diff) - 1)
		r.totalLost += lost
		r.lostSinceReport += lost
		if r.totalLost > 0xFFFFFF {
			r.totalLost = 0xFFFFFF
		}
		if r.lostSinceReport > 0xFFFFFF {
			r.lostSinceReport = 0xFFFFFF
		}
	}

	r.countSinceReport += uint32(uint16(diff))
	r.lastSeq = pkt.SequenceNumber

	if r.timeInitialized && r.ClockRate > 0 {
		d := arrival.Sub(r.lastTimestampSystem).Seconds()*float64(r.ClockRate) -
			(float64(pkt.Timestamp) - float64(r.lastTimestampRTP))
		if d < 0 {
			d = -d
		}
		r.jitter += (d - r.jitter) / 16
	}

	r.timeInitialized = true
	r.lastTimestampRTP = pkt.Timestamp
	r.lastTimestampSystem = arrival

	return nil
}

// ProcessSenderReport records the data needed to fill in
// LastSenderReport/Delay on the next outgoing receiver report.
func (r *Receiver) ProcessSenderReport(sr *rtcp.SenderReport, arrival time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.haveFirstSR = true
	r.lastSRNTP = sr.NTPTime
	r.lastSRRTP = sr.RTPTime
	r.lastSRSystem = arrival
}

// WallClockForRTP maps an RTP timestamp to absolute wall-clock time
// using the most recent sender report as a reference point.
func (r *Receiver) WallClockForRTP(ts uint32) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.haveFirstSR || r.ClockRate <= 0 {
		return time.Time{}, false
	}

	diff := int32(ts - r.lastSRRTP)
	offset := (time.Duration(diff) * time.Second) / time.Duration(r.ClockRate)

	return ntpToGo(r.lastSRNTP).Add(offset), true
}

// SenderSSRC returns the SSRC of the RTP stream being tracked.
func (r *Receiver) SenderSSRC() (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.senderSSRC, r.haveFirstPacket
}
