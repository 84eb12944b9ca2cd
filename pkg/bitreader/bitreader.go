// Package bitreader reads MSB-first unaligned bitfields and decodes
// Exp-Golomb codewords out of a H.264/H.265 RBSP, plus the
// emulation-prevention pass that produces an RBSP from a raw NALU.
//
// The bit-level primitives are grounded on the teacher's
// pkg/bits/read.go (ReadBits/ReadGolombUnsigned/ReadGolombSigned/
// ReadFlag), which operates on a (buf []byte, pos *int) pair; vdkio
// wraps the same arithmetic in a stateful Reader to match spec.md
// §4.A's read_bits/read_bool/byte_align/remaining_bits API shape.
package bitreader

import (
	"github.com/bkataru-workshop/vdkio/errs"
)

// maxLeadingZeros bounds the leading-zero run accepted by an
// Exp-Golomb codeword, per spec.md §4.A.
const maxLeadingZeros = 32

// Reader reads bits MSB-first from a byte slice.
type Reader struct {
	buf []byte
	pos int // absolute bit position
}

// New allocates a Reader over buf.
func New(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// RemainingBits returns the number of unread bits.
func (r *Reader) RemainingBits() int {
	return len(r.buf)*8 - r.pos
}

// ReadBits reads n (<=64) bits and returns them right-aligned.
func (r *Reader) ReadBits(n int) (uint64, error) {
	if n < 0 || n > r.RemainingBits() {
		return 0, errs.New(errs.InvalidBitstream, "bitreader.ReadBits", n, nil)
	}
	if n == 0 {
		return 0, nil
	}

	v := uint64(0)
	pos := r.pos

	res := 8 - (pos & 0x07)
	if n < res {
		v = uint64((r.buf[pos>>3] >> (res - n)) & (1<<n - 1))
		r.pos += n
		return v, nil
	}

	v = uint64(r.buf[pos>>3] & (1<<res - 1))
	pos += res
	remaining := n - res

	for remaining >= 8 {
		v = (v << 8) | uint64(r.buf[pos>>3])
		pos += 8
		remaining -= 8
	}

	if remaining > 0 {
		v = (v << remaining) | uint64(r.buf[pos>>3]>>(8-remaining))
		pos += remaining
	}

	r.pos = pos
	return v, nil
}

// ReadBool reads a single bit as a boolean flag.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

// ByteAlign advances the read position to the next byte boundary.
func (r *Reader) ByteAlign() {
	if rem := r.pos & 0x07; rem != 0 {
		r.pos += 8 - rem
	}
}

// ReadBytesAligned byte-aligns the reader, then reads n raw bytes.
func (r *Reader) ReadBytesAligned(n int) ([]byte, error) {
	r.ByteAlign()
	if n < 0 || r.pos+n*8 > len(r.buf)*8 {
		return nil, errs.New(errs.InvalidBitstream, "bitreader.ReadBytesAligned", n, nil)
	}
	start := r.pos >> 3
	out := make([]byte, n)
	copy(out, r.buf[start:start+n])
	r.pos += n * 8
	return out, nil
}

// ReadUE decodes an unsigned Exp-Golomb codeword ue(v).
//
// Algorithm (spec.md §4.A):
//  1. count the leading-zero run LZ (<=32)
//  2. consume the terminating 1 bit
//  3. read LZ bits as an unsigned suffix
//  4. return (1<<LZ) + suffix - 1
func (r *Reader) ReadUE() (uint32, error) {
	lz := 0
	for {
		b, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if b != 0 {
			break
		}
		lz++
		if lz > maxLeadingZeros {
			return 0, errs.New(errs.InvalidBitstream, "bitreader.ReadUE", lz, nil)
		}
	}

	if lz == 0 {
		return 0, nil
	}

	suffix, err := r.ReadBits(lz)
	if err != nil {
		return 0, err
	}

	return uint32((uint64(1)<<uint(lz) - 1) + suffix), nil
}

// ReadSE decodes a signed Exp-Golomb codeword se(v): decode u = ue(v),
// then map 0->0, 1->+1, 2->-1, 3->+2, 4->-2, ... i.e.
// (-1)^(u+1) * ceil(u/2).
func (r *Reader) ReadSE() (int32, error) {
	u, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	ui := int32(u)
	if ui&1 != 0 {
		return (ui + 1) / 2, nil
	}
	return -ui / 2, nil
}

// RemoveEmulationPrevention strips the 0x03 byte that Annex-B inserts
// after every 0x00 0x00 run inside a NALU (the "anti-emulation" or
// "emulation-prevention" byte), producing the RBSP the bit reader
// above operates on.
func RemoveEmulationPrevention(nalu []byte) []byte {
	out := make([]byte, 0, len(nalu))
	zeroRun := 0
	for i := 0; i < len(nalu); i++ {
		b := nalu[i]
		if zeroRun >= 2 && b == 0x03 {
			zeroRun = 0
			continue
		}
		if b == 0 {
			zeroRun++
		} else {
			zeroRun = 0
		}
		out = append(out, b)
	}
	return out
}

// InsertEmulationPrevention is the inverse of RemoveEmulationPrevention:
// given a RBSP, re-insert the 0x03 escape byte after every 0x00 0x00
// run that is followed by a byte <= 0x03, as required before the NALU
// can be embedded in an Annex-B stream. Property 2 in spec.md §8 requires this to round-trip.
func InsertEmulationPrevention(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+len(rbsp)/2+2)
	zeroRun := 0
	for i := 0; i < len(rbsp); i++ {
		b := rbsp[i]
		if zeroRun >= 2 && b <= 0x03 {
			out = append(out, 0x03)
			zeroRun = 0
		}
		if b == 0 {
			zeroRun++
		} else {
			zeroRun = 0
		}
		out = append(out, b)
	}
	return out
}
