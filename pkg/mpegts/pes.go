package mpegts

// BuildPES wraps payload in a PES header carrying pts (and dts, when
// hasDTS and it differs from pts) in the 33-bit split layout spec.md
// §4.G specifies, both already in the 90kHz timebase. PES_packet_length
// is omitted (set to 0) when the total would exceed 65,535 bytes, as
// video access units routinely do.
func BuildPES(streamID byte, pts, dts int64, hasDTS bool, payload []byte) []byte {
	var optional []byte
	if hasDTS {
		optional = make([]byte, 10)
		putTimestamp(optional[0:5], 0x3, uint64(pts))
		putTimestamp(optional[5:10], 0x1, uint64(dts))
	} else {
		optional = make([]byte, 5)
		putTimestamp(optional[0:5], 0x2, uint64(pts))
	}

	ptsDTSFlags := byte(0x02)
	if hasDTS {
		ptsDTSFlags = 0x03
	}

	packetLength := 3 + len(optional) + len(payload)
	lengthField := uint16(packetLength)
	if packetLength > 0xFFFF {
		lengthField = 0
	}

	out := make([]byte, 0, 9+len(optional)+len(payload))
	out = append(out, 0x00, 0x00, 0x01) // packet_start_code_prefix
	out = append(out, streamID)
	out = append(out, byte(lengthField>>8), byte(lengthField))
	out = append(out, 0x80)             // '10'+scrambling(0)+priority(0)+alignment(0)+copyright(0)+original(0)
	out = append(out, ptsDTSFlags<<6)   // PTS_DTS_flags, rest of optional flags 0
	out = append(out, byte(len(optional)))
	out = append(out, optional...)
	out = append(out, payload...)
	return out
}

// putTimestamp encodes a 33-bit timestamp into a 5-byte PES
// PTS/DTS field with the given 4-bit marker prefix (0x2 for PTS-only,
// 0x3 for PTS when DTS also present, 0x1 for DTS).
func putTimestamp(buf []byte, marker byte, ts uint64) {
	buf[0] = marker<<4 | byte((ts>>30)&0x07)<<1 | 1
	buf[1] = byte((ts >> 22) & 0xFF)
	buf[2] = byte((ts>>15)&0x7F)<<1 | 1
	buf[3] = byte((ts >> 7) & 0xFF)
	buf[4] = byte(ts&0x7F)<<1 | 1
}

// writePCR encodes a 27MHz PCR value into the 6-byte adaptation-field
// PCR field (33-bit base + 6 reserved bits + 9-bit extension).
func writePCR(buf []byte, pcr int64) {
	base := uint64(pcr / 300)
	ext := uint64(pcr % 300)
	buf[0] = byte(base >> 25)
	buf[1] = byte(base >> 17)
	buf[2] = byte(base >> 9)
	buf[3] = byte(base >> 1)
	buf[4] = byte(base<<7) | 0x7E | byte(ext>>8)
	buf[5] = byte(ext)
}
