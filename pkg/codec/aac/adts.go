package aac

import (
	"github.com/bkataru-workshop/vdkio/errs"
)

// ADTSFrame is one decoded ADTS frame: a 7-byte fixed+variable
// header (CRC not supported, matching the teacher) followed by one
// raw_data_block access unit.
type ADTSFrame struct {
	Type         AudioType
	SampleRate   int
	ChannelCount int
	AU           []byte
}

// ParseADTSStream decodes a concatenated run of ADTS frames, as seen
// back-to-back in a .aac file or a single RTP depacketized chunk in
// ADTS mode. Grounded on the teacher's pkg/aac.DecodeADTS.
func ParseADTSStream(buf []byte) ([]*ADTSFrame, error) {
	var frames []*ADTSFrame

	for len(buf) > 0 {
		if len(buf) < 8 {
			return nil, errs.New(errs.InvalidBitstream, "aac.ParseADTSStream", "invalid length", nil)
		}

		syncWord := (uint16(buf[0]) << 4) | (uint16(buf[1]) >> 4)
		if syncWord != 0xfff {
			return nil, errs.New(errs.InvalidBitstream, "aac.ParseADTSStream", "invalid syncword", nil)
		}

		protectionAbsent := buf[1] & 0x01
		if protectionAbsent != 1 {
			return nil, errs.New(errs.Unsupported, "aac.ParseADTSStream", "CRC is not supported", nil)
		}

		f := &ADTSFrame{Type: AudioType((buf[2] >> 6) + 1)}
		if f.Type != AudioTypeAACLC {
			return nil, errs.New(errs.Unsupported, "aac.ParseADTSStream", int(f.Type), nil)
		}

		sampleRateIndex := (buf[2] >> 2) & 0x0F
		if int(sampleRateIndex) >= len(sampleRates) {
			return nil, errs.New(errs.InvalidBitstream, "aac.ParseADTSStream", sampleRateIndex, nil)
		}
		f.SampleRate = sampleRates[sampleRateIndex]

		channelConfig := ((buf[2] & 0x01) << 2) | ((buf[3] >> 6) & 0x03)
		switch {
		case channelConfig >= 1 && channelConfig <= 6:
			f.ChannelCount = int(channelConfig)
		case channelConfig == 7:
			f.ChannelCount = 8
		default:
			return nil, errs.New(errs.InvalidBitstream, "aac.ParseADTSStream", channelConfig, nil)
		}

		frameLen := int(((uint16(buf[3])&0x03)<<11)|
			(uint16(buf[4])<<3)|
			((uint16(buf[5])>>5)&0x07)) - 7

		if buf[6]&0x03 != 0 {
			return nil, errs.New(errs.Unsupported, "aac.ParseADTSStream", "multiple frame count not supported", nil)
		}

		if frameLen < 0 || len(buf[7:]) < frameLen {
			return nil, errs.New(errs.InvalidBitstream, "aac.ParseADTSStream", frameLen, nil)
		}

		f.AU = buf[7 : 7+frameLen]
		buf = buf[7+frameLen:]

		frames = append(frames, f)
	}

	return frames, nil
}

// BuildADTSStream encodes frames back into a concatenated ADTS byte
// stream, always with the fullness field ffmpeg-style constant
// (0x07FF, "unknown/VBR") and CRC absent.
func BuildADTSStream(frames []*ADTSFrame) ([]byte, error) {
	var out []byte

	for _, f := range frames {
		sampleRateIndex, ok := reverseSampleRates[f.SampleRate]
		if !ok {
			return nil, errs.New(errs.InvalidInput, "aac.BuildADTSStream", f.SampleRate, nil)
		}

		var channelConfig int
		switch {
		case f.ChannelCount >= 1 && f.ChannelCount <= 6:
			channelConfig = f.ChannelCount
		case f.ChannelCount == 8:
			channelConfig = 7
		default:
			return nil, errs.New(errs.InvalidInput, "aac.BuildADTSStream", f.ChannelCount, nil)
		}

		frameLen := len(f.AU) + 7
		const fullness = 0x07FF

		header := make([]byte, 7)
		header[0] = 0xFF
		header[1] = 0xF1
		header[2] = byte(((int(f.Type) - 1) << 6) | (sampleRateIndex << 2) | ((channelConfig >> 2) & 0x01))
		header[3] = byte((channelConfig&0x03)<<6 | (frameLen>>11)&0x03)
		header[4] = byte((frameLen >> 3) & 0xFF)
		header[5] = byte((frameLen&0x07)<<5 | ((fullness >> 6) & 0x1F))
		header[6] = byte((fullness & 0x3F) << 2)

		out = append(out, header...)
		out = append(out, f.AU...)
	}

	return out, nil
}
