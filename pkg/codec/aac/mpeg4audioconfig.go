package aac

import (
	"github.com/bkataru-workshop/vdkio/errs"
	"github.com/bkataru-workshop/vdkio/pkg/bitreader"
)

// AudioSpecificConfig is a MPEG-4 AudioSpecificConfig (ISO/IEC
// 14496-3), the out-of-band descriptor carried in SDP's fmtp
// "config=" parameter for RFC 3640 payloads and in an MP4 esds box.
// Grounded on the teacher's pkg/aac.MPEG4AudioConfig, read through
// pkg/bitreader instead of the teacher's pkg/bits (buf, *pos) pair.
type AudioSpecificConfig struct {
	Type         AudioType
	SampleRate   int
	ChannelCount int

	FrameLengthFlag    bool
	DependsOnCoreCoder bool
	CoreCoderDelay     uint16
}

// ParseAudioSpecificConfig decodes an AudioSpecificConfig.
func ParseAudioSpecificConfig(buf []byte) (*AudioSpecificConfig, error) {
	r := bitreader.New(buf)
	c := &AudioSpecificConfig{}

	typ, err := r.ReadBits(5)
	if err != nil {
		return nil, err
	}
	c.Type = AudioType(typ)
	if c.Type != AudioTypeAACLC {
		return nil, errs.New(errs.Unsupported, "aac.ParseAudioSpecificConfig", int(c.Type), nil)
	}

	sampleRateIndex, err := r.ReadBits(4)
	if err != nil {
		return nil, err
	}
	switch {
	case sampleRateIndex <= 12:
		c.SampleRate = sampleRates[sampleRateIndex]
	case sampleRateIndex == 15:
		v, err := r.ReadBits(24)
		if err != nil {
			return nil, err
		}
		c.SampleRate = int(v)
	default:
		return nil, errs.New(errs.InvalidBitstream, "aac.ParseAudioSpecificConfig", sampleRateIndex, nil)
	}

	channelConfig, err := r.ReadBits(4)
	if err != nil {
		return nil, err
	}
	switch {
	case channelConfig >= 1 && channelConfig <= 6:
		c.ChannelCount = int(channelConfig)
	case channelConfig == 7:
		c.ChannelCount = 8
	default:
		return nil, errs.New(errs.InvalidBitstream, "aac.ParseAudioSpecificConfig", channelConfig, nil)
	}

	if c.FrameLengthFlag, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if c.DependsOnCoreCoder, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if c.DependsOnCoreCoder {
		v, err := r.ReadBits(14)
		if err != nil {
			return nil, err
		}
		c.CoreCoderDelay = uint16(v)
	}

	extensionFlag, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if extensionFlag {
		return nil, errs.New(errs.Unsupported, "aac.ParseAudioSpecificConfig", "extension not supported", nil)
	}

	return c, nil
}

// Marshal encodes an AudioSpecificConfig.
func (c *AudioSpecificConfig) Marshal() ([]byte, error) {
	w := bitreader.NewWriter()

	w.WriteBits(uint64(c.Type), 5)

	if sampleRateIndex, ok := reverseSampleRates[c.SampleRate]; ok {
		w.WriteBits(uint64(sampleRateIndex), 4)
	} else {
		w.WriteBits(15, 4)
		w.WriteBits(uint64(c.SampleRate), 24)
	}

	var channelConfig int
	switch {
	case c.ChannelCount >= 1 && c.ChannelCount <= 6:
		channelConfig = c.ChannelCount
	case c.ChannelCount == 8:
		channelConfig = 7
	default:
		return nil, errs.New(errs.InvalidInput, "aac.AudioSpecificConfig.Marshal", c.ChannelCount, nil)
	}
	w.WriteBits(uint64(channelConfig), 4)

	w.WriteBool(c.FrameLengthFlag)
	w.WriteBool(c.DependsOnCoreCoder)
	if c.DependsOnCoreCoder {
		w.WriteBits(uint64(c.CoreCoderDelay), 14)
	}
	w.WriteBool(false) // extensionFlag: unsupported, always absent

	return w.Bytes(), nil
}
