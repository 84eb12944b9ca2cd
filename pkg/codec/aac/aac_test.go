package aac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Fixtures grounded on the teacher's pkg/aac/mpeg4audioconfig_test.go.
var configCases = []struct {
	name string
	enc  []byte
	dec  AudioSpecificConfig
}{
	{
		"aac-lc 16khz mono",
		[]byte{0x14, 0x08},
		AudioSpecificConfig{Type: AudioTypeAACLC, SampleRate: 16000, ChannelCount: 1},
	},
	{
		"aac-lc 44.1khz mono",
		[]byte{0x12, 0x08},
		AudioSpecificConfig{Type: AudioTypeAACLC, SampleRate: 44100, ChannelCount: 1},
	},
	{
		"aac-lc 44.1khz 5.1",
		[]byte{0x12, 0x30},
		AudioSpecificConfig{Type: AudioTypeAACLC, SampleRate: 44100, ChannelCount: 6},
	},
	{
		"aac-lc 48khz stereo",
		[]byte{17, 144},
		AudioSpecificConfig{Type: AudioTypeAACLC, SampleRate: 48000, ChannelCount: 2},
	},
	{
		"aac-lc 53khz stereo",
		[]byte{0x17, 0x80, 0x67, 0x84, 0x10},
		AudioSpecificConfig{Type: AudioTypeAACLC, SampleRate: 53000, ChannelCount: 2},
	},
	{
		"aac-lc 96khz stereo delay",
		[]byte{0x10, 0x12, 0x0c, 0x08},
		AudioSpecificConfig{
			Type: AudioTypeAACLC, SampleRate: 96000, ChannelCount: 2,
			DependsOnCoreCoder: true, CoreCoderDelay: 385,
		},
	},
}

func TestParseAudioSpecificConfig(t *testing.T) {
	for _, c := range configCases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ParseAudioSpecificConfig(c.enc)
			require.NoError(t, err)
			require.Equal(t, &c.dec, got)
		})
	}
}

func TestMarshalAudioSpecificConfig(t *testing.T) {
	for _, c := range configCases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.dec
			got, err := cfg.Marshal()
			require.NoError(t, err)
			require.Equal(t, c.enc, got)
		})
	}
}

func TestMarshalAudioSpecificConfigInvalidChannelCount(t *testing.T) {
	cfg := AudioSpecificConfig{Type: AudioTypeAACLC, SampleRate: 44100, ChannelCount: 0}
	_, err := cfg.Marshal()
	require.Error(t, err)
}

func TestADTSRoundTrip(t *testing.T) {
	frames := []*ADTSFrame{
		{Type: AudioTypeAACLC, SampleRate: 44100, ChannelCount: 2, AU: []byte{1, 2, 3, 4, 5}},
		{Type: AudioTypeAACLC, SampleRate: 44100, ChannelCount: 2, AU: []byte{6, 7, 8}},
	}
	stream, err := BuildADTSStream(frames)
	require.NoError(t, err)

	got, err := ParseADTSStream(stream)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, frames[0].AU, got[0].AU)
	require.Equal(t, frames[1].AU, got[1].AU)
	require.Equal(t, 44100, got[0].SampleRate)
	require.Equal(t, 2, got[0].ChannelCount)
}

func TestParseADTSStreamRejectsBadSyncWord(t *testing.T) {
	_, err := ParseADTSStream([]byte{0, 0, 0, 0, 0, 0, 0, 0})
	require.Error(t, err)
}

func TestParseADTSStreamTooShort(t *testing.T) {
	_, err := ParseADTSStream([]byte{0xFF, 0xF1, 0, 0, 0})
	require.Error(t, err)
}
