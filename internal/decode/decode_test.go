package decode

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trungkh/alexa-emulator/internal/ringbuf"
	"github.com/trungkh/alexa-emulator/internal/wav"
)

func TestStereoToMonoTakesLeftChannel(t *testing.T) {
	// two stereo frames: (1, 9999), (2, 9999)
	input := []byte{1, 0, 0x0f, 0x27, 2, 0, 0x0f, 0x27}
	out := stereoToMono(input)
	assert.Equal(t, []int16{1, 2}, out)
}

func TestFramesToBytesRoundTrip(t *testing.T) {
	frames := []int16{-5, 0, 32000}
	b := framesToBytes(frames)
	assert.Len(t, b, 6)
	assert.Equal(t, frames, stereoAsMonoFromLE(b))
}

// stereoAsMonoFromLE treats a mono little-endian byte slice as frames, for
// the round-trip assertion above.
func stereoAsMonoFromLE(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
	}
	return out
}

// samplesPerFrame16kHz is the PCM sample count one MPEG-2 Layer III frame
// decodes to (576, half of MPEG-1's 1152, since the low sample rate modes
// halve the granule count per frame).
const samplesPerFrame16kHz = 576

// silentFrame16kHz builds one MPEG-2 (LSF) Layer III, mono, 16kHz, 8kbps
// frame with an all-zero side info and main data section. A zeroed granule
// declares zero big_values/part2_3_length, so there is no Huffman-coded
// spectral data to read and the frame decodes as exact silence; this is the
// standard trick for synthesizing a silent MP3 frame without a real encoder.
func silentFrame16kHz() []byte {
	const frameLen = 36 // 4-byte header + 9-byte side info + 23-byte main data, all zero past the header
	frame := make([]byte, frameLen)
	frame[0] = 0xFF // frame sync (high byte)
	frame[1] = 0xF3 // sync (low 3 bits) | MPEG version 2 | Layer III | no CRC
	frame[2] = 0x18 // bitrate index 1 (8kbps) | sample rate index 2 (16000Hz)
	frame[3] = 0xC4 // channel mode 3 (mono) | original
	return frame
}

func silentMP3_16kHz(frames int) []byte {
	out := make([]byte, 0, frames*36)
	for i := 0; i < frames; i++ {
		out = append(out, silentFrame16kHz()...)
	}
	return out
}

// silentFrame48kHz builds one MPEG-1 Layer III, mono, 48kHz, 32kbps frame
// with a zeroed body, used only to exercise WriteTurn's sample-rate check.
func silentFrame48kHz() []byte {
	const frameLen = 96
	frame := make([]byte, frameLen)
	frame[0] = 0xFF
	frame[1] = 0xFB // sync | MPEG version 1 | Layer III | no CRC
	frame[2] = 0x14 // bitrate index 1 (32kbps) | sample rate index 1 (48000Hz)
	frame[3] = 0xC4 // channel mode 3 (mono) | original
	return frame
}

func TestWriteTurnDecodesSilenceIntoPlaybackRing(t *testing.T) {
	d := NewDecoder()
	playback := ringbuf.New(ringbuf.DefaultCapacity)

	const frames = 4
	require.NoError(t, d.WriteTurn(silentMP3_16kHz(frames), playback, nil))

	want := frames * samplesPerFrame16kHz
	require.Equal(t, want, playback.ReadAvailable())

	out := make([]int16, want)
	playback.Read(out)
	for i, s := range out {
		assert.Zerof(t, s, "sample %d should be silence", i)
	}
}

func TestWriteTurnWritesWAVSink(t *testing.T) {
	d := NewDecoder()
	playback := ringbuf.New(ringbuf.DefaultCapacity)

	sinkPath := filepath.Join(t.TempDir(), "turn.wav")
	sink, err := wav.Create(sinkPath)
	require.NoError(t, err)

	const frames = 2
	require.NoError(t, d.WriteTurn(silentMP3_16kHz(frames), playback, sink))
	require.NoError(t, sink.Close())

	pcm, err := wav.ReadFile(sinkPath)
	require.NoError(t, err)
	assert.Len(t, pcm, frames*samplesPerFrame16kHz*2)
}

func TestWriteTurnRejectsWrongSampleRate(t *testing.T) {
	d := NewDecoder()
	playback := ringbuf.New(ringbuf.DefaultCapacity)

	err := d.WriteTurn(silentFrame48kHz(), playback, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected mp3 sample rate")
}
