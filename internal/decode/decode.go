// Package decode turns MP3 bytes from the server response into 16 kHz
// mono PCM16 frames written to the playback ring buffer, optionally also
// writing a WAV copy of each turn's audio.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"github.com/trungkh/alexa-emulator/internal/ringbuf"
	"github.com/trungkh/alexa-emulator/internal/wav"
)

// Decoder streams MP3 data into a playback ring buffer.
type Decoder struct {
	mu sync.Mutex
}

// NewDecoder creates a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// WriteTurn decodes one MP3 part and block-poll-writes the resulting PCM16
// frames into playback. If sink is non-nil
// (the -o/--output flag), the decoded audio is also written there as a WAV
// file.
func (d *Decoder) WriteTurn(mp3Bytes []byte, playback *ringbuf.Ring, sink *wav.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dec, err := mp3.NewDecoder(bytes.NewReader(mp3Bytes))
	if err != nil {
		return fmt.Errorf("decode: mp3 open: %w", err)
	}
	if dec.SampleRate() != wav.SampleRate {
		return fmt.Errorf("decode: unexpected mp3 sample rate %d, expected %d", dec.SampleRate(), wav.SampleRate)
	}

	// go-mp3 always decodes to 16-bit little-endian stereo; the server's
	// content is mono-sourced so left/right channels are identical, and we
	// collapse back to mono frames before writing to the ring buffer.
	buf := make([]byte, 4096)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			mono := stereoToMono(buf[:n])
			if sink != nil {
				if _, werr := sink.Write(framesToBytes(mono)); werr != nil {
					return fmt.Errorf("decode: writing sink: %w", werr)
				}
			}
			writeBlocking(playback, mono)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("decode: mp3 decode error: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return nil
}

// writeBlocking polls until the playback ring has room; playback writes
// are never dropped.
func writeBlocking(playback *ringbuf.Ring, frames []int16) {
	for len(frames) > 0 {
		n := playback.Write(frames)
		frames = frames[n:]
		if len(frames) > 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// stereoToMono converts go-mp3's interleaved 16-bit stereo output into mono
// int16 frames by taking the left channel.
func stereoToMono(b []byte) []int16 {
	n := len(b) / 4
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		lo := b[i*4]
		hi := b[i*4+1]
		out[i] = int16(uint16(lo) | uint16(hi)<<8)
	}
	return out
}

func framesToBytes(frames []int16) []byte {
	out := make([]byte, len(frames)*2)
	for i, f := range frames {
		out[i*2] = byte(f)
		out[i*2+1] = byte(f >> 8)
	}
	return out
}
