// Package multipart builds the streaming multipart/form-data upload body:
// header, WAV preamble, live recorded PCM, and trailer, written directly
// into the capture ring buffer so the HTTPS reader can stream it without
// buffering the whole turn in memory.
package multipart

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trungkh/alexa-emulator/internal/capture"
	"github.com/trungkh/alexa-emulator/internal/wav"
)

// headerTemplate is the fixed template preceding the WAV preamble: a JSON metadata
// part followed by the opening of the audio part. Field order and content
// mirror the original DATA_HEADER macro.
const headerTemplate = "--%s\r\nContent-Disposition: form-data; name=\"metadata\"" +
	"\r\nContent-Type: application/json; charset=UTF-8\r\n" +
	"\r\n{\"messageHeader\":{},\"messageBody\":{" +
	"\"profile\":\"alexa-close-talk\"," +
	"\"locale\":\"en-us\"," +
	"\"format\":\"audio/L16; rate=%d; channels=1\"" +
	"}}\r\n\r\n" +
	"--%s\r\nContent-Disposition: form-data; name=\"audio\"" +
	"\r\nContent-Type: audio/L16; rate=%d; channels=1\r\n\r\n"

// trailerTemplate is the closing multipart boundary.
const trailerTemplate = "\r\n\r\n--%s--\r\n\r\n"

// NewBoundary returns a fresh random multipart boundary token.
func NewBoundary() string {
	return uuid.NewString()
}

// Builder produces the upload regions (header, WAV preamble, trailer) on a
// dedicated worker, writing directly into a capture.Controller's ring
// buffer and signaling the total upload size once known.
type Builder struct {
	ctrl     *capture.Controller
	boundary string

	mu        sync.Mutex
	cond      *sync.Cond
	ready     bool
	totalSize int
}

// NewBuilder creates a Builder bound to the given capture controller and
// boundary token.
func NewBuilder(ctrl *capture.Controller, boundary string) *Builder {
	b := &Builder{ctrl: ctrl, boundary: boundary}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Run stages the header and WAV preamble, flips capture mode to Recording
// for recordFrames frames, signals the total upload size, waits for
// recording to finish, and writes the trailer. It is meant to run on its
// own goroutine, one per turn; the caller should launch it with `go` and
// call WaitForSize to get the signaled total size.
func (b *Builder) Run(recordFrames int) {
	ring := b.ctrl.Ring()

	b.ctrl.Lock()
	ring.Flush()

	header := []byte(fmt.Sprintf(headerTemplate, b.boundary, wav.SampleRate, b.boundary, wav.SampleRate))
	headerWritten := ring.Write(bytesToFrames(header))
	total := headerWritten * wav.BytesPerFrame

	preamble := wav.Preamble(uint32(recordFrames * wav.BytesPerFrame))
	preambleWritten := ring.Write(bytesToFrames(preamble))
	total += preambleWritten * wav.BytesPerFrame

	total += recordFrames * wav.BytesPerFrame

	b.ctrl.EnterRecording(int64(recordFrames))
	b.ctrl.Unlock()

	// The ring holds whole frames, so an odd-length trailer loses its last
	// byte; count only the bytes that are actually written.
	trailer := bytesToFrames([]byte(fmt.Sprintf(trailerTemplate, b.boundary)))
	total += len(trailer) * wav.BytesPerFrame

	b.mu.Lock()
	b.totalSize = total
	b.ready = true
	b.cond.Signal()
	b.mu.Unlock()

	for b.ctrl.Mode() == capture.Recording {
		time.Sleep(10 * time.Millisecond)
	}

	b.ctrl.Lock()
	ring.Write(trailer)
	b.ctrl.Unlock()
}

// WaitForSize blocks until Run has signaled the total upload size and
// returns it.
func (b *Builder) WaitForSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.ready {
		b.cond.Wait()
	}
	return b.totalSize
}

// bytesToFrames reinterprets a byte slice as little-endian int16 frames,
// truncating a trailing odd byte.
func bytesToFrames(b []byte) []int16 {
	n := len(b) / wav.BytesPerFrame
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return out
}

// FramesToBytes is the inverse of bytesToFrames, used by the HTTPS streaming
// reader to turn ring buffer frames back into wire bytes.
func FramesToBytes(frames []int16) []byte {
	out := make([]byte, len(frames)*wav.BytesPerFrame)
	for i, f := range frames {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(f))
	}
	return out
}
