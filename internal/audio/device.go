// Package audio wires a single duplex malgo device to the capture and
// playback ring buffers, implementing the real-time audio callback core.
// Input and output share a single real-time thread, so it uses malgo's
// Duplex device mode with one Data callback rather than two independent
// capture/playback devices.
package audio

import (
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/trungkh/alexa-emulator/internal/capture"
	"github.com/trungkh/alexa-emulator/internal/ringbuf"
)

const (
	bytesPerFrame  = 2    // int16 mono
	initialScratch = 4096 // frames; grown on demand, never shrunk
)

// Device owns the duplex audio stream and the capture/playback ring pair.
type Device struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	capture  *capture.Controller
	playback *ringbuf.Ring
}

// Open initializes the audio context and a duplex device at sampleRate,
// wiring its callback to ctrl (capture side) and playback (playback side).
// Scratch buffers start at initialScratch frames and only ever grow, so the
// common-case callback never allocates; frameCount is backend-chosen and not
// bounded by this code, so a too-small buffer resizes rather than truncating.
func Open(sampleRate uint32, ctrl *capture.Controller, playback *ringbuf.Ring) (*Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = sampleRate

	d := &Device{ctx: ctx, capture: ctrl, playback: playback}

	inFrame := make([]int16, initialScratch)
	outFrame := make([]int16, initialScratch)

	onData := func(output, input []byte, frameCount uint32) {
		n := int(frameCount)

		// Scratch buffers grow to fit the largest callback seen so far; a
		// real-time callback still must not shrink or reallocate on the
		// common path, only on the rare period-size change that grows past
		// the current high-water mark.
		if n > cap(outFrame) {
			log.Printf("⚠️  audio: growing output scratch buffer %d -> %d frames", cap(outFrame), n)
			outFrame = make([]int16, n)
		}
		got := playback.Read(outFrame[:n])
		for i := 0; i < got; i++ {
			binary.LittleEndian.PutUint16(output[i*2:i*2+2], uint16(outFrame[i]))
		}
		for i := got * 2; i < len(output); i++ {
			output[i] = 0
		}

		m := len(input) / bytesPerFrame
		if m > cap(inFrame) {
			log.Printf("⚠️  audio: growing input scratch buffer %d -> %d frames", cap(inFrame), m)
			inFrame = make([]int16, m)
		}
		for i := 0; i < m; i++ {
			inFrame[i] = int16(binary.LittleEndian.Uint16(input[i*2 : i*2+2]))
		}
		ctrl.AcceptCallback(inFrame[:m])
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onData,
	})
	if err != nil {
		ctx.Uninit()
		return nil, fmt.Errorf("audio: init device: %w", err)
	}

	d.device = device
	return d, nil
}

// Start begins the duplex stream.
func (d *Device) Start() error {
	if err := d.device.Start(); err != nil {
		return fmt.Errorf("audio: start device: %w", err)
	}
	return nil
}

// Drain polls the playback ring buffer until empty or timeout elapses,
// termination waits for queued audio to play out rather than cutting it off.
func (d *Device) Drain(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for d.playback.ReadAvailable() > 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
}

// Close stops and tears down the device and audio context.
func (d *Device) Close() {
	if d.device != nil {
		d.device.Uninit()
	}
	if d.ctx != nil {
		d.ctx.Uninit()
	}
}
