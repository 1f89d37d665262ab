// Package dialog implements the top-level dialog loop: pulling capture
// chunks, running wake-word detection, refreshing credentials, posting a
// turn, and routing the demultiplexed response.
package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/trungkh/alexa-emulator/internal/capture"
	"github.com/trungkh/alexa-emulator/internal/config"
	"github.com/trungkh/alexa-emulator/internal/credential"
	"github.com/trungkh/alexa-emulator/internal/decode"
	"github.com/trungkh/alexa-emulator/internal/demux"
	"github.com/trungkh/alexa-emulator/internal/multipart"
	"github.com/trungkh/alexa-emulator/internal/ringbuf"
	"github.com/trungkh/alexa-emulator/internal/wakeword"
	"github.com/trungkh/alexa-emulator/internal/wav"
)

const (
	minDetectFrames = 1600 // 100ms at 16kHz
	pollInterval    = 10 * time.Millisecond
	postTimeout     = 10 * time.Second
)

// Orchestrator runs the main dialog loop: pull audio, detect the wake
// word, upload a turn, and route the demultiplexed response.
type Orchestrator struct {
	cfg      *config.Config
	capture  *capture.Controller
	playback *ringbuf.Ring
	detector wakeword.Detector
	credCli  *credential.Client
	decoder  *decode.Decoder
	http     *http.Client
	boundary string
	sink     *wav.Writer

	listenSound []int16
	lostSound   []int16

	cred  *credential.Record
	reask bool
}

// New builds an Orchestrator. cred is the initial credential record loaded
// from the persisted config file; it is mutated in place as tokens refresh.
func New(cfg *config.Config, ctrl *capture.Controller, playback *ringbuf.Ring, detector wakeword.Detector, credCli *credential.Client, cred *credential.Record, listenSound, lostSound []int16, sink *wav.Writer) *Orchestrator {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout: postTimeout,
		}).DialContext,
	}
	return &Orchestrator{
		cfg:         cfg,
		capture:     ctrl,
		playback:    playback,
		detector:    detector,
		credCli:     credCli,
		decoder:     decode.NewDecoder(),
		http:        &http.Client{Transport: transport, Timeout: postTimeout},
		boundary:    multipart.NewBoundary(),
		sink:        sink,
		listenSound: listenSound,
		lostSound:   lostSound,
		cred:        cred,
	}
}

// Run executes the main loop until ctx is cancelled. Cancellation is checked
// between turns and while waiting for capture audio; a cancellation during a
// turn also aborts that turn's token refresh or upload.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		chunk, err := o.pullChunk(ctx)
		if err != nil {
			return nil
		}

		if !o.detect(chunk) {
			continue
		}

		if o.listenSound != nil {
			o.enqueueSound(o.listenSound)
		}

		if err := o.ensureToken(ctx); err != nil {
			log.Printf("⚠️  credential refresh failed: %v", err)
			o.flushCapture()
			continue
		}

		recordFrames := o.cfg.SampleRate * o.cfg.RecordDurationMs / 1000
		builder := multipart.NewBuilder(o.capture, o.boundary)
		go builder.Run(recordFrames)
		totalSize := builder.WaitForSize()

		reqCtx, cancel := context.WithTimeout(ctx, postTimeout)
		resp, err := o.post(reqCtx, totalSize)
		cancel()
		if err != nil {
			log.Printf("⚠️  upload failed: %v", err)
			o.handleNetworkError()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			log.Printf("⚠️  server returned status %d", resp.StatusCode)
			resp.Body.Close()
			o.handleNetworkError()
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			log.Printf("⚠️  reading response failed: %v", err)
			o.handleNetworkError()
			continue
		}

		respBoundary, err := demux.ExtractBoundary(body)
		if err != nil {
			log.Printf("⚠️  malformed response: %v", err)
			o.flushCapture()
			o.restoreLive()
			continue
		}
		parts, err := demux.Split(body, respBoundary)
		if err != nil {
			log.Printf("⚠️  demux failed: %v", err)
			o.flushCapture()
			o.restoreLive()
			continue
		}

		o.routeJSON(parts)
		o.decodeAudio(parts)
		o.restoreLive()

		if o.cfg.Verbose {
			log.Printf("🎙️  turn complete, reask=%v", o.reask)
		}
	}
}

// pullChunk waits (polled sleep) for at least minDetectFrames frames in the
// capture ring, then drains what is available and returns it.
func (o *Orchestrator) pullChunk(ctx context.Context) ([]int16, error) {
	ring := o.capture.Ring()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		o.capture.Lock()
		avail := ring.ReadAvailable()
		if avail >= minDetectFrames {
			buf := make([]int16, avail)
			ring.Read(buf)
			o.capture.Unlock()
			return buf, nil
		}
		o.capture.Unlock()
		time.Sleep(pollInterval)
	}
}

// detect runs the wake-word detector on chunk; a pending reask from a prior
// turn bypasses the gate for exactly one subsequent turn.
func (o *Orchestrator) detect(chunk []int16) bool {
	if o.reask {
		return true
	}
	return o.detector.Detect(chunk) > 0
}

// enqueueSound block-poll writes sound into the playback ring, never
// dropping.
func (o *Orchestrator) enqueueSound(sound []int16) {
	for len(sound) > 0 {
		n := o.playback.Write(sound)
		sound = sound[n:]
		if len(sound) > 0 {
			time.Sleep(pollInterval)
		}
	}
}

// ensureToken refreshes the access token if it is not currently valid and
// persists the result.
func (o *Orchestrator) ensureToken(ctx context.Context) error {
	if o.cred.Valid(time.Now()) {
		return nil
	}
	rec, err := o.credCli.Refresh(ctx, o.cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("dialog: refreshing token: %w", err)
	}
	rec.ClientID = o.cred.ClientID
	rec.ClientSecret = o.cred.ClientSecret
	if rec.RefreshToken == "" {
		rec.RefreshToken = o.cred.RefreshToken
	}
	*o.cred = *rec
	if err := config.SaveCredentials(o.cfg.ConfigFile, o.cred); err != nil {
		return fmt.Errorf("dialog: persisting token: %w", err)
	}
	return nil
}

// post issues the chunked multipart upload, streaming the body directly from
// the capture ring buffer as the builder fills it.
func (o *Orchestrator) post(ctx context.Context, totalSize int) (*http.Response, error) {
	body := &ringReader{ctx: ctx, ctrl: o.capture, remaining: totalSize}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.SpeechEndpoint, body)
	if err != nil {
		return nil, fmt.Errorf("dialog: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.cred.AccessToken)
	req.Header.Set("Content-Type", fmt.Sprintf("multipart/form-data; boundary=%s", o.boundary))

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dialog: posting turn: %w", err)
	}
	return resp, nil
}

// handleNetworkError plays the lost-connection sound (if configured), clears
// a pending reask, and flushes the capture ring.
func (o *Orchestrator) handleNetworkError() {
	if o.lostSound != nil {
		o.enqueueSound(o.lostSound)
	}
	o.reask = false
	o.flushCapture()
	o.restoreLive()
}

func (o *Orchestrator) flushCapture() {
	o.capture.Lock()
	o.capture.Ring().Flush()
	o.capture.Unlock()
}

// routeJSON inspects the response's JSON part (if any) for a
// SpeechRecognizer namespace, which signals a server-initiated follow-up
// question; any other namespace clears the pending reask. The namespace
// field isn't pinned to a fixed nesting depth across directive shapes, so
// this scans the whole decoded document for the first key literally named
// "namespace" rather than trusting one fixed path.
func (o *Orchestrator) routeJSON(parts []demux.Part) {
	for _, p := range parts {
		if p.Kind != demux.JSON {
			continue
		}
		var doc any
		if err := json.Unmarshal(p.Data, &doc); err != nil {
			continue
		}
		ns, found := findNamespace(doc)
		if !found {
			o.reask = false
			return
		}
		o.reask = ns == "SpeechRecognizer"
		return
	}
}

// findNamespace walks a decoded JSON value depth-first for the first
// "namespace" string field it finds, regardless of where it's nested.
func findNamespace(v any) (string, bool) {
	switch val := v.(type) {
	case map[string]any:
		if ns, ok := val["namespace"].(string); ok {
			return ns, true
		}
		for _, child := range val {
			if ns, ok := findNamespace(child); ok {
				return ns, true
			}
		}
	case []any:
		for _, child := range val {
			if ns, ok := findNamespace(child); ok {
				return ns, true
			}
		}
	}
	return "", false
}

// decodeAudio feeds every audio/mpeg part into the MP3 decoder, which
// block-poll writes decoded frames into the playback ring.
func (o *Orchestrator) decodeAudio(parts []demux.Part) {
	for _, p := range parts {
		if p.Kind != demux.MP3 {
			continue
		}
		if err := o.decoder.WriteTurn(p.Data, o.playback, o.sink); err != nil {
			log.Printf("⚠️  decoding response audio: %v", err)
		}
	}
}

func (o *Orchestrator) restoreLive() {
	o.capture.EnterLive()
}

// ringReader streams the capture ring buffer as an io.Reader for the chunked
// HTTPS upload body, polling until bytes become available and stopping after
// exactly totalSize bytes.
type ringReader struct {
	ctx       context.Context
	ctrl      *capture.Controller
	remaining int
	leftover  []byte
}

func (r *ringReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 && len(r.leftover) == 0 {
		return 0, io.EOF
	}
	if len(r.leftover) > 0 {
		n := copy(p, r.leftover)
		r.leftover = r.leftover[n:]
		return n, nil
	}

	ring := r.ctrl.Ring()
	for {
		select {
		case <-r.ctx.Done():
			return 0, r.ctx.Err()
		default:
		}

		r.ctrl.Lock()
		avail := ring.ReadAvailable()
		if avail == 0 {
			r.ctrl.Unlock()
			time.Sleep(pollInterval)
			continue
		}
		frames := make([]int16, avail)
		n := ring.Read(frames)
		r.ctrl.Unlock()

		b := multipart.FramesToBytes(frames[:n])
		if len(b) > r.remaining {
			b = b[:r.remaining]
		}
		r.remaining -= len(b)

		m := copy(p, b)
		if m < len(b) {
			r.leftover = append(r.leftover, b[m:]...)
		}
		return m, nil
	}
}
