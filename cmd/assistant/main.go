// Voice Assistant - a Go client for Amazon's Alexa Voice Service
//
// This program implements a wake-word-gated voice assistant client:
// wake-word detection, push-to-talk-free recording, HTTPS multipart
// upload, response demultiplexing, and MP3 playback.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trungkh/alexa-emulator/internal/audio"
	"github.com/trungkh/alexa-emulator/internal/capture"
	"github.com/trungkh/alexa-emulator/internal/config"
	"github.com/trungkh/alexa-emulator/internal/credential"
	"github.com/trungkh/alexa-emulator/internal/dialog"
	"github.com/trungkh/alexa-emulator/internal/ringbuf"
	"github.com/trungkh/alexa-emulator/internal/wakeword"
	"github.com/trungkh/alexa-emulator/internal/wav"
)

const drainTimeout = 5 * time.Second

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	log.Println("🎤 Alexa client starting...")

	cred, err := config.LoadCredentials(cfg.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}
	if cred.ClientID == "" || cred.RefreshToken == "" {
		log.Fatalf("Config file %s has no client_id/refresh_token; bootstrap credentials first", cfg.ConfigFile)
	}

	var listenSound, lostSound []int16
	if cfg.SoundFile != "" {
		listenSound, err = loadSound(cfg.SoundFile)
		if err != nil {
			log.Fatalf("Failed to load sound file: %v", err)
		}
	}
	if cfg.LostFile != "" {
		lostSound, err = loadSound(cfg.LostFile)
		if err != nil {
			log.Fatalf("Failed to load lost-connection sound file: %v", err)
		}
	}

	var sink *wav.Writer
	if cfg.OutputFile != "" {
		sink, err = wav.Create(cfg.OutputFile)
		if err != nil {
			log.Fatalf("Failed to create output WAV file: %v", err)
		}
		defer sink.Close()
	}

	captureRing := ringbuf.New(ringbuf.DefaultCapacity)
	playbackRing := ringbuf.New(ringbuf.DefaultCapacity)
	ctrl := capture.NewController(captureRing)

	device, err := audio.Open(uint32(cfg.SampleRate), ctrl, playbackRing)
	if err != nil {
		log.Fatalf("Failed to open audio device: %v", err)
	}
	defer device.Close()

	if err := device.Start(); err != nil {
		log.Fatalf("Failed to start audio device: %v", err)
	}

	credCli := credential.NewClient(cred.ClientID, cred.ClientSecret, cfg.CredentialEndpoint)
	detector := &wakeword.ThresholdDetector{Threshold: 500}

	orc := dialog.New(cfg, ctrl, playbackRing, detector, credCli, cred, listenSound, lostSound, sink)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("🎙️  Listening for the wake word... (Ctrl+C to quit)")

	runDone := make(chan error, 1)
	go func() {
		runDone <- orc.Run(ctx)
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down...")

	select {
	case <-runDone:
	case <-time.After(drainTimeout):
		log.Println("⚠️  orchestrator shutdown timeout, forcing exit")
	}

	device.Drain(drainTimeout)
	log.Println("✅ Shutdown complete")
}

// loadSound loads a PCM16 mono 16kHz WAV file into int16 frames.
func loadSound(path string) ([]int16, error) {
	pcm, err := wav.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return bytesToFrames(pcm), nil
}

func bytesToFrames(b []byte) []int16 {
	n := len(b) / wav.BytesPerFrame
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
	}
	return out
}

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)
}
