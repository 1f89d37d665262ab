// Package config provides configuration and CLI argument parsing for the
// voice assistant client.
package config

import (
	"flag"
	"fmt"
	"os"
)

// Config holds the CLI-level configuration, populated from flags.
type Config struct {
	ConfigFile string // -c/--config, required, readable
	SoundFile  string // -s/--sound, optional, PCM16 mono 16kHz
	LostFile   string // -l/--lost, optional, same constraints
	OutputFile string // -o/--output, optional WAV recording of each turn's response
	Verbose    bool

	// SampleRate and RecordDurationMs are fixed by the protocol but exposed
	// here so tests can shrink the recording window.
	SampleRate       int
	RecordDurationMs int

	SpeechEndpoint     string
	CredentialEndpoint string
}

// DefaultConfig returns a configuration with the protocol-mandated defaults.
func DefaultConfig() *Config {
	return &Config{
		SampleRate:         16000,
		RecordDurationMs:   3500,
		SpeechEndpoint:     "https://access-alexa-na.amazon.com/v1/avs/speechrecognizer/recognize",
		CredentialEndpoint: "https://api.amazon.com/auth/o2/token",
	}
}

// ParseFlags parses command-line flags and returns a validated Config.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	registerStringFlag(&cfg.ConfigFile, "c", "config", "", "Config file with persisted credentials (required)")
	registerStringFlag(&cfg.SoundFile, "s", "sound", "", "Sound file to confirm the assistant is ready to listen")
	registerStringFlag(&cfg.LostFile, "l", "lost", "", "Sound file to play on connection loss")
	registerStringFlag(&cfg.OutputFile, "o", "output", "", "Write each turn's decoded response audio to this WAV file")
	registerBoolFlag(&cfg.Verbose, "v", "verbose", false, "Display detailed logging")

	help := flag.Bool("h", false, "Display usage instructions")
	flag.BoolVar(help, "help", false, "Display usage instructions")

	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func registerStringFlag(dst *string, short, long, def, usage string) {
	flag.StringVar(dst, short, def, usage)
	flag.StringVar(dst, long, def, usage)
}

func registerBoolFlag(dst *bool, short, long string, def bool, usage string) {
	flag.BoolVar(dst, short, def, usage)
	flag.BoolVar(dst, long, def, usage)
}

func (c *Config) validate() error {
	if c.ConfigFile == "" {
		return fmt.Errorf("config file not passed, use -c/--config")
	}
	if _, err := os.Stat(c.ConfigFile); err != nil {
		return fmt.Errorf("cannot access config file %s: %w", c.ConfigFile, err)
	}
	if c.SoundFile != "" {
		if _, err := os.Stat(c.SoundFile); err != nil {
			return fmt.Errorf("cannot access sound file %s: %w", c.SoundFile, err)
		}
	}
	if c.LostFile != "" {
		if _, err := os.Stat(c.LostFile); err != nil {
			return fmt.Errorf("cannot access lost-connection sound file %s: %w", c.LostFile, err)
		}
	}
	return nil
}
