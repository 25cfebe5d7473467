// Package tts provides text-to-speech synthesis for the avatar's voice.
package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/normanking/avatarsync/internal/config"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("TTS provider unavailable")
	ErrEmptyText           = errors.New("nothing to synthesize")
)

// Synthesizer converts text to encoded audio (WAV or MP3)
type Synthesizer interface {
	// Name returns the provider identifier
	Name() string

	// Synthesize returns the encoded audio for text. Empty output is
	// reported as audio.ErrSynthesisEmpty.
	Synthesize(ctx context.Context, text string, opts VoiceOptions) ([]byte, error)
}

// VoiceOptions shape the synthesized voice
type VoiceOptions struct {
	Voice     string `json:"voice"`
	Variant   string `json:"variant"`
	Amplitude int    `json:"amplitude"` // 0-200
	Speed     int    `json:"speed"`     // words per minute
	Pitch     int    `json:"pitch"`     // 0-99
	WordGap   int    `json:"word_gap"`  // pause between words, units of 10ms
}

// DefaultVoiceOptions returns the avatar's low, slow voice
func DefaultVoiceOptions() VoiceOptions {
	return VoiceOptions{
		Voice:     "en",
		Variant:   "m3",
		Amplitude: 100,
		Speed:     80,
		Pitch:     30,
		WordGap:   0,
	}
}

// VoiceOptionsFrom reads the voice section of the configuration
func VoiceOptionsFrom(cfg config.VoiceConfig) VoiceOptions {
	return VoiceOptions{
		Voice:     cfg.Voice,
		Variant:   cfg.Variant,
		Amplitude: cfg.Amplitude,
		Speed:     cfg.Speed,
		Pitch:     cfg.Pitch,
		WordGap:   cfg.WordGap,
	}
}

// New creates the synthesizer selected by cfg.Provider
func New(cfg config.VoiceConfig, logger zerolog.Logger) (Synthesizer, error) {
	switch cfg.Provider {
	case "", "espeak":
		return NewEspeakProvider(logger, &EspeakConfig{BinaryPath: cfg.BinaryPath})
	case "openai":
		return NewOpenAIProvider(logger, &OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	}
	return nil, fmt.Errorf("%w: unknown provider %q", ErrProviderUnavailable, cfg.Provider)
}
