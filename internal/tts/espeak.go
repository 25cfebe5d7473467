package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/avatarsync/internal/audio"
)

// EspeakProvider synthesizes with a local espeak-ng (or espeak) process
// writing WAV to stdout.
type EspeakProvider struct {
	logger     zerolog.Logger
	binaryPath string
}

// EspeakConfig holds espeak configuration
type EspeakConfig struct {
	BinaryPath string `json:"binary_path"` // empty searches PATH
}

// NewEspeakProvider locates the espeak binary
func NewEspeakProvider(logger zerolog.Logger, config *EspeakConfig) (*EspeakProvider, error) {
	if config == nil {
		config = &EspeakConfig{}
	}

	binaryPath := config.BinaryPath
	if binaryPath == "" {
		for _, name := range []string{"espeak-ng", "espeak"} {
			if path, err := exec.LookPath(name); err == nil {
				binaryPath = path
				break
			}
		}
	}
	if binaryPath == "" {
		return nil, fmt.Errorf("%w: espeak-ng not found in PATH", ErrProviderUnavailable)
	}

	return &EspeakProvider{
		logger:     logger.With().Str("provider", "espeak").Logger(),
		binaryPath: binaryPath,
	}, nil
}

// Name returns the provider identifier
func (p *EspeakProvider) Name() string {
	return "espeak"
}

// Synthesize implements Synthesizer
func (p *EspeakProvider) Synthesize(ctx context.Context, text string, opts VoiceOptions) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	start := time.Now()
	args := espeakArgs(opts)

	// text goes through stdin so a leading dash is never read as a flag
	cmd := exec.CommandContext(ctx, p.binaryPath, args...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.logger.Debug().Strs("args", args).Int("textLen", len(text)).Msg("Synthesizing with espeak")

	if err := cmd.Run(); err != nil {
		p.logger.Error().Err(err).Str("stderr", stderr.String()).Msg("espeak failed")
		return nil, fmt.Errorf("espeak: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, audio.ErrSynthesisEmpty
	}

	p.logger.Info().
		Int("audioBytes", stdout.Len()).
		Dur("processingTime", time.Since(start)).
		Msg("espeak synthesis complete")
	return stdout.Bytes(), nil
}

func espeakArgs(opts VoiceOptions) []string {
	voice := opts.Voice
	if voice == "" {
		voice = "en"
	}
	if opts.Variant != "" {
		voice += "+" + opts.Variant
	}
	return []string{
		"--stdout",
		"--stdin",
		"-a", strconv.Itoa(opts.Amplitude),
		"-s", strconv.Itoa(opts.Speed),
		"-p", strconv.Itoa(opts.Pitch),
		"-g", strconv.Itoa(opts.WordGap),
		"-v", voice,
	}
}
