package audio

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog"
)

// Decoder turns a raw synthesized buffer into a Decoded handle. Decode returns
// immediately; done is invoked exactly once from another goroutine.
type Decoder interface {
	Decode(raw []byte, done func(*Decoded, error))
}

// DecoderFunc adapts a function to the Decoder interface
type DecoderFunc func(raw []byte, done func(*Decoded, error))

// Decode calls f
func (f DecoderFunc) Decode(raw []byte, done func(*Decoded, error)) {
	f(raw, done)
}

// Sniff detects the container of a raw buffer from its leading bytes.
func Sniff(raw []byte) (Format, error) {
	switch {
	case len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE":
		return FormatWAV, nil
	case len(raw) >= 3 && string(raw[0:3]) == "ID3":
		return FormatMP3, nil
	case len(raw) >= 2 && raw[0] == 0xFF && raw[1]&0xE0 == 0xE0:
		return FormatMP3, nil
	}
	return "", ErrUnsupportedFormat
}

// DecodeBytes synchronously decodes a WAV or MP3 buffer into mono samples.
func DecodeBytes(raw []byte) (*Decoded, error) {
	if len(raw) == 0 {
		return nil, ErrSynthesisEmpty
	}

	format, err := Sniff(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	var (
		streamer beep.StreamSeekCloser
		bf       beep.Format
	)
	switch format {
	case FormatWAV:
		streamer, bf, err = wav.Decode(bytes.NewReader(raw))
	case FormatMP3:
		streamer, bf, err = mp3.Decode(io.NopCloser(bytes.NewReader(raw)))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecodeFailed, format, err)
	}
	defer streamer.Close()

	samples := readMono(streamer, streamer.Len())
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecodeFailed, format, err)
	}

	return NewDecoded(samples, int(bf.SampleRate))
}

// readMono drains a streamer, averaging both channels.
func readMono(s beep.Streamer, hint int) []float64 {
	if hint < 0 {
		hint = 0
	}
	out := make([]float64, 0, hint)
	buf := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(buf)
		for i := range n {
			out = append(out, (buf[i][0]+buf[i][1])/2)
		}
		if !ok {
			break
		}
	}
	return out
}

// BeepDecoder decodes on a background goroutine
type BeepDecoder struct {
	logger zerolog.Logger
}

// NewBeepDecoder creates a decoder backed by the beep codecs
func NewBeepDecoder(logger zerolog.Logger) *BeepDecoder {
	return &BeepDecoder{
		logger: logger.With().Str("component", "decoder").Logger(),
	}
}

// Decode implements Decoder
func (d *BeepDecoder) Decode(raw []byte, done func(*Decoded, error)) {
	go func() {
		start := time.Now()
		decoded, err := DecodeBytes(raw)
		if err != nil {
			d.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("Decode failed")
			done(nil, err)
			return
		}
		d.logger.Debug().
			Int("bytes", len(raw)).
			Int("sample_rate", decoded.SampleRate()).
			Dur("duration", decoded.Duration()).
			Dur("took", time.Since(start)).
			Msg("Decoded audio")
		done(decoded, nil)
	}()
}
