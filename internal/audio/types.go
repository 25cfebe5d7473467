// Package audio holds the decoded-audio handle shared by one playback session
// and the decoder that produces it from synthesized speech.
package audio

import (
	"errors"
	"sync"
	"time"
)

// Common errors
var (
	ErrSynthesisEmpty    = errors.New("synthesis produced no audio")
	ErrDecodeFailed      = errors.New("audio decode failed")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrReleased          = errors.New("decoded audio released")
	ErrInvalidSampleRate = errors.New("invalid sample rate")
)

// Format represents the container of a raw audio buffer
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// Decoded is the mono PCM signal of one utterance. A session owns exactly one
// and releases it on every exit path.
type Decoded struct {
	mu         sync.RWMutex
	samples    []float64
	sampleRate int
	frames     int
	released   bool
}

// NewDecoded wraps mono samples in [-1, 1] recorded at sampleRate.
func NewDecoded(samples []float64, sampleRate int) (*Decoded, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	return &Decoded{
		samples:    samples,
		sampleRate: sampleRate,
		frames:     len(samples),
	}, nil
}

// SampleRate returns the sample rate in Hz
func (d *Decoded) SampleRate() int {
	return d.sampleRate
}

// Len returns the number of sample frames. It stays valid after Release.
func (d *Decoded) Len() int {
	return d.frames
}

// Duration returns the playback length of the signal.
func (d *Decoded) Duration() time.Duration {
	return time.Duration(int64(d.frames) * int64(time.Second) / int64(d.sampleRate))
}

// SampleIndex converts a playback position into a sample offset.
func (d *Decoded) SampleIndex(pos time.Duration) int {
	if pos <= 0 {
		return 0
	}
	return int(int64(pos) * int64(d.sampleRate) / int64(time.Second))
}

// Window fills dst with the len(dst) samples that end, exclusive, at sample
// end. Positions before the start or past the end of the signal read as zero.
func (d *Decoded) Window(end int, dst []float64) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.released {
		return ErrReleased
	}

	start := end - len(dst)
	for i := range dst {
		idx := start + i
		if idx < 0 || idx >= len(d.samples) {
			dst[i] = 0
			continue
		}
		dst[i] = d.samples[idx]
	}
	return nil
}

// Release drops the sample memory. Safe to call more than once.
func (d *Decoded) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples = nil
	d.released = true
}

// Released reports whether Release has been called
func (d *Decoded) Released() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.released
}
