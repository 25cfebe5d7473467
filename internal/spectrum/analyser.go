// Package spectrum produces per-tick byte magnitude snapshots of the audio
// currently playing.
package spectrum

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// MaxMagnitude is the largest value a snapshot bin can hold.
const MaxMagnitude = 255

var (
	ErrNotReady       = errors.New("spectrum source not ready")
	ErrInvalidFFTSize = errors.New("fft size must be a power of two in [32, 32768]")
	ErrInvalidRange   = errors.New("invalid decibel range")
	ErrFrameLength    = errors.New("frame length does not match fft size")
)

// Snapshot holds one magnitude per frequency bin, 0 to MaxMagnitude.
type Snapshot []uint8

// Zero returns the all-zero snapshot used when no audio is available.
func Zero(binCount int) Snapshot {
	return make(Snapshot, binCount)
}

// Config mirrors the knobs of a browser AnalyserNode.
type Config struct {
	FFTSize               int
	MinDecibels           float64
	MaxDecibels           float64
	SmoothingTimeConstant float64
}

// DefaultConfig returns the analyser settings the avatar shader was tuned with.
func DefaultConfig() Config {
	return Config{
		FFTSize:               1024,
		MinDecibels:           -100,
		MaxDecibels:           -30,
		SmoothingTimeConstant: 0.8,
	}
}

// BinCount is half the FFT size.
func (c Config) BinCount() int {
	return c.FFTSize / 2
}

// Validate checks the analyser configuration
func (c Config) Validate() error {
	if c.FFTSize < 32 || c.FFTSize > 32768 || c.FFTSize&(c.FFTSize-1) != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFFTSize, c.FFTSize)
	}
	if c.MinDecibels >= c.MaxDecibels {
		return fmt.Errorf("%w: min %.1f >= max %.1f", ErrInvalidRange, c.MinDecibels, c.MaxDecibels)
	}
	if c.SmoothingTimeConstant < 0 || c.SmoothingTimeConstant > 1 {
		return fmt.Errorf("smoothing time constant %.2f outside [0, 1]", c.SmoothingTimeConstant)
	}
	return nil
}

// Analyser converts time-domain frames into byte spectra: Blackman window,
// real FFT, temporal smoothing across calls, then decibels mapped linearly
// from [MinDecibels, MaxDecibels] onto [0, MaxMagnitude].
type Analyser struct {
	cfg      Config
	window   []float64
	frame    []float64
	smoothed []float64
}

// NewAnalyser validates cfg and precomputes the window.
func NewAnalyser(cfg Config) (*Analyser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Analyser{
		cfg:      cfg,
		window:   blackman(cfg.FFTSize),
		frame:    make([]float64, cfg.FFTSize),
		smoothed: make([]float64, cfg.BinCount()),
	}, nil
}

// Config returns the analyser configuration
func (a *Analyser) Config() Config {
	return a.cfg
}

// BinCount returns the snapshot length
func (a *Analyser) BinCount() int {
	return a.cfg.BinCount()
}

// Analyse computes the snapshot of one frame of FFTSize samples.
func (a *Analyser) Analyse(samples []float64) (Snapshot, error) {
	if len(samples) != a.cfg.FFTSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFrameLength, len(samples), a.cfg.FFTSize)
	}

	for i, s := range samples {
		a.frame[i] = s * a.window[i]
	}
	spectrum := fft.FFTReal(a.frame)

	n := float64(a.cfg.FFTSize)
	tau := a.cfg.SmoothingTimeConstant
	scale := MaxMagnitude / (a.cfg.MaxDecibels - a.cfg.MinDecibels)

	out := make(Snapshot, a.cfg.BinCount())
	for k := range out {
		mag := cmplx.Abs(spectrum[k]) / n
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag

		db := 20 * math.Log10(a.smoothed[k])
		v := math.Floor(scale * (db - a.cfg.MinDecibels))
		switch {
		case math.IsNaN(v) || v < 0:
			v = 0
		case v > MaxMagnitude:
			v = MaxMagnitude
		}
		out[k] = uint8(v)
	}
	return out, nil
}

// Reset forgets the smoothing history
func (a *Analyser) Reset() {
	clear(a.smoothed)
}

func blackman(n int) []float64 {
	const (
		a0 = 0.42
		a1 = 0.5
		a2 = 0.08
	)
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}
