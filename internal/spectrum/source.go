package spectrum

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/normanking/avatarsync/internal/audio"
)

// Source yields the spectrum of whatever is playing at call time.
type Source interface {
	Capture() (Snapshot, error)
	BinCount() int
}

// Clock reports the current playback position.
type Clock interface {
	Position() time.Duration
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Duration

// Position calls f
func (f ClockFunc) Position() time.Duration {
	return f()
}

// BufferSource analyses a decoded buffer at the position of a playback clock.
// It reports ErrNotReady until connected and again once released.
type BufferSource struct {
	mu        sync.Mutex
	analyser  *Analyser
	decoded   *audio.Decoded
	clock     Clock
	frame     []float64
	connected bool
	released  bool
}

// NewBufferSource binds a source to one decoded signal.
func NewBufferSource(cfg Config, decoded *audio.Decoded, clock Clock) (*BufferSource, error) {
	if decoded == nil || clock == nil {
		return nil, errors.New("buffer source needs decoded audio and a clock")
	}
	analyser, err := NewAnalyser(cfg)
	if err != nil {
		return nil, err
	}
	return &BufferSource{
		analyser: analyser,
		decoded:  decoded,
		clock:    clock,
		frame:    make([]float64, cfg.FFTSize),
	}, nil
}

// BinCount returns the snapshot length
func (s *BufferSource) BinCount() int {
	return s.analyser.BinCount()
}

// Connect marks the source live. Connecting a released source fails.
func (s *BufferSource) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrNotReady
	}
	s.connected = true
	return nil
}

// Capture analyses the FFTSize samples ending at the clock position.
func (s *BufferSource) Capture() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.released {
		return nil, ErrNotReady
	}

	end := s.decoded.SampleIndex(s.clock.Position())
	if err := s.decoded.Window(end, s.frame); err != nil {
		if errors.Is(err, audio.ErrReleased) {
			return nil, ErrNotReady
		}
		return nil, err
	}
	return s.analyser.Analyse(s.frame)
}

// Release disconnects the source and frees the decoded audio.
func (s *BufferSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.connected = false
	s.decoded.Release()
}

// StreamSource analyses the tail of a live stream.
type StreamSource struct {
	mu       sync.Mutex
	analyser *Analyser
	tap      *audio.Tap
	frame    []float64
	released bool
}

// NewStreamSource binds a source to a tap. The tap ring must hold at least
// one FFT frame.
func NewStreamSource(cfg Config, tap *audio.Tap) (*StreamSource, error) {
	analyser, err := NewAnalyser(cfg)
	if err != nil {
		return nil, err
	}
	if tap.Size() < cfg.FFTSize {
		return nil, fmt.Errorf("tap holds %d samples, fft size is %d", tap.Size(), cfg.FFTSize)
	}
	return &StreamSource{
		analyser: analyser,
		tap:      tap,
		frame:    make([]float64, cfg.FFTSize),
	}, nil
}

// BinCount returns the snapshot length
func (s *StreamSource) BinCount() int {
	return s.analyser.BinCount()
}

// Capture analyses the most recent FFTSize samples
func (s *StreamSource) Capture() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrNotReady
	}
	s.tap.Samples(s.frame)
	return s.analyser.Analyse(s.frame)
}

// Release stops captures
func (s *StreamSource) Release() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
}
