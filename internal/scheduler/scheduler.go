// Package scheduler drives the per-frame capture, extraction and smoothing of
// animation parameters and publishes each frame to its subscribers.
package scheduler

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/avatarsync/internal/bands"
	"github.com/normanking/avatarsync/internal/metrics"
	"github.com/normanking/avatarsync/internal/smoothing"
	"github.com/normanking/avatarsync/internal/spectrum"
)

// Level is the pseudo band holding the mean energy of the whole snapshot.
const Level = "level"

// MouthOpen is the default derived parameter
const MouthOpen = "mouthOpen"

// ErrStopped is returned by Tick after Stop
var ErrStopped = errors.New("scheduler stopped")

// Derived is a scalar computed from one band, scaled by Gain and smoothed
// with its own damping.
type Derived struct {
	Name    string  `json:"name"`
	From    string  `json:"from"`
	Gain    float64 `json:"gain"`
	Damping float64 `json:"damping"`
}

// Config holds the per-parameter damping factors.
type Config struct {
	DefaultDamping float64
	Dampings       map[string]float64
	Derived        []Derived
}

// DefaultConfig returns band damping 0.3 and a mouthOpen scalar that follows
// bass with damping 0.1.
func DefaultConfig() Config {
	return Config{
		DefaultDamping: 0.3,
		Dampings:       map[string]float64{},
		Derived: []Derived{
			{Name: MouthOpen, From: bands.Bass, Gain: 1, Damping: 0.1},
		},
	}
}

// Validate checks the config against a band layout
func (c Config) Validate(layout bands.Layout) error {
	if err := smoothing.ValidateDamping(c.DefaultDamping); err != nil {
		return fmt.Errorf("default damping: %w", err)
	}

	names := layout.Names()
	for name, d := range c.Dampings {
		if !slices.Contains(names, name) {
			return fmt.Errorf("damping for unknown band %q", name)
		}
		if err := smoothing.ValidateDamping(d); err != nil {
			return fmt.Errorf("band %q: %w", name, err)
		}
	}

	for _, d := range c.Derived {
		if d.Name == "" || slices.Contains(names, d.Name) {
			return fmt.Errorf("derived parameter %q collides with another parameter", d.Name)
		}
		if d.From != Level && !slices.Contains(layout.Names(), d.From) {
			return fmt.Errorf("derived parameter %q reads unknown band %q", d.Name, d.From)
		}
		if err := smoothing.ValidateDamping(d.Damping); err != nil {
			return fmt.Errorf("derived parameter %q: %w", d.Name, err)
		}
		names = append(names, d.Name)
	}
	return nil
}

func (c Config) damping(band string) float64 {
	if d, ok := c.Dampings[band]; ok {
		return d
	}
	return c.DefaultDamping
}

// Scheduler produces exactly one parameter frame per Tick. It never blocks
// on audio: a source that is not ready yields the zero spectrum.
type Scheduler struct {
	source   spectrum.Source
	layout   bands.Layout
	cfg      Config
	smoother *smoothing.Smoother
	pub      Publisher
	names    []string
	logger   zerolog.Logger

	mu       sync.Mutex
	elapsed  time.Duration
	ticks    uint64
	latest   ParameterSet
	stopped  bool
	notReady bool
}

// New binds a scheduler to a source and band layout. The layout must match
// the source's bin count.
func New(source spectrum.Source, layout bands.Layout, cfg Config, pub Publisher, logger zerolog.Logger) (*Scheduler, error) {
	if source == nil {
		return nil, errors.New("scheduler needs a spectrum source")
	}
	if source.BinCount() != layout.BinCount {
		return nil, fmt.Errorf("%w: source has %d bins, layout expects %d",
			bands.ErrDimensionMismatch, source.BinCount(), layout.BinCount)
	}
	if err := cfg.Validate(layout); err != nil {
		return nil, err
	}
	if pub == nil {
		pub = PublisherFunc(func(Frame) {})
	}

	names := layout.Names()
	for _, d := range cfg.Derived {
		names = append(names, d.Name)
	}

	return &Scheduler{
		source:   source,
		layout:   layout,
		cfg:      cfg,
		smoother: smoothing.New(),
		pub:      pub,
		names:    names,
		latest:   Rest(names),
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Names returns the parameter names of every frame, bands first.
func (s *Scheduler) Names() []string {
	return append([]string(nil), s.names...)
}

// Tick advances the clock by delta, computes the frame and publishes it
// before returning. A dimension mismatch is returned and nothing is published.
func (s *Scheduler) Tick(delta time.Duration) (Frame, error) {
	start := time.Now()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return Frame{}, ErrStopped
	}
	if delta < 0 {
		delta = 0
	}
	s.elapsed += delta

	snap, err := s.source.Capture()
	if errors.Is(err, spectrum.ErrNotReady) {
		if !s.notReady {
			s.logger.Debug().Dur("elapsed", s.elapsed).Msg("Source not ready, publishing silence")
		}
		s.notReady = true
		metrics.CaptureNotReady.Inc()
		snap = spectrum.Zero(s.layout.BinCount)
	} else if err != nil {
		s.mu.Unlock()
		return Frame{}, fmt.Errorf("capture spectrum: %w", err)
	} else {
		s.notReady = false
	}

	energies, err := bands.Extract(snap, s.layout)
	if err != nil {
		s.mu.Unlock()
		return Frame{}, err
	}

	values, err := s.smooth(energies, snap)
	if err != nil {
		s.mu.Unlock()
		return Frame{}, err
	}

	s.ticks++
	frame := Frame{
		Tick:    s.ticks,
		Elapsed: s.elapsed,
		Params:  ParameterSet{names: s.names, values: values},
	}
	s.latest = frame.Params
	s.mu.Unlock()

	s.pub.Publish(frame)

	metrics.FramesTotal.Inc()
	metrics.TickDuration.Observe(time.Since(start).Seconds())
	return frame, nil
}

func (s *Scheduler) smooth(energies bands.Energies, snap spectrum.Snapshot) ([]float64, error) {
	values := make([]float64, 0, len(s.names))
	for i := range energies.Len() {
		name := energies.Name(i)
		v, err := s.smoother.Update(name, energies.Value(i), s.cfg.damping(name))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	for _, d := range s.cfg.Derived {
		var raw float64
		if d.From == Level {
			raw = level(snap)
		} else {
			raw, _ = energies.Get(d.From)
		}
		raw = math.Max(0, math.Min(1, raw*d.Gain))
		v, err := s.smoother.Update(d.Name, raw, d.Damping)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func level(snap spectrum.Snapshot) float64 {
	if len(snap) == 0 {
		return 0
	}
	var sum int
	for _, v := range snap {
		sum += int(v)
	}
	return float64(sum) / float64(len(snap)) / spectrum.MaxMagnitude
}

// Stop publishes the rest parameters once and ends the scheduler. Later
// calls are no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.smoother.Reset()
	s.ticks++
	frame := Frame{Tick: s.ticks, Elapsed: s.elapsed, Params: Rest(s.names)}
	s.latest = frame.Params
	s.mu.Unlock()

	s.pub.Publish(frame)
}

// Stopped reports whether Stop has been called
func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Latest returns the parameters of the last frame
func (s *Scheduler) Latest() ParameterSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Elapsed returns the accumulated tick time
func (s *Scheduler) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}
