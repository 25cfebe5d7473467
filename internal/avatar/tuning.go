package avatar

import (
	"fmt"
	"maps"

	"github.com/normanking/avatarsync/internal/bands"
	"github.com/normanking/avatarsync/internal/config"
	"github.com/normanking/avatarsync/internal/scheduler"
	"github.com/normanking/avatarsync/internal/session"
	"github.com/normanking/avatarsync/internal/spectrum"
)

// NewTuning turns the analysis, bands and smoothing sections of cfg into a
// session configuration.
func NewTuning(cfg *config.Config) (session.Config, error) {
	analysis := spectrum.Config{
		FFTSize:               cfg.Analysis.FFTSize,
		MinDecibels:           cfg.Analysis.MinDecibels,
		MaxDecibels:           cfg.Analysis.MaxDecibels,
		SmoothingTimeConstant: cfg.Analysis.SmoothingTimeConstant,
	}
	if err := analysis.Validate(); err != nil {
		return session.Config{}, err
	}

	layout, err := newLayout(cfg.Bands, analysis.BinCount())
	if err != nil {
		return session.Config{}, err
	}

	sched := scheduler.Config{
		DefaultDamping: cfg.Smoothing.DefaultDamping,
		Dampings:       maps.Clone(cfg.Smoothing.Dampings),
	}
	if sched.Dampings == nil {
		sched.Dampings = map[string]float64{}
	}
	for _, d := range cfg.Smoothing.Derived {
		sched.Derived = append(sched.Derived, scheduler.Derived{
			Name:    d.Name,
			From:    d.From,
			Gain:    d.Gain,
			Damping: d.Damping,
		})
	}

	tuning := session.Config{Analysis: analysis, Layout: layout, Scheduler: sched}
	if err := tuning.Validate(); err != nil {
		return session.Config{}, err
	}
	return tuning, nil
}

func newLayout(cfg config.BandsConfig, binCount int) (bands.Layout, error) {
	switch cfg.Layout {
	case "", "thirds":
		return bands.Thirds(binCount)
	case "quarters":
		return bands.Quarters(binCount)
	case "custom":
		specs := make([]bands.Band, len(cfg.Custom))
		for i, b := range cfg.Custom {
			specs[i] = bands.Band{Name: b.Name, Lo: b.Lo, Hi: b.Hi}
		}
		return bands.NewLayout(binCount, specs...)
	}
	return bands.Layout{}, fmt.Errorf("%w: unknown layout %q", bands.ErrInvalidLayout, cfg.Layout)
}
