// Package bands reduces a spectrum snapshot to a few normalized band energies.
package bands

import (
	"errors"
	"fmt"
	"math"

	"github.com/normanking/avatarsync/internal/spectrum"
)

// Default band names
const (
	Bass   = "bass"
	Mid    = "mid"
	Treble = "treble"
)

var (
	ErrDimensionMismatch = errors.New("snapshot length does not match band layout")
	ErrEmptyBand         = errors.New("band covers no bins")
	ErrInvalidLayout     = errors.New("invalid band layout")
)

// Band is the half-open bin range [Lo, Hi).
type Band struct {
	Name string `json:"name"`
	Lo   int    `json:"lo"`
	Hi   int    `json:"hi"`
}

// Width returns the number of bins in the band
func (b Band) Width() int {
	return b.Hi - b.Lo
}

// Layout partitions a snapshot of BinCount bins into named bands.
type Layout struct {
	BinCount int
	Bands    []Band
}

// NewLayout validates a band layout. Every band must hold at least one bin
// and lie inside the snapshot; names must be unique.
func NewLayout(binCount int, bands ...Band) (Layout, error) {
	if binCount <= 0 {
		return Layout{}, fmt.Errorf("%w: bin count %d", ErrInvalidLayout, binCount)
	}
	if len(bands) == 0 {
		return Layout{}, fmt.Errorf("%w: no bands", ErrInvalidLayout)
	}

	seen := make(map[string]bool, len(bands))
	for _, b := range bands {
		if b.Name == "" {
			return Layout{}, fmt.Errorf("%w: unnamed band", ErrInvalidLayout)
		}
		if seen[b.Name] {
			return Layout{}, fmt.Errorf("%w: duplicate band %q", ErrInvalidLayout, b.Name)
		}
		seen[b.Name] = true

		if b.Hi <= b.Lo {
			return Layout{}, fmt.Errorf("%w: %q [%d, %d)", ErrEmptyBand, b.Name, b.Lo, b.Hi)
		}
		if b.Lo < 0 || b.Hi > binCount {
			return Layout{}, fmt.Errorf("%w: %q [%d, %d) outside %d bins", ErrInvalidLayout, b.Name, b.Lo, b.Hi, binCount)
		}
	}

	return Layout{BinCount: binCount, Bands: append([]Band(nil), bands...)}, nil
}

// Thirds splits the bins into bass, mid and treble at ceil(n/3) and
// ceil(2n/3). 512 bins give [0,171) [171,342) [342,512).
func Thirds(binCount int) (Layout, error) {
	cut := func(i int) int { return (i*binCount + 2) / 3 }
	return NewLayout(binCount,
		Band{Name: Bass, Lo: 0, Hi: cut(1)},
		Band{Name: Mid, Lo: cut(1), Hi: cut(2)},
		Band{Name: Treble, Lo: cut(2), Hi: binCount},
	)
}

// Quarters gives bass the first quarter, mid the second and treble the upper
// half, weighting the speech range the way the mouth shader does.
func Quarters(binCount int) (Layout, error) {
	return NewLayout(binCount,
		Band{Name: Bass, Lo: 0, Hi: binCount / 4},
		Band{Name: Mid, Lo: binCount / 4, Hi: binCount / 2},
		Band{Name: Treble, Lo: binCount / 2, Hi: binCount},
	)
}

// Names returns the band names in layout order
func (l Layout) Names() []string {
	names := make([]string, len(l.Bands))
	for i, b := range l.Bands {
		names[i] = b.Name
	}
	return names
}

// Energies holds one value in [0, 1] per band, in layout order.
type Energies struct {
	names  []string
	values []float64
}

// Len returns the number of bands
func (e Energies) Len() int {
	return len(e.values)
}

// Name returns the name of band i
func (e Energies) Name(i int) string {
	return e.names[i]
}

// Value returns the energy of band i
func (e Energies) Value(i int) float64 {
	return e.values[i]
}

// Get returns the energy of the named band
func (e Energies) Get(name string) (float64, bool) {
	for i, n := range e.names {
		if n == name {
			return e.values[i], true
		}
	}
	return 0, false
}

// Extract computes the mean magnitude of every band divided by
// MaxMagnitude. Results are clamped to [0, 1].
func Extract(snap spectrum.Snapshot, layout Layout) (Energies, error) {
	if len(snap) != layout.BinCount {
		return Energies{}, fmt.Errorf("%w: %d bins, layout expects %d", ErrDimensionMismatch, len(snap), layout.BinCount)
	}

	e := Energies{
		names:  make([]string, len(layout.Bands)),
		values: make([]float64, len(layout.Bands)),
	}
	for i, b := range layout.Bands {
		var sum int
		for _, v := range snap[b.Lo:b.Hi] {
			sum += int(v)
		}
		energy := float64(sum) / float64(b.Width()) / spectrum.MaxMagnitude
		e.names[i] = b.Name
		e.values[i] = math.Max(0, math.Min(1, energy))
	}
	return e, nil
}
