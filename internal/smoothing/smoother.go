// Package smoothing damps raw per-tick parameters into animation values.
package smoothing

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrInvalidDamping is returned for a damping factor outside (0, 1].
var ErrInvalidDamping = errors.New("damping must be in (0, 1]")

// Smoother keeps one exponentially damped value per parameter name.
// Each name is meant to be updated at most once per tick.
type Smoother struct {
	mu     sync.RWMutex
	values map[string]float64
}

// New creates an empty smoother
func New() *Smoother {
	return &Smoother{values: make(map[string]float64)}
}

// ValidateDamping checks that d lies in (0, 1]
func ValidateDamping(d float64) error {
	if math.IsNaN(d) || d <= 0 || d > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidDamping, d)
	}
	return nil
}

// Update moves the named value toward raw by damping and returns it.
// The first update of a name adopts raw as is.
func (s *Smoother) Update(name string, raw, damping float64) (float64, error) {
	if err := ValidateDamping(damping); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.values[name]
	if !ok {
		s.values[name] = raw
		return raw, nil
	}
	next := prev + (raw-prev)*damping
	if damping == 1 {
		next = raw
	}
	s.values[name] = next
	return next, nil
}

// Value returns the current value of name
func (s *Smoother) Value(name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Names returns the tracked names, sorted
func (s *Smoother) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values))
	for n := range s.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Reset forgets every value
func (s *Smoother) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
}
