package scheduler

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// ParameterSet is an immutable, ordered set of named animation values.
// A frame's set is built once and never modified after publication.
type ParameterSet struct {
	names  []string
	values []float64
}

// NewParameterSet copies names and values into a set. Extra values are ignored.
func NewParameterSet(names []string, values []float64) ParameterSet {
	n := min(len(names), len(values))
	return ParameterSet{
		names:  append([]string(nil), names[:n]...),
		values: append([]float64(nil), values[:n]...),
	}
}

// Rest returns the all-zero set for names.
func Rest(names []string) ParameterSet {
	return NewParameterSet(names, make([]float64, len(names)))
}

// Len returns the number of parameters
func (p ParameterSet) Len() int {
	return len(p.names)
}

// Names returns a copy of the parameter names in order
func (p ParameterSet) Names() []string {
	return append([]string(nil), p.names...)
}

// Get returns the named value
func (p ParameterSet) Get(name string) (float64, bool) {
	for i, n := range p.names {
		if n == name {
			return p.values[i], true
		}
	}
	return 0, false
}

// Value returns the named value, or zero when absent
func (p ParameterSet) Value(name string) float64 {
	v, _ := p.Get(name)
	return v
}

// Map returns a mutable copy
func (p ParameterSet) Map() map[string]float64 {
	m := make(map[string]float64, len(p.names))
	for i, n := range p.names {
		m[n] = p.values[i]
	}
	return m
}

// IsRest reports whether every value is zero
func (p ParameterSet) IsRest() bool {
	for _, v := range p.values {
		if v != 0 {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as an object, keeping parameter order.
func (p ParameterSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range p.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(p.values[i], 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Frame is one tick's published output.
type Frame struct {
	Tick    uint64        `json:"tick"`
	Elapsed time.Duration `json:"elapsed"`
	Params  ParameterSet  `json:"params"`
}
