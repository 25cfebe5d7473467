// Package caption advances a word cursor in step with audio playback.
package caption

import (
	"math/bits"
	"strings"
	"sync"
	"time"
)

// State is what the caption display shows.
type State struct {
	WordIndex int    `json:"word_index"`
	WordCount int    `json:"word_count"`
	Word      string `json:"word"`
	Done      bool   `json:"done"`
}

// Words splits an utterance on whitespace.
func Words(text string) []string {
	return strings.Fields(text)
}

// Synchronizer maps elapsed playback time to a word index, giving every
// word an equal share of the total duration. The index never decreases.
type Synchronizer struct {
	mu      sync.Mutex
	words   []string
	total   time.Duration
	index   int
	sampled bool
	done    bool
	stopped bool
}

// New creates a synchronizer for words spoken over total. With no words it
// is terminal from the start.
func New(words []string, total time.Duration) *Synchronizer {
	return &Synchronizer{
		words: append([]string(nil), words...),
		total: total,
		done:  len(words) == 0,
	}
}

// Sample updates the index for elapsed and reports whether the visible word
// changed. Samples after the last word or after Stop change nothing.
func (s *Synchronizer) Sample(elapsed time.Duration) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done || s.stopped {
		return s.state(), false
	}

	n := len(s.words)
	idx := s.indexAt(elapsed, n)
	changed := !s.sampled || idx > s.index
	s.sampled = true
	if idx > s.index {
		s.index = idx
	}
	if s.index == n-1 {
		s.done = true
	}
	return s.state(), changed
}

// indexAt computes floor(elapsed*n/total) clamped to [0, n-1] without
// overflowing int64 nanoseconds.
func (s *Synchronizer) indexAt(elapsed time.Duration, n int) int {
	if s.total <= 0 {
		return n - 1
	}
	if elapsed <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(elapsed), uint64(n))
	if hi >= uint64(s.total) {
		return n - 1
	}
	q, _ := bits.Div64(hi, lo, uint64(s.total))
	if q >= uint64(n) {
		return n - 1
	}
	return int(q)
}

// Stop halts sampling; the current state stays visible.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// State returns the current caption state
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

// Done reports whether the last word has been reached
func (s *Synchronizer) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Synchronizer) state() State {
	st := State{
		WordIndex: s.index,
		WordCount: len(s.words),
		Done:      s.done,
	}
	if s.index < len(s.words) {
		st.Word = s.words[s.index]
	}
	return st
}
