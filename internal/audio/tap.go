package audio

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// Tap is a streamer wrapper that copies a mono mix of everything played
// through it into a ring buffer, so a live stream can feed the analyser.
type Tap struct {
	s       beep.Streamer
	mu      sync.Mutex
	buf     []float64
	pos     int
	size    int
	written int64
}

// NewTap wraps a streamer with a ring buffer of the given size.
func NewTap(s beep.Streamer, bufSize int) *Tap {
	return &Tap{
		s:    s,
		buf:  make([]float64, bufSize),
		size: bufSize,
	}
}

// Stream passes audio through while capturing it.
func (t *Tap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	t.mu.Lock()
	for i := range n {
		t.buf[t.pos] = (samples[i][0] + samples[i][1]) / 2
		t.pos = (t.pos + 1) % t.size
	}
	t.written += int64(n)
	t.mu.Unlock()
	return n, ok
}

// Err returns the underlying streamer's error.
func (t *Tap) Err() error {
	return t.s.Err()
}

// Size returns the ring capacity
func (t *Tap) Size() int {
	return t.size
}

// Written returns the number of frames seen so far
func (t *Tap) Written() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}

// Samples copies the last len(dst) samples into dst in chronological order.
// Slots never written read as zero.
func (t *Tap) Samples(dst []float64) {
	n := len(dst)
	if n > t.size {
		clear(dst[:n-t.size])
		dst = dst[n-t.size:]
		n = t.size
	}
	t.mu.Lock()
	start := (t.pos - n + t.size) % t.size
	for i := range n {
		dst[i] = t.buf[(start+i)%t.size]
	}
	t.mu.Unlock()
}
