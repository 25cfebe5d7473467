package scheduler

import (
	"sync"
)

// Publisher receives every frame a scheduler produces.
type Publisher interface {
	Publish(Frame)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(Frame)

// Publish calls f
func (f PublisherFunc) Publish(frame Frame) {
	f(frame)
}

type subscriber struct {
	id int
	fn func(Frame)
}

// Hub fans frames out to subscribers synchronously, in subscription order,
// and remembers the latest one for per-tick readers.
type Hub struct {
	mu     sync.RWMutex
	subs   []subscriber
	nextID int
	latest Frame
	seen   bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers fn and returns a function that removes it.
func (h *Hub) Subscribe(fn func(Frame)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.subs = append(h.subs, subscriber{id: id, fn: fn})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.subs {
			if s.id == id {
				h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish implements Publisher. All subscribers have seen the frame when it
// returns.
func (h *Hub) Publish(frame Frame) {
	h.mu.Lock()
	h.latest = frame
	h.seen = true
	subs := append([]subscriber(nil), h.subs...)
	h.mu.Unlock()

	for _, s := range subs {
		s.fn(frame)
	}
}

// Latest returns the most recently published frame
func (h *Hub) Latest() (Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.seen
}
