// Package bus carries lifecycle notifications between the engine and its
// collaborators.
package bus

import (
	"sync"
	"time"
)

// EventType identifies different event types
type EventType string

const (
	// Session lifecycle
	EventTypeSessionPriming   EventType = "session.priming"
	EventTypeSessionActive    EventType = "session.active"
	EventTypeSessionCompleted EventType = "session.completed"
	EventTypeSessionCancelled EventType = "session.cancelled"
	EventTypeSessionFailed    EventType = "session.failed"

	// Captions
	EventTypeCaptionAdvanced EventType = "caption.advanced"
	EventTypeCaptionCleared  EventType = "caption.cleared"

	// Collaborators
	EventTypeGenerationCompleted EventType = "llm.completed"
	EventTypeSynthesisCompleted  EventType = "tts.completed"
	EventTypeSynthesisFailed     EventType = "tts.failed"

	// Configuration
	EventTypeConfigReloaded EventType = "config.reloaded"
)

// Event represents a bus event
type Event struct {
	Type      EventType
	SessionID string
	Time      time.Time
	Data      map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

type entry struct {
	id      uint64
	handler Handler
}

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]entry
	nextID   uint64
	wg       sync.WaitGroup
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]entry),
	}
}

// Subscribe adds a handler for an event type and returns a function that
// removes it.
func (b *EventBus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], entry{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.handlers[eventType]
		for i, e := range list {
			if e.id == id {
				b.handlers[eventType] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) func() {
	cancels := make([]func(), 0, len(eventTypes))
	for _, et := range eventTypes {
		cancels = append(cancels, b.Subscribe(et, handler))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

func (b *EventBus) snapshot(event *Event) []entry {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]entry(nil), b.handlers[event.Type]...)
}

// Publish sends an event to all subscribed handlers without waiting.
func (b *EventBus) Publish(event Event) {
	for _, e := range b.snapshot(&event) {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			h(event)
		}(e.handler)
	}
}

// PublishSync calls every handler in subscription order before returning.
func (b *EventBus) PublishSync(event Event) {
	for _, e := range b.snapshot(&event) {
		e.handler(event)
	}
}

// Wait blocks until handlers started by Publish have returned
func (b *EventBus) Wait() {
	b.wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]entry)
}
