// Package session implements the lifecycle of one utterance's playback: from
// decoded audio to synchronized parameters and captions, through teardown.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/normanking/avatarsync/internal/audio"
	"github.com/normanking/avatarsync/internal/bands"
	"github.com/normanking/avatarsync/internal/caption"
	"github.com/normanking/avatarsync/internal/scheduler"
	"github.com/normanking/avatarsync/internal/spectrum"
)

// Common errors
var (
	ErrIllegalTransition = errors.New("illegal session transition")
	ErrSessionClosed     = errors.New("session closed")
)

// State of a playback session
type State int

const (
	StateIdle State = iota
	StatePriming
	StateActive
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePriming:
		return "priming"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// EventKind identifies session events
type EventKind int

const (
	EventDecodeSucceeded EventKind = iota
	EventDecodeFailed
	EventTick
	EventCancel
)

func (k EventKind) String() string {
	switch k {
	case EventDecodeSucceeded:
		return "decode_succeeded"
	case EventDecodeFailed:
		return "decode_failed"
	case EventTick:
		return "tick"
	case EventCancel:
		return "cancel"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event drives the session state machine
type Event struct {
	Kind  EventKind
	Audio *audio.Decoded
	Err   error
	Delta time.Duration
}

// DecodeSucceeded carries the decoded audio handle
func DecodeSucceeded(decoded *audio.Decoded) Event {
	return Event{Kind: EventDecodeSucceeded, Audio: decoded}
}

// DecodeFailed carries the decoder error
func DecodeFailed(err error) Event {
	return Event{Kind: EventDecodeFailed, Err: err}
}

// Tick carries the render delta
func Tick(delta time.Duration) Event {
	return Event{Kind: EventTick, Delta: delta}
}

// Cancel requests teardown
func Cancel() Event {
	return Event{Kind: EventCancel}
}

// Config is the analysis and smoothing setup a session is built with.
type Config struct {
	Analysis  spectrum.Config
	Layout    bands.Layout
	Scheduler scheduler.Config

	// Output, when set, plays the audio and the analyser follows the
	// stream actually sent to it. Nil plays silently off the buffer.
	Output audio.Output
}

// DefaultConfig returns a 1024-point analyser split into thirds.
func DefaultConfig() Config {
	analysis := spectrum.DefaultConfig()
	layout, err := bands.Thirds(analysis.BinCount())
	if err != nil {
		panic(err)
	}
	return Config{
		Analysis:  analysis,
		Layout:    layout,
		Scheduler: scheduler.DefaultConfig(),
	}
}

// Validate checks that the pieces fit together
func (c Config) Validate() error {
	if err := c.Analysis.Validate(); err != nil {
		return err
	}
	if c.Layout.BinCount != c.Analysis.BinCount() {
		return fmt.Errorf("%w: analyser has %d bins, layout expects %d",
			bands.ErrDimensionMismatch, c.Analysis.BinCount(), c.Layout.BinCount)
	}
	return c.Scheduler.Validate(c.Layout)
}

// Hooks are notified after each change, outside the session lock.
type Hooks struct {
	OnState   func(s *Session, from, to State)
	OnCaption func(s *Session, st caption.State)
}
