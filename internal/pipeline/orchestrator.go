// Package pipeline turns prompts and lines of text into playback sessions:
// generate, synthesize, then hand the audio to the avatar.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/avatarsync/internal/audio"
	"github.com/normanking/avatarsync/internal/bus"
	"github.com/normanking/avatarsync/internal/caption"
	"github.com/normanking/avatarsync/internal/llm"
	"github.com/normanking/avatarsync/internal/metrics"
	"github.com/normanking/avatarsync/internal/session"
	"github.com/normanking/avatarsync/internal/tts"
)

// Stage starts playback of synthesized audio; avatar.Controller is one.
type Stage interface {
	Prepare(raw []byte, words []string) (*session.Session, error)
}

// Orchestrator wires a generator and a synthesizer to a stage
type Orchestrator struct {
	generator llm.Generator
	synth     tts.Synthesizer
	stage     Stage
	events    *bus.EventBus
	logger    zerolog.Logger

	mu    sync.RWMutex
	voice tts.VoiceOptions
}

// New creates an orchestrator. generator and events may be nil; without a
// generator only Say works and without events Run cannot wait for lines.
func New(generator llm.Generator, synth tts.Synthesizer, stage Stage, voice tts.VoiceOptions, events *bus.EventBus, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		synth:     synth,
		stage:     stage,
		events:    events,
		voice:     voice,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// SetVoice changes the voice used for the next line
func (o *Orchestrator) SetVoice(voice tts.VoiceOptions) {
	o.mu.Lock()
	o.voice = voice
	o.mu.Unlock()
}

// Voice returns the current voice
func (o *Orchestrator) Voice() tts.VoiceOptions {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.voice
}

// Speak asks the generator for a reply to prompt and says it.
func (o *Orchestrator) Speak(ctx context.Context, prompt string) (*session.Session, string, error) {
	if o.generator == nil {
		return nil, "", fmt.Errorf("speak: no text generator configured")
	}

	start := time.Now()
	text, err := o.generator.Generate(ctx, prompt)
	metrics.SynthesisDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, "", fmt.Errorf("generate: %w", err)
	}
	o.publish(bus.EventTypeGenerationCompleted, "", map[string]any{"prompt": prompt, "text": text})
	o.logger.Info().Str("prompt", prompt).Str("reply", text).Msg("Reply generated")

	s, err := o.Say(ctx, text)
	return s, text, err
}

// Say synthesizes text and starts a session for it. Empty synthesis fails
// with audio.ErrSynthesisEmpty and starts no session.
func (o *Orchestrator) Say(ctx context.Context, text string) (*session.Session, error) {
	text = strings.TrimSpace(text)
	words := caption.Words(text)
	if len(words) == 0 {
		return nil, tts.ErrEmptyText
	}

	start := time.Now()
	raw, err := o.synth.Synthesize(ctx, text, o.Voice())
	metrics.SynthesisDuration.WithLabelValues("tts").Observe(time.Since(start).Seconds())
	if err == nil && len(raw) == 0 {
		err = audio.ErrSynthesisEmpty
	}
	if err != nil {
		o.publish(bus.EventTypeSynthesisFailed, "", map[string]any{"text": text, "error": err.Error()})
		o.logger.Warn().Err(err).Str("provider", o.synth.Name()).Msg("Synthesis failed")
		return nil, err
	}

	s, err := o.stage.Prepare(raw, words)
	if err != nil {
		return nil, err
	}
	o.publish(bus.EventTypeSynthesisCompleted, s.ID(), map[string]any{
		"text":  text,
		"bytes": len(raw),
		"words": len(words),
	})
	return s, nil
}

// ErrNoEvents is returned when there is no bus to wait on
var ErrNoEvents = errors.New("no event bus to await sessions on")

var terminalEvents = []bus.EventType{
	bus.EventTypeSessionCompleted,
	bus.EventTypeSessionCancelled,
	bus.EventTypeSessionFailed,
}

// Await blocks until s reaches a terminal state or ctx is done. s must come
// from a controller that publishes to events.
func Await(ctx context.Context, events *bus.EventBus, s *session.Session) (session.State, error) {
	if events == nil {
		return s.State(), ErrNoEvents
	}

	ended := make(chan struct{}, 1)
	unsub := events.SubscribeMultiple(terminalEvents, func(e bus.Event) {
		if e.SessionID != s.ID() {
			return
		}
		select {
		case ended <- struct{}{}:
		default:
		}
	})
	defer unsub()

	// it may have ended before we subscribed
	if st := s.State(); st.Terminal() {
		return st, s.Err()
	}

	select {
	case <-ctx.Done():
		return s.State(), ctx.Err()
	case <-ended:
		return s.State(), s.Err()
	}
}

func (o *Orchestrator) publish(t bus.EventType, sessionID string, data map[string]any) {
	if o.events == nil {
		return
	}
	o.events.Publish(bus.Event{Type: t, SessionID: sessionID, Data: data})
}
