// Package avatar owns the playback session of one talking avatar and exposes
// its per-frame parameters and captions to renderers.
package avatar

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/avatarsync/internal/audio"
	"github.com/normanking/avatarsync/internal/bus"
	"github.com/normanking/avatarsync/internal/caption"
	"github.com/normanking/avatarsync/internal/scheduler"
	"github.com/normanking/avatarsync/internal/session"
)

// Controller manages the avatar's playback sessions. At most one session is
// live at a time; starting another cancels the current one first.
type Controller struct {
	decoder audio.Decoder
	events  *bus.EventBus
	frames  *scheduler.Hub
	logger  zerolog.Logger

	mu     sync.RWMutex
	tuning session.Config
	output audio.Output
	active *session.Session

	captionMu   sync.RWMutex
	captionSubs []captionSub
	nextSub     int
}

type captionSub struct {
	id int
	fn func(caption.State)
}

// NewController creates a controller. events may be nil.
func NewController(tuning session.Config, decoder audio.Decoder, events *bus.EventBus, logger zerolog.Logger) (*Controller, error) {
	if err := tuning.Validate(); err != nil {
		return nil, err
	}
	if decoder == nil {
		return nil, errors.New("controller needs a decoder")
	}
	return &Controller{
		decoder: decoder,
		events:  events,
		frames:  scheduler.NewHub(),
		tuning:  tuning,
		logger:  logger.With().Str("component", "avatar").Logger(),
	}, nil
}

// Prepare starts a session for raw synthesized audio, decoding it in the
// background. Empty audio fails with audio.ErrSynthesisEmpty and creates
// no session.
func (c *Controller) Prepare(raw []byte, words []string) (*session.Session, error) {
	if len(raw) == 0 {
		return nil, audio.ErrSynthesisEmpty
	}

	s, err := c.begin(words)
	if err != nil {
		return nil, err
	}

	c.decoder.Decode(raw, func(decoded *audio.Decoded, err error) {
		if err != nil {
			s.Deliver(session.DecodeFailed(err))
			return
		}
		s.Deliver(session.DecodeSucceeded(decoded))
	})
	return s, nil
}

// StartSession starts a session for audio that is already decoded. Playback
// begins on the next Tick.
func (c *Controller) StartSession(decoded *audio.Decoded, words []string) (*session.Session, error) {
	if decoded == nil {
		return nil, errors.New("start session: no audio")
	}

	s, err := c.begin(words)
	if err != nil {
		decoded.Release()
		return nil, err
	}
	s.Deliver(session.DecodeSucceeded(decoded))
	return s, nil
}

func (c *Controller) begin(words []string) (*session.Session, error) {
	// Teardown runs the sinks, which may call back into the accessors, so
	// the current session is cancelled with mu released.
	c.mu.Lock()
	old := c.active
	c.active = nil
	tuning := c.tuning
	tuning.Output = c.output
	c.mu.Unlock()

	if old != nil {
		old.Cancel()
	}

	s, err := session.New(words, tuning, c.frames, session.Hooks{
		OnState:   c.onState,
		OnCaption: c.onCaption,
	}, c.logger)
	if err != nil {
		return nil, err
	}
	if err := s.Prime(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	displaced := c.active
	c.active = s
	c.mu.Unlock()

	// a concurrent begin got in between
	if displaced != nil {
		displaced.Cancel()
	}
	return s, nil
}

// Cancel tears down the given session if it is still the live one. Teardown
// has completed when Cancel returns.
func (c *Controller) Cancel(s *session.Session) {
	if s == nil {
		return
	}
	s.Cancel()

	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()
}

// Close cancels the live session, if any.
func (c *Controller) Close() {
	c.Cancel(c.Active())
}

// Tick is the render callback: it advances the live session by delta.
func (c *Controller) Tick(delta time.Duration) {
	s := c.Active()
	if s == nil {
		return
	}
	if err := s.Tick(delta); err != nil && !errors.Is(err, session.ErrSessionClosed) {
		c.logger.Warn().Err(err).Str("session", s.ID()).Msg("Tick failed")
	}
}

// Active returns the live session, nil when idle
func (c *Controller) Active() *session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Parameters returns the current parameter set. Before any frame it is the
// rest set of the current tuning.
func (c *Controller) Parameters() scheduler.ParameterSet {
	if frame, ok := c.frames.Latest(); ok {
		return frame.Params
	}
	return scheduler.Rest(c.ParameterNames())
}

// Caption returns what the caption display should show
func (c *Controller) Caption() caption.State {
	if s := c.Active(); s != nil {
		return s.Caption()
	}
	return caption.State{}
}

// ParameterNames lists the parameters every frame carries
func (c *Controller) ParameterNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := c.tuning.Layout.Names()
	for _, d := range c.tuning.Scheduler.Derived {
		names = append(names, d.Name)
	}
	return names
}

// Subscribe registers a frame sink. Sinks run on the render goroutine and
// must not block.
func (c *Controller) Subscribe(fn func(scheduler.Frame)) func() {
	return c.frames.Subscribe(fn)
}

// SubscribeCaptions registers a caption sink
func (c *Controller) SubscribeCaptions(fn func(caption.State)) func() {
	c.captionMu.Lock()
	defer c.captionMu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.captionSubs = append(c.captionSubs, captionSub{id: id, fn: fn})

	return func() {
		c.captionMu.Lock()
		defer c.captionMu.Unlock()
		for i, sub := range c.captionSubs {
			if sub.id == id {
				c.captionSubs = append(c.captionSubs[:i:i], c.captionSubs[i+1:]...)
				return
			}
		}
	}
}

// SetTuning replaces the analysis and smoothing setup for the next session.
func (c *Controller) SetTuning(tuning session.Config) error {
	if err := tuning.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.tuning = tuning
	c.mu.Unlock()
	c.logger.Info().
		Int("fft_size", tuning.Analysis.FFTSize).
		Strs("bands", tuning.Layout.Names()).
		Msg("Tuning updated")
	return nil
}

// SetOutput makes later sessions audible on out; nil keeps them silent.
func (c *Controller) SetOutput(out audio.Output) {
	c.mu.Lock()
	c.output = out
	c.mu.Unlock()
}

// Tuning returns the setup used for new sessions
func (c *Controller) Tuning() session.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tuning
}

func (c *Controller) onState(s *session.Session, from, to session.State) {
	c.logger.Debug().Str("session", s.ID()).Stringer("from", from).Stringer("to", to).Msg("Session state changed")

	if c.events == nil {
		return
	}
	var eventType bus.EventType
	switch to {
	case session.StatePriming:
		eventType = bus.EventTypeSessionPriming
	case session.StateActive:
		eventType = bus.EventTypeSessionActive
	case session.StateCompleted:
		eventType = bus.EventTypeSessionCompleted
	case session.StateCancelled:
		eventType = bus.EventTypeSessionCancelled
	case session.StateFailed:
		eventType = bus.EventTypeSessionFailed
	default:
		return
	}

	data := map[string]any{"from": from.String(), "to": to.String()}
	if err := s.Err(); err != nil {
		data["error"] = err.Error()
	}
	c.events.Publish(bus.Event{Type: eventType, SessionID: s.ID(), Data: data})
}

func (c *Controller) onCaption(s *session.Session, st caption.State) {
	c.captionMu.RLock()
	subs := append([]captionSub(nil), c.captionSubs...)
	c.captionMu.RUnlock()

	for _, sub := range subs {
		sub.fn(st)
	}

	if c.events == nil {
		return
	}
	eventType := bus.EventTypeCaptionAdvanced
	if st == (caption.State{}) {
		eventType = bus.EventTypeCaptionCleared
	}
	c.events.Publish(bus.Event{
		Type:      eventType,
		SessionID: s.ID(),
		Data: map[string]any{
			"word_index": st.WordIndex,
			"word_count": st.WordCount,
			"word":       st.Word,
			"done":       st.Done,
		},
	})
}
