package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/avatarsync/internal/audio"
	"github.com/normanking/avatarsync/internal/caption"
	"github.com/normanking/avatarsync/internal/metrics"
	"github.com/normanking/avatarsync/internal/scheduler"
	"github.com/normanking/avatarsync/internal/spectrum"
)

// Session plays one utterance. Idle until primed, Priming while the audio
// decodes, Active while it plays, then Completed, Cancelled or Failed.
//
// Decode results arriving from other goroutines go through Deliver and are
// applied at the start of the next Tick, so the scheduler and the caption
// synchronizer always start together on the render goroutine.
type Session struct {
	id     string
	words  []string
	cfg    Config
	pub    scheduler.Publisher
	hooks  Hooks
	logger zerolog.Logger

	inboxMu sync.Mutex
	inbox   []Event
	closed  bool // set by finish; later deliveries are discarded

	// mu serializes transitions; fields below are only touched with it held.
	mu       sync.Mutex
	decoded  *audio.Decoded
	duration time.Duration
	source   source
	stopPlay func()
	sched    *scheduler.Scheduler
	captions *caption.Synchronizer
	clock    time.Duration
	notes    []func()

	// viewMu guards what readers see, so sinks may read it mid-publish.
	viewMu   sync.RWMutex
	state    State
	err      error
	caption  caption.State
	position time.Duration
}

type source interface {
	spectrum.Source
	Release()
}

// New creates an idle session for words. pub receives every frame.
func New(words []string, cfg Config, pub scheduler.Publisher, hooks Hooks, logger zerolog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		words:  append([]string(nil), words...),
		cfg:    cfg,
		pub:    pub,
		hooks:  hooks,
		logger: logger.With().Str("component", "session").Str("session", id).Logger(),
		state:  StateIdle,
	}, nil
}

// ID returns the session handle
func (s *Session) ID() string {
	return s.id
}

// Words returns the caption words
func (s *Session) Words() []string {
	return append([]string(nil), s.words...)
}

// State returns the current state
func (s *Session) State() State {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.state
}

// Err returns why the session failed, if it did
func (s *Session) Err() error {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.err
}

// Caption returns the visible caption state
func (s *Session) Caption() caption.State {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.caption
}

// Position returns the playback clock
func (s *Session) Position() time.Duration {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.position
}

// Prime moves an idle session to Priming: audio is on its way.
func (s *Session) Prime() error {
	s.mu.Lock()
	var err error
	if s.State() != StateIdle {
		err = fmt.Errorf("%w: prime from %s", ErrIllegalTransition, s.State())
	} else {
		metrics.ActiveSessions.Inc()
		s.setState(StatePriming, nil)
	}
	notes := s.takeNotes()
	s.mu.Unlock()

	s.fire(notes)
	return err
}

// Deliver queues an event from another goroutine for the next Tick. Events
// for a terminal session are dropped and any audio they carry is released.
func (s *Session) Deliver(ev Event) {
	s.inboxMu.Lock()
	if s.closed {
		s.inboxMu.Unlock()
		s.discard(ev)
		return
	}
	s.inbox = append(s.inbox, ev)
	s.inboxMu.Unlock()
}

// Handle applies one event synchronously.
func (s *Session) Handle(ev Event) error {
	s.mu.Lock()
	err := s.handle(ev)
	notes := s.takeNotes()
	s.mu.Unlock()

	s.fire(notes)
	return err
}

// Tick applies queued events, then advances playback by delta. The tick
// that activates the session publishes the frame at position zero.
func (s *Session) Tick(delta time.Duration) error {
	s.inboxMu.Lock()
	inbox := s.inbox
	s.inbox = nil
	s.inboxMu.Unlock()

	s.mu.Lock()
	wasTerminal := s.State().Terminal()
	for _, ev := range inbox {
		before := s.State()
		if err := s.handle(ev); err != nil {
			s.logger.Debug().Err(err).Stringer("event", ev.Kind).Msg("Queued event rejected")
		}
		if before == StatePriming && s.State() == StateActive {
			delta = 0
		}
	}
	var err error
	if wasTerminal || !s.State().Terminal() {
		err = s.handle(Tick(delta))
	}
	notes := s.takeNotes()
	s.mu.Unlock()

	s.fire(notes)
	return err
}

// Cancel tears the session down synchronously. Cancelling a finished
// session is a no-op.
func (s *Session) Cancel() {
	_ = s.Handle(Cancel())
}

func (s *Session) handle(ev Event) error {
	state := s.State()

	if state.Terminal() {
		s.discard(ev)
		if ev.Kind == EventCancel {
			return nil
		}
		return ErrSessionClosed
	}

	switch ev.Kind {
	case EventCancel:
		s.finish(StateCancelled, nil)
		return nil

	case EventTick:
		if state != StateActive {
			return nil
		}
		return s.advance(ev.Delta)

	case EventDecodeSucceeded:
		if state != StatePriming {
			s.discard(ev)
			return fmt.Errorf("%w: %s in %s", ErrIllegalTransition, ev.Kind, state)
		}
		return s.activate(ev.Audio)

	case EventDecodeFailed:
		if state != StatePriming {
			return fmt.Errorf("%w: %s in %s", ErrIllegalTransition, ev.Kind, state)
		}
		err := ev.Err
		switch {
		case err == nil:
			err = audio.ErrDecodeFailed
		case !errors.Is(err, audio.ErrDecodeFailed):
			err = fmt.Errorf("%w: %w", audio.ErrDecodeFailed, err)
		}
		s.finish(StateFailed, err)
		return nil
	}

	return fmt.Errorf("%w: unknown event %s", ErrIllegalTransition, ev.Kind)
}

func (s *Session) activate(decoded *audio.Decoded) error {
	if decoded == nil {
		s.finish(StateFailed, fmt.Errorf("%w: no audio", audio.ErrDecodeFailed))
		return nil
	}
	s.decoded = decoded
	s.duration = decoded.Duration()

	src, tap, err := s.newSource(decoded)
	if err != nil {
		s.finish(StateFailed, err)
		return err
	}
	s.source = src

	sched, err := scheduler.New(src, s.cfg.Layout, s.cfg.Scheduler, s.pub, s.logger)
	if err != nil {
		s.finish(StateFailed, err)
		return err
	}
	s.sched = sched

	if tap != nil {
		stop, err := s.cfg.Output.Play(tap, decoded.SampleRate())
		if err != nil {
			s.finish(StateFailed, fmt.Errorf("start playback: %w", err))
			return err
		}
		s.stopPlay = stop
	}

	s.clock = 0
	s.captions = caption.New(s.words, s.duration)
	st, _ := s.captions.Sample(0)
	s.setCaption(st)
	s.setState(StateActive, nil)

	s.logger.Info().
		Dur("duration", s.duration).
		Int("words", len(s.words)).
		Int("sample_rate", decoded.SampleRate()).
		Msg("Playback started")
	return nil
}

// newSource analyses the buffer at the session clock, or, with an output,
// the tail of the stream being played. The returned tap is non-nil in the
// second case and still has to be handed to the output.
func (s *Session) newSource(decoded *audio.Decoded) (source, *audio.Tap, error) {
	if s.cfg.Output != nil {
		tap := audio.NewTap(decoded.Streamer(), 2*s.cfg.Analysis.FFTSize)
		src, err := spectrum.NewStreamSource(s.cfg.Analysis, tap)
		if err != nil {
			return nil, nil, err
		}
		return src, tap, nil
	}

	// only read from inside sched.Tick, which runs with mu held
	clock := spectrum.ClockFunc(func() time.Duration { return s.clock })

	src, err := spectrum.NewBufferSource(s.cfg.Analysis, decoded, clock)
	if err != nil {
		return nil, nil, err
	}
	if err := src.Connect(); err != nil {
		return nil, nil, err
	}
	return src, nil, nil
}

func (s *Session) advance(delta time.Duration) error {
	if delta < 0 {
		delta = 0
	}
	s.clock += delta
	s.viewMu.Lock()
	s.position = s.clock
	s.viewMu.Unlock()

	if s.clock >= s.duration {
		s.finish(StateCompleted, nil)
		return nil
	}

	if _, err := s.sched.Tick(delta); err != nil {
		s.finish(StateFailed, err)
		return err
	}

	if st, changed := s.captions.Sample(s.clock); changed {
		s.setCaption(st)
	}
	return nil
}

// finish is the single teardown path for every terminal state.
func (s *Session) finish(final State, err error) {
	from := s.State()

	if s.sched != nil {
		s.sched.Stop()
	}
	if s.captions != nil {
		s.captions.Stop()
	}
	if s.stopPlay != nil {
		s.stopPlay()
		s.stopPlay = nil
	}
	if s.source != nil {
		s.source.Release()
	}
	if s.decoded != nil {
		s.decoded.Release()
	}
	s.decoded = nil

	s.inboxMu.Lock()
	s.closed = true
	pending := s.inbox
	s.inbox = nil
	s.inboxMu.Unlock()
	for _, ev := range pending {
		s.discard(ev)
	}

	if final != StateCompleted {
		s.setCaption(caption.State{})
	}
	s.setState(final, err)

	if from == StatePriming || from == StateActive {
		metrics.ActiveSessions.Dec()
	}
	metrics.SessionsTotal.WithLabelValues(final.String()).Inc()

	ev := s.logger.Info()
	if err != nil {
		ev = s.logger.Warn().Err(err)
	}
	ev.Stringer("from", from).
		Stringer("to", final).
		Dur("position", s.clock).
		Msg("Playback ended")
}

func (s *Session) discard(ev Event) {
	if ev.Audio != nil {
		ev.Audio.Release()
	}
}

func (s *Session) setState(to State, err error) {
	s.viewMu.Lock()
	from := s.state
	s.state = to
	s.err = err
	s.viewMu.Unlock()

	if s.hooks.OnState != nil {
		s.notes = append(s.notes, func() { s.hooks.OnState(s, from, to) })
	}
}

func (s *Session) setCaption(st caption.State) {
	s.viewMu.Lock()
	s.caption = st
	s.viewMu.Unlock()

	if s.hooks.OnCaption != nil {
		s.notes = append(s.notes, func() { s.hooks.OnCaption(s, st) })
	}
}

func (s *Session) takeNotes() []func() {
	notes := s.notes
	s.notes = nil
	return notes
}

func (s *Session) fire(notes []func()) {
	for _, n := range notes {
		n()
	}
}
