package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/avatarsync/internal/audio"
	"github.com/normanking/avatarsync/internal/audio/audiotest"
	"github.com/normanking/avatarsync/internal/bands"
	"github.com/normanking/avatarsync/internal/caption"
	"github.com/normanking/avatarsync/internal/scheduler"
)

type recorder struct {
	mu     sync.Mutex
	frames []scheduler.Frame
}

func (r *recorder) Publish(f scheduler.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *recorder) last() scheduler.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[len(r.frames)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

type hookLog struct {
	mu       sync.Mutex
	states   []State
	captions []caption.State
}

func (h *hookLog) hooks() Hooks {
	return Hooks{
		OnState: func(_ *Session, _, to State) {
			h.mu.Lock()
			h.states = append(h.states, to)
			h.mu.Unlock()
		},
		OnCaption: func(_ *Session, st caption.State) {
			h.mu.Lock()
			h.captions = append(h.captions, st)
			h.mu.Unlock()
		},
	}
}

// threeSeconds is a loud 500 Hz tone lasting exactly three seconds.
func threeSeconds(t *testing.T) *audio.Decoded {
	t.Helper()
	decoded, err := audio.NewDecoded(audiotest.Sine(500, 8000, 24000, 0.8), 8000)
	require.NoError(t, err)
	return decoded
}

func newSession(t *testing.T, words []string, pub scheduler.Publisher, hooks Hooks) *Session {
	t.Helper()
	s, err := New(words, DefaultConfig(), pub, hooks, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestSession_PlaysToCompletion(t *testing.T) {
	rec := &recorder{}
	log := &hookLog{}
	s := newSession(t, []string{"hello", "ominous", "one"}, rec, log.hooks())
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, s.Prime())
	decoded := threeSeconds(t)
	s.Deliver(DecodeSucceeded(decoded))

	// nothing starts until the render tick picks up the decode result
	assert.Equal(t, StatePriming, s.State())
	assert.Zero(t, rec.count())
	assert.Equal(t, caption.State{}, s.Caption())

	require.NoError(t, s.Tick(16*time.Millisecond))
	assert.Equal(t, StateActive, s.State())
	require.Equal(t, 1, rec.count())
	assert.Zero(t, rec.last().Elapsed)
	assert.Equal(t, "hello", s.Caption().Word)

	require.NoError(t, s.Tick(700*time.Millisecond))
	assert.Equal(t, 0, s.Caption().WordIndex)
	assert.Greater(t, rec.last().Params.Value(bands.Bass), 0.0)

	require.NoError(t, s.Tick(700*time.Millisecond))
	assert.Equal(t, 1, s.Caption().WordIndex)

	require.NoError(t, s.Tick(700*time.Millisecond))
	assert.Equal(t, 2, s.Caption().WordIndex)
	assert.Equal(t, "one", s.Caption().Word)
	assert.Equal(t, 2100*time.Millisecond, s.Position())
	assert.Equal(t, 2100*time.Millisecond, rec.last().Elapsed)

	require.NoError(t, s.Tick(time.Second))
	assert.Equal(t, StateCompleted, s.State())
	assert.NoError(t, s.Err())
	assert.True(t, rec.last().Params.IsRest())
	assert.True(t, decoded.Released())

	// the last word stays up after natural completion
	assert.Equal(t, 2, s.Caption().WordIndex)
	assert.True(t, s.Caption().Done)

	assert.ErrorIs(t, s.Tick(time.Second), ErrSessionClosed)

	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Equal(t, []State{StatePriming, StateActive, StateCompleted}, log.states)
	require.Len(t, log.captions, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{
		log.captions[0].WordIndex, log.captions[1].WordIndex, log.captions[2].WordIndex,
	})
}

// deviceOutput stands in for a sound card: tests pull what it would play.
type deviceOutput struct {
	mu      sync.Mutex
	stream  beep.Streamer
	rate    int
	stopped bool
	err     error
}

func (d *deviceOutput) Play(s beep.Streamer, sampleRate int) (func(), error) {
	if d.err != nil {
		return nil, d.err
	}
	d.mu.Lock()
	d.stream, d.rate = s, sampleRate
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()
	}, nil
}

func (d *deviceOutput) pull(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	got, _ := d.stream.Stream(make([][2]float64, n))
	return got
}

func TestSession_PlaysThroughOutput(t *testing.T) {
	out := &deviceOutput{}
	cfg := DefaultConfig()
	cfg.Output = out

	rec := &recorder{}
	s, err := New([]string{"hello"}, cfg, rec, Hooks{}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Prime())

	decoded := threeSeconds(t)
	s.Deliver(DecodeSucceeded(decoded))
	require.NoError(t, s.Tick(0))
	require.Equal(t, StateActive, s.State())
	assert.Equal(t, 8000, out.rate)

	// nothing has reached the device yet
	assert.Zero(t, rec.last().Params.Value(bands.Bass))

	require.Equal(t, 2048, out.pull(2048))
	require.NoError(t, s.Tick(250*time.Millisecond))
	assert.Greater(t, rec.last().Params.Value(bands.Bass), 0.0)

	s.Cancel()
	assert.True(t, out.stopped)
	assert.True(t, decoded.Released())
	assert.Zero(t, out.pull(16))
}

func TestSession_OutputFailureFailsSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = &deviceOutput{err: errors.New("no device")}

	s, err := New([]string{"hello"}, cfg, nil, Hooks{}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Prime())

	decoded := threeSeconds(t)
	s.Deliver(DecodeSucceeded(decoded))
	require.NoError(t, s.Tick(0))

	assert.Equal(t, StateFailed, s.State())
	assert.ErrorContains(t, s.Err(), "no device")
	assert.True(t, decoded.Released())
}

func TestSession_WordIndexNeverDecreases(t *testing.T) {
	words := []string{"a", "b", "c", "d", "e", "f"}
	s := newSession(t, words, nil, Hooks{})
	require.NoError(t, s.Prime())
	s.Deliver(DecodeSucceeded(threeSeconds(t)))

	prev := -1
	for i := 0; i < 200 && s.State() != StateCompleted; i++ {
		require.NoError(t, s.Tick(16*time.Millisecond))
		idx := s.Caption().WordIndex
		assert.GreaterOrEqual(t, idx, prev)
		assert.Less(t, idx, len(words))
		prev = idx
	}
	assert.Equal(t, StateCompleted, s.State())
}

func TestSession_CancelWhileActive(t *testing.T) {
	rec := &recorder{}
	s := newSession(t, []string{"hello", "ominous", "one"}, rec, Hooks{})
	require.NoError(t, s.Prime())
	decoded := threeSeconds(t)
	s.Deliver(DecodeSucceeded(decoded))
	require.NoError(t, s.Tick(0))
	require.NoError(t, s.Tick(time.Second))
	require.False(t, rec.last().Params.IsRest())

	s.Cancel()

	// teardown is synchronous
	assert.Equal(t, StateCancelled, s.State())
	assert.True(t, rec.last().Params.IsRest())
	assert.Equal(t, caption.State{}, s.Caption())
	assert.True(t, decoded.Released())

	count := rec.count()
	s.Cancel()
	assert.ErrorIs(t, s.Tick(time.Second), ErrSessionClosed)
	assert.Equal(t, count, rec.count())
}

func TestSession_LateDecodeAfterCancelIsNoop(t *testing.T) {
	rec := &recorder{}
	log := &hookLog{}
	s := newSession(t, []string{"hello"}, rec, log.hooks())
	require.NoError(t, s.Prime())

	s.Cancel()
	assert.Equal(t, StateCancelled, s.State())

	late := threeSeconds(t)
	s.Deliver(DecodeSucceeded(late))
	assert.True(t, late.Released())

	assert.ErrorIs(t, s.Handle(DecodeSucceeded(threeSeconds(t))), ErrSessionClosed)
	assert.ErrorIs(t, s.Tick(time.Second), ErrSessionClosed)
	assert.Equal(t, StateCancelled, s.State())
	assert.Zero(t, rec.count())

	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Equal(t, []State{StatePriming, StateCancelled}, log.states)
}

func TestSession_CancelDropsQueuedDecode(t *testing.T) {
	s := newSession(t, []string{"hello"}, nil, Hooks{})
	require.NoError(t, s.Prime())

	queued := threeSeconds(t)
	s.Deliver(DecodeSucceeded(queued))
	s.Cancel()

	assert.True(t, queued.Released())
	assert.ErrorIs(t, s.Tick(time.Second), ErrSessionClosed)
	assert.Equal(t, StateCancelled, s.State())
}

func TestSession_DeliverRacingCancelReleasesAudio(t *testing.T) {
	for i := 0; i < 500; i++ {
		s := newSession(t, []string{"hello"}, nil, Hooks{})
		require.NoError(t, s.Prime())

		decoded, err := audio.NewDecoded(make([]float64, 80), 8000)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Deliver(DecodeSucceeded(decoded))
		}()
		go func() {
			defer wg.Done()
			s.Cancel()
		}()
		wg.Wait()

		// nobody ticks a cancelled session again
		require.True(t, decoded.Released(), "iteration %d stranded audio in the inbox", i)
	}
}

func TestSession_DecodeFailure(t *testing.T) {
	rec := &recorder{}
	s := newSession(t, []string{"hello"}, rec, Hooks{})
	require.NoError(t, s.Prime())

	s.Deliver(DecodeFailed(errors.New("bad header")))
	require.NoError(t, s.Tick(16*time.Millisecond))

	assert.Equal(t, StateFailed, s.State())
	assert.ErrorIs(t, s.Err(), audio.ErrDecodeFailed)
	assert.Contains(t, s.Err().Error(), "bad header")
	assert.Zero(t, rec.count())
	assert.True(t, s.State().Terminal())
}

func TestSession_DecodeFailureWithoutCause(t *testing.T) {
	s := newSession(t, nil, nil, Hooks{})
	require.NoError(t, s.Prime())
	require.NoError(t, s.Handle(DecodeFailed(nil)))
	assert.ErrorIs(t, s.Err(), audio.ErrDecodeFailed)
}

func TestSession_IllegalTransitions(t *testing.T) {
	s := newSession(t, []string{"a"}, nil, Hooks{})

	assert.ErrorIs(t, s.Handle(DecodeSucceeded(threeSeconds(t))), ErrIllegalTransition)
	assert.ErrorIs(t, s.Handle(DecodeFailed(nil)), ErrIllegalTransition)
	assert.NoError(t, s.Handle(Tick(time.Second)))
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, s.Prime())
	assert.ErrorIs(t, s.Prime(), ErrIllegalTransition)
	assert.NoError(t, s.Handle(Tick(time.Second)))
	assert.Equal(t, StatePriming, s.State())

	require.NoError(t, s.Handle(DecodeSucceeded(threeSeconds(t))))
	assert.Equal(t, StateActive, s.State())

	extra := threeSeconds(t)
	assert.ErrorIs(t, s.Handle(DecodeSucceeded(extra)), ErrIllegalTransition)
	assert.True(t, extra.Released())
	assert.ErrorIs(t, s.Handle(DecodeFailed(nil)), ErrIllegalTransition)
	assert.Equal(t, StateActive, s.State())

	s.Cancel()
}

func TestSession_CancelFromIdle(t *testing.T) {
	s := newSession(t, nil, nil, Hooks{})
	s.Cancel()
	assert.Equal(t, StateCancelled, s.State())
}

func TestSession_NoWordsStillPlays(t *testing.T) {
	rec := &recorder{}
	s := newSession(t, nil, rec, Hooks{})
	require.NoError(t, s.Prime())
	require.NoError(t, s.Handle(DecodeSucceeded(threeSeconds(t))))

	require.NoError(t, s.Tick(time.Second))
	assert.Equal(t, StateActive, s.State())
	assert.True(t, s.Caption().Done)
	assert.Empty(t, s.Caption().Word)
	assert.Equal(t, 1, rec.count())

	require.NoError(t, s.Tick(3*time.Second))
	assert.Equal(t, StateCompleted, s.State())
}

func TestSession_EmptyAudioCompletesOnFirstTick(t *testing.T) {
	empty, err := audio.NewDecoded(nil, 8000)
	require.NoError(t, err)

	rec := &recorder{}
	s := newSession(t, []string{"a", "b"}, rec, Hooks{})
	require.NoError(t, s.Prime())
	s.Deliver(DecodeSucceeded(empty))
	require.NoError(t, s.Tick(16*time.Millisecond))

	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, 1, s.Caption().WordIndex)
	require.Equal(t, 1, rec.count())
	assert.True(t, rec.last().Params.IsRest())
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Analysis.FFTSize = 2048
	assert.ErrorIs(t, cfg.Validate(), bands.ErrDimensionMismatch)

	_, err := New(nil, cfg, nil, Hooks{}, zerolog.Nop())
	assert.ErrorIs(t, err, bands.ErrDimensionMismatch)
}

func TestState_Strings(t *testing.T) {
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.Equal(t, "decode_failed", EventDecodeFailed.String())
	assert.False(t, StateActive.Terminal())
	assert.True(t, StateFailed.Terminal())
}
