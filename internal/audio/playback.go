package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"
)

// Output plays a stream. stop silences it; the stream is not drained after.
type Output interface {
	Play(s beep.Streamer, sampleRate int) (stop func(), err error)
}

// Streamer returns a stream of the signal from its start. It ends at the end
// of the signal or as soon as the handle is released.
func (d *Decoded) Streamer() beep.Streamer {
	return &decodedStreamer{d: d}
}

type decodedStreamer struct {
	d   *Decoded
	pos int
}

func (s *decodedStreamer) Stream(samples [][2]float64) (int, bool) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	if s.d.released || s.pos >= len(s.d.samples) {
		return 0, false
	}
	n := fillStereo(samples, s.d.samples[s.pos:])
	s.pos += n
	return n, true
}

func (s *decodedStreamer) Err() error {
	return nil
}

func fillStereo(dst [][2]float64, mono []float64) int {
	n := min(len(dst), len(mono))
	for i := range n {
		dst[i] = [2]float64{mono[i], mono[i]}
	}
	return n
}

// SpeakerOutput plays through the default sound device. The device is
// reopened when the sample rate changes.
type SpeakerOutput struct {
	mu     sync.Mutex
	rate   int
	logger zerolog.Logger
}

// NewSpeakerOutput creates an output; the device opens on first Play.
func NewSpeakerOutput(logger zerolog.Logger) *SpeakerOutput {
	return &SpeakerOutput{
		logger: logger.With().Str("component", "speaker").Logger(),
	}
}

// Play implements Output
func (o *SpeakerOutput) Play(s beep.Streamer, sampleRate int) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if o.rate != sampleRate {
		sr := beep.SampleRate(sampleRate)
		if err := speaker.Init(sr, sr.N(time.Second/20)); err != nil {
			return nil, fmt.Errorf("open speaker: %w", err)
		}
		o.rate = sampleRate
		o.logger.Debug().Int("sample_rate", sampleRate).Msg("Speaker opened")
	}

	ctrl := &beep.Ctrl{Streamer: s}
	speaker.Play(ctrl)

	return func() {
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
	}, nil
}

// Close releases the sound device
func (o *SpeakerOutput) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rate != 0 {
		speaker.Close()
		o.rate = 0
	}
}
