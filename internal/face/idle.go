package face

import (
	"math"
	"math/rand"
	"sync"
)

type blinkPhase int

const (
	blinkOpen blinkPhase = iota
	blinkClosing
	blinkClosed
	blinkOpening
)

// Idle layers blinks and a slow breath over the rig so the face is not
// frozen between utterances. It runs on dt, not wall time.
type Idle struct {
	mu  sync.Mutex
	rng *rand.Rand

	time float32

	phase     blinkPhase
	progress  float32
	untilNext float32
	blinkTime float32
	minGap    float32
	maxGap    float32

	breathRate      float32
	breathAmplitude float32
}

// NewIdle creates an idle layer. seed fixes the blink schedule.
func NewIdle(seed int64) *Idle {
	i := &Idle{
		rng:             rand.New(rand.NewSource(seed)),
		blinkTime:       0.15,
		minGap:          2,
		maxGap:          5,
		breathRate:      0.2,
		breathAmplitude: 0.03,
	}
	i.untilNext = i.gap()
	return i
}

func (i *Idle) gap() float32 {
	return i.minGap + i.rng.Float32()*(i.maxGap-i.minGap)
}

// Blink closes the eyes now unless a blink is under way
func (i *Idle) Blink() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.phase == blinkOpen {
		i.phase = blinkClosing
		i.progress = 0
	}
}

// Update advances by dt seconds and adds the idle motion to w.
func (i *Idle) Update(dt float32, w *Weights) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if dt > 0 {
		i.time += dt
		i.advanceBlink(dt)
	}

	lid := i.progress
	if lid > 1 {
		lid = 1
	}
	w.Set(EyeBlinkLeft, w.Get(EyeBlinkLeft)+lid)
	w.Set(EyeBlinkRight, w.Get(EyeBlinkRight)+lid)

	breath := (float32(math.Sin(float64(i.time*i.breathRate*2*math.Pi)))*0.5 + 0.5) * i.breathAmplitude
	w.Set(JawOpen, w.Get(JawOpen)+breath*0.3)
	w.Set(BrowInnerUp, w.Get(BrowInnerUp)+breath*0.2)
}

func (i *Idle) advanceBlink(dt float32) {
	switch i.phase {
	case blinkOpen:
		i.untilNext -= dt
		if i.untilNext <= 0 {
			i.phase = blinkClosing
			i.progress = 0
		}

	case blinkClosing:
		i.progress += dt / (i.blinkTime * 0.4)
		if i.progress >= 1 {
			i.progress = 1
			i.phase = blinkClosed
		}

	case blinkClosed:
		i.progress += dt / (i.blinkTime * 0.1)
		if i.progress >= 1.1 {
			i.progress = 1
			i.phase = blinkOpening
		}

	case blinkOpening:
		i.progress -= dt / (i.blinkTime * 0.5)
		if i.progress <= 0 {
			i.progress = 0
			i.phase = blinkOpen
			i.untilNext = i.gap()
		}
	}
}
