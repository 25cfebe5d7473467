// Package face holds the animation targets driven by parameter frames: the
// shader uniforms, the procedural mouth and the blendshape rig.
package face

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/normanking/avatarsync/internal/bands"
	"github.com/normanking/avatarsync/internal/scheduler"
)

// UniformSetter uploads uniforms to a compiled shader program.
type UniformSetter interface {
	SetFloat(name string, value float32)
	SetVec2(name string, v mgl32.Vec2)
}

// Uniforms are the inputs of the face shader
type Uniforms struct {
	Time       float32
	Bass       float32
	Mid        float32
	Treble     float32
	Resolution mgl32.Vec2
}

// Upload sets every uniform on s
func (u Uniforms) Upload(s UniformSetter) {
	s.SetFloat("uTime", u.Time)
	s.SetFloat("uBass", u.Bass)
	s.SetFloat("uMid", u.Mid)
	s.SetFloat("uTreble", u.Treble)
	s.SetVec2("uResolution", u.Resolution)
}

// clock turns frame timestamps into a time uniform that keeps running
// across sessions.
type clock struct {
	total float32
	last  time.Duration
}

func (c *clock) advance(elapsed time.Duration) float32 {
	delta := elapsed - c.last
	if delta < 0 {
		// a new session restarted the frame clock
		delta = elapsed
	}
	c.last = elapsed
	c.total += float32(delta.Seconds())
	return c.total
}

// FaceShader feeds the band energies of each frame to the face shader.
type FaceShader struct {
	mu       sync.RWMutex
	uniforms Uniforms
	clock    clock
}

// NewFaceShader creates the shader target for a viewport of width×height
func NewFaceShader(width, height float32) *FaceShader {
	return &FaceShader{uniforms: Uniforms{Resolution: mgl32.Vec2{width, height}}}
}

// Apply consumes one frame
func (f *FaceShader) Apply(frame scheduler.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uniforms.Time = f.clock.advance(frame.Elapsed)
	f.uniforms.Bass = float32(frame.Params.Value(bands.Bass))
	f.uniforms.Mid = float32(frame.Params.Value(bands.Mid))
	f.uniforms.Treble = float32(frame.Params.Value(bands.Treble))
}

// Resize updates the viewport resolution
func (f *FaceShader) Resize(width, height float32) {
	f.mu.Lock()
	f.uniforms.Resolution = mgl32.Vec2{width, height}
	f.mu.Unlock()
}

// Uniforms returns the current uniform values
func (f *FaceShader) Uniforms() Uniforms {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.uniforms
}

// Amplitude is the parameter the background pulses with
const Amplitude = "amplitude"

// Background drives the animated backdrop: a time uniform and an amplitude
// taken from the amplitude parameter, or the mean band energy without one.
type Background struct {
	mu        sync.RWMutex
	time      float32
	amplitude float32
	clock     clock
}

// NewBackground creates a background target
func NewBackground() *Background {
	return &Background{}
}

// Apply consumes one frame
func (b *Background) Apply(frame scheduler.Frame) {
	amplitude, ok := frame.Params.Get(Amplitude)
	if !ok {
		amplitude = meanBands(frame.Params)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.time = b.clock.advance(frame.Elapsed)
	b.amplitude = float32(amplitude)
}

// Upload sets the background uniforms on s
func (b *Background) Upload(s UniformSetter) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s.SetFloat("time", b.time)
	s.SetFloat("amplitude", b.amplitude)
}

// Values returns the time and amplitude uniforms
func (b *Background) Values() (time, amplitude float32) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.time, b.amplitude
}

func meanBands(p scheduler.ParameterSet) float64 {
	var sum float64
	var n int
	for _, name := range []string{bands.Bass, bands.Mid, bands.Treble} {
		if v, ok := p.Get(name); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
