package face

import (
	"fmt"
	"math"
	"sync"

	"github.com/qmuntal/gltf"

	"github.com/normanking/avatarsync/internal/bands"
	"github.com/normanking/avatarsync/internal/scheduler"
)

// Blendshape indexes the ARKit shapes the rig drives
type Blendshape int

const (
	BrowInnerUp Blendshape = iota
	BrowOuterUpLeft
	BrowOuterUpRight
	EyeBlinkLeft
	EyeBlinkRight
	EyeWideLeft
	EyeWideRight
	JawOpen
	MouthClose
	MouthFunnel
	MouthLowerDownLeft
	MouthLowerDownRight
	MouthStretchLeft
	MouthStretchRight
	BlendshapeCount
)

// BlendshapeNames are the ARKit morph target names, indexed by Blendshape
var BlendshapeNames = [BlendshapeCount]string{
	"browInnerUp",
	"browOuterUpLeft",
	"browOuterUpRight",
	"eyeBlinkLeft",
	"eyeBlinkRight",
	"eyeWideLeft",
	"eyeWideRight",
	"jawOpen",
	"mouthClose",
	"mouthFunnel",
	"mouthLowerDownLeft",
	"mouthLowerDownRight",
	"mouthStretchLeft",
	"mouthStretchRight",
}

func (b Blendshape) String() string {
	if b < 0 || b >= BlendshapeCount {
		return fmt.Sprintf("blendshape(%d)", int(b))
	}
	return BlendshapeNames[b]
}

// BlendshapeFromName returns the index of an ARKit name, or -1
func BlendshapeFromName(name string) Blendshape {
	for i, n := range BlendshapeNames {
		if n == name {
			return Blendshape(i)
		}
	}
	return -1
}

// Weights holds one value in [0,1] per blendshape
type Weights [BlendshapeCount]float32

// Set stores value clamped to [0,1]
func (w *Weights) Set(b Blendshape, value float32) {
	w[b] = clamp(value, 0, 1)
}

// Get returns the weight of b
func (w *Weights) Get(b Blendshape) float32 {
	return w[b]
}

// Map returns the weights keyed by ARKit name
func (w *Weights) Map() map[string]float32 {
	m := make(map[string]float32, BlendshapeCount)
	for i, v := range w {
		m[BlendshapeNames[i]] = v
	}
	return m
}

// Lerp moves from w toward target by t
func (w *Weights) Lerp(target *Weights, t float32) Weights {
	if t <= 0 {
		return *w
	}
	if t >= 1 {
		return *target
	}
	var result Weights
	for i := range w {
		result[i] = w[i] + (target[i]-w[i])*t
	}
	return result
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Rig maps parameter frames onto blendshape weights: the jaw follows
// mouthOpen, the lower lip bass, the eyes mid and the brows treble.
type Rig struct {
	mu        sync.RWMutex
	current   Weights
	target    Weights
	shown     Weights
	smoothing float32
	idle      *Idle

	// per glTF morph target, the blendshape it shows or -1
	targets []Blendshape
}

// NewRig creates a rig with no bound model
func NewRig() *Rig {
	return &Rig{smoothing: 0.15}
}

// Apply consumes one frame, setting the target weights
func (r *Rig) Apply(frame scheduler.Frame) {
	p := frame.Params
	open := float32(p.Value(scheduler.MouthOpen))
	bass := float32(p.Value(bands.Bass))
	mid := float32(p.Value(bands.Mid))
	treble := float32(p.Value(bands.Treble))

	var w Weights
	w.Set(JawOpen, open)
	w.Set(MouthLowerDownLeft, bass*0.6)
	w.Set(MouthLowerDownRight, bass*0.6)
	w.Set(MouthFunnel, mid*0.4)
	w.Set(MouthStretchLeft, treble*0.3)
	w.Set(MouthStretchRight, treble*0.3)
	w.Set(EyeWideLeft, mid*0.5)
	w.Set(EyeWideRight, mid*0.5)
	w.Set(BrowInnerUp, treble*0.5)
	w.Set(BrowOuterUpLeft, treble*0.5)
	w.Set(BrowOuterUpRight, treble*0.5)

	r.mu.Lock()
	r.target = w
	r.mu.Unlock()
}

// Update eases the current weights toward the target, frame-rate
// independently. dt is in seconds.
func (r *Rig) Update(dt float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.smoothing
	if dt > 0 {
		t = 1 - float32(math.Pow(float64(1-r.smoothing), float64(dt*60)))
	}
	r.current = r.current.Lerp(&r.target, t)

	r.shown = r.current
	if r.idle != nil {
		r.idle.Update(dt, &r.shown)
	}
}

// SetIdle layers idle motion over the audio-driven weights; nil removes it.
func (r *Rig) SetIdle(idle *Idle) {
	r.mu.Lock()
	r.idle = idle
	r.mu.Unlock()
}

// Weights returns the weights as of the last Update
func (r *Rig) Weights() Weights {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.shown
}

// BindMorphTargets reads the morph target names of the first mesh of a glTF
// model, from the conventional extras.targetNames, and returns how many of
// them the rig drives.
func (r *Rig) BindMorphTargets(path string) (int, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open gltf: %w", err)
	}
	if len(doc.Meshes) == 0 {
		return 0, fmt.Errorf("no meshes in file")
	}

	mesh := doc.Meshes[0]
	if len(mesh.Primitives) == 0 {
		return 0, fmt.Errorf("no primitives in mesh")
	}

	targets := make([]Blendshape, len(mesh.Primitives[0].Targets))
	for i := range targets {
		targets[i] = -1
	}

	bound := 0
	if extras, ok := mesh.Extras.(map[string]interface{}); ok {
		if names, ok := extras["targetNames"].([]interface{}); ok {
			for i, name := range names {
				if i >= len(targets) {
					break
				}
				if s, ok := name.(string); ok {
					targets[i] = BlendshapeFromName(s)
					if targets[i] >= 0 {
						bound++
					}
				}
			}
		}
	}

	r.mu.Lock()
	r.targets = targets
	r.mu.Unlock()
	return bound, nil
}

// MorphWeights returns the current weights in the bound model's morph
// target order. Targets the rig does not drive stay at zero.
func (r *Rig) MorphWeights() []float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]float32, len(r.targets))
	for i, b := range r.targets {
		if b >= 0 {
			out[i] = r.shown[b]
		}
	}
	return out
}
