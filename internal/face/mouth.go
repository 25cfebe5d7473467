package face

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/normanking/avatarsync/internal/scheduler"
)

// MouthVertexCount is the number of vertices of the mouth mesh: five on the
// upper lip, then five on the lower lip.
const MouthVertexCount = 10

// how far the lower lip drops at mouthOpen = 1
const mouthDrop = 0.2

var mouthRest = [MouthVertexCount]mgl32.Vec3{
	// upper lip
	{-0.5, 0, 0},
	{-0.25, 0.1, 0},
	{0, 0.15, 0},
	{0.25, 0.1, 0},
	{0.5, 0, 0},
	// lower lip
	{-0.5, 0, 0},
	{-0.25, -0.1, 0},
	{0, -0.15, 0},
	{0.25, -0.1, 0},
	{0.5, 0, 0},
}

var mouthIndices = []uint32{
	0, 1, 5,
	1, 6, 5,
	1, 2, 6,
	2, 7, 6,
	2, 3, 7,
	3, 8, 7,
	3, 4, 8,
	4, 9, 8,
	0, 5, 9,
	0, 9, 4,
}

// Mouth is the procedural mouth mesh. The three inner lower-lip vertices
// follow the mouthOpen parameter; the corners stay fixed.
type Mouth struct {
	mu        sync.RWMutex
	open      float32
	positions [MouthVertexCount]mgl32.Vec3
	normals   [MouthVertexCount]mgl32.Vec3
}

// NewMouth returns a closed mouth
func NewMouth() *Mouth {
	m := &Mouth{positions: mouthRest}
	m.computeNormals()
	return m
}

// Apply consumes one frame
func (m *Mouth) Apply(frame scheduler.Frame) {
	m.SetOpen(float32(frame.Params.Value(scheduler.MouthOpen)))
}

// SetOpen displaces the lower lip by open·0.2 and recomputes normals.
func (m *Mouth) SetOpen(open float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.open = open
	for _, i := range []int{6, 7, 8} {
		m.positions[i][1] = mouthRest[i][1] - open*mouthDrop
	}
	m.computeNormals()
}

// Open returns the current opening
func (m *Mouth) Open() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

// Positions returns a copy of the vertex positions
func (m *Mouth) Positions() []mgl32.Vec3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]mgl32.Vec3(nil), m.positions[:]...)
}

// Normals returns a copy of the vertex normals
func (m *Mouth) Normals() []mgl32.Vec3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]mgl32.Vec3(nil), m.normals[:]...)
}

// Indices returns the triangle list
func (m *Mouth) Indices() []uint32 {
	return append([]uint32(nil), mouthIndices...)
}

// computeNormals accumulates area-weighted face normals per vertex.
// Vertices touching only degenerate triangles get a zero normal.
func (m *Mouth) computeNormals() {
	var acc [MouthVertexCount]mgl32.Vec3
	for t := 0; t+2 < len(mouthIndices); t += 3 {
		a, b, c := mouthIndices[t], mouthIndices[t+1], mouthIndices[t+2]
		pa, pb, pc := m.positions[a], m.positions[b], m.positions[c]
		n := pc.Sub(pb).Cross(pa.Sub(pb))
		acc[a] = acc[a].Add(n)
		acc[b] = acc[b].Add(n)
		acc[c] = acc[c].Add(n)
	}
	for i, n := range acc {
		if n.Len() == 0 {
			m.normals[i] = mgl32.Vec3{}
			continue
		}
		m.normals[i] = n.Normalize()
	}
}
