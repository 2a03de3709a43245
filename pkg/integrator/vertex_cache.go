package integrator

import (
	"sync"
	"sync/atomic"

	"github.com/microcompunics/imbatracer/pkg/core"
)

// Vertex is one cached light-path vertex. Vertices are immutable once
// committed; the ancestor index chains a path back to its start.
type Vertex struct {
	Isect        core.Intersection
	Throughput   core.Vec3
	ContinueProb float64

	DVC  float64
	DVCM float64
	DVM  float64

	PathLength int
	PixelID    int
	Ancestor   int32 // index of the previous vertex of this path, or -1
}

// VertexCache is an append-only, thread-safe store of path vertices. Slots
// are reserved with an atomic fetch-add; the buffer grows under a mutex when
// full. Indices are stable for the duration of an iteration, which makes the
// ancestor back-references valid until Reset.
//
// When built with a pixel count it additionally indexes the vertices of each
// pixel's light path for the bidirectional connection stage. Only one light
// path per pixel may be in flight at a time; per-pixel appends are
// single-writer by construction.
type VertexCache struct {
	verts []Vertex
	last  atomic.Int64
	mu    sync.RWMutex

	byPixel [][]int32
}

// NewVertexCache creates a cache. pixelCount > 0 enables the per-pixel path
// index.
func NewVertexCache(capacity, pixelCount int) *VertexCache {
	vc := &VertexCache{
		verts: make([]Vertex, capacity),
	}
	if pixelCount > 0 {
		vc.byPixel = make([][]int32, pixelCount)
	}
	return vc
}

// Reset discards all vertices; index arrays keep their storage
func (vc *VertexCache) Reset() {
	vc.last.Store(0)
	for i := range vc.byPixel {
		vc.byPixel[i] = vc.byPixel[i][:0]
	}
}

// Append commits a vertex and returns its stable index. Writers hold the
// read side of the lock so a concurrent grow cannot strand their slot in the
// old buffer.
func (vc *VertexCache) Append(v Vertex) int32 {
	id := vc.last.Add(1) - 1

	vc.mu.RLock()
	if int(id) < len(vc.verts) {
		vc.verts[id] = v
		vc.mu.RUnlock()
		return int32(id)
	}
	vc.mu.RUnlock()

	vc.mu.Lock()
	if int(id) >= len(vc.verts) {
		grown := make([]Vertex, max(len(vc.verts)*2, int(id)+1))
		copy(grown, vc.verts)
		vc.verts = grown
	}
	vc.verts[id] = v
	vc.mu.Unlock()
	return int32(id)
}

// AppendForPixel commits a vertex and records it on the pixel's light path
func (vc *VertexCache) AppendForPixel(pixel int, v Vertex) int32 {
	id := vc.Append(v)
	if vc.byPixel != nil {
		vc.byPixel[pixel] = append(vc.byPixel[pixel], id)
	}
	return id
}

// Size returns the number of committed vertices
func (vc *VertexCache) Size() int { return int(vc.last.Load()) }

// At returns the vertex at a stable index
func (vc *VertexCache) At(i int32) *Vertex { return &vc.verts[i] }

// All returns the committed vertices. Valid only after the trace phase has
// completed; the slice aliases the cache.
func (vc *VertexCache) All() []Vertex {
	return vc.verts[:vc.Size()]
}

// PathIndices returns the vertex indices of one pixel's light path in path
// order
func (vc *VertexCache) PathIndices(pixel int) []int32 {
	if vc.byPixel == nil {
		return nil
	}
	return vc.byPixel[pixel]
}
