package renderer

import "github.com/microcompunics/imbatracer/pkg/core"

// SampleFn creates the ray and completes the state for one generated sample.
// Returning false skips the sample.
type SampleFn func(x, y int, ray *core.Ray, state *PathState) bool

// RayGen produces the initial rays of an iteration, queue-load by queue-load
type RayGen interface {
	// FillQueue pushes rays until the queue or the generator is exhausted
	FillQueue(q *RayQueue, sample SampleFn)

	// StartFrame rewinds the generator
	StartFrame()

	// IsEmpty reports whether the generator has produced all its rays
	IsEmpty() bool
}

// PixelRayGen generates n samples per pixel over a w x h frame. The pixel and
// sample ids are filled in before the sample callback runs; the callback owns
// RNG seeding so camera and light passes can seed differently.
type PixelRayGen struct {
	width, height int
	numSamples    int
	nextSample    int
}

// NewPixelRayGen creates a generator over the full frame
func NewPixelRayGen(width, height, samplesPerPixel int) *PixelRayGen {
	return &PixelRayGen{width: width, height: height, numSamples: samplesPerPixel}
}

// StartFrame rewinds the generator
func (g *PixelRayGen) StartFrame() { g.nextSample = 0 }

func (g *PixelRayGen) maxRays() int { return g.width * g.height * g.numSamples }

// IsEmpty reports whether all samples were generated
func (g *PixelRayGen) IsEmpty() bool { return g.nextSample >= g.maxRays() }

// FillQueue generates rays until the queue is full or the frame is done
func (g *PixelRayGen) FillQueue(q *RayQueue, sample SampleFn) {
	if g.IsEmpty() {
		return
	}

	count := q.Capacity() - q.Size()
	if count <= 0 {
		return
	}
	if g.nextSample+count > g.maxRays() {
		count = g.maxRays() - g.nextSample
	}

	for i := g.nextSample; i < g.nextSample+count; i++ {
		pixelIdx := i / g.numSamples
		sampleIdx := i % g.numSamples
		y := pixelIdx / g.width
		x := pixelIdx % g.width

		var ray core.Ray
		var state PathState
		state.PixelID = pixelIdx
		state.SampleID = sampleIdx
		state.Ancestor = -1

		if !sample(x, y, &ray, &state) {
			continue
		}
		q.Push(ray, state)
	}

	g.nextSample += count
}

// TiledRayGen generates rays for one tile of a larger frame; pixel ids are
// offsets into the full frame.
type TiledRayGen struct {
	PixelRayGen
	left, top             int
	fullWidth, fullHeight int
}

// NewTiledRayGen creates a generator for the tile at (left, top)
func NewTiledRayGen(left, top, width, height, samplesPerPixel, fullWidth, fullHeight int) *TiledRayGen {
	return &TiledRayGen{
		PixelRayGen: PixelRayGen{width: width, height: height, numSamples: samplesPerPixel},
		left:        left,
		top:         top,
		fullWidth:   fullWidth,
		fullHeight:  fullHeight,
	}
}

// FillQueue generates the tile's rays with frame-relative coordinates
func (g *TiledRayGen) FillQueue(q *RayQueue, sample SampleFn) {
	g.PixelRayGen.FillQueue(q, func(x, y int, ray *core.Ray, state *PathState) bool {
		fx := x + g.left
		fy := y + g.top
		state.PixelID = fy*g.fullWidth + fx
		return sample(fx, fy, ray, state)
	})
}

// LightRayGen generates a fixed number of rays for one light, used by probe
// passes that do not associate light paths with pixels.
type LightRayGen struct {
	lightID   int
	rayCount  int
	generated int
}

// NewLightRayGen creates a generator of rayCount rays for a light
func NewLightRayGen(lightID, rayCount int) *LightRayGen {
	return &LightRayGen{lightID: lightID, rayCount: rayCount}
}

// StartFrame rewinds the generator
func (g *LightRayGen) StartFrame() { g.generated = 0 }

// IsEmpty reports whether all rays were generated
func (g *LightRayGen) IsEmpty() bool { return g.generated >= g.rayCount }

// FillQueue generates rays; the sample callback receives the ray index and
// the light id in place of pixel coordinates
func (g *LightRayGen) FillQueue(q *RayQueue, sample SampleFn) {
	count := q.Capacity() - q.Size()
	count = min(count, g.rayCount-g.generated)
	if count <= 0 {
		return
	}

	for i := g.generated; i < g.generated+count; i++ {
		var ray core.Ray
		var state PathState
		state.PixelID = i
		state.SampleID = 0
		state.Ancestor = -1

		if !sample(i, g.lightID, &ray, &state) {
			continue
		}
		q.Push(ray, state)
	}

	g.generated += count
}
