package integrator

import (
	"errors"
	"fmt"

	"github.com/microcompunics/imbatracer/pkg/core"
	"github.com/microcompunics/imbatracer/pkg/renderer"
	"github.com/microcompunics/imbatracer/pkg/scene"
)

// Configuration error kinds. Render entry points fail with one of these
// before any rays are generated.
var (
	ErrBadDimensions  = errors.New("integrator: image dimensions must be positive")
	ErrBadSampleCount = errors.New("integrator: samples per pixel must be positive")
	ErrNoLights       = errors.New("integrator: the scene has no lights")
	ErrBadRadius      = errors.New("integrator: merge radius must be positive")
)

// Heuristic selects the MIS combining heuristic
type Heuristic int

const (
	// BalanceHeuristic weighs strategies by their plain pdfs
	BalanceHeuristic Heuristic = iota
	// PowerHeuristic weighs strategies by squared pdfs
	PowerHeuristic
)

// Apply maps a pdf (or pdf ratio) through the heuristic
func (h Heuristic) Apply(a float64) float64 {
	if h == PowerHeuristic {
		return a * a
	}
	return a
}

// Config parameterises a render
type Config struct {
	Width, Height   int
	SamplesPerPixel int

	// MaxPathLength bounds camera and light subpaths, counted in vertices
	// including the endpoint
	MaxPathLength int

	// BaseRadius is the initial merge radius r0; RadiusAlpha controls the
	// shrink rate r_k = r0 * k^(-(1-alpha)/2)
	BaseRadius  float64
	RadiusAlpha float64

	Heuristic Heuristic

	// QueueCapacity sizes the wavefront queues; 0 selects a default
	QueueCapacity int
	// Workers is the shading parallelism; <= 0 selects one per CPU
	Workers int
}

// withDefaults fills unset optional fields
func (c Config) withDefaults() Config {
	if c.MaxPathLength == 0 {
		c.MaxPathLength = 16
	}
	if c.BaseRadius == 0 {
		c.BaseRadius = 0.01
	}
	if c.RadiusAlpha == 0 {
		c.RadiusAlpha = 0.75
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 1 << 13
	}
	return c
}

// validate fails fast on configuration errors
func (c Config) validate(sc *scene.Scene) error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrBadDimensions, c.Width, c.Height)
	}
	if c.SamplesPerPixel <= 0 {
		return fmt.Errorf("%w: %d", ErrBadSampleCount, c.SamplesPerPixel)
	}
	if sc.LightCount() == 0 {
		return ErrNoLights
	}
	if c.BaseRadius <= 0 {
		return fmt.Errorf("%w: %g", ErrBadRadius, c.BaseRadius)
	}
	return nil
}

// Integrator renders one iteration at a time into an accumulation image
type Integrator interface {
	// Render accumulates one iteration into the image
	Render(img *renderer.Image) error
}

// rrScale maps path throughput luminance to the Russian roulette survival
// probability before clamping
const rrScale = 10.0

// russianRoulette returns the survival probability for a path with the given
// throughput and whether it survives the coin flip u. The survival
// probability is clamped to [0, 1] so the estimator stays unbiased for large
// throughputs.
func russianRoulette(throughput core.Vec3, u float64) (float64, bool) {
	q := throughput.Luminance() * rrScale
	q = max(0, min(1, q))
	return q, u < q
}

// shadingNormalAdjoint is Veach's corrected cosine for BSDFs that use shading
// normals. It replaces the plain cosine on every particle (light) subpath
// evaluation to prevent brightness discontinuities.
func shadingNormalAdjoint(normal, geomNormal, outDir, inDir core.Vec3) float64 {
	denom := outDir.AbsDot(geomNormal)
	if denom == 0 {
		return 0
	}
	return outDir.AbsDot(normal) * inDir.AbsDot(geomNormal) / denom
}

// rayOffset is the epsilon pushed along new rays to avoid self-intersection
const rayOffset = 1e-5
