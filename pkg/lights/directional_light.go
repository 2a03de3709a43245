package lights

import (
	"math"

	"github.com/microcompunics/imbatracer/pkg/core"
)

// DirectionalLight emits parallel radiance along a fixed direction from
// outside the scene. Delta in direction, infinite in position.
type DirectionalLight struct {
	Dir      core.Vec3 // unit direction of propagation
	Emission core.Vec3
	sphere   SceneSphere
	frame    core.Frame
}

// NewDirectionalLight creates a directional light over a scene bounding
// sphere
func NewDirectionalLight(dir, radiance core.Vec3, sphere SceneSphere) *DirectionalLight {
	d := dir.Normalize()
	return &DirectionalLight{
		Dir:      d,
		Emission: radiance,
		sphere:   sphere,
		frame:    core.NewFrame(d),
	}
}

func (l *DirectionalLight) discPdf() float64 {
	r := l.sphere.Radius
	return 1.0 / (math.Pi * r * r)
}

// SampleDirect returns the fixed incoming direction
func (l *DirectionalLight) SampleDirect(from core.Vec3, rng *core.RNG) DirectSample {
	return DirectSample{
		Dir:        l.Dir.Negate(),
		Distance:   2 * l.sphere.Radius,
		Radiance:   l.Emission,
		PdfDirectW: 1,
		PdfEmitW:   l.discPdf(),
		CosOut:     1,
	}
}

// SampleEmit samples a position on the disc tangent to the scene sphere
func (l *DirectionalLight) SampleEmit(rng *core.RNG) EmitSample {
	disc := core.SampleConcentricDisk(rng.Random2D())
	offset := l.frame.Tangent.Multiply(disc.X * l.sphere.Radius).
		Add(l.frame.Bitangent.Multiply(disc.Y * l.sphere.Radius))
	pos := l.sphere.Center.Subtract(l.Dir.Multiply(l.sphere.Radius)).Add(offset)

	pdfEmitW := l.discPdf()

	return EmitSample{
		Pos:        pos,
		Normal:     l.Dir,
		Dir:        l.Dir,
		Radiance:   l.Emission.Multiply(1 / pdfEmitW),
		PdfDirectA: 1,
		PdfEmitW:   pdfEmitW,
		CosOut:     1,
	}
}

// Radiance is always zero: a delta light cannot be hit
func (l *DirectionalLight) Radiance(outDir core.Vec3) (core.Vec3, float64, float64) {
	return core.Vec3{}, 0, 0
}

// IsFinite reports that the light sits at infinity
func (l *DirectionalLight) IsFinite() bool { return false }

// IsDelta reports that the light is a delta distribution
func (l *DirectionalLight) IsDelta() bool { return true }
