package lights

import (
	"math"

	"github.com/microcompunics/imbatracer/pkg/core"
)

// EnvironmentLight surrounds the scene with uniform (or textured) background
// radiance. Finite pdfs are taken against the scene bounding sphere.
type EnvironmentLight struct {
	Radiances core.Vec3 // uniform radiance
	Lookup    func(dir core.Vec3) core.Vec3
	sphere    SceneSphere
}

// NewEnvironmentLight creates a uniform environment light
func NewEnvironmentLight(radiance core.Vec3, sphere SceneSphere) *EnvironmentLight {
	return &EnvironmentLight{Radiances: radiance, sphere: sphere}
}

// NewTexturedEnvironmentLight creates an environment light with a direction
// lookup (an environment map)
func NewTexturedEnvironmentLight(lookup func(core.Vec3) core.Vec3, average core.Vec3, sphere SceneSphere) *EnvironmentLight {
	return &EnvironmentLight{Radiances: average, Lookup: lookup, sphere: sphere}
}

func (l *EnvironmentLight) radianceFor(dir core.Vec3) core.Vec3 {
	if l.Lookup != nil {
		return l.Lookup(dir)
	}
	return l.Radiances
}

func (l *EnvironmentLight) discPdf() float64 {
	r := l.sphere.Radius
	return 1.0 / (math.Pi * r * r)
}

// SampleDirect samples a uniform direction on the sphere of directions
func (l *EnvironmentLight) SampleDirect(from core.Vec3, rng *core.RNG) DirectSample {
	dir, dirPdf := core.SampleUniformSphere(rng.Random2D())

	return DirectSample{
		Dir:        dir,
		Distance:   2 * l.sphere.Radius,
		Radiance:   l.radianceFor(dir),
		PdfDirectW: dirPdf,
		PdfEmitW:   dirPdf * l.discPdf(),
		CosOut:     1,
	}
}

// SampleEmit samples a direction and a position on the tangent disc
func (l *EnvironmentLight) SampleEmit(rng *core.RNG) EmitSample {
	dir, dirPdf := core.SampleUniformSphere(rng.Random2D())
	dir = dir.Negate() // propagation direction into the scene

	frame := core.NewFrame(dir)
	disc := core.SampleConcentricDisk(rng.Random2D())
	offset := frame.Tangent.Multiply(disc.X * l.sphere.Radius).
		Add(frame.Bitangent.Multiply(disc.Y * l.sphere.Radius))
	pos := l.sphere.Center.Subtract(dir.Multiply(l.sphere.Radius)).Add(offset)

	pdfEmitW := dirPdf * l.discPdf()

	return EmitSample{
		Pos:        pos,
		Normal:     dir,
		Dir:        dir,
		Radiance:   l.radianceFor(dir.Negate()).Multiply(1 / pdfEmitW),
		PdfDirectA: dirPdf,
		PdfEmitW:   pdfEmitW,
		CosOut:     1,
	}
}

// Radiance evaluates the background for a ray that escaped the scene.
// outDir points back along the ray.
func (l *EnvironmentLight) Radiance(outDir core.Vec3) (core.Vec3, float64, float64) {
	dir := outDir.Negate()
	dirPdf := 1.0 / (4.0 * math.Pi)
	return l.radianceFor(dir), dirPdf, dirPdf * l.discPdf()
}

// IsFinite reports that the light sits at infinity
func (l *EnvironmentLight) IsFinite() bool { return false }

// IsDelta reports that the environment can be hit by escaping rays
func (l *EnvironmentLight) IsDelta() bool { return false }
