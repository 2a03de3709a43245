package lights

import (
	"math"

	"github.com/microcompunics/imbatracer/pkg/core"
)

// PointLight emits intensity uniformly over the sphere of directions from a
// single position. It is a delta light: it cannot be hit by path sampling.
type PointLight struct {
	Pos       core.Vec3
	Intensity core.Vec3
}

// NewPointLight creates a point light
func NewPointLight(pos, intensity core.Vec3) *PointLight {
	return &PointLight{Pos: pos, Intensity: intensity}
}

// SampleDirect connects a surface point to the light position
func (l *PointLight) SampleDirect(from core.Vec3, rng *core.RNG) DirectSample {
	toLight := l.Pos.Subtract(from)
	distSqr := toLight.LengthSquared()
	dist := math.Sqrt(distSqr)
	if dist == 0 {
		return DirectSample{}
	}

	return DirectSample{
		Dir:        toLight.Multiply(1 / dist),
		Distance:   dist,
		Radiance:   l.Intensity.Multiply(1 / distSqr),
		PdfDirectW: 1,
		PdfEmitW:   1.0 / (4.0 * math.Pi),
		CosOut:     1,
	}
}

// SampleEmit emits uniformly over the sphere
func (l *PointLight) SampleEmit(rng *core.RNG) EmitSample {
	dir, dirPdf := core.SampleUniformSphere(rng.Random2D())

	return EmitSample{
		Pos:        l.Pos,
		Normal:     dir,
		Dir:        dir,
		Radiance:   l.Intensity.Multiply(1 / dirPdf),
		PdfDirectA: 1,
		PdfEmitW:   dirPdf,
		CosOut:     1,
	}
}

// Radiance is always zero: a delta light cannot be hit
func (l *PointLight) Radiance(outDir core.Vec3) (core.Vec3, float64, float64) {
	return core.Vec3{}, 0, 0
}

// IsFinite reports that the light sits in the scene
func (l *PointLight) IsFinite() bool { return true }

// IsDelta reports that the light is a delta distribution
func (l *PointLight) IsDelta() bool { return true }
