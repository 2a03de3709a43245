package lights

import (
	"math"

	"github.com/microcompunics/imbatracer/pkg/core"
)

// AreaLight is an emissive triangle. Emission is diffuse over the front
// hemisphere: pdf_direct_a = 1/area, directional emission pdf = cos/pi.
type AreaLight struct {
	V0, V1, V2 core.Vec3
	normal     core.Vec3
	area       float64
	Emission   core.Vec3
}

// NewAreaLight creates an area light over one triangle
func NewAreaLight(v0, v1, v2 core.Vec3, emission core.Vec3) *AreaLight {
	e1 := v1.Subtract(v0)
	e2 := v2.Subtract(v0)
	cross := e1.Cross(e2)
	return &AreaLight{
		V0: v0, V1: v1, V2: v2,
		normal:   cross.Normalize(),
		area:     cross.Length() * 0.5,
		Emission: emission,
	}
}

// Normal returns the emitting face normal
func (l *AreaLight) Normal() core.Vec3 { return l.normal }

// Area returns the triangle area
func (l *AreaLight) Area() float64 { return l.area }

func (l *AreaLight) point(bary core.Vec2) core.Vec3 {
	return l.V0.Multiply(1 - bary.X - bary.Y).
		Add(l.V1.Multiply(bary.X)).
		Add(l.V2.Multiply(bary.Y))
}

// SampleDirect samples a point on the triangle for next-event estimation
func (l *AreaLight) SampleDirect(from core.Vec3, rng *core.RNG) DirectSample {
	p := l.point(core.SampleBarycentric(rng.Random2D()))

	toLight := p.Subtract(from)
	distSqr := toLight.LengthSquared()
	dist := math.Sqrt(distSqr)
	if dist == 0 {
		return DirectSample{}
	}
	dir := toLight.Multiply(1 / dist)

	cosOut := l.normal.Dot(dir.Negate())
	if cosOut <= 0 {
		// Surface point is behind the light
		return DirectSample{Dir: dir, Distance: dist}
	}

	invArea := 1.0 / l.area
	return DirectSample{
		Dir:        dir,
		Distance:   dist,
		Radiance:   l.Emission,
		PdfDirectW: invArea * distSqr / cosOut,
		PdfEmitW:   invArea * cosOut / math.Pi,
		CosOut:     cosOut,
	}
}

// SampleEmit samples a position and cosine-weighted direction for light
// subpath generation
func (l *AreaLight) SampleEmit(rng *core.RNG) EmitSample {
	p := l.point(core.SampleBarycentric(rng.Random2D()))

	local, dirPdf := core.SampleCosineHemisphere(rng.Random2D())
	frame := core.NewFrame(l.normal)
	dir := frame.ToWorld(local)
	cosOut := local.Z

	invArea := 1.0 / l.area
	pdfEmitW := invArea * dirPdf
	if pdfEmitW <= 0 {
		return EmitSample{Pos: p, Normal: l.normal, Dir: dir}
	}

	// Premultiplied: L * cos / pdf_emit; for the cosine-weighted direction
	// this reduces to L * pi * area.
	weight := l.Emission.Multiply(cosOut / pdfEmitW)

	return EmitSample{
		Pos:        p,
		Normal:     l.normal,
		Dir:        dir,
		Radiance:   weight,
		PdfDirectA: invArea,
		PdfEmitW:   pdfEmitW,
		CosOut:     cosOut,
	}
}

// Radiance evaluates the emission for a ray that hit the triangle
func (l *AreaLight) Radiance(outDir core.Vec3) (core.Vec3, float64, float64) {
	cosOut := l.normal.Dot(outDir)
	if cosOut <= 0 {
		return core.Vec3{}, 0, 0
	}
	invArea := 1.0 / l.area
	return l.Emission, invArea, invArea * cosOut / math.Pi
}

// IsFinite reports that area lights sit in the scene
func (l *AreaLight) IsFinite() bool { return true }

// IsDelta reports that area lights can be hit
func (l *AreaLight) IsDelta() bool { return false }
