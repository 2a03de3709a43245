package lights

import "github.com/microcompunics/imbatracer/pkg/core"

// DirectSample is the result of next-event estimation toward a light.
type DirectSample struct {
	Dir      core.Vec3 // unit direction from the surface point to the light
	Distance float64
	Radiance core.Vec3

	PdfDirectW float64 // solid-angle pdf of sampling this direction
	PdfEmitW   float64 // full (position x direction) pdf of emitting along -Dir
	CosOut     float64 // cosine at the light between its normal and -Dir
}

// EmitSample starts a light subpath.
//
// Radiance is premultiplied: emitted radiance times the emission cosine over
// PdfEmitW, so a light path starts with throughput Radiance / pdf_lightpick.
type EmitSample struct {
	Pos      core.Vec3
	Normal   core.Vec3
	Dir      core.Vec3 // unit emission direction
	Radiance core.Vec3

	PdfDirectA float64 // area pdf of sampling the emission point directly
	PdfEmitW   float64 // full (position x direction) emission pdf
	CosOut     float64 // cosine between the light normal and Dir
}

// Light is a source of illumination the integrators can sample.
type Light interface {
	// SampleDirect samples the light for next-event estimation from a
	// surface point
	SampleDirect(from core.Vec3, rng *core.RNG) DirectSample

	// SampleEmit samples a complete emission (position and direction) for
	// light subpath generation
	SampleEmit(rng *core.RNG) EmitSample

	// Radiance evaluates the emission toward outDir for rays that hit the
	// light directly, along with the pdfs of the sampling strategies that
	// could have produced the hit
	Radiance(outDir core.Vec3) (radiance core.Vec3, pdfDirectA, pdfEmitW float64)

	// IsFinite reports whether the light sits at a finite position
	IsFinite() bool

	// IsDelta reports whether the light cannot be hit by random sampling
	// (point and directional lights)
	IsDelta() bool
}

// SceneSphere bounds the scene; infinite lights sample positions and pdfs
// against it.
type SceneSphere struct {
	Center core.Vec3
	Radius float64
}
