package material

import (
	"github.com/microcompunics/imbatracer/pkg/core"
)

// Model selects the lobe set a material resolves to, following the MTL illum
// family the loader hands us.
type Model int

const (
	ModelDiffuse Model = iota
	ModelRoughDiffuse
	ModelGlossy
	ModelMirror
	ModelConductor
	ModelGlass
	ModelEmissive
	ModelMix
)

// Material describes one surface. It is resolved into a BSDF per intersection
// so that textures can drive the lobe parameters.
type Material struct {
	Name  string
	Model Model

	Diffuse  ColorSource // diffuse colour or texture
	Specular core.Vec3   // specular scale
	Emission core.Vec3
	Exponent float64 // Phong glossiness
	EtaI     float64 // outside index of refraction
	EtaT     float64 // inside index of refraction

	// Conductor Fresnel parameters
	Eta, K core.Vec3

	Roughness float64     // Oren-Nayar roughness angle in degrees
	Opacity   ScalarSource // opacity mask, nil when fully opaque

	// Mixture: Model == ModelMix blends A and B with a texture-driven scale
	MixA, MixB *Material
	MixScale   ScalarSource
}

// NewDiffuse creates a Lambertian material
func NewDiffuse(color core.Vec3) *Material {
	return &Material{Model: ModelDiffuse, Diffuse: NewSolidColor(color), EtaI: 1, EtaT: 1.5}
}

// NewTexturedDiffuse creates a Lambertian material with a texture
func NewTexturedDiffuse(tex ColorSource) *Material {
	return &Material{Model: ModelDiffuse, Diffuse: tex, EtaI: 1, EtaT: 1.5}
}

// NewRoughDiffuse creates an Oren-Nayar material
func NewRoughDiffuse(color core.Vec3, roughnessDegrees float64) *Material {
	return &Material{Model: ModelRoughDiffuse, Diffuse: NewSolidColor(color), Roughness: roughnessDegrees}
}

// NewGlossy creates a diffuse+Phong material
func NewGlossy(diffuse core.Vec3, specular core.Vec3, exponent float64) *Material {
	return &Material{Model: ModelGlossy, Diffuse: NewSolidColor(diffuse), Specular: specular, Exponent: exponent}
}

// NewMirror creates a perfect dielectric mirror
func NewMirror(scale core.Vec3, etaI, etaT float64) *Material {
	return &Material{Model: ModelMirror, Specular: scale, EtaI: etaI, EtaT: etaT}
}

// NewConductor creates a metallic mirror
func NewConductor(scale core.Vec3, eta, k core.Vec3) *Material {
	return &Material{Model: ModelConductor, Specular: scale, Eta: eta, K: k}
}

// NewGlass creates a specular transmission material
func NewGlass(scale core.Vec3, etaI, etaT float64) *Material {
	return &Material{Model: ModelGlass, Specular: scale, EtaI: etaI, EtaT: etaT}
}

// NewEmissive creates a light-emitting diffuse material
func NewEmissive(emission core.Vec3) *Material {
	return &Material{Model: ModelEmissive, Emission: emission, Diffuse: NewSolidColor(core.NewVec3(0, 0, 0))}
}

// NewMix blends two materials with a texture-driven coefficient s:
// s*a + (1-s)*b
func NewMix(a, b *Material, scale ScalarSource) *Material {
	return &Material{Model: ModelMix, MixA: a, MixB: b, MixScale: scale}
}

// IsEmissive reports whether the material emits light
func (m *Material) IsEmissive() bool {
	return !m.Emission.IsBlack()
}

// IsSpecular reports whether every lobe of the material is a delta
// distribution. Vertices on such materials are never stored in the cache or
// connected to.
func (m *Material) IsSpecular() bool {
	switch m.Model {
	case ModelMirror, ModelConductor, ModelGlass:
		return true
	case ModelMix:
		return m.MixA.IsSpecular() && m.MixB.IsSpecular()
	}
	return false
}

// lobeCount returns how many lobes GetBSDF will emit
func (m *Material) lobeCount() int {
	switch m.Model {
	case ModelGlossy:
		return 2
	case ModelMix:
		return m.MixA.lobeCount() + m.MixB.lobeCount()
	}
	return 1
}

// GetBSDF resolves the material at an intersection into a BSDF allocated from
// the worker's arena.
func (m *Material) GetBSDF(isect *core.Intersection, arena *Arena) *BSDF {
	bsdf := arena.AllocBSDF()
	bsdf.Prepare(isect)

	lobes := arena.AllocLobes(m.lobeCount())
	m.fillLobes(isect, lobes, 1.0)
	bsdf.SetLobes(lobes)
	return bsdf
}

// fillLobes writes the material's lobes into the slice, scaling colour and
// selection weight by the mixture coefficient.
func (m *Material) fillLobes(isect *core.Intersection, lobes []Lobe, scale float64) {
	switch m.Model {
	case ModelDiffuse, ModelEmissive:
		lobes[0] = NewLambertianLobe(m.Diffuse.Evaluate(isect.UV, isect.Pos).Multiply(scale))

	case ModelRoughDiffuse:
		lobes[0] = NewOrenNayarLobe(m.Diffuse.Evaluate(isect.UV, isect.Pos).Multiply(scale), m.Roughness)

	case ModelGlossy:
		lobes[0] = NewLambertianLobe(m.Diffuse.Evaluate(isect.UV, isect.Pos).Multiply(scale))
		lobes[1] = NewPhongLobe(m.Specular.Multiply(scale), m.Exponent)

	case ModelMirror:
		lobes[0] = NewSpecularReflectionLobe(m.Specular.Multiply(scale), m.EtaI, m.EtaT)

	case ModelConductor:
		lobes[0] = NewConductorLobe(m.Specular.Multiply(scale), m.Eta, m.K)

	case ModelGlass:
		lobes[0] = NewSpecularTransmissionLobe(m.Specular.Multiply(scale), m.EtaI, m.EtaT)

	case ModelMix:
		s := m.MixScale.Evaluate(isect.UV, isect.Pos)
		na := m.MixA.lobeCount()
		m.MixA.fillLobes(isect, lobes[:na], scale*s)
		m.MixB.fillLobes(isect, lobes[na:], scale*(1-s))
		return
	}

	// Selection weight follows the mixture coefficient so Sample chooses a
	// component with probability s versus 1-s.
	for i := range lobes {
		lobes[i].SelectWeight *= scale
	}
}

// Emit returns the radiance emitted toward outDir, zero from the back face
func (m *Material) Emit(outDir, normal core.Vec3) core.Vec3 {
	if !m.IsEmissive() || outDir.Dot(normal) <= 0 {
		return core.Vec3{}
	}
	return m.Emission
}
