package material

import (
	"math"

	"github.com/microcompunics/imbatracer/pkg/core"
)

// LobeKind tags a scattering lobe. Lobes are plain values dispatched on the
// tag so they can live in a per-worker scratch arena.
type LobeKind uint8

const (
	LobeLambertian LobeKind = iota
	LobeOrenNayar
	LobePhong
	LobeSpecularReflection
	LobeSpecularTransmission
)

// Lobe is one scattering component of a BSDF. All directions passed to its
// methods are unit vectors in shading space (normal along +Z) and point away
// from the surface, except that transmitted directions lie in the opposite
// hemisphere.
type Lobe struct {
	Kind  LobeKind
	Flags BxDFFlags

	// SelectWeight is the probability mass used when choosing among lobes.
	// Mixtures scale it by the mixture coefficient.
	SelectWeight float64

	Color core.Vec3 // reflectance, transmittance or lobe coefficient

	Exponent float64 // Phong glossiness

	// Oren-Nayar terms derived from the roughness angle
	orenA, orenB float64

	// Dielectric interface for specular lobes
	EtaI, EtaT float64

	// Conductor Fresnel; used when Conductor is true
	Eta, K    core.Vec3
	Conductor bool
}

// NewLambertianLobe creates a diffuse reflection lobe
func NewLambertianLobe(color core.Vec3) Lobe {
	return Lobe{
		Kind:         LobeLambertian,
		Flags:        BSDFDiffuse | BSDFReflection,
		SelectWeight: 1,
		Color:        color,
	}
}

// NewOrenNayarLobe creates a rough diffuse lobe from a roughness angle in
// degrees
func NewOrenNayarLobe(color core.Vec3, roughnessDegrees float64) Lobe {
	sigma := roughnessDegrees * math.Pi / 180.0
	sigma2 := sigma * sigma
	return Lobe{
		Kind:         LobeOrenNayar,
		Flags:        BSDFDiffuse | BSDFReflection,
		SelectWeight: 1,
		Color:        color,
		orenA:        1.0 - sigma2/(2.0*(sigma2+0.33)),
		orenB:        0.45 * sigma2 / (sigma2 + 0.09),
	}
}

// NewPhongLobe creates a glossy reflection lobe
func NewPhongLobe(coefficient core.Vec3, exponent float64) Lobe {
	return Lobe{
		Kind:         LobePhong,
		Flags:        BSDFGlossy | BSDFReflection,
		SelectWeight: 1,
		Color:        coefficient,
		Exponent:     exponent,
	}
}

// NewSpecularReflectionLobe creates a perfect mirror lobe with a dielectric
// Fresnel interface
func NewSpecularReflectionLobe(scale core.Vec3, etaI, etaT float64) Lobe {
	return Lobe{
		Kind:         LobeSpecularReflection,
		Flags:        BSDFSpecular | BSDFReflection,
		SelectWeight: 1,
		Color:        scale,
		EtaI:         etaI,
		EtaT:         etaT,
	}
}

// NewConductorLobe creates a perfect mirror lobe with a conductor Fresnel
// interface
func NewConductorLobe(scale core.Vec3, eta, k core.Vec3) Lobe {
	return Lobe{
		Kind:         LobeSpecularReflection,
		Flags:        BSDFSpecular | BSDFReflection,
		SelectWeight: 1,
		Color:        scale,
		Eta:          eta,
		K:            k,
		Conductor:    true,
	}
}

// NewSpecularTransmissionLobe creates a glass lobe sampled as a Fresnel coin
// flip between reflection and refraction
func NewSpecularTransmissionLobe(scale core.Vec3, etaI, etaT float64) Lobe {
	return Lobe{
		Kind:         LobeSpecularTransmission,
		Flags:        BSDFSpecular | BSDFReflection | BSDFTransmission,
		SelectWeight: 1,
		Color:        scale,
		EtaI:         etaI,
		EtaT:         etaT,
	}
}

// reflectLocal mirrors a shading-space direction about the normal
func reflectLocal(v core.Vec3) core.Vec3 {
	return core.NewVec3(-v.X, -v.Y, v.Z)
}

// Eval returns the cosine-free BSDF value for an (out, in) pair. Delta lobes
// return zero.
func (l *Lobe) Eval(out, in core.Vec3) core.Vec3 {
	switch l.Kind {
	case LobeLambertian:
		if !core.SameHemisphere(out, in) {
			return core.Vec3{}
		}
		return l.Color.Multiply(1.0 / math.Pi)

	case LobeOrenNayar:
		if !core.SameHemisphere(out, in) {
			return core.Vec3{}
		}
		return l.evalOrenNayar(out, in)

	case LobePhong:
		if !core.SameHemisphere(out, in) {
			return core.Vec3{}
		}
		cosRO := math.Max(0, reflectLocal(in).Dot(out))
		scale := (l.Exponent + 2.0) / (2.0 * math.Pi) * math.Pow(cosRO, l.Exponent)
		return l.Color.Multiply(scale)

	default: // delta distributions
		return core.Vec3{}
	}
}

func (l *Lobe) evalOrenNayar(out, in core.Vec3) core.Vec3 {
	sinThetaIn := core.SinTheta(in)
	sinThetaOut := core.SinTheta(out)

	// max(0, cos(phi_i - phi_o)) via cos(a-b) = cos a cos b + sin a sin b
	maxCos := 0.0
	if sinThetaIn > 1e-4 && sinThetaOut > 1e-4 {
		maxCos = math.Max(0, core.CosPhi(in)*core.CosPhi(out)+core.SinPhi(in)*core.SinPhi(out))
	}

	var sinAlpha, tanBeta float64
	if core.AbsCosTheta(in) > core.AbsCosTheta(out) {
		sinAlpha = sinThetaOut
		tanBeta = sinThetaIn / core.AbsCosTheta(in)
	} else {
		sinAlpha = sinThetaIn
		tanBeta = sinThetaOut / core.AbsCosTheta(out)
	}

	return l.Color.Multiply((1.0 / math.Pi) * (l.orenA + l.orenB*maxCos*sinAlpha*tanBeta))
}

// Sample draws an incident direction for the given outgoing direction.
// Returns the cosine-free value, the direction and the solid-angle pdf.
// A zero pdf signals that no direction could be sampled.
func (l *Lobe) Sample(out core.Vec3, rng *core.RNG) (value core.Vec3, in core.Vec3, pdf float64) {
	switch l.Kind {
	case LobeLambertian, LobeOrenNayar:
		dir, p := core.SampleCosineHemisphere(rng.Random2D())
		if core.CosTheta(out) < 0 {
			dir.Z = -dir.Z
		}
		return l.Eval(out, dir), dir, p

	case LobePhong:
		// Power-cosine sample around the mirrored outgoing direction
		local, p := core.SamplePowerCosHemisphere(l.Exponent, rng.Random2D())
		reflected := reflectLocal(out)
		frame := core.NewFrame(reflected)
		dir := frame.ToWorld(local)
		if !core.SameHemisphere(out, dir) {
			return core.Vec3{}, dir, 0
		}
		return l.Eval(out, dir), dir, p

	case LobeSpecularReflection:
		in := reflectLocal(out)
		var fr core.Vec3
		if l.Conductor {
			fr = FresnelConductor(core.CosTheta(out), l.Eta, l.K)
		} else {
			f := FresnelDielectric(core.CosTheta(out), l.EtaI, l.EtaT)
			fr = core.NewVec3(f, f, f)
		}
		value := fr.MultiplyVec(l.Color).Multiply(1.0 / core.AbsCosTheta(in))
		return value, in, 1

	case LobeSpecularTransmission:
		fr := FresnelDielectric(core.CosTheta(out), l.EtaI, l.EtaT)
		if rng.RandomFloat() < fr {
			in := reflectLocal(out)
			value := l.Color.Multiply(fr / core.AbsCosTheta(in))
			return value, in, fr
		}
		in, ok := Refract(out, l.EtaI, l.EtaT)
		if !ok {
			// Total internal reflection fell through the coin flip
			in = reflectLocal(out)
			value := l.Color.Multiply(1.0 / core.AbsCosTheta(in))
			return value, in, 1
		}
		value := l.Color.Multiply((1 - fr) / core.AbsCosTheta(in))
		return value, in, 1 - fr
	}

	return core.Vec3{}, core.Vec3{}, 0
}

// Pdf returns the solid-angle density of Sample for an (out, in) pair.
// Zero for delta lobes and hemisphere-mismatched pairs.
func (l *Lobe) Pdf(out, in core.Vec3) float64 {
	switch l.Kind {
	case LobeLambertian, LobeOrenNayar:
		if !core.SameHemisphere(out, in) {
			return 0
		}
		return core.AbsCosTheta(in) / math.Pi

	case LobePhong:
		if !core.SameHemisphere(out, in) {
			return 0
		}
		cosRO := math.Max(0, reflectLocal(out).Dot(in))
		return (l.Exponent + 1.0) / (2.0 * math.Pi) * math.Pow(cosRO, l.Exponent)

	default:
		return 0
	}
}
