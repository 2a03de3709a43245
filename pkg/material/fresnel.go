package material

import (
	"math"

	"github.com/microcompunics/imbatracer/pkg/core"
)

// FresnelConductor evaluates the conductor Fresnel reflectance F(cos, eta,
// kappa) per color channel.
func FresnelConductor(cosI float64, eta, k core.Vec3) core.Vec3 {
	cosI = math.Abs(cosI)
	cos2 := cosI * cosI

	channel := func(eta, k float64) float64 {
		t0 := eta*eta + k*k
		t1 := t0 * cos2
		rParl := (t1 - 2*eta*cosI + 1) / (t1 + 2*eta*cosI + 1)
		rPerp := (t0 - 2*eta*cosI + cos2) / (t0 + 2*eta*cosI + cos2)
		return (rParl + rPerp) / 2
	}

	return core.NewVec3(channel(eta.X, k.X), channel(eta.Y, k.Y), channel(eta.Z, k.Z))
}

// FresnelDielectric evaluates the dielectric Fresnel reflectance as the mean
// of the parallel and perpendicular polarized reflectances. Returns 1 on total
// internal reflection.
func FresnelDielectric(cosI float64, etaI, etaT float64) float64 {
	cosI = max(-1, min(1, cosI))
	if cosI < 0 {
		// Ray arrives from inside the medium
		etaI, etaT = etaT, etaI
		cosI = -cosI
	}

	sinT := etaI / etaT * math.Sqrt(math.Max(0, 1-cosI*cosI))
	if sinT >= 1 {
		return 1
	}
	cosT := math.Sqrt(math.Max(0, 1-sinT*sinT))

	rParl := (etaT*cosI - etaI*cosT) / (etaT*cosI + etaI*cosT)
	rPerp := (etaI*cosI - etaT*cosT) / (etaI*cosI + etaT*cosT)
	return (rParl*rParl + rPerp*rPerp) / 2
}

// Refract computes the refracted direction in shading space for an incident
// direction pointing away from the surface. Returns false on total internal
// reflection.
func Refract(out core.Vec3, etaI, etaT float64) (core.Vec3, bool) {
	cosI := core.CosTheta(out)
	eta := etaI / etaT
	entering := cosI > 0
	if !entering {
		eta = etaT / etaI
	}

	sin2T := eta * eta * core.SinThetaSqr(out)
	if sin2T >= 1 {
		return core.Vec3{}, false
	}
	cosT := math.Sqrt(1 - sin2T)
	if entering {
		cosT = -cosT
	}

	return core.NewVec3(-eta*out.X, -eta*out.Y, cosT), true
}
