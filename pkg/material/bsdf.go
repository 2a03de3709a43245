package material

import (
	"github.com/microcompunics/imbatracer/pkg/core"
)

// BSDF is the full scattering function at one intersection: a shading frame
// plus a set of weighted lobes. Directions passed to its methods are world
// space unit vectors pointing away from the surface.
//
// Eval returns the BSDF value with the cosine at the incident direction
// already absorbed, so integrators do not reapply it.
type BSDF struct {
	frame core.Frame
	lobes []Lobe
}

// Prepare builds the shading-space frame for an intersection. It must be
// called before Sample, Eval or Pdf.
func (b *BSDF) Prepare(isect *core.Intersection) {
	b.frame = core.NewFrame(isect.Normal)
}

// SetLobes installs the scattering components
func (b *BSDF) SetLobes(lobes []Lobe) {
	b.lobes = lobes
}

// NumLobes returns the number of components
func (b *BSDF) NumLobes() int { return len(b.lobes) }

// Count returns how many lobes match the requested flags
func (b *BSDF) Count(flags BxDFFlags) int {
	n := 0
	for i := range b.lobes {
		if b.lobes[i].Flags.Matches(flags) {
			n++
		}
	}
	return n
}

// IsPureSpecular reports whether every lobe is a delta distribution
func (b *BSDF) IsPureSpecular() bool {
	return b.Count(BSDFNonSpecular) == 0 && len(b.lobes) > 0
}

// selectionMass returns the total selection weight over matching lobes
func (b *BSDF) selectionMass(flags BxDFFlags) float64 {
	total := 0.0
	for i := range b.lobes {
		if b.lobes[i].Flags.Matches(flags) {
			total += b.lobes[i].SelectWeight
		}
	}
	return total
}

// Sample draws an incident direction for the outgoing direction. Lobes are
// chosen in proportion to their selection weight; the returned pdf is the
// mixture density over all matching lobes. A zero pdf means no direction
// could be sampled.
func (b *BSDF) Sample(outDir core.Vec3, rng *core.RNG, flags BxDFFlags) (value core.Vec3, inDir core.Vec3, pdfW float64, sampled BxDFFlags) {
	mass := b.selectionMass(flags)
	if mass <= 0 {
		return core.Vec3{}, core.Vec3{}, 0, 0
	}

	// Pick a lobe proportionally to its selection weight
	pick := rng.RandomFloat() * mass
	var chosen *Lobe
	for i := range b.lobes {
		l := &b.lobes[i]
		if !l.Flags.Matches(flags) {
			continue
		}
		chosen = l
		if pick < l.SelectWeight {
			break
		}
		pick -= l.SelectWeight
	}
	chosenProb := chosen.SelectWeight / mass

	out := b.frame.ToLocal(outDir)
	lobeValue, in, lobePdf := chosen.Sample(out, rng)
	if lobePdf == 0 {
		return core.Vec3{}, core.Vec3{}, 0, 0
	}

	if chosen.Flags.IsSpecular() {
		// Delta lobe: value and pdf come from the lobe alone; the discrete
		// selection probability scales the pdf.
		value = lobeValue.Multiply(core.AbsCosTheta(in))
		pdfW = lobePdf * chosenProb
		inDir = b.frame.ToWorld(in)
		return value, inDir, pdfW, chosen.Flags
	}

	// Non-specular: combine value and pdf over all matching non-specular
	// lobes (mixture density).
	pdfW = lobePdf * chosenProb
	value = lobeValue
	for i := range b.lobes {
		l := &b.lobes[i]
		if l == chosen || !l.Flags.Matches(flags) || l.Flags.IsSpecular() {
			continue
		}
		value = value.Add(l.Eval(out, in))
		pdfW += l.Pdf(out, in) * (l.SelectWeight / mass)
	}
	value = value.Multiply(core.AbsCosTheta(in))
	inDir = b.frame.ToWorld(in)
	return value, inDir, pdfW, chosen.Flags
}

// Eval returns the combined value of all matching lobes times the cosine at
// the incident direction. Specular lobes contribute nothing.
func (b *BSDF) Eval(outDir, inDir core.Vec3, flags BxDFFlags) core.Vec3 {
	out := b.frame.ToLocal(outDir)
	in := b.frame.ToLocal(inDir)

	value := core.Vec3{}
	for i := range b.lobes {
		l := &b.lobes[i]
		if !l.Flags.Matches(flags) || l.Flags.IsSpecular() {
			continue
		}
		value = value.Add(l.Eval(out, in))
	}
	return value.Multiply(core.AbsCosTheta(in))
}

// EvalNoCosine returns the combined lobe value without the incident cosine.
// Particle (light) subpath evaluations use it together with the adjoint
// cosine correction.
func (b *BSDF) EvalNoCosine(outDir, inDir core.Vec3, flags BxDFFlags) core.Vec3 {
	out := b.frame.ToLocal(outDir)
	in := b.frame.ToLocal(inDir)

	value := core.Vec3{}
	for i := range b.lobes {
		l := &b.lobes[i]
		if !l.Flags.Matches(flags) || l.Flags.IsSpecular() {
			continue
		}
		value = value.Add(l.Eval(out, in))
	}
	return value
}

// Pdf returns the mixture solid-angle density over all non-specular lobes.
// Zero for pure specular surfaces and hemisphere-mismatched pairs.
func (b *BSDF) Pdf(outDir, inDir core.Vec3) float64 {
	mass := b.selectionMass(BSDFAll)
	if mass <= 0 {
		return 0
	}

	out := b.frame.ToLocal(outDir)
	in := b.frame.ToLocal(inDir)

	pdf := 0.0
	for i := range b.lobes {
		l := &b.lobes[i]
		if l.Flags.IsSpecular() {
			continue
		}
		pdf += l.Pdf(out, in) * (l.SelectWeight / mass)
	}
	return pdf
}
