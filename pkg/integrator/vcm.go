package integrator

import (
	"fmt"
	"math"

	"github.com/microcompunics/imbatracer/pkg/core"
	"github.com/microcompunics/imbatracer/pkg/lights"
	"github.com/microcompunics/imbatracer/pkg/material"
	"github.com/microcompunics/imbatracer/pkg/renderer"
	"github.com/microcompunics/imbatracer/pkg/scene"
)

// Mode selects which path construction strategies the integrator combines.
// All modes share the same wavefront skeleton and MIS bookkeeping; the mode
// only gates which subpaths are generated and which connections contribute.
type Mode int

const (
	// ModePathTracing traces camera paths with next-event estimation
	ModePathTracing Mode = iota
	// ModeLightTracing traces light paths connected to the camera
	ModeLightTracing
	// ModeBPT combines camera and light paths with vertex connections
	ModeBPT
	// ModePPM walks specular-only camera paths and merges photons at the
	// first non-specular vertex
	ModePPM
	// ModeVCM combines connections and merging
	ModeVCM
)

// String names the mode for logs and errors
func (m Mode) String() string {
	switch m {
	case ModePathTracing:
		return "pt"
	case ModeLightTracing:
		return "lt"
	case ModeBPT:
		return "bpt"
	case ModePPM:
		return "sppm"
	case ModeVCM:
		return "vcm"
	}
	return "unknown"
}

// minMergeRadius keeps the shrinking radius numerically stable
const minMergeRadius = 1e-7

// VCM is the integrator family: path tracing, light tracing, bidirectional
// path tracing, progressive photon mapping and full vertex connection and
// merging are all specialisations of the same vertex chain.
type VCM struct {
	cfg  Config
	mode Mode

	sc  *scene.Scene
	cam *scene.PerspectiveCamera

	sched      *renderer.Scheduler
	lightImage *renderer.Image
	pmImage    *renderer.Image

	lightVertices  *VertexCache
	cameraVertices *VertexCache // deferred SPPM hit points
	grid           *PhotonGrid

	iteration      int
	pmRadius       float64
	misVC, misVM   float64
	lightPathCount float64
}

// New creates an integrator in the given mode
func New(mode Mode, cfg Config, sc *scene.Scene, cam *scene.PerspectiveCamera) (*VCM, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(sc); err != nil {
		return nil, err
	}
	if cam.Width() != cfg.Width || cam.Height() != cfg.Height {
		return nil, fmt.Errorf("%w: camera raster %dx%d does not match config %dx%d",
			ErrBadDimensions, cam.Width(), cam.Height(), cfg.Width, cfg.Height)
	}

	// Each shade step emits at most one next-event ray, one camera
	// connection and one ray per cached light vertex
	shadowFactor := cfg.MaxPathLength + 2

	pixels := cfg.Width * cfg.Height
	v := &VCM{
		cfg:            cfg,
		mode:           mode,
		sc:             sc,
		cam:            cam,
		sched:          renderer.NewScheduler(sc, cfg.QueueCapacity, shadowFactor, cfg.Workers),
		lightImage:     renderer.NewImage(cfg.Width, cfg.Height),
		pmImage:        renderer.NewImage(cfg.Width, cfg.Height),
		grid:           NewPhotonGrid(),
		lightPathCount: float64(pixels),
	}
	if v.connecting() || v.merging() {
		v.lightVertices = NewVertexCache(pixels*4, pixels)
	}
	if mode == ModePPM {
		v.cameraVertices = NewVertexCache(pixels*cfg.SamplesPerPixel, 0)
	}
	return v, nil
}

// NewPathTracer creates a next-event-estimation path tracer
func NewPathTracer(cfg Config, sc *scene.Scene, cam *scene.PerspectiveCamera) (*VCM, error) {
	return New(ModePathTracing, cfg, sc, cam)
}

// NewLightTracer creates a light tracer
func NewLightTracer(cfg Config, sc *scene.Scene, cam *scene.PerspectiveCamera) (*VCM, error) {
	return New(ModeLightTracing, cfg, sc, cam)
}

// NewBidirPathTracer creates a bidirectional path tracer
func NewBidirPathTracer(cfg Config, sc *scene.Scene, cam *scene.PerspectiveCamera) (*VCM, error) {
	return New(ModeBPT, cfg, sc, cam)
}

// NewSPPM creates a stochastic progressive photon mapper
func NewSPPM(cfg Config, sc *scene.Scene, cam *scene.PerspectiveCamera) (*VCM, error) {
	return New(ModePPM, cfg, sc, cam)
}

// NewVCM creates the full vertex connection and merging integrator
func NewVCM(cfg Config, sc *scene.Scene, cam *scene.PerspectiveCamera) (*VCM, error) {
	return New(ModeVCM, cfg, sc, cam)
}

func (v *VCM) ptOnly() bool  { return v.mode == ModePathTracing }
func (v *VCM) ltOnly() bool  { return v.mode == ModeLightTracing }
func (v *VCM) ppmOnly() bool { return v.mode == ModePPM }

// tracesLightPaths reports whether a light pass runs at all
func (v *VCM) tracesLightPaths() bool { return v.mode != ModePathTracing }

// connecting reports whether camera vertices connect to cached light vertices
func (v *VCM) connecting() bool { return v.mode == ModeBPT || v.mode == ModeVCM }

// merging reports whether photon merging contributes
func (v *VCM) merging() bool { return v.mode == ModePPM || v.mode == ModeVCM }

// h applies the configured MIS heuristic
func (v *VCM) h(a float64) float64 { return v.cfg.Heuristic.Apply(a) }

// Radius returns the current merge radius r_k
func (v *VCM) Radius() float64 { return v.pmRadius }

// Iteration returns the number of completed iterations
func (v *VCM) Iteration() int { return v.iteration }

// Render accumulates one iteration into the image
func (v *VCM) Render(img *renderer.Image) error {
	if img.Width() != v.cfg.Width || img.Height() != v.cfg.Height {
		return fmt.Errorf("%w: image %dx%d does not match config %dx%d",
			ErrBadDimensions, img.Width(), img.Height(), v.cfg.Width, v.cfg.Height)
	}

	v.iteration++

	// Shrinking merge radius schedule
	v.pmRadius = v.cfg.BaseRadius / math.Pow(float64(v.iteration), 0.5*(1.0-v.cfg.RadiusAlpha))
	v.pmRadius = math.Max(v.pmRadius, minMergeRadius)

	// Weights mediating between connection and merging strategies
	etaVCM := math.Pi * v.pmRadius * v.pmRadius * v.lightPathCount
	v.misVC = v.h(1.0 / etaVCM)
	if v.merging() {
		v.misVM = v.h(etaVCM)
	} else {
		v.misVM = 0
	}

	if v.lightVertices != nil {
		v.lightVertices.Reset()
	}
	if v.cameraVertices != nil {
		v.cameraVertices.Reset()
	}
	v.lightImage.Clear()
	v.pmImage.Clear()

	if v.tracesLightPaths() {
		v.traceLightPaths()
	}
	if !v.ltOnly() {
		v.traceCameraPaths(img)
	}
	if v.ppmOnly() {
		v.mergeDeferred()
	}
	if v.merging() {
		v.grid.Clear()
	}

	// Fold the light tracing and merging images into the output
	img.AddImage(v.lightImage)
	img.AddImage(v.pmImage)
	return nil
}

// traceLightPaths runs the light pass: one light subpath per pixel. Vertices
// are cached for connection and merging; non-delta vertices also connect to
// the camera.
func (v *VCM) traceLightPaths() {
	gen := renderer.NewPixelRayGen(v.cfg.Width, v.cfg.Height, 1)
	v.sched.RunIteration(gen, v.sampleLightRay, v.processLightRay, v.shadowTo(v.lightImage))

	if v.merging() {
		v.grid.Build(v.lightVertices.All(), v.pmRadius)
	}
}

// traceCameraPaths runs the camera pass with spp samples per pixel
func (v *VCM) traceCameraPaths(img *renderer.Image) {
	gen := renderer.NewPixelRayGen(v.cfg.Width, v.cfg.Height, v.cfg.SamplesPerPixel)
	v.sched.RunIteration(gen, v.sampleCameraRay,
		func(i int, q, out, shadow *renderer.RayQueue, arena *material.Arena) {
			v.processCameraRay(i, q, out, shadow, arena, img)
		},
		v.shadowTo(img))
}

// shadowTo resolves occlusion-tested shadow rays: a miss lands the carried
// contribution on its pixel
func (v *VCM) shadowTo(img *renderer.Image) renderer.ShadowFn {
	return func(i int, shadow *renderer.RayQueue) {
		if shadow.Hit(i).TriID < 0 {
			state := shadow.State(i)
			img.AddPixel(state.PixelID, state.Throughput)
		}
	}
}

// sampleLightRay starts a light subpath: pick a light uniformly, sample an
// emission, and initialise the MIS quantities.
func (v *VCM) sampleLightRay(x, y int, ray *core.Ray, state *renderer.PathState) bool {
	seed := core.BernsteinSeed(uint32(state.PixelID), uint32(state.SampleID), uint32(v.iteration)*2+1)
	*state = renderer.NewPathState(state.PixelID, state.SampleID, core.NewRNG(seed))

	n := v.sc.LightCount()
	light := v.sc.Lights[state.RNG.RandomInt(0, n)]
	pickPdf := 1.0 / float64(n)

	es := light.SampleEmit(&state.RNG)
	if es.PdfEmitW <= 0 || es.Radiance.IsBlack() {
		return false
	}

	*ray = core.NewRay(es.Pos, es.Dir, rayOffset, math.MaxFloat64)

	state.Throughput = es.Radiance.Multiply(1.0 / pickPdf)
	state.IsFinite = light.IsFinite()

	state.DVCM = v.h(es.PdfDirectA / es.PdfEmitW) // pickPdf cancels out
	if light.IsDelta() {
		state.DVC = 0
	} else {
		state.DVC = v.h(es.CosOut / (es.PdfEmitW * pickPdf))
	}
	state.DVM = state.DVC * v.misVC

	return true
}

// sampleCameraRay starts a camera subpath through a jittered raster position
func (v *VCM) sampleCameraRay(x, y int, ray *core.Ray, state *renderer.PathState) bool {
	seed := core.BernsteinSeed(uint32(state.PixelID), uint32(state.SampleID), uint32(v.iteration)*2)
	*state = renderer.NewPathState(state.PixelID, state.SampleID, core.NewRNG(seed))

	sampleX := float64(x) + state.RNG.RandomFloat()
	sampleY := float64(y) + state.RNG.RandomFloat()
	*ray = v.cam.GenerateRay(sampleX, sampleY)

	// The pdf on the image plane is one per pixel; convert to solid angle
	pdfCamW := v.cam.DirectionPdf(ray.Dir)
	if pdfCamW <= 0 {
		return false
	}

	state.DVC = 0
	state.DVM = 0
	state.DVCM = v.h(v.lightPathCount / pdfCamW)
	return true
}

// completeHitMIS finishes the solid-angle to area conversion of the partial
// weights at a hit. applyDistance is false only for the first hit of an
// infinite light's subpath.
func completeHitMIS(state *renderer.PathState, h func(float64) float64, distance, cosTheta float64, applyDistance bool) {
	if applyDistance {
		state.DVCM *= h(distance * distance)
	}
	state.DVCM /= h(cosTheta)
	state.DVC /= h(cosTheta)
	state.DVM /= h(cosTheta)
}

// processLightRay shades one traversed light-path entry
func (v *VCM) processLightRay(i int, q, out, shadow *renderer.RayQueue, arena *material.Arena) {
	hit := q.Hit(i)
	if hit.TriID < 0 {
		return
	}
	state := q.State(i)
	ray := q.Ray(i)

	isect := v.sc.CalculateIntersection(hit, ray)
	cosTheta := isect.OutDir.AbsDot(isect.Normal)
	if cosTheta == 0 {
		return
	}

	completeHitMIS(state, v.h, isect.Distance, cosTheta, state.PathLength > 1 || state.IsFinite)

	mat := v.sc.MaterialFor(hit)
	bsdf := mat.GetBSDF(&isect, arena)

	// Vertices on delta materials are neither stored nor connected
	if !mat.IsSpecular() {
		if v.lightVertices != nil {
			idx := v.lightVertices.AppendForPixel(state.PixelID, Vertex{
				Isect:        isect,
				Throughput:   state.Throughput,
				ContinueProb: state.ContinueProb,
				DVC:          state.DVC,
				DVCM:         state.DVCM,
				DVM:          state.DVM,
				PathLength:   state.PathLength,
				PixelID:      state.PixelID,
				Ancestor:     state.Ancestor,
			})
			state.Ancestor = idx
		}
		if !v.ppmOnly() {
			v.connectToCamera(state, &isect, bsdf, shadow)
		}
	}

	v.bounce(state, &isect, bsdf, out, true)
}

// connectToCamera projects a light vertex to raster space and pushes a
// shadow ray toward the camera carrying the image contribution
func (v *VCM) connectToCamera(lightState *renderer.PathState, isect *core.Intersection, bsdf *material.BSDF, shadow *renderer.RayQueue) {
	dirToCam := v.cam.Pos().Subtract(isect.Pos)
	if dirToCam.Negate().Dot(v.cam.Dir()) < 0 {
		return // vertex is behind the camera
	}

	raster := v.cam.WorldToRaster(isect.Pos)
	pixel := v.cam.RasterToID(raster)
	if pixel < 0 {
		return // outside the image plane
	}

	distSqr := dirToCam.LengthSquared()
	dist := math.Sqrt(distSqr)
	if dist == 0 {
		return
	}
	dirToCam = dirToCam.Multiply(1 / dist)

	cosThetaI := v.cam.Dir().AbsDot(dirToCam.Negate())
	// Adjoint cosine at the surface: this is a particle path
	cosThetaO := shadingNormalAdjoint(isect.Normal, isect.GeomNormal, isect.OutDir, dirToCam)

	bsdfValue := bsdf.EvalNoCosine(isect.OutDir, dirToCam, material.BSDFAll)
	if bsdfValue.IsBlack() || cosThetaI == 0 {
		return
	}
	pdfRevW := bsdf.Pdf(dirToCam, isect.OutDir)
	pdfRev := pdfRevW * lightState.ContinueProb

	// Conversion between image plane area and surface area; the surface
	// cosine is the adjoint one.
	ipd := v.cam.ImagePlaneDist()
	imgToSurf := (ipd * ipd * cosThetaO) / (distSqr * cosThetaI * cosThetaI * cosThetaI)

	// Pixel sampling pdf is one as pixel area is one by convention
	pdfCam := imgToSurf
	misWeightLight := v.h(pdfCam/v.lightPathCount) * (v.misVM + lightState.DVCM + lightState.DVC*v.h(pdfRev))

	weight := 1.0
	if !v.ltOnly() {
		weight = 1.0 / (misWeightLight + 1.0)
	}

	s := *lightState
	s.PixelID = pixel
	s.Throughput = s.Throughput.MultiplyVec(bsdfValue).Multiply(weight * imgToSurf / v.lightPathCount)
	if s.Throughput.IsBlack() {
		return
	}

	shadow.Push(core.NewRay(isect.Pos, dirToCam, rayOffset, dist-rayOffset), s)
}

// bounce terminates or continues a path: Russian roulette, BSDF sampling,
// MIS quantity propagation, throughput update, re-enqueue.
func (v *VCM) bounce(state *renderer.PathState, isect *core.Intersection, bsdf *material.BSDF, out *renderer.RayQueue, adjoint bool) {
	if state.PathLength >= v.cfg.MaxPathLength {
		return
	}
	if !state.Throughput.IsValid() {
		return
	}

	q, survive := russianRoulette(state.Throughput, state.RNG.RandomFloat())
	if !survive {
		return
	}

	flags := material.BSDFAll
	if v.ppmOnly() && !adjoint {
		// SPPM camera paths only follow specular chains
		flags = material.BSDFSpecular | material.BSDFReflection | material.BSDFTransmission
	}

	value, dir, pdfDirW, sampled := bsdf.Sample(isect.OutDir, &state.RNG, flags)
	if pdfDirW == 0 || value.IsBlack() {
		return
	}
	isSpecular := sampled.IsSpecular()

	// The reverse pdf of a delta lobe equals the forward one by symmetry
	pdfRevW := pdfDirW
	if !isSpecular {
		pdfRevW = bsdf.Pdf(dir, isect.OutDir)
	}

	cosThetaI := dir.AbsDot(isect.Normal)
	if cosThetaI == 0 {
		return
	}

	s := *state
	h := v.h
	if isSpecular {
		s.DVCM = 0
		s.DVC *= h(cosThetaI)
		s.DVM *= h(cosThetaI)
	} else {
		s.DVC = h(cosThetaI/(pdfDirW*q)) * (s.DVC*h(pdfRevW*q) + s.DVCM + v.misVM)
		s.DVM = h(cosThetaI/(pdfDirW*q)) * (s.DVM*h(pdfRevW*q) + s.DVCM + v.misVC)
		s.DVCM = h(1.0 / (pdfDirW * q))
	}

	// The sampled value carries the plain cosine; particle paths swap in the
	// adjoint cosine.
	factor := 1.0
	if adjoint {
		factor = shadingNormalAdjoint(isect.Normal, isect.GeomNormal, isect.OutDir, dir) / cosThetaI
	}

	s.Throughput = s.Throughput.MultiplyVec(value).Multiply(factor / (q * pdfDirW))
	if !s.Throughput.IsValid() || s.Throughput.IsBlack() {
		return
	}
	s.PathLength++
	s.ContinueProb = q
	s.LastSpecular = isSpecular

	out.Push(core.NewRay(isect.Pos, dir, rayOffset, math.MaxFloat64), s)
}

// processCameraRay shades one traversed camera-path entry
func (v *VCM) processCameraRay(i int, q, out, shadow *renderer.RayQueue, arena *material.Arena, img *renderer.Image) {
	hit := q.Hit(i)
	state := q.State(i)
	ray := q.Ray(i)

	if hit.TriID < 0 {
		v.hitEnvironment(state, ray, img)
		return
	}

	isect := v.sc.CalculateIntersection(hit, ray)
	cosThetaO := isect.OutDir.AbsDot(isect.Normal)
	if cosThetaO == 0 {
		return
	}

	completeHitMIS(state, v.h, isect.Distance, cosThetaO, true)

	mat := v.sc.MaterialFor(hit)
	bsdf := mat.GetBSDF(&isect, arena)

	// A light source was hit directly
	if light := v.sc.LightForTri(hit.TriID); light != nil {
		v.addLightHit(state, light, &isect, img)
	}

	if v.ppmOnly() {
		// Defer the merge: cache the hit point, keep walking specular chains
		if !mat.IsSpecular() {
			v.cameraVertices.Append(Vertex{
				Isect:        isect,
				Throughput:   state.Throughput,
				ContinueProb: state.ContinueProb,
				DVC:          state.DVC,
				DVCM:         state.DVCM,
				DVM:          state.DVM,
				PathLength:   state.PathLength,
				PixelID:      state.PixelID,
				Ancestor:     state.Ancestor,
			})
		}
		v.bounce(state, &isect, bsdf, out, false)
		return
	}

	if !mat.IsSpecular() {
		v.directIllum(state, &isect, bsdf, shadow)

		if v.connecting() {
			v.connect(state, &isect, bsdf, arena, shadow)
		}
		if v.mode == ModeVCM {
			v.vertexMerging(state, &isect, bsdf)
		}
	}

	v.bounce(state, &isect, bsdf, out, false)
}

// invSpp is the per-sample weight of camera-path contributions; an iteration
// averages over its samples per pixel
func (v *VCM) invSpp() float64 {
	return 1.0 / float64(v.cfg.SamplesPerPixel)
}

// addLightHit accumulates emission when a camera ray lands on a light
func (v *VCM) addLightHit(state *renderer.PathState, light lights.Light, isect *core.Intersection, img *renderer.Image) {
	radiance, pdfDirectA, pdfEmitW := light.Radiance(isect.OutDir)
	if radiance.IsBlack() {
		return
	}

	// Light directly visible: no competing strategy, no weighting
	if state.PathLength == 1 {
		img.AddPixel(state.PixelID, state.Throughput.MultiplyVec(radiance).Multiply(v.invSpp()))
		return
	}

	if v.ptOnly() {
		// Next-event estimation covers this path unless the previous bounce
		// was a delta event that direct sampling cannot produce.
		if state.LastSpecular {
			img.AddPixel(state.PixelID, state.Throughput.MultiplyVec(radiance).Multiply(v.invSpp()))
		}
		return
	}

	pickPdf := 1.0 / float64(v.sc.LightCount())
	pdfDi := pdfDirectA * pickPdf
	pdfE := pdfEmitW * pickPdf

	misWeightCamera := v.h(pdfDi)*state.DVCM + v.h(pdfE)*state.DVC
	weight := 1.0 / (misWeightCamera + 1.0)

	img.AddPixel(state.PixelID, state.Throughput.MultiplyVec(radiance).Multiply(weight*v.invSpp()))
}

// hitEnvironment accumulates the environment light for escaped camera rays
func (v *VCM) hitEnvironment(state *renderer.PathState, ray core.Ray, img *renderer.Image) {
	if v.sc.Env == nil {
		return
	}
	radiance, pdfDirectA, pdfEmitW := v.sc.Env.Radiance(ray.Dir.Negate())
	if radiance.IsBlack() {
		return
	}

	if state.PathLength == 1 {
		img.AddPixel(state.PixelID, state.Throughput.MultiplyVec(radiance).Multiply(v.invSpp()))
		return
	}
	if v.ptOnly() {
		if state.LastSpecular {
			img.AddPixel(state.PixelID, state.Throughput.MultiplyVec(radiance).Multiply(v.invSpp()))
		}
		return
	}

	// The environment sits at infinity: the partial weights stay in solid
	// angle, no distance completion applies.
	pickPdf := 1.0 / float64(v.sc.LightCount())
	misWeightCamera := v.h(pdfDirectA*pickPdf)*state.DVCM + v.h(pdfEmitW*pickPdf)*state.DVC
	weight := 1.0 / (misWeightCamera + 1.0)

	img.AddPixel(state.PixelID, state.Throughput.MultiplyVec(radiance).Multiply(weight*v.invSpp()))
}

// directIllum samples one light for next-event estimation and pushes the
// weighted shadow ray
func (v *VCM) directIllum(state *renderer.PathState, isect *core.Intersection, bsdf *material.BSDF, shadow *renderer.RayQueue) {
	n := v.sc.LightCount()
	light := v.sc.Lights[state.RNG.RandomInt(0, n)]
	invPickPdf := float64(n)

	sample := light.SampleDirect(isect.Pos, &state.RNG)
	if sample.Radiance.IsBlack() || sample.PdfDirectW <= 0 || sample.CosOut <= 0 {
		return
	}

	cosThetaI := isect.Normal.AbsDot(sample.Dir)
	bsdfValue := bsdf.Eval(isect.OutDir, sample.Dir, material.BSDFAll) // cosine included
	if bsdfValue.IsBlack() {
		return
	}
	pdfDirW := bsdf.Pdf(isect.OutDir, sample.Dir)
	pdfRevW := bsdf.Pdf(sample.Dir, isect.OutDir)

	// A delta light cannot be hit by BSDF sampling
	pdfForward := 0.0
	if !light.IsDelta() {
		pdfForward = state.ContinueProb * pdfDirW
	}
	pdfReverse := state.ContinueProb * pdfRevW

	misWeightLight := v.h(pdfForward * invPickPdf / sample.PdfDirectW)
	misWeightCamera := v.h(sample.PdfEmitW*cosThetaI/(sample.PdfDirectW*sample.CosOut)) *
		(v.misVM + state.DVCM + state.DVC*v.h(pdfReverse))

	weight := 1.0
	if !v.ptOnly() {
		weight = 1.0 / (misWeightCamera + 1.0 + misWeightLight)
	}

	s := *state
	s.Throughput = s.Throughput.MultiplyVec(bsdfValue).MultiplyVec(sample.Radiance).
		Multiply(weight * invPickPdf * v.invSpp() / sample.PdfDirectW)
	if s.Throughput.IsBlack() || !s.Throughput.IsValid() {
		return
	}

	shadow.Push(core.NewRay(isect.Pos, sample.Dir, rayOffset, sample.Distance-rayOffset), s)
}

// connect joins the camera vertex to every vertex of its pixel's cached
// light path
func (v *VCM) connect(state *renderer.PathState, isect *core.Intersection, bsdfCam *material.BSDF, arena *material.Arena, shadow *renderer.RayQueue) {
	for _, idx := range v.lightVertices.PathIndices(state.PixelID) {
		lv := v.lightVertices.At(idx)

		connectDir := lv.Isect.Pos.Subtract(isect.Pos)
		distSqr := connectDir.LengthSquared()
		dist := math.Sqrt(distSqr)

		// Points closer than the merge radius tend to sit on the same
		// surface; connecting them creates fireflies that take many samples
		// to average out.
		if dist < v.pmRadius {
			continue
		}
		connectDir = connectDir.Multiply(1 / dist)

		lightMat := v.sc.Materials[lv.Isect.MatID]
		bsdfLight := lightMat.GetBSDF(&lv.Isect, arena)

		// Camera side carries the plain cosine, light side the adjoint one
		camValue := bsdfCam.Eval(isect.OutDir, connectDir, material.BSDFAll)
		lightValue := bsdfLight.EvalNoCosine(lv.Isect.OutDir, connectDir.Negate(), material.BSDFAll)
		if camValue.IsBlack() || lightValue.IsBlack() {
			continue
		}

		pdfDirCamW := bsdfCam.Pdf(isect.OutDir, connectDir)
		pdfRevCamW := bsdfCam.Pdf(connectDir, isect.OutDir)
		pdfDirLightW := bsdfLight.Pdf(lv.Isect.OutDir, connectDir.Negate())
		pdfRevLightW := bsdfLight.Pdf(connectDir.Negate(), lv.Isect.OutDir)

		cosCam := isect.Normal.Dot(connectDir)
		cosLight := shadingNormalAdjoint(lv.Isect.Normal, lv.Isect.GeomNormal, lv.Isect.OutDir, connectDir.Negate())
		if cosCam <= 0 {
			continue
		}

		// The camera cosine already sits in camValue
		geomTerm := cosLight / distSqr
		if geomTerm <= 0 {
			continue
		}

		pdfCamF := pdfDirCamW * state.ContinueProb
		pdfCamR := pdfRevCamW * state.ContinueProb
		pdfLightF := pdfDirLightW * lv.ContinueProb
		pdfLightR := pdfRevLightW * lv.ContinueProb

		pdfCamA := pdfCamF * cosLight / distSqr
		pdfLightA := pdfLightF * cosCam / distSqr

		misWeightLight := v.h(pdfCamA) * (v.misVM + lv.DVCM + lv.DVC*v.h(pdfLightR))
		misWeightCamera := v.h(pdfLightA) * (v.misVM + state.DVCM + state.DVC*v.h(pdfCamR))
		weight := 1.0 / (misWeightCamera + 1.0 + misWeightLight)

		s := *state
		s.Throughput = s.Throughput.
			MultiplyVec(camValue).
			MultiplyVec(lightValue).
			MultiplyVec(lv.Throughput).
			Multiply(weight * geomTerm * v.invSpp())
		if s.Throughput.IsBlack() || !s.Throughput.IsValid() {
			continue
		}

		shadow.Push(core.NewRay(isect.Pos, connectDir, rayOffset, dist-rayOffset), s)
	}
}

// epanechnikovKernel is the merging kernel: K(d, r) = 2/(pi r^2) * (1 - d^2/r^2)
func epanechnikovKernel(dist, radius float64) float64 {
	u := dist * dist / (radius * radius)
	if u >= 1 {
		return 0
	}
	return 2.0 / (math.Pi * radius * radius) * (1.0 - u)
}

// vertexMerging gathers photons around a camera vertex and accumulates the
// kernel-weighted contribution
func (v *VCM) vertexMerging(state *renderer.PathState, isect *core.Intersection, bsdf *material.BSDF) {
	contrib := core.Vec3{}

	v.grid.RangeQuery(isect.Pos, v.pmRadius, func(p *Vertex) {
		lightInDir := p.Isect.OutDir

		// Cosine-free value: the photon's stored throughput already carries
		// the incident flux density.
		bsdfValue := bsdf.EvalNoCosine(isect.OutDir, lightInDir, material.BSDFAll)
		if bsdfValue.IsBlack() {
			return
		}

		pdfDirW := bsdf.Pdf(isect.OutDir, lightInDir)
		pdfRevW := bsdf.Pdf(lightInDir, isect.OutDir)
		pdfForward := pdfDirW * state.ContinueProb
		pdfReverse := pdfRevW * state.ContinueProb

		misWeightLight := p.DVCM*v.misVC + p.DVM*v.h(pdfForward)
		misWeightCamera := state.DVCM*v.misVC + state.DVM*v.h(pdfReverse)

		weight := 1.0
		if !v.ppmOnly() {
			weight = 1.0 / (misWeightLight + 1.0 + misWeightCamera)
		}

		kernel := epanechnikovKernel(p.Isect.Pos.Subtract(isect.Pos).Length(), v.pmRadius)

		contrib = contrib.Add(bsdfValue.MultiplyVec(p.Throughput).Multiply(weight * kernel))
	})

	if contrib.IsBlack() {
		return
	}
	v.pmImage.AddPixel(state.PixelID,
		state.Throughput.MultiplyVec(contrib).Multiply(v.invSpp()/v.lightPathCount))
}

// mergeDeferred runs the SPPM merge pass over the cached camera hit points
func (v *VCM) mergeDeferred() {
	n := v.cameraVertices.Size()
	v.sched.ParallelFor(n, func(start, end, worker int) {
		arena := v.sched.Arena(worker)
		for i := start; i < end; i++ {
			arena.Reset()
			cv := v.cameraVertices.At(int32(i))

			mat := v.sc.Materials[cv.Isect.MatID]
			bsdf := mat.GetBSDF(&cv.Isect, arena)

			state := renderer.PathState{
				PixelID:      cv.PixelID,
				Throughput:   cv.Throughput,
				ContinueProb: cv.ContinueProb,
				PathLength:   cv.PathLength,
				DVC:          cv.DVC,
				DVCM:         cv.DVCM,
				DVM:          cv.DVM,
			}
			v.vertexMerging(&state, &cv.Isect, bsdf)
		}
	})
}
