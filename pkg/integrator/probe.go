package integrator

import (
	"math"
	"sync/atomic"

	"github.com/microcompunics/imbatracer/pkg/core"
	"github.com/microcompunics/imbatracer/pkg/material"
	"github.com/microcompunics/imbatracer/pkg/renderer"
	"github.com/microcompunics/imbatracer/pkg/scene"
)

// EstimateLightPathLen probes the scene with a small number of light paths
// and returns the average path length, rounded up. The integrators in this
// package do not call it; they size their vertex caches from the pixel count.
func EstimateLightPathLen(sc *scene.Scene, probes int) int {
	if sc.LightCount() == 0 || probes <= 0 {
		return 1
	}

	sched := renderer.NewScheduler(sc, 1<<12, 1, 0)
	var vertexCount atomic.Int64

	for lightID := 0; lightID < sc.LightCount(); lightID++ {
		gen := renderer.NewLightRayGen(lightID, probes)
		light := sc.Lights[lightID]
		pickPdf := 1.0 / float64(sc.LightCount())

		sched.RunIteration(gen,
			func(rayID, lightID int, ray *core.Ray, state *renderer.PathState) bool {
				seed := core.BernsteinSeed(uint32(lightID), uint32(rayID), 0)
				*state = renderer.NewPathState(rayID, 0, core.NewRNG(seed))

				es := light.SampleEmit(&state.RNG)
				if es.PdfEmitW <= 0 || es.Radiance.IsBlack() {
					return false
				}
				*ray = core.NewRay(es.Pos, es.Dir, rayOffset, math.MaxFloat64)
				state.Throughput = es.Radiance.Multiply(1.0 / pickPdf)
				vertexCount.Add(1)
				return true
			},
			func(i int, q, out, shadow *renderer.RayQueue, arena *material.Arena) {
				probeBounce(sc, i, q, out, arena, &vertexCount)
			},
			func(i int, shadow *renderer.RayQueue) {})
	}

	total := probes * sc.LightCount()
	avg := float64(vertexCount.Load()) / float64(total)
	return int(math.Ceil(avg))
}

// probeBounce extends a probe path with Russian roulette only, counting the
// vertices it touches
func probeBounce(sc *scene.Scene, i int, q, out *renderer.RayQueue, arena *material.Arena, vertexCount *atomic.Int64) {
	hit := q.Hit(i)
	if hit.TriID < 0 {
		return
	}
	state := q.State(i)
	ray := q.Ray(i)

	isect := sc.CalculateIntersection(hit, ray)
	vertexCount.Add(1)

	if state.PathLength >= 32 {
		return
	}
	rr, survive := russianRoulette(state.Throughput, state.RNG.RandomFloat())
	if !survive {
		return
	}

	mat := sc.MaterialFor(hit)
	bsdf := mat.GetBSDF(&isect, arena)

	value, dir, pdfDirW, _ := bsdf.Sample(isect.OutDir, &state.RNG, material.BSDFAll)
	if pdfDirW == 0 || value.IsBlack() {
		return
	}

	s := *state
	s.Throughput = s.Throughput.MultiplyVec(value).Multiply(1.0 / (rr * pdfDirW))
	if !s.Throughput.IsValid() {
		return
	}
	s.PathLength++

	out.Push(core.NewRay(isect.Pos, dir, rayOffset, math.MaxFloat64), s)
}
