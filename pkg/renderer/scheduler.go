package renderer

import (
	"runtime"
	"sync"

	"github.com/microcompunics/imbatracer/pkg/material"
	"github.com/microcompunics/imbatracer/pkg/scene"
)

// ShadeFn processes one traversed queue entry. It may push continuation rays
// into out and shadow rays into shadow. The arena is reset before each entry
// and must not escape the call.
type ShadeFn func(i int, q, out, shadow *RayQueue, arena *material.Arena)

// ShadowFn resolves one occlusion-tested shadow queue entry
type ShadowFn func(i int, shadow *RayQueue)

// arenaLobeCapacity bounds the scratch lobes one shade step may allocate
const arenaLobeCapacity = 64

// Scheduler drives the traversal/shading cycles of one render iteration over
// double-buffered ray queues. Shading runs data-parallel over contiguous
// disjoint index ranges; traversal and the queue pushes are the only
// synchronisation points.
type Scheduler struct {
	sc      *scene.Scene
	queues  [2]*RayQueue
	shadow  *RayQueue
	workers int
	arenas  []*material.Arena

	running bool
}

// NewScheduler creates a scheduler with the given queue capacity.
// shadowFactor is the worst-case number of shadow rays one shade step may
// emit; it sizes the shadow queue so pushes cannot overflow. A worker count
// <= 0 selects one worker per CPU.
func NewScheduler(sc *scene.Scene, queueCapacity, shadowFactor, workers int) *Scheduler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if shadowFactor < 1 {
		shadowFactor = 1
	}
	block := sc.Traverser().BlockSize()

	s := &Scheduler{
		sc:      sc,
		workers: workers,
		shadow:  NewRayQueue(queueCapacity*shadowFactor, block),
		arenas:  make([]*material.Arena, workers),
	}
	s.queues[0] = NewRayQueue(queueCapacity, block)
	s.queues[1] = NewRayQueue(queueCapacity, block)
	for i := range s.arenas {
		s.arenas[i] = material.NewArena(arenaLobeCapacity)
	}
	return s
}

// RunIteration executes the streaming loop: fill, traverse, shade, resolve
// shadow rays, swap. It returns when the generator is exhausted and no rays
// remain in flight. Re-entry while an iteration is running is a contract
// violation.
func (s *Scheduler) RunIteration(gen RayGen, sample SampleFn, shadeHits ShadeFn, shadeShadow ShadowFn) {
	if s.running {
		panic("renderer: scheduler re-entered while an iteration is running")
	}
	s.running = true
	defer func() { s.running = false }()

	gen.StartFrame()
	s.queues[0].Clear()
	s.queues[1].Clear()
	s.shadow.Clear()

	in, out := 0, 1
	for {
		gen.FillQueue(s.queues[in], sample)
		if s.queues[in].Size() == 0 {
			break
		}

		s.queues[in].Traverse(s.sc.Traverser())

		s.shadeParallel(s.queues[in], s.queues[out], shadeHits)
		s.queues[in].Clear()

		s.ResolveShadow(shadeShadow)

		in, out = out, in
	}
}

// shadeParallel invokes the shade callback across the queue in contiguous
// disjoint ranges, one goroutine per worker
func (s *Scheduler) shadeParallel(in, out *RayQueue, shade ShadeFn) {
	n := in.Size()
	s.parallelRanges(n, func(start, end, worker int) {
		arena := s.arenas[worker]
		for i := start; i < end; i++ {
			arena.Reset()
			shade(i, in, out, s.shadow, arena)
		}
	})
}

// ResolveShadow traverses the shadow queue with any-hit rays and resolves
// every entry, then clears the queue. Exposed for deferred passes that push
// shadow rays outside the streaming loop.
func (s *Scheduler) ResolveShadow(shadeShadow ShadowFn) {
	if s.shadow.Size() == 0 {
		return
	}
	s.shadow.TraverseOccluded(s.sc.Traverser())

	n := s.shadow.Size()
	s.parallelRanges(n, func(start, end, worker int) {
		for i := start; i < end; i++ {
			shadeShadow(i, s.shadow)
		}
	})
	s.shadow.Clear()
}

// ShadowQueue exposes the shadow queue for deferred connection passes
func (s *Scheduler) ShadowQueue() *RayQueue { return s.shadow }

// ParallelFor runs a callback over [0, n) in contiguous disjoint ranges, one
// per worker. Used by deferred passes to enumerate cached vertices.
func (s *Scheduler) ParallelFor(n int, fn func(start, end, worker int)) {
	s.parallelRanges(n, fn)
}

// Arena returns the scratch arena of a worker; deferred passes reset it per
// vertex the way the streaming loop does per entry
func (s *Scheduler) Arena(worker int) *material.Arena { return s.arenas[worker] }

// Workers returns the worker count
func (s *Scheduler) Workers() int { return s.workers }

func (s *Scheduler) parallelRanges(n int, fn func(start, end, worker int)) {
	if n == 0 {
		return
	}
	workers := s.workers
	if workers > n {
		workers = n
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 1; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, n)
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end, worker int) {
			defer wg.Done()
			fn(start, end, worker)
		}(start, end, w)
	}
	// The first range runs on the calling goroutine
	fn(0, min(chunk, n), 0)
	wg.Wait()
}
