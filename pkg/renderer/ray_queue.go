package renderer

import (
	"sort"
	"sync/atomic"

	"github.com/microcompunics/imbatracer/pkg/core"
	"github.com/microcompunics/imbatracer/pkg/scene"
)

// RayQueue stores a set of in-flight rays together with their states and,
// after traversal, their hits. Slots are reserved with a single atomic
// fetch-add, which makes Push wait-free and safe for any number of concurrent
// producers. Capacity is fixed; overflowing the queue is a contract violation
// and panics.
type RayQueue struct {
	rays   []core.Ray
	states []PathState
	hits   []core.Hit

	last atomic.Int64
}

// NewRayQueue creates a queue. Capacity is rounded up to a multiple of the
// traversal block size so padding never overflows the buffers.
func NewRayQueue(capacity, blockSize int) *RayQueue {
	if capacity <= 0 {
		panic("renderer: ray queue capacity must be positive")
	}
	if rem := capacity % blockSize; rem != 0 {
		capacity += blockSize - rem
	}
	return &RayQueue{
		rays:   make([]core.Ray, capacity),
		states: make([]PathState, capacity),
		hits:   make([]core.Hit, capacity),
	}
}

// Size returns the number of entries
func (q *RayQueue) Size() int { return int(q.last.Load()) }

// Capacity returns the fixed buffer size
func (q *RayQueue) Capacity() int { return len(q.rays) }

// Clear empties the queue; the next Push starts from index 0
func (q *RayQueue) Clear() { q.last.Store(0) }

// Push appends one ray and its state. Wait-free.
func (q *RayQueue) Push(ray core.Ray, state PathState) {
	id := q.last.Add(1) - 1
	if int(id) >= len(q.rays) {
		panic("renderer: ray queue full")
	}
	q.rays[id] = ray
	q.states[id] = state
}

// PushBatch reserves a contiguous range with one fetch-add and copies the
// rays and states into it
func (q *RayQueue) PushBatch(rays []core.Ray, states []PathState) {
	count := int64(len(rays))
	end := q.last.Add(count)
	if int(end) > len(q.rays) {
		panic("renderer: ray queue full")
	}
	start := end - count
	copy(q.rays[start:end], rays)
	copy(q.states[start:end], states)
}

// Ray returns the ray at an index
func (q *RayQueue) Ray(i int) core.Ray { return q.rays[i] }

// State returns a mutable pointer to the state at an index
func (q *RayQueue) State(i int) *PathState { return &q.states[i] }

// Hit returns the hit at an index; valid after a traversal call
func (q *RayQueue) Hit(i int) core.Hit { return q.hits[i] }

// Traverse runs closest-hit traversal over all entries. The batch is padded
// up to the traversal block size with inert rays.
func (q *RayQueue) Traverse(trav scene.Traverser) {
	n := q.pad(trav.BlockSize())
	trav.TraverseClosest(q.rays[:n], q.hits[:n])
}

// TraverseOccluded runs any-hit traversal over all entries. A miss leaves the
// sentinel negative triangle id in the hit buffer.
func (q *RayQueue) TraverseOccluded(trav scene.Traverser) {
	n := q.pad(trav.BlockSize())
	trav.TraverseAnyHit(q.rays[:n], q.hits[:n])
}

// pad fills the tail of the batch with harmless rays and returns the padded
// length
func (q *RayQueue) pad(blockSize int) int {
	n := q.Size()
	padded := n
	if rem := n % blockSize; rem != 0 {
		padded = n + blockSize - rem
	}
	for i := n; i < padded; i++ {
		q.rays[i] = core.InertRay()
	}
	return padded
}

// swap exchanges two entries across all three parallel buffers
func (q *RayQueue) swap(i, j int) {
	q.rays[i], q.rays[j] = q.rays[j], q.rays[i]
	q.states[i], q.states[j] = q.states[j], q.states[i]
	q.hits[i], q.hits[j] = q.hits[j], q.hits[i]
}

// CompactHits partitions the queue so entries with a valid hit occupy
// [0, k) and misses occupy [k, size). Returns k. The multi-set of entries is
// preserved, their indices are not.
func (q *RayQueue) CompactHits() int {
	k := 0
	for i := 0; i < q.Size(); i++ {
		if q.hits[i].TriID >= 0 {
			q.swap(i, k)
			k++
		}
	}
	return k
}

// CompactRays partitions live rays in front of inert ones and returns the
// live count
func (q *RayQueue) CompactRays() int {
	k := 0
	for i := 0; i < q.Size(); i++ {
		if !q.rays[i].IsInert() {
			q.swap(i, k)
			k++
		}
	}
	return k
}

// SortByMaterial reorders the queue by the material id of each hit to improve
// shading cache locality. Misses sort last.
func (q *RayQueue) SortByMaterial(matFor func(core.Hit) int32) {
	n := q.Size()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	key := func(i int) int32 {
		if q.hits[i].TriID < 0 {
			return int32(1<<30 - 1)
		}
		return matFor(q.hits[i])
	}
	sort.SliceStable(idx, func(a, b int) bool { return key(idx[a]) < key(idx[b]) })

	rays := make([]core.Ray, n)
	states := make([]PathState, n)
	hits := make([]core.Hit, n)
	for k, i := range idx {
		rays[k], states[k], hits[k] = q.rays[i], q.states[i], q.hits[i]
	}
	copy(q.rays, rays)
	copy(q.states, states)
	copy(q.hits, hits)
}
