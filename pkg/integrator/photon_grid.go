package integrator

import (
	"math"
	"sort"

	"github.com/microcompunics/imbatracer/pkg/core"
)

// PhotonGrid is a spatial hash over cached light vertices, rebuilt once per
// iteration and read-only during the merge phase. Querying an unbuilt grid is
// a contract violation and panics.
type PhotonGrid struct {
	cells    map[uint64][]int32
	verts    []Vertex
	cellSize float64
	built    bool
}

// NewPhotonGrid creates an empty grid
func NewPhotonGrid() *PhotonGrid {
	return &PhotonGrid{}
}

func gridHash(ix, iy, iz int64) uint64 {
	// Classic spatial hash constants
	return uint64(ix)*73856093 ^ uint64(iy)*19349663 ^ uint64(iz)*83492791
}

func (g *PhotonGrid) cellOf(p core.Vec3) (int64, int64, int64) {
	return int64(math.Floor(p.X / g.cellSize)),
		int64(math.Floor(p.Y / g.cellSize)),
		int64(math.Floor(p.Z / g.cellSize))
}

// Build indexes the vertices with a cell size equal to the query radius
func (g *PhotonGrid) Build(verts []Vertex, radius float64) {
	if radius <= 0 {
		panic("integrator: photon grid radius must be positive")
	}
	g.verts = verts
	g.cellSize = radius
	g.cells = make(map[uint64][]int32, len(verts))

	for i := range verts {
		ix, iy, iz := g.cellOf(verts[i].Isect.Pos)
		h := gridHash(ix, iy, iz)
		g.cells[h] = append(g.cells[h], int32(i))
	}
	g.built = true
}

// Clear drops the index; the grid must be built again before querying
func (g *PhotonGrid) Clear() {
	g.built = false
	g.cells = nil
	g.verts = nil
}

// RangeQuery visits exactly the vertices within distance r of pos
func (g *PhotonGrid) RangeQuery(pos core.Vec3, r float64, visit func(*Vertex)) {
	if !g.built {
		panic("integrator: photon grid queried before build")
	}

	rSqr := r * r
	reach := int64(math.Ceil(r / g.cellSize))
	cx, cy, cz := g.cellOf(pos)

	for ix := cx - reach; ix <= cx+reach; ix++ {
		for iy := cy - reach; iy <= cy+reach; iy++ {
			for iz := cz - reach; iz <= cz+reach; iz++ {
				for _, id := range g.cells[gridHash(ix, iy, iz)] {
					v := &g.verts[id]
					// The hash can alias distant cells; the distance test
					// keeps the result set exact.
					if v.Isect.Pos.Subtract(pos).LengthSquared() <= rSqr {
						visit(v)
					}
				}
			}
		}
	}
}

// KNN returns up to k vertices closest to pos, nearest first. The search
// expands ring by ring until the k-th best distance is covered.
func (g *PhotonGrid) KNN(pos core.Vec3, k int) []*Vertex {
	if !g.built {
		panic("integrator: photon grid queried before build")
	}
	if k <= 0 || len(g.verts) == 0 {
		return nil
	}

	type candidate struct {
		v    *Vertex
		dist float64
	}

	var found []candidate
	seen := make(map[int32]bool)
	cx, cy, cz := g.cellOf(pos)

	collectRing := func(ring int64) {
		for ix := cx - ring; ix <= cx+ring; ix++ {
			for iy := cy - ring; iy <= cy+ring; iy++ {
				for iz := cz - ring; iz <= cz+ring; iz++ {
					onShell := ix == cx-ring || ix == cx+ring ||
						iy == cy-ring || iy == cy+ring ||
						iz == cz-ring || iz == cz+ring
					if ring > 0 && !onShell {
						continue
					}
					for _, id := range g.cells[gridHash(ix, iy, iz)] {
						// The hash can alias cells of different rings; take
						// each vertex once.
						if seen[id] {
							continue
						}
						seen[id] = true
						v := &g.verts[id]
						d := v.Isect.Pos.Subtract(pos).LengthSquared()
						found = append(found, candidate{v: v, dist: d})
					}
				}
			}
		}
	}

	// Expand until k candidates are guaranteed closer than the next
	// unexplored shell, with a cap in case the grid is sparse.
	maxRing := int64(64)
	for ring := int64(0); ring <= maxRing; ring++ {
		collectRing(ring)
		if len(found) >= k {
			sort.Slice(found, func(i, j int) bool { return found[i].dist < found[j].dist })
			kth := math.Sqrt(found[k-1].dist)
			if kth <= float64(ring)*g.cellSize {
				break
			}
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].dist < found[j].dist })
	if len(found) > k {
		found = found[:k]
	}
	out := make([]*Vertex, len(found))
	for i, c := range found {
		out[i] = c.v
	}
	return out
}
