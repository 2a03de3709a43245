package scene

import (
	"math"
	"sort"

	"github.com/microcompunics/imbatracer/pkg/core"
)

// aabb is an axis-aligned bounding box
type aabb struct {
	Min, Max core.Vec3
}

func emptyAABB() aabb {
	inf := math.MaxFloat64
	return aabb{
		Min: core.NewVec3(inf, inf, inf),
		Max: core.NewVec3(-inf, -inf, -inf),
	}
}

func (b aabb) extend(p core.Vec3) aabb {
	return aabb{
		Min: core.NewVec3(min(b.Min.X, p.X), min(b.Min.Y, p.Y), min(b.Min.Z, p.Z)),
		Max: core.NewVec3(max(b.Max.X, p.X), max(b.Max.Y, p.Y), max(b.Max.Z, p.Z)),
	}
}

func (b aabb) union(o aabb) aabb {
	return b.extend(o.Min).extend(o.Max)
}

func (b aabb) center() core.Vec3 {
	return b.Min.Add(b.Max).Multiply(0.5)
}

func (b aabb) longestAxis() int {
	d := b.Max.Subtract(b.Min)
	if d.X >= d.Y && d.X >= d.Z {
		return 0
	}
	if d.Y >= d.Z {
		return 1
	}
	return 2
}

// hit performs a slab test against the ray interval [tMin, tMax]
func (b aabb) hit(ray core.Ray, tMin, tMax float64) bool {
	for axis := 0; axis < 3; axis++ {
		var org, dir, lo, hi float64
		switch axis {
		case 0:
			org, dir, lo, hi = ray.Org.X, ray.Dir.X, b.Min.X, b.Max.X
		case 1:
			org, dir, lo, hi = ray.Org.Y, ray.Dir.Y, b.Min.Y, b.Max.Y
		case 2:
			org, dir, lo, hi = ray.Org.Z, ray.Dir.Z, b.Min.Z, b.Max.Z
		}

		invD := 1.0 / dir
		t0 := (lo - org) * invD
		t1 := (hi - org) * invD
		if invD < 0 {
			t0, t1 = t1, t0
		}
		tMin = max(tMin, t0)
		tMax = min(tMax, t1)
		if tMax < tMin {
			return false
		}
	}
	return true
}

// bvhNode is a node of the hierarchy; leaves hold triangle ids
type bvhNode struct {
	bounds aabb
	left   *bvhNode
	right  *bvhNode
	tris   []int32 // nil for internal nodes
}

// BVH is a median-split bounding volume hierarchy over the scene mesh,
// fulfilling the Traverser interface over packed ray buffers.
type BVH struct {
	mesh      *Mesh
	root      *bvhNode
	alphaTest func(tri int32, u, v float64) bool
}

// bvhLeafThreshold is the max triangle count stored in a leaf
const bvhLeafThreshold = 8

// bvhBlockSize is the traversal batch granularity; ray buffers are padded to
// a multiple of it with inert rays
const bvhBlockSize = 64

// NewBVH builds a hierarchy over all triangles of a mesh
func NewBVH(mesh *Mesh) *BVH {
	n := mesh.TriangleCount()
	tris := make([]int32, n)
	for i := range tris {
		tris[i] = int32(i)
	}

	b := &BVH{mesh: mesh}
	if n > 0 {
		b.root = b.build(tris)
	}
	return b
}

func (b *BVH) triBounds(tri int32) aabb {
	v0, v1, v2 := b.mesh.TriVerts(tri)
	return emptyAABB().extend(v0).extend(v1).extend(v2)
}

func (b *BVH) build(tris []int32) *bvhNode {
	bounds := b.triBounds(tris[0])
	for _, t := range tris[1:] {
		bounds = bounds.union(b.triBounds(t))
	}

	if len(tris) <= bvhLeafThreshold {
		return &bvhNode{bounds: bounds, tris: tris}
	}

	// Median split along the longest axis of the centroid bounds
	axis := bounds.longestAxis()
	sort.Slice(tris, func(i, j int) bool {
		ci := b.triBounds(tris[i]).center()
		cj := b.triBounds(tris[j]).center()
		switch axis {
		case 0:
			return ci.X < cj.X
		case 1:
			return ci.Y < cj.Y
		default:
			return ci.Z < cj.Z
		}
	})

	mid := len(tris) / 2
	return &bvhNode{
		bounds: bounds,
		left:   b.build(tris[:mid]),
		right:  b.build(tris[mid:]),
	}
}

// SetAlphaTest installs an opacity filter; intersections it rejects are
// treated as pass-throughs by both traversal kinds
func (b *BVH) SetAlphaTest(fn func(tri int32, u, v float64) bool) {
	b.alphaTest = fn
}

// BlockSize returns the traversal batch granularity
func (b *BVH) BlockSize() int { return bvhBlockSize }

// TraverseClosest finds the closest hit for every ray in the buffer
func (b *BVH) TraverseClosest(rays []core.Ray, hits []core.Hit) {
	for i := range rays {
		hits[i] = b.closestHit(rays[i])
	}
}

// TraverseAnyHit stops at the first intersection for every ray; misses write
// the sentinel negative triangle id
func (b *BVH) TraverseAnyHit(rays []core.Ray, hits []core.Hit) {
	for i := range rays {
		hits[i] = b.anyHit(rays[i])
	}
}

func (b *BVH) closestHit(ray core.Ray) core.Hit {
	best := core.Miss()
	if b.root == nil || ray.IsInert() {
		return best
	}

	tMax := ray.Tmax
	var walk func(n *bvhNode)
	walk = func(n *bvhNode) {
		if !n.bounds.hit(ray, ray.Tmin, tMax) {
			return
		}
		if n.tris != nil {
			for _, tri := range n.tris {
				if t, u, v, ok := b.intersectTri(tri, ray, ray.Tmin, tMax); ok {
					best = core.Hit{TriID: tri, InstID: 0, U: u, V: v, T: t}
					tMax = t
				}
			}
			return
		}
		walk(n.left)
		walk(n.right)
	}
	walk(b.root)
	return best
}

func (b *BVH) anyHit(ray core.Ray) core.Hit {
	if b.root == nil || ray.IsInert() {
		return core.Miss()
	}

	var found core.Hit
	found = core.Miss()
	var walk func(n *bvhNode) bool
	walk = func(n *bvhNode) bool {
		if !n.bounds.hit(ray, ray.Tmin, ray.Tmax) {
			return false
		}
		if n.tris != nil {
			for _, tri := range n.tris {
				if t, u, v, ok := b.intersectTri(tri, ray, ray.Tmin, ray.Tmax); ok {
					found = core.Hit{TriID: tri, InstID: 0, U: u, V: v, T: t}
					return true
				}
			}
			return false
		}
		return walk(n.left) || walk(n.right)
	}
	walk(b.root)
	return found
}

// intersectTri runs the Moeller-Trumbore test against one triangle
func (b *BVH) intersectTri(tri int32, ray core.Ray, tMin, tMax float64) (t, u, v float64, ok bool) {
	v0, v1, v2 := b.mesh.TriVerts(tri)
	e1 := v1.Subtract(v0)
	e2 := v2.Subtract(v0)

	pvec := ray.Dir.Cross(e2)
	det := e1.Dot(pvec)
	if math.Abs(det) < 1e-12 {
		return 0, 0, 0, false // colinear or edge-on
	}
	invDet := 1.0 / det

	tvec := ray.Org.Subtract(v0)
	u = tvec.Dot(pvec) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	qvec := tvec.Cross(e1)
	v = ray.Dir.Dot(qvec) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	t = e2.Dot(qvec) * invDet
	if t < tMin || t > tMax {
		return 0, 0, 0, false
	}
	if b.alphaTest != nil && !b.alphaTest(tri, u, v) {
		return 0, 0, 0, false
	}
	return t, u, v, true
}
