package scene

import (
	"fmt"
	"math"

	"github.com/microcompunics/imbatracer/pkg/core"
	"github.com/microcompunics/imbatracer/pkg/lights"
	"github.com/microcompunics/imbatracer/pkg/material"
)

// Mesh is the triangle soup the core renders: a vertex array, an index array
// and a per-triangle material id, with optional per-vertex attributes.
type Mesh struct {
	Verts   []core.Vec3
	Indices []uint32
	MatIDs  []int32

	// Optional per-vertex attributes, parallel to Verts
	UVs     []core.Vec2
	Normals []core.Vec3
}

// TriangleCount returns the number of triangles
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// TriVerts returns the three corners of a triangle
func (m *Mesh) TriVerts(tri int32) (core.Vec3, core.Vec3, core.Vec3) {
	i := tri * 3
	return m.Verts[m.Indices[i]], m.Verts[m.Indices[i+1]], m.Verts[m.Indices[i+2]]
}

// GeomNormal returns the unnormalized geometric normal of a triangle; its
// length is twice the triangle area
func (m *Mesh) GeomNormal(tri int32) core.Vec3 {
	v0, v1, v2 := m.TriVerts(tri)
	return v1.Subtract(v0).Cross(v2.Subtract(v0))
}

// ComputeNormals fills per-vertex normals as area-weighted averages of the
// adjacent face normals. Called by loaders when the input carries none.
func (m *Mesh) ComputeNormals() {
	m.Normals = make([]core.Vec3, len(m.Verts))
	for tri := int32(0); tri < int32(m.TriangleCount()); tri++ {
		// The cross product is proportional to the face area, which gives
		// the area weighting for free.
		n := m.GeomNormal(tri)
		for k := 0; k < 3; k++ {
			idx := m.Indices[tri*3+int32(k)]
			m.Normals[idx] = m.Normals[idx].Add(n)
		}
	}
	for i := range m.Normals {
		m.Normals[i] = m.Normals[i].Normalize()
	}
}

// Traverser is the acceleration-structure interface the core consumes. How
// the structure is built is outside the core.
//
// Both calls fill the hit buffer in parallel with the ray buffer. Callers
// must pad the ray buffer to a multiple of BlockSize with inert rays.
type Traverser interface {
	BlockSize() int

	// TraverseClosest finds the closest hit for every ray
	TraverseClosest(rays []core.Ray, hits []core.Hit)

	// TraverseAnyHit stops at the first hit; a miss writes the sentinel
	// negative triangle id
	TraverseAnyHit(rays []core.Ray, hits []core.Hit)
}

// Scene is the read-only view the rendering core works against.
type Scene struct {
	Mesh      *Mesh
	Materials []*material.Material
	Lights    []lights.Light
	Env       *lights.EnvironmentLight

	traverser  Traverser
	lightOfTri map[int32]lights.Light

	sphere lights.SceneSphere
}

// NewScene assembles a scene view. Normals are recomputed when the mesh
// carries none.
func NewScene(mesh *Mesh, materials []*material.Material) (*Scene, error) {
	if mesh.TriangleCount() == 0 {
		return nil, fmt.Errorf("scene: mesh has no triangles")
	}
	if len(mesh.MatIDs) != mesh.TriangleCount() {
		return nil, fmt.Errorf("scene: %d material ids for %d triangles", len(mesh.MatIDs), mesh.TriangleCount())
	}
	for _, id := range mesh.MatIDs {
		if int(id) >= len(materials) || id < 0 {
			return nil, fmt.Errorf("scene: material id %d out of range", id)
		}
	}

	if mesh.Normals == nil {
		mesh.ComputeNormals()
	}

	s := &Scene{
		Mesh:       mesh,
		Materials:  materials,
		lightOfTri: make(map[int32]lights.Light),
	}
	s.computeBounds()
	s.buildLights()

	bvh := NewBVH(mesh)
	if filter := s.opacityFilter(); filter != nil {
		bvh.SetAlphaTest(filter)
	}
	s.traverser = bvh
	return s, nil
}

// opacityFilter builds the traversal alpha test when any material carries an
// opacity mask, or returns nil
func (s *Scene) opacityFilter() func(tri int32, u, v float64) bool {
	masked := false
	for _, m := range s.Materials {
		if m.Opacity != nil {
			masked = true
			break
		}
	}
	if !masked {
		return nil
	}

	return func(tri int32, u, v float64) bool {
		mat := s.Materials[s.Mesh.MatIDs[tri]]
		if mat.Opacity == nil {
			return true
		}
		var uv core.Vec2
		if s.Mesh.UVs != nil {
			i := tri * 3
			i0, i1, i2 := s.Mesh.Indices[i], s.Mesh.Indices[i+1], s.Mesh.Indices[i+2]
			w := 1 - u - v
			uv = core.NewVec2(
				w*s.Mesh.UVs[i0].X+u*s.Mesh.UVs[i1].X+v*s.Mesh.UVs[i2].X,
				w*s.Mesh.UVs[i0].Y+u*s.Mesh.UVs[i1].Y+v*s.Mesh.UVs[i2].Y,
			)
		}
		return mat.Opacity.Evaluate(uv, core.Vec3{}) >= 0.5
	}
}

func (s *Scene) computeBounds() {
	lo := core.NewVec3(math.MaxFloat64, math.MaxFloat64, math.MaxFloat64)
	hi := lo.Negate()
	for _, v := range s.Mesh.Verts {
		lo = core.NewVec3(min(lo.X, v.X), min(lo.Y, v.Y), min(lo.Z, v.Z))
		hi = core.NewVec3(max(hi.X, v.X), max(hi.Y, v.Y), max(hi.Z, v.Z))
	}
	center := lo.Add(hi).Multiply(0.5)
	radius := hi.Subtract(center).Length()
	if radius <= 0 {
		radius = 1
	}
	s.sphere = lights.SceneSphere{Center: center, Radius: radius}
}

// buildLights creates an area light for every triangle with an emissive
// material
func (s *Scene) buildLights() {
	for tri := int32(0); tri < int32(s.Mesh.TriangleCount()); tri++ {
		mat := s.Materials[s.Mesh.MatIDs[tri]]
		if !mat.IsEmissive() {
			continue
		}
		v0, v1, v2 := s.Mesh.TriVerts(tri)
		l := lights.NewAreaLight(v0, v1, v2, mat.Emission)
		s.Lights = append(s.Lights, l)
		s.lightOfTri[tri] = l
	}
}

// SetEnvironment attaches an environment light; it joins the light table
func (s *Scene) SetEnvironment(env *lights.EnvironmentLight) {
	s.Env = env
	s.Lights = append(s.Lights, env)
}

// AddLight appends a non-geometry light (point or directional)
func (s *Scene) AddLight(l lights.Light) {
	s.Lights = append(s.Lights, l)
}

// Bounds returns the scene bounding sphere
func (s *Scene) Bounds() lights.SceneSphere { return s.sphere }

// Traverser returns the acceleration structure handle
func (s *Scene) Traverser() Traverser { return s.traverser }

// SetTraverser overrides the acceleration structure, used by tests
func (s *Scene) SetTraverser(t Traverser) { s.traverser = t }

// MaterialFor returns the material at a hit
func (s *Scene) MaterialFor(hit core.Hit) *material.Material {
	return s.Materials[s.Mesh.MatIDs[hit.TriID]]
}

// LightForTri returns the area light tied to a triangle, or nil
func (s *Scene) LightForTri(tri int32) lights.Light {
	return s.lightOfTri[tri]
}

// LightCount returns the number of lights
func (s *Scene) LightCount() int { return len(s.Lights) }

// CalculateIntersection resolves a hit record into a world-space surface
// interaction
func (s *Scene) CalculateIntersection(hit core.Hit, ray core.Ray) core.Intersection {
	tri := hit.TriID
	i := tri * 3
	i0, i1, i2 := s.Mesh.Indices[i], s.Mesh.Indices[i+1], s.Mesh.Indices[i+2]

	w := 1 - hit.U - hit.V

	pos := ray.At(hit.T)

	geom := s.Mesh.GeomNormal(tri)
	area := geom.Length() * 0.5
	geomN := geom.Normalize()

	var shadingN core.Vec3
	if s.Mesh.Normals != nil {
		shadingN = s.Mesh.Normals[i0].Multiply(w).
			Add(s.Mesh.Normals[i1].Multiply(hit.U)).
			Add(s.Mesh.Normals[i2].Multiply(hit.V)).
			Normalize()
	} else {
		shadingN = geomN
	}

	var uv core.Vec2
	if s.Mesh.UVs != nil {
		uv = core.NewVec2(
			w*s.Mesh.UVs[i0].X+hit.U*s.Mesh.UVs[i1].X+hit.V*s.Mesh.UVs[i2].X,
			w*s.Mesh.UVs[i0].Y+hit.U*s.Mesh.UVs[i1].Y+hit.V*s.Mesh.UVs[i2].Y,
		)
	}

	return core.Intersection{
		Pos:        pos,
		OutDir:     ray.Dir.Negate(),
		Distance:   hit.T,
		Normal:     shadingN,
		GeomNormal: geomN,
		UV:         uv,
		Area:       area,
		MatID:      s.Mesh.MatIDs[tri],
	}
}
