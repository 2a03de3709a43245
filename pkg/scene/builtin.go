package scene

import (
	"math"

	"github.com/microcompunics/imbatracer/pkg/core"
	"github.com/microcompunics/imbatracer/pkg/material"
)

// MeshBuilder accumulates triangles for the built-in test scenes
type MeshBuilder struct {
	mesh Mesh
}

// NewMeshBuilder creates an empty builder
func NewMeshBuilder() *MeshBuilder {
	return &MeshBuilder{}
}

// AddTriangle appends one triangle with a material id
func (b *MeshBuilder) AddTriangle(v0, v1, v2 core.Vec3, matID int32) {
	base := uint32(len(b.mesh.Verts))
	b.mesh.Verts = append(b.mesh.Verts, v0, v1, v2)
	b.mesh.Indices = append(b.mesh.Indices, base, base+1, base+2)
	b.mesh.MatIDs = append(b.mesh.MatIDs, matID)
}

// AddQuad appends a parallelogram spanned by corner + u + v as two triangles
func (b *MeshBuilder) AddQuad(corner, u, v core.Vec3, matID int32) {
	p0 := corner
	p1 := corner.Add(u)
	p2 := corner.Add(u).Add(v)
	p3 := corner.Add(v)
	b.AddTriangle(p0, p1, p2, matID)
	b.AddTriangle(p0, p2, p3, matID)
}

// AddSphere appends a latitude-longitude triangulation of a sphere
func (b *MeshBuilder) AddSphere(center core.Vec3, radius float64, segments int, matID int32) {
	point := func(lat, lon int) core.Vec3 {
		theta := math.Pi * float64(lat) / float64(segments)
		phi := 2 * math.Pi * float64(lon) / float64(segments)
		return center.Add(core.NewVec3(
			radius*math.Sin(theta)*math.Cos(phi),
			radius*math.Cos(theta),
			radius*math.Sin(theta)*math.Sin(phi),
		))
	}

	for lat := 0; lat < segments; lat++ {
		for lon := 0; lon < segments; lon++ {
			p00 := point(lat, lon)
			p01 := point(lat, lon+1)
			p10 := point(lat+1, lon)
			p11 := point(lat+1, lon+1)
			if lat > 0 {
				b.AddTriangle(p00, p11, p01, matID)
			}
			if lat < segments-1 {
				b.AddTriangle(p00, p10, p11, matID)
			}
		}
	}
}

// Mesh returns the accumulated mesh
func (b *MeshBuilder) Mesh() *Mesh {
	return &b.mesh
}

// CornellOption selects the object placed inside the Cornell box
type CornellOption int

const (
	CornellEmpty CornellOption = iota
	CornellMirrorSphere
	CornellGlassSphere
)

// NewCornellScene builds the classic Cornell box: red left wall, green right
// wall, white elsewhere, square area light on the ceiling. The box spans the
// unit cube.
func NewCornellScene(option CornellOption, width, height int) (*Scene, *PerspectiveCamera, error) {
	white := material.NewDiffuse(core.NewVec3(0.73, 0.73, 0.73))
	red := material.NewDiffuse(core.NewVec3(0.65, 0.05, 0.05))
	green := material.NewDiffuse(core.NewVec3(0.12, 0.45, 0.15))
	emitter := material.NewEmissive(core.NewVec3(15, 15, 15))
	// Aluminium-like conductor for the mirror sphere
	mirror := material.NewConductor(core.NewVec3(1, 1, 1),
		core.NewVec3(1.66, 0.88, 0.52), core.NewVec3(9.22, 6.27, 4.84))
	glass := material.NewGlass(core.NewVec3(1, 1, 1), 1.0, 1.5)

	materials := []*material.Material{white, red, green, emitter, mirror, glass}
	const (
		matWhite int32 = iota
		matRed
		matGreen
		matLight
		matMirror
		matGlass
	)

	b := NewMeshBuilder()

	// Walls wound so their normals face into the box. The front stays open
	// for the camera, like the classic setup.
	b.AddQuad(core.NewVec3(0, 0, 0), core.NewVec3(0, 0, 1), core.NewVec3(1, 0, 0), matWhite) // floor, +Y
	b.AddQuad(core.NewVec3(0, 1, 0), core.NewVec3(1, 0, 0), core.NewVec3(0, 0, 1), matWhite) // ceiling, -Y
	b.AddQuad(core.NewVec3(0, 0, 0), core.NewVec3(1, 0, 0), core.NewVec3(0, 1, 0), matWhite) // back wall, +Z
	b.AddQuad(core.NewVec3(0, 0, 0), core.NewVec3(0, 1, 0), core.NewVec3(0, 0, 1), matRed)   // left wall, +X
	b.AddQuad(core.NewVec3(1, 0, 0), core.NewVec3(0, 0, 1), core.NewVec3(0, 1, 0), matGreen) // right wall, -X

	// Square area light slightly below the ceiling, facing down
	b.AddQuad(core.NewVec3(0.35, 0.999, 0.35), core.NewVec3(0.3, 0, 0), core.NewVec3(0, 0, 0.3), matLight)

	switch option {
	case CornellMirrorSphere:
		b.AddSphere(core.NewVec3(0.5, 0.3, 0.5), 0.25, 24, matMirror)
	case CornellGlassSphere:
		b.AddSphere(core.NewVec3(0.5, 0.35, 0.5), 0.22, 24, matGlass)
	}

	sc, err := NewScene(b.Mesh(), materials)
	if err != nil {
		return nil, nil, err
	}

	cam := NewPerspectiveCamera(
		core.NewVec3(0.5, 0.5, 2.4),
		core.NewVec3(0.5, 0.5, 0.5),
		core.NewVec3(0, 1, 0),
		30, width, height,
	)
	return sc, cam, nil
}
