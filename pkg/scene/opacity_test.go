package scene

import (
	"math"
	"testing"

	"github.com/microcompunics/imbatracer/pkg/core"
	"github.com/microcompunics/imbatracer/pkg/material"
)

func TestOpacityMaskMakesTrianglesPassThrough(t *testing.T) {
	build := func(opacity material.ScalarSource) *Scene {
		b := NewMeshBuilder()
		b.AddQuad(core.NewVec3(-1, -1, 0), core.NewVec3(2, 0, 0), core.NewVec3(0, 2, 0), 0)
		mat := material.NewDiffuse(core.NewVec3(0.5, 0.5, 0.5))
		mat.Opacity = opacity
		sc, err := NewScene(b.Mesh(), []*material.Material{mat})
		if err != nil {
			t.Fatal(err)
		}
		return sc
	}

	ray := core.NewRay(core.NewVec3(0, 0, 2), core.NewVec3(0, 0, -1), 1e-4, math.MaxFloat64)
	hits := make([]core.Hit, 1)

	// Fully transparent: both traversal kinds pass through
	transparent := build(material.NewSolidScalar(0))
	transparent.Traverser().TraverseClosest([]core.Ray{ray}, hits)
	if hits[0].TriID >= 0 {
		t.Error("closest hit on a fully transparent surface")
	}
	transparent.Traverser().TraverseAnyHit([]core.Ray{ray}, hits)
	if hits[0].TriID >= 0 {
		t.Error("any-hit on a fully transparent surface")
	}

	// Fully opaque: both find the surface
	opaque := build(material.NewSolidScalar(1))
	opaque.Traverser().TraverseClosest([]core.Ray{ray}, hits)
	if hits[0].TriID < 0 {
		t.Error("closest hit missed an opaque surface")
	}
	opaque.Traverser().TraverseAnyHit([]core.Ray{ray}, hits)
	if hits[0].TriID < 0 {
		t.Error("any-hit missed an opaque surface")
	}

	// No mask at all: the filter is not installed
	plain := build(nil)
	plain.Traverser().TraverseClosest([]core.Ray{ray}, hits)
	if hits[0].TriID < 0 {
		t.Error("closest hit missed an unmasked surface")
	}
}
