package integrator

import (
	"math"
	"testing"

	"github.com/microcompunics/imbatracer/pkg/core"
	"github.com/microcompunics/imbatracer/pkg/lights"
	"github.com/microcompunics/imbatracer/pkg/material"
	"github.com/microcompunics/imbatracer/pkg/renderer"
	"github.com/microcompunics/imbatracer/pkg/scene"
)

// A Lambertian plane under a uniform distant light must converge to the
// analytic reflected radiance albedo/pi * E * cos(theta).
func TestLambertianUnderDistantLight(t *testing.T) {
	const size = 8
	albedo := core.NewVec3(1, 1, 1)
	radiance := core.NewVec3(2, 2, 2)

	b := scene.NewMeshBuilder()
	b.AddQuad(core.NewVec3(-50, 0, -50), core.NewVec3(0, 0, 100), core.NewVec3(100, 0, 0), 0)
	sc, err := scene.NewScene(b.Mesh(), []*material.Material{material.NewDiffuse(albedo)})
	if err != nil {
		t.Fatal(err)
	}

	// Light arriving 30 degrees off the plane normal
	theta := 30.0 * math.Pi / 180.0
	lightDir := core.NewVec3(math.Sin(theta), -math.Cos(theta), 0)
	sc.AddLight(lights.NewDirectionalLight(lightDir, radiance, sc.Bounds()))

	cam := scene.NewPerspectiveCamera(
		core.NewVec3(0, 5, 0),
		core.NewVec3(0, 0, 0),
		core.NewVec3(0, 0, 1),
		40, size, size,
	)

	v, err := NewPathTracer(Config{Width: size, Height: size, SamplesPerPixel: 16}, sc, cam)
	if err != nil {
		t.Fatal(err)
	}
	img := renderer.NewImage(size, size)
	if err := v.Render(img); err != nil {
		t.Fatal(err)
	}

	want := albedo.X / math.Pi * radiance.X * math.Cos(theta)
	got := img.At(size/2, size/2).X
	if math.Abs(got-want)/want > 0.01 {
		t.Errorf("reflected radiance = %v, want %v within 1%%", got, want)
	}
}
