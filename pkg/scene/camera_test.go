package scene

import (
	"math"
	"testing"

	"github.com/microcompunics/imbatracer/pkg/core"
)

// GenerateRay followed by WorldToRaster must return the original raster
// position within half a pixel for any point along the ray.
func TestCameraRasterRoundTrip(t *testing.T) {
	cam := NewPerspectiveCamera(
		core.NewVec3(1, 2, 3),
		core.NewVec3(0, 0, 0),
		core.NewVec3(0, 1, 0),
		45, 512, 384,
	)

	rng := core.NewRNG(core.BernsteinSeed(0, 0, 7))
	for i := 0; i < 2000; i++ {
		x := rng.RandomFloat() * 512
		y := rng.RandomFloat() * 384
		ray := cam.GenerateRay(x, y)

		for _, dist := range []float64{0.5, 1, 10, 1000} {
			p := ray.At(dist)
			raster := cam.WorldToRaster(p)
			if math.Abs(raster.X-x) > 0.5 || math.Abs(raster.Y-y) > 0.5 {
				t.Fatalf("round trip (%v,%v) at t=%v gave (%v,%v)", x, y, dist, raster.X, raster.Y)
			}
		}
	}
}

func TestCameraRasterToID(t *testing.T) {
	cam := NewPerspectiveCamera(
		core.NewVec3(0, 0, 0), core.NewVec3(0, 0, -1), core.NewVec3(0, 1, 0),
		60, 100, 50,
	)

	tests := []struct {
		raster core.Vec2
		want   int
	}{
		{core.NewVec2(0.5, 0.5), 0},
		{core.NewVec2(99.5, 49.5), 49*100 + 99},
		{core.NewVec2(10.2, 3.7), 3*100 + 10},
		{core.NewVec2(-0.1, 5), -1},
		{core.NewVec2(100.1, 5), -1},
		{core.NewVec2(5, 50.01), -1},
	}

	for _, tt := range tests {
		if got := cam.RasterToID(tt.raster); got != tt.want {
			t.Errorf("RasterToID(%v) = %d, want %d", tt.raster, got, tt.want)
		}
	}
}

func TestCameraPointsBehindProjectOutside(t *testing.T) {
	cam := NewPerspectiveCamera(
		core.NewVec3(0, 0, 0), core.NewVec3(0, 0, -1), core.NewVec3(0, 1, 0),
		60, 100, 100,
	)

	behind := core.NewVec3(0, 0, 5)
	if id := cam.RasterToID(cam.WorldToRaster(behind)); id != -1 {
		t.Errorf("point behind camera mapped to pixel %d", id)
	}
}

// The direction pdf is the image-plane-to-solid-angle conversion: d^2/cos^3.
func TestCameraDirectionPdf(t *testing.T) {
	cam := NewPerspectiveCamera(
		core.NewVec3(0, 0, 0), core.NewVec3(0, 0, -1), core.NewVec3(0, 1, 0),
		90, 200, 200,
	)

	// Straight ahead: cos = 1, pdf = ipd^2
	ipd := cam.ImagePlaneDist()
	if got := cam.DirectionPdf(core.NewVec3(0, 0, -1)); math.Abs(got-ipd*ipd) > 1e-9 {
		t.Errorf("on-axis pdf = %v, want %v", got, ipd*ipd)
	}

	// Behind the camera: zero
	if got := cam.DirectionPdf(core.NewVec3(0, 0, 1)); got != 0 {
		t.Errorf("behind-camera pdf = %v, want 0", got)
	}

	ray := cam.GenerateRay(30, 170)
	cosTheta := ray.Dir.Dot(cam.Dir())
	want := (ipd / cosTheta) * (ipd / cosTheta) / cosTheta
	if got := cam.DirectionPdf(ray.Dir); math.Abs(got-want) > 1e-9*want {
		t.Errorf("off-axis pdf = %v, want %v", got, want)
	}
}
