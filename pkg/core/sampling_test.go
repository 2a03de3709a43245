package core

import (
	"math"
	"testing"
)

func TestSampleCosineHemisphere(t *testing.T) {
	rng := NewRNG(BernsteinSeed(0, 0, 1))

	for i := 0; i < 10000; i++ {
		dir, pdf := SampleCosineHemisphere(rng.Random2D())
		if dir.Z < 0 {
			t.Fatalf("direction below hemisphere: %v", dir)
		}
		if math.Abs(dir.Length()-1) > 1e-9 {
			t.Fatalf("direction not normalized: %v", dir)
		}
		wantPdf := dir.Z / math.Pi
		if math.Abs(pdf-wantPdf) > 1e-9 {
			t.Fatalf("pdf mismatch: got %v want %v", pdf, wantPdf)
		}
	}
}

// The pdf of each hemisphere sampler must integrate to 1 over the hemisphere.
// Estimated with uniform hemisphere sampling: E[pdf(w)/p_uniform] = 1. The
// cos(theta) coordinate is stratified so the sharply peaked power-cosine pdfs
// stay within tolerance.
func TestHemispherePdfsIntegrateToOne(t *testing.T) {
	const n = 200000

	tests := []struct {
		name string
		pdf  func(Vec3) float64
	}{
		{"cosine", CosineHemispherePdf},
		{"power10", func(d Vec3) float64 { return PowerCosHemispherePdf(10, d) }},
		{"power80", func(d Vec3) float64 { return PowerCosHemispherePdf(80, d) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := NewRNG(BernsteinSeed(1, 2, 3))
			sum := 0.0
			for i := 0; i < n; i++ {
				u := NewVec2((float64(i)+rng.RandomFloat())/n, rng.RandomFloat())
				dir, puni := SampleUniformHemisphere(u)
				sum += tt.pdf(dir) / puni
			}
			integral := sum / n
			if math.Abs(integral-1) > 0.01 {
				t.Errorf("pdf integral = %v, want 1 within 1%%", integral)
			}
		})
	}
}

func TestSampleUniformSphere(t *testing.T) {
	rng := NewRNG(55)
	for i := 0; i < 10000; i++ {
		dir, pdf := SampleUniformSphere(rng.Random2D())
		if math.Abs(dir.Length()-1) > 1e-9 {
			t.Fatalf("direction not normalized: %v", dir)
		}
		if pdf != 1.0/(4.0*math.Pi) {
			t.Fatalf("unexpected pdf %v", pdf)
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	rng := NewRNG(99)
	for i := 0; i < 1000; i++ {
		n, _ := SampleUniformSphere(rng.Random2D())
		f := NewFrame(n)

		v, _ := SampleUniformSphere(rng.Random2D())
		back := f.ToWorld(f.ToLocal(v))
		if back.Subtract(v).Length() > 1e-9 {
			t.Fatalf("frame round trip failed: %v -> %v", v, back)
		}

		// The normal maps to +Z
		local := f.ToLocal(n)
		if math.Abs(local.Z-1) > 1e-9 || math.Abs(local.X) > 1e-9 || math.Abs(local.Y) > 1e-9 {
			t.Fatalf("normal not mapped to +Z: %v", local)
		}
	}
}

func TestSampleBarycentric(t *testing.T) {
	rng := NewRNG(7)
	for i := 0; i < 10000; i++ {
		b := SampleBarycentric(rng.Random2D())
		if b.X < 0 || b.Y < 0 || b.X+b.Y > 1+1e-12 {
			t.Fatalf("barycentric sample outside triangle: %v", b)
		}
	}
}
