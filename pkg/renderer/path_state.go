package renderer

import "github.com/microcompunics/imbatracer/pkg/core"

// PathState is the per-ray payload carried through the wavefront. It holds
// everything a shade step needs to continue or terminate the path, including
// the partial MIS quantities propagated along the vertex chain.
type PathState struct {
	PixelID  int
	SampleID int
	RNG      core.RNG

	Throughput   core.Vec3
	PathLength   int
	ContinueProb float64 // survival probability of the last Russian roulette
	LastSpecular bool

	// Partial MIS quantities (vertex connection and merging)
	DVC  float64
	DVCM float64
	DVM  float64

	// IsFinite distinguishes light subpaths started on finite lights; it
	// controls the distance factor of the first dVCM completion.
	IsFinite bool

	// Ancestor indexes the previous cached vertex of a deferred path, or -1
	Ancestor int32
}

// NewPathState creates a state with unit throughput and survival
func NewPathState(pixelID, sampleID int, rng core.RNG) PathState {
	return PathState{
		PixelID:      pixelID,
		SampleID:     sampleID,
		RNG:          rng,
		Throughput:   core.NewVec3(1, 1, 1),
		PathLength:   1,
		ContinueProb: 1,
		Ancestor:     -1,
	}
}
