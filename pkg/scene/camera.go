package scene

import (
	"math"

	"github.com/microcompunics/imbatracer/pkg/core"
)

// PerspectiveCamera generates primary rays and projects world points back to
// raster space. Raster coordinates are in pixels; by convention a pixel has
// unit area, which makes the direction pdf the image-plane-to-solid-angle
// conversion alone.
type PerspectiveCamera struct {
	pos     core.Vec3
	forward core.Vec3
	right   core.Vec3
	up      core.Vec3

	width, height  int
	imagePlaneDist float64 // distance to the image plane in pixel units
}

// NewPerspectiveCamera creates a camera from position, look-at point, up
// vector and a horizontal field of view in degrees
func NewPerspectiveCamera(pos, lookAt, up core.Vec3, fovDegrees float64, width, height int) *PerspectiveCamera {
	forward := lookAt.Subtract(pos).Normalize()
	right := forward.Cross(up.Normalize()).Normalize()
	trueUp := right.Cross(forward)

	fov := fovDegrees * math.Pi / 180.0
	ipd := (float64(width) / 2.0) / math.Tan(fov/2.0)

	return &PerspectiveCamera{
		pos:            pos,
		forward:        forward,
		right:          right,
		up:             trueUp,
		width:          width,
		height:         height,
		imagePlaneDist: ipd,
	}
}

// Pos returns the camera position
func (c *PerspectiveCamera) Pos() core.Vec3 { return c.pos }

// Dir returns the camera forward direction
func (c *PerspectiveCamera) Dir() core.Vec3 { return c.forward }

// Width returns the image width in pixels
func (c *PerspectiveCamera) Width() int { return c.width }

// Height returns the image height in pixels
func (c *PerspectiveCamera) Height() int { return c.height }

// ImagePlaneDist returns the distance to the image plane in pixel units
func (c *PerspectiveCamera) ImagePlaneDist() float64 { return c.imagePlaneDist }

// GenerateRay creates a primary ray through the raster position (x, y).
// Fractional coordinates address sub-pixel positions.
func (c *PerspectiveCamera) GenerateRay(x, y float64) core.Ray {
	dir := c.forward.Multiply(c.imagePlaneDist).
		Add(c.right.Multiply(x - float64(c.width)/2.0)).
		Add(c.up.Multiply(float64(c.height)/2.0 - y)).
		Normalize()

	return core.NewRay(c.pos, dir, 0, math.MaxFloat64)
}

// WorldToRaster projects a world-space point onto the image plane. Points
// behind the camera project to negative depth and land outside the raster.
func (c *PerspectiveCamera) WorldToRaster(p core.Vec3) core.Vec2 {
	local := p.Subtract(c.pos)
	depth := local.Dot(c.forward)
	if depth <= 0 {
		return core.NewVec2(-1, -1)
	}

	scale := c.imagePlaneDist / depth
	x := local.Dot(c.right)*scale + float64(c.width)/2.0
	y := float64(c.height)/2.0 - local.Dot(c.up)*scale
	return core.NewVec2(x, y)
}

// RasterToID maps a raster position to a pixel index, or -1 when the position
// is outside the image plane
func (c *PerspectiveCamera) RasterToID(raster core.Vec2) int {
	x := int(math.Floor(raster.X))
	y := int(math.Floor(raster.Y))
	if x < 0 || x >= c.width || y < 0 || y >= c.height {
		return -1
	}
	return y*c.width + x
}

// DirectionPdf returns the solid-angle pdf of generating a camera ray in the
// given direction. The pdf on the image plane is one per pixel by convention.
func (c *PerspectiveCamera) DirectionPdf(dir core.Vec3) float64 {
	cosTheta := dir.Dot(c.forward)
	if cosTheta <= 0 {
		return 0
	}
	d := c.imagePlaneDist / cosTheta
	return d * d / cosTheta
}
