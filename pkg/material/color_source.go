package material

import (
	"fmt"
	"image"
	"io"
	"math"

	// Register the texture formats the loaders hand us.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/microcompunics/imbatracer/pkg/core"
)

// ColorSource provides a colour for a surface point, either solid or sampled
// from a texture
type ColorSource interface {
	Evaluate(uv core.Vec2, pos core.Vec3) core.Vec3
}

// ScalarSource provides a single-channel value, used for opacity masks and
// mixture coefficients
type ScalarSource interface {
	Evaluate(uv core.Vec2, pos core.Vec3) float64
}

// SolidColor is a constant colour source
type SolidColor struct {
	Color core.Vec3
}

// NewSolidColor creates a solid colour source
func NewSolidColor(color core.Vec3) *SolidColor {
	return &SolidColor{Color: color}
}

// Evaluate returns the solid colour
func (s *SolidColor) Evaluate(uv core.Vec2, pos core.Vec3) core.Vec3 {
	return s.Color
}

// SolidScalar is a constant scalar source
type SolidScalar struct {
	Value float64
}

// NewSolidScalar creates a constant scalar source
func NewSolidScalar(v float64) *SolidScalar {
	return &SolidScalar{Value: v}
}

// Evaluate returns the constant value
func (s *SolidScalar) Evaluate(uv core.Vec2, pos core.Vec3) float64 {
	return s.Value
}

// FilterMode selects the texture lookup filter
type FilterMode int

const (
	FilterNearest FilterMode = iota
	FilterBilinear
)

// ImageTexture samples a decoded 2-D image. Pixel data is stored as linear
// RGB float triples.
type ImageTexture struct {
	width, height int
	pixels        []core.Vec3
	Filter        FilterMode
}

// DecodeTexture reads any registered image format (png, jpeg, tiff, bmp) into
// a texture
func DecodeTexture(r io.Reader, filter FilterMode) (*ImageTexture, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("texture: decoding image: %w", err)
	}

	bounds := src.Bounds()
	rgba := image.NewNRGBA(bounds)
	draw.Draw(rgba, bounds, src, bounds.Min, draw.Src)

	tex := &ImageTexture{
		width:  bounds.Dx(),
		height: bounds.Dy(),
		pixels: make([]core.Vec3, bounds.Dx()*bounds.Dy()),
		Filter: filter,
	}
	for y := 0; y < tex.height; y++ {
		for x := 0; x < tex.width; x++ {
			i := rgba.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			tex.pixels[y*tex.width+x] = core.NewVec3(
				srgbToLinear(float64(rgba.Pix[i])/255.0),
				srgbToLinear(float64(rgba.Pix[i+1])/255.0),
				srgbToLinear(float64(rgba.Pix[i+2])/255.0),
			)
		}
	}
	return tex, nil
}

// NewImageTexture wraps raw linear RGB float data
func NewImageTexture(width, height int, pixels []core.Vec3, filter FilterMode) *ImageTexture {
	return &ImageTexture{width: width, height: height, pixels: pixels, Filter: filter}
}

func srgbToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func (t *ImageTexture) texel(x, y int) core.Vec3 {
	// Wrap coordinates
	x = ((x % t.width) + t.width) % t.width
	y = ((y % t.height) + t.height) % t.height
	return t.pixels[y*t.width+x]
}

// Evaluate samples the texture at a UV coordinate
func (t *ImageTexture) Evaluate(uv core.Vec2, pos core.Vec3) core.Vec3 {
	fx := uv.X * float64(t.width)
	fy := (1 - uv.Y) * float64(t.height)

	if t.Filter == FilterNearest {
		return t.texel(int(math.Floor(fx)), int(math.Floor(fy)))
	}

	fx -= 0.5
	fy -= 0.5
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	dx, dy := fx-float64(x0), fy-float64(y0)

	top := t.texel(x0, y0).Lerp(t.texel(x0+1, y0), dx)
	bottom := t.texel(x0, y0+1).Lerp(t.texel(x0+1, y0+1), dx)
	return top.Lerp(bottom, dy)
}

// OpacityMask samples a single channel of a texture for alpha testing
type OpacityMask struct {
	Texture ColorSource
}

// NewOpacityMask wraps a texture as a scalar mask
func NewOpacityMask(tex ColorSource) *OpacityMask {
	return &OpacityMask{Texture: tex}
}

// Evaluate returns the mask value at a UV coordinate
func (o *OpacityMask) Evaluate(uv core.Vec2, pos core.Vec3) float64 {
	return o.Texture.Evaluate(uv, pos).X
}
