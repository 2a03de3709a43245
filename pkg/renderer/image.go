package renderer

import (
	"image"
	"image/color"
	"math"
	"sync/atomic"

	"github.com/microcompunics/imbatracer/pkg/core"
)

// Image is a linear RGB float accumulation buffer. Pixel updates are additive
// and commutative; Add uses compare-and-swap loops over the float bits so any
// number of workers can splat concurrently.
type Image struct {
	width, height int
	pixels        []uint64 // 3 channels per pixel, float64 bits
}

// NewImage creates a zeroed buffer
func NewImage(width, height int) *Image {
	return &Image{
		width:  width,
		height: height,
		pixels: make([]uint64, width*height*3),
	}
}

// Width returns the image width
func (img *Image) Width() int { return img.width }

// Height returns the image height
func (img *Image) Height() int { return img.height }

// PixelCount returns width * height
func (img *Image) PixelCount() int { return img.width * img.height }

// Clear zeroes all pixels
func (img *Image) Clear() {
	for i := range img.pixels {
		atomic.StoreUint64(&img.pixels[i], 0)
	}
}

func (img *Image) addChannel(i int, v float64) {
	if v == 0 {
		return
	}
	for {
		old := atomic.LoadUint64(&img.pixels[i])
		next := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(&img.pixels[i], old, next) {
			return
		}
	}
}

// AddPixel atomically accumulates a contribution into a pixel
func (img *Image) AddPixel(id int, c core.Vec3) {
	i := id * 3
	img.addChannel(i, c.X)
	img.addChannel(i+1, c.Y)
	img.addChannel(i+2, c.Z)
}

// Pixel returns the accumulated value of a pixel
func (img *Image) Pixel(id int) core.Vec3 {
	i := id * 3
	return core.NewVec3(
		math.Float64frombits(atomic.LoadUint64(&img.pixels[i])),
		math.Float64frombits(atomic.LoadUint64(&img.pixels[i+1])),
		math.Float64frombits(atomic.LoadUint64(&img.pixels[i+2])),
	)
}

// At returns the accumulated value at pixel coordinates
func (img *Image) At(x, y int) core.Vec3 {
	return img.Pixel(y*img.width + x)
}

// AddImage accumulates another buffer of the same size into this one
func (img *Image) AddImage(other *Image) {
	for id := 0; id < img.PixelCount(); id++ {
		img.AddPixel(id, other.Pixel(id))
	}
}

// ToNRGBA converts the buffer to a display image. Pixels are scaled (by the
// inverse iteration count), gamma corrected and clamped; that division is the
// caller's choice, the buffer itself stays linear.
func (img *Image) ToNRGBA(scale float64) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.width, img.height))
	for y := 0; y < img.height; y++ {
		for x := 0; x < img.width; x++ {
			c := img.At(x, y).Multiply(scale).Clamp(0, 1)
			out.SetNRGBA(x, y, color.NRGBA{
				R: uint8(math.Pow(c.X, 1/2.2)*255 + 0.5),
				G: uint8(math.Pow(c.Y, 1/2.2)*255 + 0.5),
				B: uint8(math.Pow(c.Z, 1/2.2)*255 + 0.5),
				A: 255,
			})
		}
	}
	return out
}
