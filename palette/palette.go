// Package palette derives the clock's accent color from generated
// backgrounds and blends between successive accents.
package palette

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// MaxSampleEdge is the longest edge an image is reduced to before scanning.
const MaxSampleEdge = 100

// Color is a non-premultiplied RGBA accent color.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// White is the accent used before any background has been generated.
func White(alpha uint8) Color {
	return Color{R: 255, G: 255, B: 255, A: alpha}
}

// NRGBA converts c for use with image/draw.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	return c.NRGBA().RGBA()
}

func (c Color) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", c.R, c.G, c.B, c.A)
}

// DominantColor returns the brightest pixel of img, by plain channel sum,
// with its alpha replaced by alpha. Images larger than MaxSampleEdge are
// downsampled first. Ties go to the first pixel in row-major order.
// ok is false for an empty image.
func DominantColor(img image.Image, alpha uint8) (c Color, ok bool) {
	if img == nil || img.Bounds().Empty() {
		return Color{}, false
	}
	sample := downsample(img, MaxSampleEdge)
	b := sample.Bounds()

	best := -1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := color.NRGBAModel.Convert(sample.At(x, y)).(color.NRGBA)
			if sum := int(p.R) + int(p.G) + int(p.B); sum > best {
				best = sum
				c = Color{R: p.R, G: p.G, B: p.B, A: alpha}
			}
		}
	}
	return c, true
}

// downsample fits img inside a maxEdge square, keeping aspect ratio. Small
// images are returned as-is so their pixels are scanned exactly.
func downsample(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxEdge && h <= maxEdge {
		return img
	}

	scale := float64(maxEdge) / float64(max(w, h))
	dw := max(1, int(math.Round(float64(w)*scale)))
	dh := max(1, int(math.Round(float64(h)*scale)))

	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Lerp blends every channel of a toward b by t, rounding to the nearest
// integer. t outside [0,1] is clamped.
func Lerp(a, b Color, t float64) Color {
	t = Clamp01(t)
	return Color{
		R: lerpChannel(a.R, b.R, t),
		G: lerpChannel(a.G, b.G, t),
		B: lerpChannel(a.B, b.B, t),
		A: lerpChannel(a.A, b.A, t),
	}
}

// Interpolate is Lerp with optional endpoints: when one side is nil the
// other is returned unchanged. ok is false only when both are nil.
func Interpolate(a, b *Color, t float64) (c Color, ok bool) {
	switch {
	case a == nil && b == nil:
		return Color{}, false
	case a == nil:
		return *b, true
	case b == nil:
		return *a, true
	}
	return Lerp(*a, *b, t), true
}

// Clamp01 clamps t into [0,1]. NaN becomes 0.
func Clamp01(t float64) float64 {
	if t > 1 {
		return 1
	}
	if t > 0 {
		return t
	}
	return 0
}

func lerpChannel(a, b uint8, t float64) uint8 {
	v := float64(a) + (float64(b)-float64(a))*t
	return uint8(math.Round(v))
}
