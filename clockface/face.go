// Package clockface draws the clock: the grayscale control image the
// diffusion model is conditioned on, and the translucent overlay drawn on
// top of the generated background.
package clockface

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"aiclock/core"
	"aiclock/palette"
)

// Display modes decide where hour markers are drawn.
const (
	ModeRenderOnly = "render_only"
	ModeScreenOnly = "screen_only"
	ModeBoth       = "both"
)

const (
	centerDotRadius = 10
	circleSegments  = 96
	numberInset     = 10
)

var white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Face renders clock images. It is safe for concurrent use.
type Face struct {
	clock     core.ClockConfig
	gray      int
	variation float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFace creates a face for the given geometry. rng drives the background
// gray variation; nil seeds one from the clock.
func NewFace(clock core.ClockConfig, render core.RenderConfig, rng *rand.Rand) *Face {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Face{clock: clock, gray: render.BackgroundGray, variation: render.DarknessVariation, rng: rng}
}

// geometry is the clock layout for one canvas size.
type geometry struct {
	cx, cy float64
	radius float64
	scale  float64 // hand length multiplier
}

func (f *Face) layout(w, h int) geometry {
	size := min(w, h)
	g := geometry{
		cx:     float64(w) / 2,
		cy:     float64(h) / 2,
		radius: float64(size/2 - f.clock.RadiusMargin),
		scale:  1,
	}
	if f.clock.UseNumbers {
		g.scale = 1 - f.clock.NumberedHandReduction
	}
	return g
}

// RenderHands draws the control image for t: white hour and minute hands on
// a gray background, plus hour markers unless the display mode is
// screen_only. The gray varies randomly on each call.
func (f *Face) RenderHands(w, h int, t time.Time) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	g := f.layout(w, h)

	v := uint8(f.backgroundGray())
	bg := color.NRGBA{R: v, G: v, B: v, A: 255}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = bg.R, bg.G, bg.B, bg.A
	}

	if f.clock.DisplayMode == ModeRenderOnly || f.clock.DisplayMode == ModeBoth {
		f.drawMarkers(img, g, white)
	}

	hours := float64(t.Hour()%12) + float64(t.Minute())/60
	f.drawHand(img, g, hours*30, f.clock.HourHandLengthRatio, f.clock.HourHandWidth, white)
	f.drawHand(img, g, float64(t.Minute())*6, f.clock.MinuteHandLengthRatio, f.clock.MinuteHandWidth, white)
	fillCircle(img, g.cx, g.cy, centerDotRadius, white)
	return img
}

// DrawOverlay draws the on-screen layer onto dst: the outer ring and hour
// markers (unless the display mode is render_only) at the configured
// opacity, and the second hand in accent.
func (f *Face) DrawOverlay(dst *image.NRGBA, t time.Time, accent palette.Color) {
	b := dst.Bounds()
	g := f.layout(b.Dx(), b.Dy())

	if f.clock.DisplayMode == ModeScreenOnly || f.clock.DisplayMode == ModeBoth {
		translucent := color.NRGBA{R: 255, G: 255, B: 255, A: uint8(f.clock.OverlayOpacity)}
		strokeCircle(dst, g.cx, g.cy, g.radius, float64(f.clock.MarkerWidth), translucent)
		f.drawMarkers(dst, g, translucent)
	}

	seconds := float64(t.Second()) + float64(t.Nanosecond())/1e9
	f.drawHand(dst, g, seconds*6, f.clock.SecondHandLengthRatio, f.clock.SecondHandWidth, accent.NRGBA())
}

func (f *Face) backgroundGray() int {
	f.mu.Lock()
	factor := 1 + (f.rng.Float64()*2-1)*f.variation
	f.mu.Unlock()
	return max(0, min(255, int(float64(f.gray)*factor)))
}

// drawHand draws a tapered hand from the center at degrees clockwise from
// twelve o'clock.
func (f *Face) drawHand(dst *image.NRGBA, g geometry, degrees, ratio float64, width core.HandWidth, c color.Color) {
	angle := (degrees - 90) * math.Pi / 180
	length := g.radius * ratio * g.scale
	ex := g.cx + length*math.Cos(angle)
	ey := g.cy + length*math.Sin(angle)
	fillTaper(dst, g.cx, g.cy, ex, ey, width.Base, width.Tip, c)
}

func (f *Face) drawMarkers(dst *image.NRGBA, g geometry, c color.NRGBA) {
	for hour := 0; hour < 12; hour++ {
		angle := (float64(hour)*30 - 90) * math.Pi / 180
		cos, sin := math.Cos(angle), math.Sin(angle)

		if f.clock.UseNumbers {
			r := g.radius - float64(f.clock.MarkerLength) - numberInset
			label := 12
			if hour != 0 {
				label = hour
			}
			drawLabel(dst, g.cx+r*cos, g.cy+r*sin, strconv.Itoa(label), c)
			continue
		}

		inner := g.radius - float64(f.clock.MarkerLength)
		w := float64(f.clock.MarkerWidth)
		fillTaper(dst, g.cx+inner*cos, g.cy+inner*sin, g.cx+g.radius*cos, g.cy+g.radius*sin, w, w, c)
	}
}

// fillTaper fills the quadrilateral around the segment (x0,y0)-(x1,y1)
// that is w0 wide at the start and w1 wide at the end.
func fillTaper(dst *image.NRGBA, x0, y0, x1, y1, w0, w1 float64, c color.Color) {
	dx, dy := x1-x0, y1-y0
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l, dx/l

	z := newRasterizer(dst)
	z.MoveTo(float32(x0+nx*w0/2), float32(y0+ny*w0/2))
	z.LineTo(float32(x1+nx*w1/2), float32(y1+ny*w1/2))
	z.LineTo(float32(x1-nx*w1/2), float32(y1-ny*w1/2))
	z.LineTo(float32(x0-nx*w0/2), float32(y0-ny*w0/2))
	z.ClosePath()
	drawRasterizer(z, dst, c)
}

func fillCircle(dst *image.NRGBA, cx, cy, r float64, c color.Color) {
	z := newRasterizer(dst)
	circlePath(z, cx, cy, r, false)
	drawRasterizer(z, dst, c)
}

// strokeCircle draws a ring of the given width centered on radius r. The
// inner path winds the other way to cut out the middle.
func strokeCircle(dst *image.NRGBA, cx, cy, r, width float64, c color.Color) {
	z := newRasterizer(dst)
	circlePath(z, cx, cy, r+width/2, false)
	circlePath(z, cx, cy, math.Max(0, r-width/2), true)
	drawRasterizer(z, dst, c)
}

func circlePath(z *vector.Rasterizer, cx, cy, r float64, reverse bool) {
	for i := 0; i <= circleSegments; i++ {
		a := 2 * math.Pi * float64(i) / circleSegments
		if reverse {
			a = -a
		}
		x, y := float32(cx+r*math.Cos(a)), float32(cy+r*math.Sin(a))
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
}

func newRasterizer(dst *image.NRGBA) *vector.Rasterizer {
	b := dst.Bounds()
	return vector.NewRasterizer(b.Dx(), b.Dy())
}

func drawRasterizer(z *vector.Rasterizer, dst *image.NRGBA, c color.Color) {
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

// drawLabel centers s on (x, y) in the built-in bitmap font.
func drawLabel(dst *image.NRGBA, x, y float64, s string, c color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, s).Ceil()
	m := face.Metrics()
	ascent := m.Ascent.Ceil()
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(int(math.Round(x))-width/2, int(math.Round(y))+ascent/2),
	}
	d.DrawString(s)
}
