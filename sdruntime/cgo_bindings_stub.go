//go:build !sd || stub

package sdruntime

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"os"
	"sync/atomic"
)

var stubContextCounter uint64

func loadModelImpl(modelPath, controlNetPath string) (*SDContext, error) {
	for _, path := range []string{modelPath, controlNetPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		} else if err != nil {
			return nil, fmt.Errorf("%w: unable to access %s: %v", ErrModelLoadFailed, path, err)
		}
	}

	return &SDContext{
		id:             atomic.AddUint64(&stubContextCounter, 1),
		modelPath:      modelPath,
		controlNetPath: controlNetPath,
		valid:          true,
	}, nil
}

// generateImageImpl paints a seeded two-color gradient and lightens it
// wherever the control image is bright, so the hands stay visible.
func generateImageImpl(ctx *SDContext, params GenerateParams) (*GenerateResult, error) {
	if !ctx.IsValid() {
		return nil, fmt.Errorf("%w: context is nil or invalid", ErrGenerationFailed)
	}

	rng := rand.New(rand.NewSource(params.Seed))
	from := randomColor(rng)
	to := randomColor(rng)
	angle := rng.Float64() * 2 * math.Pi
	dx, dy := math.Cos(angle), math.Sin(angle)

	w, h := params.Width, params.Height
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	norm := math.Abs(dx)*float64(w) + math.Abs(dy)*float64(h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			proj := (float64(x)*dx + float64(y)*dy)
			if dx < 0 {
				proj += -dx * float64(w)
			}
			if dy < 0 {
				proj += -dy * float64(h)
			}
			t := proj / norm

			c := params.Control.NRGBAAt(x, y)
			lum := (float64(c.R) + float64(c.G) + float64(c.B)) / (3 * 255)
			k := lum * math.Min(1, params.ControlStrength)

			out.SetNRGBA(x, y, color.NRGBA{
				R: mix(mix(from.R, to.R, t), 255, k),
				G: mix(mix(from.G, to.G, t), 255, k),
				B: mix(mix(from.B, to.B, t), 255, k),
				A: 255,
			})
		}
	}
	return &GenerateResult{Image: out, Seed: params.Seed}, nil
}

func randomColor(rng *rand.Rand) color.NRGBA {
	return color.NRGBA{R: uint8(rng.Intn(200)), G: uint8(rng.Intn(200)), B: uint8(rng.Intn(200)), A: 255}
}

func mix(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

func releaseCacheImpl(ctx *SDContext) {}

func freeContextImpl(ctx *SDContext) {
	if ctx == nil {
		return
	}
	ctx.valid = false
}

func getBackendInfoImpl() string {
	return "stub (procedural placeholder, no native runtime linked)"
}
