package sdruntime

import (
	"fmt"
	"image"

	"aiclock/core"
)

// GenerateParams is one ControlNet-conditioned generation request.
type GenerateParams struct {
	Prompt         string
	NegativePrompt string
	Width          int // 128-2048, divisible by 8
	Height         int // 128-2048, divisible by 8
	Steps          int
	GuidanceScale  float64
	// ControlStrength scales the ControlNet residuals (0 disables control).
	ControlStrength float64
	// ControlStart and ControlEnd bound the fraction of steps the control
	// image is applied for.
	ControlStart float64
	ControlEnd   float64
	Seed         int64

	// Control is the conditioning image, already Width x Height.
	Control *image.NRGBA
}

// Parameter bounds
const (
	MinImageSize      = core.MinRenderSize
	MaxImageSize      = core.MaxRenderSize
	ImageSizeMultiple = core.RenderSizeMultiple

	MinSteps = 1
	MaxSteps = 100

	MinGuidanceScale = 1.0
	MaxGuidanceScale = 30.0

	MaxControlStrength = 2.0

	MaxPromptLength = 1000
)

// ValidateParams reports the first invalid field as an ErrInvalidParams or
// ErrInvalidPrompt.
func ValidateParams(p GenerateParams) error {
	if err := ValidatePrompt(p.Prompt); err != nil {
		return err
	}
	if len(p.NegativePrompt) > MaxPromptLength {
		return fmt.Errorf("%w: negative prompt length %d exceeds maximum %d",
			ErrInvalidParams, len(p.NegativePrompt), MaxPromptLength)
	}
	if err := validateDimension("width", p.Width); err != nil {
		return err
	}
	if err := validateDimension("height", p.Height); err != nil {
		return err
	}
	if p.Steps < MinSteps || p.Steps > MaxSteps {
		return fmt.Errorf("%w: steps %d must be between %d and %d",
			ErrInvalidParams, p.Steps, MinSteps, MaxSteps)
	}
	if p.GuidanceScale < MinGuidanceScale || p.GuidanceScale > MaxGuidanceScale {
		return fmt.Errorf("%w: guidance scale %.2f must be between %.1f and %.1f",
			ErrInvalidParams, p.GuidanceScale, MinGuidanceScale, MaxGuidanceScale)
	}
	if p.ControlStrength < 0 || p.ControlStrength > MaxControlStrength {
		return fmt.Errorf("%w: control strength %.2f must be between 0 and %.1f",
			ErrInvalidParams, p.ControlStrength, MaxControlStrength)
	}
	if p.ControlStart < 0 || p.ControlEnd > 1 || p.ControlStart > p.ControlEnd {
		return fmt.Errorf("%w: control window [%.2f, %.2f] must satisfy 0 <= start <= end <= 1",
			ErrInvalidParams, p.ControlStart, p.ControlEnd)
	}
	if p.Control == nil {
		return fmt.Errorf("%w: control image is required", ErrInvalidParams)
	}
	if b := p.Control.Bounds(); b.Dx() != p.Width || b.Dy() != p.Height {
		return fmt.Errorf("%w: control image is %dx%d, want %dx%d",
			ErrInvalidParams, b.Dx(), b.Dy(), p.Width, p.Height)
	}
	return nil
}

func validateDimension(name string, v int) error {
	if v < MinImageSize || v > MaxImageSize {
		return fmt.Errorf("%w: %s %d must be between %d and %d",
			ErrInvalidParams, name, v, MinImageSize, MaxImageSize)
	}
	if v%ImageSizeMultiple != 0 {
		return fmt.Errorf("%w: %s %d must be divisible by %d",
			ErrInvalidParams, name, v, ImageSizeMultiple)
	}
	return nil
}
