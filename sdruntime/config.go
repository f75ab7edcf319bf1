package sdruntime

import (
	"image"
	"time"

	"aiclock/core"
)

// PipelineConfig is everything the pipeline needs to load and sample.
type PipelineConfig struct {
	Checkpoint       string
	CheckpointSHA256 string
	ControlNet       string

	Width          int
	Height         int
	NegativePrompt string
	Generation     core.GenerationSettings

	// ReloadAcquireTimeout bounds how long a reload waits for an in-flight
	// generation before giving up and keeping the current checkpoint.
	ReloadAcquireTimeout time.Duration
}

// DefaultReloadAcquireTimeout is used when PipelineConfig leaves it zero.
const DefaultReloadAcquireTimeout = 5 * time.Minute

// PipelineConfigFrom extracts the render settings from the resolved config.
func PipelineConfigFrom(cfg *core.Config) PipelineConfig {
	return PipelineConfig{
		Checkpoint:           cfg.Render.Checkpoint,
		CheckpointSHA256:     cfg.Render.CheckpointSHA256,
		ControlNet:           cfg.Render.ControlNet,
		Width:                cfg.Render.Width,
		Height:               cfg.Render.Height,
		NegativePrompt:       cfg.Prompts.NegativePrompt,
		Generation:           cfg.Render.Generation,
		ReloadAcquireTimeout: DefaultReloadAcquireTimeout,
	}
}

// params builds a request for prompt with the configured sampler settings.
func (c PipelineConfig) params(prompt string, control *image.NRGBA, seed int64) GenerateParams {
	return GenerateParams{
		Prompt:          prompt,
		NegativePrompt:  c.NegativePrompt,
		Width:           c.Width,
		Height:          c.Height,
		Steps:           c.Generation.Steps,
		GuidanceScale:   c.Generation.GuidanceScale,
		ControlStrength: c.Generation.ControlNetConditioningScale,
		ControlStart:    c.Generation.ControlGuidanceStart,
		ControlEnd:      c.Generation.ControlGuidanceEnd,
		Seed:            seed,
		Control:         control,
	}
}
