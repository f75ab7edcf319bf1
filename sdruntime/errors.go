package sdruntime

import "errors"

// Sentinel errors for the diffusion runtime.
var (
	ErrModelNotFound   = errors.New("sdruntime: model file not found")
	ErrModelLoadFailed = errors.New("sdruntime: failed to load model")
	ErrModelCorrupted  = errors.New("sdruntime: model file is corrupted or invalid")

	ErrGenerationFailed  = errors.New("sdruntime: image generation failed")
	ErrGenerationTimeout = errors.New("sdruntime: image generation timed out")

	ErrInvalidPrompt = errors.New("sdruntime: invalid prompt")
	ErrInvalidParams = errors.New("sdruntime: invalid generation parameters")

	// Pipeline state errors
	ErrPipelineLoading   = errors.New("sdruntime: pipeline is loading a checkpoint")
	ErrPipelineNotLoaded = errors.New("sdruntime: no checkpoint loaded")
	ErrPipelineClosed    = errors.New("sdruntime: pipeline is closed")
	ErrReloadInProgress  = errors.New("sdruntime: reload already in progress")
	ErrAcquireTimeout    = errors.New("sdruntime: timeout waiting for the pipeline")
)
