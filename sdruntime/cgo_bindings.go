// Bindings to the native diffusion runtime.
//
// The real implementation links a small C shim around stable-diffusion.cpp
// that exposes ControlNet-conditioned txt2img (see cgo_bindings_sd.go).
// Without the "sd" tag a pure-Go stub is compiled instead, which renders a
// seeded placeholder so the rest of the clock can run without a GPU.
//
//	CGO_CFLAGS="-I${SD_SHIM}/include" \
//	CGO_LDFLAGS="-L${SD_SHIM}/build -laiclock_sd" \
//	go build -tags sd
package sdruntime

import "image"

// SDContext is an opaque handle to a loaded checkpoint + ControlNet pair.
type SDContext struct {
	id             uint64
	modelPath      string
	controlNetPath string
	valid          bool
}

// IsValid reports whether the context can still be used.
func (c *SDContext) IsValid() bool {
	return c != nil && c.valid
}

// ModelPath is the checkpoint this context was loaded from.
func (c *SDContext) ModelPath() string {
	if c == nil {
		return ""
	}
	return c.modelPath
}

// GenerateResult is a decoded generation.
type GenerateResult struct {
	Image *image.NRGBA
	Seed  int64
}

// LoadModel loads a checkpoint and, when controlNetPath is not empty, the
// ControlNet that conditions it. The context must be released with
// FreeContext.
func LoadModel(modelPath, controlNetPath string) (*SDContext, error) {
	return loadModelImpl(modelPath, controlNetPath)
}

// GenerateImage runs one generation. It blocks for the full sampling run
// and cannot be interrupted.
func GenerateImage(ctx *SDContext, params GenerateParams) (*GenerateResult, error) {
	if err := ValidateParams(params); err != nil {
		return nil, err
	}
	return generateImageImpl(ctx, params)
}

// ReleaseCache drops cached compute buffers held by ctx without unloading
// the weights. Safe on nil or invalid contexts.
func ReleaseCache(ctx *SDContext) {
	releaseCacheImpl(ctx)
}

// FreeContext unloads ctx. Safe to call twice.
func FreeContext(ctx *SDContext) {
	freeContextImpl(ctx)
}

// GetBackendInfo describes the compute backend in use.
func GetBackendInfo() string {
	return getBackendInfoImpl()
}
