// Package sdruntime runs ControlNet-conditioned Stable Diffusion for the
// clock background.
//
// Pipeline is the entry point. It satisfies the background updater's
// backend contract:
//
//	pipe := sdruntime.NewPipeline(sdruntime.PipelineConfigFrom(cfg), logger)
//	if err := pipe.Load(ctx); err != nil {
//	    return err
//	}
//	img, seed, err := pipe.Generate(ctx, controlImage, prompt)
//
// Checkpoint swaps go through Reload, which returns immediately and reports
// through callbacks. While a swap runs, IsLoading is true and Generate
// refuses work with ErrPipelineLoading.
//
// # Build tags
//
//   - default / stub: pure Go placeholder renderer, no native dependency
//   - sd (with cgo): links the aiclock_sd shim over stable-diffusion.cpp
//
// # Errors
//
// All errors wrap one of the package sentinels; test with errors.Is:
//
//	if errors.Is(err, sdruntime.ErrGenerationTimeout) {
//	    // the native call is still running and holds the pipeline
//	}
package sdruntime
