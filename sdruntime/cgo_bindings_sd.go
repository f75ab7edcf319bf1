//go:build sd && cgo && !stub

package sdruntime

/*
#cgo LDFLAGS: -laiclock_sd

#include <stdlib.h>
#include <stdint.h>

// aiclock_sd.h is the shim header shipped with the native build. Only the
// declarations used here are repeated so the package builds against any
// shim version that keeps these signatures.
typedef struct aiclock_sd_ctx aiclock_sd_ctx;

typedef struct {
	uint8_t* data;
	int      width;
	int      height;
} aiclock_sd_image;

extern aiclock_sd_ctx* aiclock_sd_create(const char* model_path, const char* controlnet_path, int n_threads);
extern void aiclock_sd_free(aiclock_sd_ctx* ctx);
extern int aiclock_sd_generate(aiclock_sd_ctx* ctx,
	const char* prompt, const char* negative_prompt,
	int width, int height, int steps, float cfg_scale,
	float control_strength, float control_start, float control_end,
	int64_t seed,
	const uint8_t* control_rgba, int control_width, int control_height,
	aiclock_sd_image* out);
extern void aiclock_sd_free_image(aiclock_sd_image* img);
extern void aiclock_sd_release_cache(aiclock_sd_ctx* ctx);
extern const char* aiclock_sd_backend_info(void);
*/
import "C"

import (
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

var (
	sdContextCounter uint64
	contextMu        sync.Mutex
	contextMap       = make(map[uint64]*C.aiclock_sd_ctx)
)

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

	cModel := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cModel))
	var cControl *C.char
	if controlNetPath != "" {
		cControl = C.CString(controlNetPath)
		defer C.free(unsafe.Pointer(cControl))
	}

	cCtx := C.aiclock_sd_create(cModel, cControl, C.int(runtime.NumCPU()))
	if cCtx == nil {
		return nil, fmt.Errorf("%w: runtime returned no context for %s", ErrModelLoadFailed, modelPath)
	}

	id := atomic.AddUint64(&sdContextCounter, 1)
	contextMu.Lock()
	contextMap[id] = cCtx
	contextMu.Unlock()

	return &SDContext{id: id, modelPath: modelPath, controlNetPath: controlNetPath, valid: true}, nil
}

func lookupContext(ctx *SDContext) *C.aiclock_sd_ctx {
	if !ctx.IsValid() {
		return nil
	}
	contextMu.Lock()
	defer contextMu.Unlock()
	return contextMap[ctx.id]
}

func generateImageImpl(ctx *SDContext, params GenerateParams) (*GenerateResult, error) {
	cCtx := lookupContext(ctx)
	if cCtx == nil {
		return nil, fmt.Errorf("%w: context is nil or invalid", ErrGenerationFailed)
	}

	cPrompt := C.CString(params.Prompt)
	defer C.free(unsafe.Pointer(cPrompt))
	cNeg := C.CString(params.NegativePrompt)
	defer C.free(unsafe.Pointer(cNeg))

	control := params.Control
	var out C.aiclock_sd_image
	rc := C.aiclock_sd_generate(cCtx,
		cPrompt, cNeg,
		C.int(params.Width), C.int(params.Height), C.int(params.Steps), C.float(params.GuidanceScale),
		C.float(params.ControlStrength), C.float(params.ControlStart), C.float(params.ControlEnd),
		C.int64_t(params.Seed),
		(*C.uint8_t)(unsafe.Pointer(&control.Pix[0])), C.int(control.Rect.Dx()), C.int(control.Rect.Dy()),
		&out)
	if rc != 0 || out.data == nil {
		return nil, fmt.Errorf("%w: runtime returned code %d", ErrGenerationFailed, int(rc))
	}
	defer C.aiclock_sd_free_image(&out)

	w, h := int(out.width), int(out.height)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: runtime returned %dx%d image", ErrGenerationFailed, w, h)
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, unsafe.Slice((*byte)(unsafe.Pointer(out.data)), w*h*4))

	return &GenerateResult{Image: img, Seed: params.Seed}, nil
}

func releaseCacheImpl(ctx *SDContext) {
	if cCtx := lookupContext(ctx); cCtx != nil {
		C.aiclock_sd_release_cache(cCtx)
	}
}

func freeContextImpl(ctx *SDContext) {
	if ctx == nil {
		return
	}
	contextMu.Lock()
	cCtx, ok := contextMap[ctx.id]
	delete(contextMap, ctx.id)
	contextMu.Unlock()
	if ok && cCtx != nil {
		C.aiclock_sd_free(cCtx)
	}
	ctx.valid = false
}

func getBackendInfoImpl() string {
	if info := C.aiclock_sd_backend_info(); info != nil {
		return C.GoString(info)
	}
	return "sd (native runtime)"
}
