package sdruntime

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"aiclock/logging"
)

// Pipeline owns the loaded checkpoint. A single slot serializes every
// native call (generation, checkpoint swap, cache release), so the model is
// never used concurrently and never swapped under a running generation.
// IsLoading and the other state reads never wait on the slot.
type Pipeline struct {
	logger *logging.Logger

	// slot is held for the full duration of a native call.
	slot chan struct{}

	mu     sync.Mutex
	cfg    PipelineConfig
	sdCtx  *SDContext
	closed bool

	loading       atomic.Bool
	reloading     atomic.Bool
	cacheReleases atomic.Int64

	load     func(modelPath, controlNetPath string) (*SDContext, error)
	generate func(ctx *SDContext, params GenerateParams) (*GenerateResult, error)
}

// NewPipeline creates a pipeline with nothing loaded. Call Load before the
// first Generate.
func NewPipeline(cfg PipelineConfig, logger *logging.Logger) *Pipeline {
	if cfg.ReloadAcquireTimeout <= 0 {
		cfg.ReloadAcquireTimeout = DefaultReloadAcquireTimeout
	}
	return &Pipeline{
		logger:   logger.Named("sdruntime"),
		slot:     make(chan struct{}, 1),
		cfg:      cfg,
		load:     LoadModel,
		generate: GenerateImage,
	}
}

// Load synchronously loads the configured checkpoint.
func (p *Pipeline) Load(ctx context.Context) error {
	if !p.reloading.CompareAndSwap(false, true) {
		return ErrReloadInProgress
	}
	defer p.reloading.Store(false)

	p.loading.Store(true)
	err := p.swap(ctx)
	p.loading.Store(!p.hasModel())
	return err
}

// Reload swaps in the configured checkpoint in the background. IsLoading is
// true from the moment Reload returns until the swap succeeds. If the swap
// fails after the old model was released, IsLoading stays true; a later
// successful Reload clears it. Callbacks run on the reload goroutine and
// may be nil.
func (p *Pipeline) Reload(onComplete func(), onError func(error)) {
	fail := func(err error) {
		if onError != nil {
			go onError(err)
		}
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		fail(ErrPipelineClosed)
		return
	}
	if !p.reloading.CompareAndSwap(false, true) {
		fail(ErrReloadInProgress)
		return
	}
	p.loading.Store(true)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ReloadAcquireTimeout)
		defer cancel()

		err := p.swap(ctx)
		p.loading.Store(!p.hasModel())
		p.reloading.Store(false)

		if err != nil {
			p.logger.Error("checkpoint reload failed", zap.Error(err), zap.Bool("model_loaded", p.hasModel()))
			if onError != nil {
				onError(err)
			}
			return
		}
		if onComplete != nil {
			onComplete()
		}
	}()
}

// swap frees the current model and loads the configured checkpoint. If the
// slot cannot be taken the current model is left in place.
func (p *Pipeline) swap(ctx context.Context) error {
	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.release()

	p.mu.Lock()
	cfg := p.cfg
	old := p.sdCtx
	p.sdCtx = nil
	p.mu.Unlock()

	start := time.Now()
	if old != nil {
		FreeContext(old)
		p.logger.Info("released checkpoint", zap.String("checkpoint", filepath.Base(old.ModelPath())))
	}

	if err := VerifyChecksum(cfg.Checkpoint, cfg.CheckpointSHA256); err != nil {
		return err
	}
	sdCtx, err := p.load(cfg.Checkpoint, cfg.ControlNet)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		FreeContext(sdCtx)
		return ErrPipelineClosed
	}
	p.sdCtx = sdCtx
	p.logger.Info("checkpoint loaded",
		zap.String("checkpoint", filepath.Base(cfg.Checkpoint)),
		zap.String("controlnet", filepath.Base(cfg.ControlNet)),
		zap.Duration("load_time", time.Since(start)),
		zap.String("backend", GetBackendInfo()),
	)
	return nil
}

type generateOutcome struct {
	result *GenerateResult
	err    error
}

// Generate renders one background conditioned on control. It returns
// ErrPipelineLoading during a reload, ErrAcquireTimeout if ctx ends before
// the pipeline is free, and ErrGenerationTimeout if ctx ends mid-sampling.
// In the last case the native call runs to completion in the background and
// keeps the pipeline busy until it does.
func (p *Pipeline) Generate(ctx context.Context, control image.Image, prompt string) (image.Image, int64, error) {
	if p.loading.Load() {
		return nil, 0, ErrPipelineLoading
	}

	p.mu.Lock()
	cfg, closed := p.cfg, p.closed
	p.mu.Unlock()
	if closed {
		return nil, 0, ErrPipelineClosed
	}

	controlImg, err := ToNRGBA(control, cfg.Width, cfg.Height)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: control image: %v", ErrInvalidParams, err)
	}
	params := cfg.params(SanitizePrompt(prompt), controlImg, RandomSeed())
	if err := ValidateParams(params); err != nil {
		return nil, 0, err
	}

	if err := p.acquire(ctx); err != nil {
		return nil, 0, err
	}

	p.mu.Lock()
	sdCtx := p.sdCtx
	p.mu.Unlock()
	if sdCtx == nil {
		p.release()
		return nil, 0, ErrPipelineNotLoaded
	}

	done := make(chan generateOutcome, 1)
	go func() {
		defer p.release()
		defer func() {
			if r := recover(); r != nil {
				done <- generateOutcome{err: fmt.Errorf("%w: panic: %v", ErrGenerationFailed, r)}
			}
		}()
		res, err := p.generate(sdCtx, params)
		done <- generateOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, 0, out.err
		}
		if out.result == nil || out.result.Image == nil {
			return nil, 0, fmt.Errorf("%w: runtime returned no image", ErrGenerationFailed)
		}
		return out.result.Image, out.result.Seed, nil
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("%w: %v", ErrGenerationTimeout, ctx.Err())
	}
}

// EmptyCache releases cached compute buffers if the pipeline is idle. It
// never blocks: when a native call holds the slot the release is skipped.
func (p *Pipeline) EmptyCache() {
	select {
	case p.slot <- struct{}{}:
	default:
		p.logger.Debug("cache release skipped, pipeline busy")
		return
	}
	defer p.release()

	p.mu.Lock()
	sdCtx := p.sdCtx
	p.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("cache release panicked", zap.Any("panic", r))
		}
	}()
	ReleaseCache(sdCtx)
	p.cacheReleases.Add(1)
}

// IsLoading reports whether a checkpoint swap is running or the last one
// left no model loaded.
func (p *Pipeline) IsLoading() bool {
	return p.loading.Load()
}

// SetCheckpoint changes the checkpoint the next Load or Reload will use.
// sha256 may be empty to skip verification.
func (p *Pipeline) SetCheckpoint(path, sha256 string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Checkpoint = path
	p.cfg.CheckpointSHA256 = sha256
}

// Checkpoint returns the configured checkpoint path.
func (p *Pipeline) Checkpoint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Checkpoint
}

// Settings returns the sampler settings used for generation.
func (p *Pipeline) Settings() PipelineConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// CacheReleases counts successful EmptyCache calls.
func (p *Pipeline) CacheReleases() int64 {
	return p.cacheReleases.Load()
}

// Close waits for the current native call (bounded by ctx) and unloads the
// model. Later calls fail with ErrPipelineClosed.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.acquire(ctx); err != nil {
		return fmt.Errorf("close pipeline: %w", err)
	}
	defer p.release()

	p.mu.Lock()
	sdCtx := p.sdCtx
	p.sdCtx = nil
	p.mu.Unlock()
	FreeContext(sdCtx)
	return nil
}

func (p *Pipeline) hasModel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sdCtx.IsValid()
}

func (p *Pipeline) acquire(ctx context.Context) error {
	select {
	case p.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrAcquireTimeout, ctx.Err())
	}
}

func (p *Pipeline) release() {
	<-p.slot
}
