package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"aiclock/background"
	"aiclock/clockface"
	"aiclock/core"
	"aiclock/history"
	"aiclock/logging"
	"aiclock/metrics"
	"aiclock/prompt"
	"aiclock/sdruntime"
	"aiclock/shutdown"
	"aiclock/surface"
)

// app owns every long-lived component of the clock.
type app struct {
	cfg    atomic.Pointer[core.Config]
	logger *logging.Logger

	pipeline   *sdruntime.Pipeline
	prompts    *prompt.Switcher
	face       atomic.Pointer[clockface.Face]
	surface    *surface.Manager
	controller *background.Controller
	store      *metrics.Store
	reporter   *metrics.Reporter
	recorder   *history.Recorder

	// present receives every composited frame. The default discards it.
	present func(*image.NRGBA)
	frames  atomic.Int64

	reloadMu sync.Mutex
}

// newApp builds the component graph and loads the model. Handlers for
// everything it opened are registered with manager before it returns, so
// a failed newApp still cleans up through manager.Shutdown.
func newApp(ctx context.Context, cfg *core.Config, logger *logging.Logger, manager *shutdown.Manager) (*app, error) {
	a := &app{
		logger:  logger.Named("app"),
		present: func(*image.NRGBA) {},
	}
	a.cfg.Store(cfg)

	a.pipeline = sdruntime.NewPipeline(sdruntime.PipelineConfigFrom(cfg), logger)
	manager.Register("pipeline", shutdown.PriorityPipeline, a.pipeline.Close)

	a.logger.Info("Loading diffusion model",
		zap.String("checkpoint", filepath.Base(cfg.Render.Checkpoint)),
		zap.String("controlnet", filepath.Base(cfg.Render.ControlNet)),
	)
	start := time.Now()
	if err := a.pipeline.Load(ctx); err != nil {
		return nil, fmt.Errorf("load diffusion model: %w", err)
	}
	a.logger.Info("Diffusion model loaded", zap.Duration("took", time.Since(start)))

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	prompts, err := prompt.NewSource(cfg.Prompts, rng, logger)
	if err != nil {
		return nil, fmt.Errorf("prompt source: %w", err)
	}
	a.prompts = prompts

	a.face.Store(clockface.NewFace(cfg.Clock, cfg.Render, nil))
	a.surface = surface.NewManager(surface.Config{
		DisplayWidth:       cfg.Display.Width,
		DisplayHeight:      cfg.Display.Height,
		TransitionDuration: cfg.Animation.TransitionDuration(),
	}, logger, nil)

	a.recorder, err = history.NewRecorder(cfg.System.HistoryDBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	manager.Register("history", shutdown.PriorityObservers, a.recorder.Close)
	a.pruneHistory(ctx, cfg.System.HistoryRetentionDays)

	a.store = metrics.NewStore(metrics.StoreConfig{
		HistoryCapacity:        100,
		MaxConsecutiveFailures: cfg.Updater.MaxConsecutiveFailures,
		Version:                version,
	}, time.Now())

	a.controller = background.NewController(background.ConfigFrom(cfg), a.pipeline, a.prompts, logger,
		background.WithSurface(a.surface),
		background.WithObserver(a.store),
		background.WithObserver(a.recorder),
		background.WithTracker(manager.Tracker()),
	)
	manager.Register("controller", shutdown.PriorityController, func(ctx context.Context) error {
		return a.controller.Close(timeUntil(ctx, 5*time.Second))
	})

	a.reporter = metrics.NewReporter(metrics.DefaultReporterConfig(), a.store, a.controller.Stats, logger)
	manager.Register("metrics", shutdown.PriorityObservers, a.reporter.Stop)

	// Snapshot before the temp cleanup; both share PriorityFiles and run in
	// registration order.
	manager.Register("snapshot", shutdown.PriorityFiles, func(ctx context.Context) error {
		return a.saveSnapshot()
	})
	manager.Register("temp-files", shutdown.PriorityFiles,
		shutdown.CleanupTempFiles(logger, cfg.System.SnapshotDir, surface.TempPrefix))

	return a, nil
}

// pruneHistory drops rows past the retention window. Zero keeps all.
func (a *app) pruneHistory(ctx context.Context, days int) {
	if days == 0 {
		return
	}
	deleted, err := a.recorder.Repository().Cleanup(ctx, days)
	if err != nil {
		a.logger.Warn("History cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		a.logger.Info("Pruned generation history",
			zap.Int64("deleted", deleted),
			zap.Int("retention_days", days),
		)
	}
}

// run drives the frame loop until ctx is cancelled.
func (a *app) run(ctx context.Context) {
	a.reporter.Start()

	fps := a.cfg.Load().Display.FPS
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	a.logger.Info("Frame loop started", zap.Int("fps", fps))
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Frame loop stopped", zap.Int64("frames", a.frames.Load()))
			return
		case now := <-ticker.C:
			a.tick(now)
		}
	}
}

// tick renders one frame. RequestUpdate is cheap when nothing is due.
func (a *app) tick(now time.Time) {
	cfg := a.cfg.Load()
	face := a.face.Load()

	hands := face.RenderHands(cfg.Render.Width, cfg.Render.Height, now)
	a.surface.UpdateHands(hands)
	a.controller.RequestUpdate(hands)

	frame := a.surface.DisplayFrame()
	if frame == nil {
		return
	}
	face.DrawOverlay(frame, now, a.controller.DominantColorWithTransition())
	a.present(frame)
	a.frames.Add(1)
}

func (a *app) saveSnapshot() error {
	paths, err := a.surface.SaveSnapshot(a.cfg.Load().System.SnapshotDir)
	if errors.Is(err, surface.ErrNothingToSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}
	a.logger.Debug("Snapshot files", zap.Strings("paths", paths))
	return nil
}

// applySettings switches the running clock to next. Checkpoint changes go
// through the controller so no worker is dispatched mid-swap.
func (a *app) applySettings(next *core.Config) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	prev := a.cfg.Load()
	a.cfg.Store(next)

	if next.Clock != prev.Clock || next.Render.BackgroundGray != prev.Render.BackgroundGray ||
		next.Render.DarknessVariation != prev.Render.DarknessVariation {
		a.face.Store(clockface.NewFace(next.Clock, next.Render, nil))
		a.logger.Info("Clock face updated",
			zap.String("display_mode", next.Clock.DisplayMode),
			zap.Bool("use_numbers", next.Clock.UseNumbers),
		)
	}

	if next.Clock.OverlayOpacity != prev.Clock.OverlayOpacity {
		a.controller.SetOverlayAlpha(uint8(next.Clock.OverlayOpacity))
	}

	if next.Prompts.Mode != prev.Prompts.Mode {
		if err := a.prompts.SetMode(next.Prompts.Mode); err != nil {
			a.logger.Warn("Prompt mode not changed", zap.String("mode", next.Prompts.Mode), zap.Error(err))
		}
	}

	if next.Render.Checkpoint != prev.Render.Checkpoint {
		a.reloadCheckpoint(next.Render.Checkpoint, next.Render.CheckpointSHA256)
	}
}

func (a *app) reloadCheckpoint(path, sha string) {
	a.pipeline.SetCheckpoint(path, sha)
	a.logger.Info("Reloading diffusion model", zap.String("checkpoint", filepath.Base(path)))

	start := time.Now()
	err := a.controller.ReloadBackend(
		func() {
			a.logger.Info("Diffusion model reloaded",
				zap.String("checkpoint", filepath.Base(path)),
				zap.Duration("took", time.Since(start)),
			)
		},
		func(err error) {
			a.logger.Error("Diffusion model reload failed",
				zap.String("checkpoint", filepath.Base(path)),
				zap.Error(err),
			)
		},
	)
	if err != nil {
		a.logger.Warn("Reload not started", zap.Error(err))
	}
}

// timeUntil returns the time left before ctx's deadline, or fallback when
// it has none.
func timeUntil(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}
