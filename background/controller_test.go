package background

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"aiclock/logging"
	"aiclock/palette"
)

func TestController_FirstRequestDispatches(t *testing.T) {
	backend := &mockBackend{checkpoint: "/models/dreamshaper_8.safetensors"}
	surface := &recordingSurface{}
	obs := &recordingObserver{}
	c, clock := newTestController(t, testConfig(), backend, WithSurface(surface), WithObserver(obs))

	if !c.ShouldUpdate() {
		t.Fatal("ShouldUpdate() = false before any attempt")
	}
	runOnce(t, c)

	s := c.Stats()
	if s.GenerationCount != 1 || s.ConsecutiveFailures != 0 || s.Updating {
		t.Errorf("Stats() = %+v", s)
	}
	if c.ShouldUpdate() {
		t.Error("ShouldUpdate() = true right after dispatch")
	}

	if len(surface.images) != 1 || len(surface.requests) != 1 {
		t.Fatalf("surface got %d images, %d requests", len(surface.images), len(surface.requests))
	}
	req := surface.requests[0]
	if req.Prompt != "a quantum clock tower at dusk" || req.Seed != 1 {
		t.Errorf("request prompt/seed = %q/%d", req.Prompt, req.Seed)
	}
	if req.Checkpoint != "dreamshaper_8.safetensors" {
		t.Errorf("request checkpoint = %q", req.Checkpoint)
	}
	if req.CorrelationID == "" || req.Epoch != 1 {
		t.Errorf("request epoch/id = %d/%q", req.Epoch, req.CorrelationID)
	}
	if !req.Timestamp.Equal(clock.Now()) {
		t.Errorf("request timestamp = %v, want %v", req.Timestamp, clock.Now())
	}
	if req.EnhancementSeconds != 0.25 {
		t.Errorf("enhancement = %v, want 0.25", req.EnhancementSeconds)
	}
	if want := (palette.Color{R: 200, G: 180, B: 50, A: 75}); req.DominantColor != want {
		t.Errorf("dominant color = %v, want %v", req.DominantColor, want)
	}

	if got := obs.outcomes(); len(got) != 1 || got[0] != OutcomeSuccess {
		t.Errorf("observer outcomes = %v", got)
	}
}

func TestController_ShouldUpdateThrottle(t *testing.T) {
	c, clock := newTestController(t, testConfig(), &mockBackend{})
	runOnce(t, c)

	clock.Advance(14900 * time.Millisecond)
	if c.ShouldUpdate() {
		t.Error("ShouldUpdate() = true before interval elapsed")
	}
	if c.RequestUpdate(control()) {
		t.Error("RequestUpdate() dispatched before interval elapsed")
	}

	clock.Advance(100 * time.Millisecond)
	if !c.ShouldUpdate() {
		t.Error("ShouldUpdate() = false after interval elapsed")
	}
	runOnce(t, c)
}

func TestController_SingleFlight(t *testing.T) {
	gate := make(chan struct{})
	backend := &mockBackend{
		generate: func(call int, ctx context.Context, _ image.Image, _ string) (image.Image, int64, error) {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
			return solidImage(color.NRGBA{R: 10, G: 20, B: 30, A: 255}), int64(call), nil
		},
	}
	c, clock := newTestController(t, testConfig(), backend)

	dispatched := 0
	for i := 0; i < 5; i++ {
		if c.RequestUpdate(control()) {
			dispatched++
		}
		clock.Advance(20 * time.Second)
	}
	if dispatched != 1 {
		t.Errorf("dispatched %d workers, want 1", dispatched)
	}
	if !c.Stats().Updating {
		t.Error("Stats().Updating = false with a worker in flight")
	}

	close(gate)
	if err := c.Wait(2 * time.Second); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	calls, maxActive, _ := backend.snapshot()
	if calls != 1 || maxActive != 1 {
		t.Errorf("backend calls = %d, max concurrent = %d, want 1 and 1", calls, maxActive)
	}
}

func TestController_FailureBackoff(t *testing.T) {
	backend := &mockBackend{
		generate: func(int, context.Context, image.Image, string) (image.Image, int64, error) {
			return nil, 0, errBackend
		},
	}
	obs := &recordingObserver{}
	c, clock := newTestController(t, testConfig(), backend, WithObserver(obs))

	for i := 0; i < 3; i++ {
		runOnce(t, c)
		clock.Advance(15 * time.Second)
	}

	s := c.Stats()
	if s.ConsecutiveFailures != 3 {
		t.Fatalf("ConsecutiveFailures = %d, want 3", s.ConsecutiveFailures)
	}
	if s.EffectiveInterval != 45*time.Second {
		t.Errorf("EffectiveInterval = %v, want 45s", s.EffectiveInterval)
	}

	// 15s after the third attempt: only the base interval has passed.
	if c.ShouldUpdate() || c.RequestUpdate(control()) {
		t.Error("fourth attempt not delayed by backoff")
	}
	clock.Advance(29900 * time.Millisecond)
	if c.ShouldUpdate() {
		t.Error("ShouldUpdate() = true before backoff interval elapsed")
	}
	clock.Advance(100 * time.Millisecond)
	if !c.ShouldUpdate() {
		t.Error("ShouldUpdate() = false after backoff interval elapsed")
	}

	for _, a := range obs.attempts {
		if a.Outcome != OutcomeFailure || !errors.Is(a.Err, errBackend) {
			t.Errorf("attempt %d: outcome %s err %v", a.Epoch, a.Outcome, a.Err)
		}
	}
}

func TestController_SuccessResetsFailures(t *testing.T) {
	backend := &mockBackend{}
	backend.generate = func(call int, _ context.Context, _ image.Image, _ string) (image.Image, int64, error) {
		if call <= 2 {
			return nil, 0, errBackend
		}
		return solidImage(color.NRGBA{R: 1, G: 2, B: 3, A: 255}), 7, nil
	}
	c, clock := newTestController(t, testConfig(), backend)

	for i := 0; i < 2; i++ {
		runOnce(t, c)
		clock.Advance(15 * time.Second)
	}
	before := c.Stats()
	runOnce(t, c)
	after := c.Stats()

	if before.ConsecutiveFailures != 2 || after.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures %d -> %d, want 2 -> 0", before.ConsecutiveFailures, after.ConsecutiveFailures)
	}
	if after.GenerationCount != before.GenerationCount+1 {
		t.Errorf("GenerationCount %d -> %d, want +1", before.GenerationCount, after.GenerationCount)
	}
}

func TestController_WorkerErrorsAreFailures(t *testing.T) {
	tests := []struct {
		name     string
		prompts  staticPrompts
		generate generateFunc
		wantErr  error
	}{
		{
			name:    "prompt error",
			prompts: staticPrompts{err: errors.New("llm unreachable")},
		},
		{
			name:    "prompt panic",
			prompts: staticPrompts{panic: true},
			wantErr: ErrWorkerPanic,
		},
		{
			name:    "backend panic",
			prompts: staticPrompts{prompt: "p"},
			generate: func(int, context.Context, image.Image, string) (image.Image, int64, error) {
				panic("segfault in sampler")
			},
			wantErr: ErrWorkerPanic,
		},
		{
			name:    "nil image",
			prompts: staticPrompts{prompt: "p"},
			generate: func(int, context.Context, image.Image, string) (image.Image, int64, error) {
				return nil, 0, nil
			},
			wantErr: ErrNoImage,
		},
		{
			name:    "empty image",
			prompts: staticPrompts{prompt: "p"},
			generate: func(int, context.Context, image.Image, string) (image.Image, int64, error) {
				return image.NewNRGBA(image.Rectangle{}), 0, nil
			},
			wantErr: ErrNoImage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{generate: tt.generate}
			obs := &recordingObserver{}
			clock := newFakeClock()
			c := NewController(testConfig(), backend, tt.prompts, logging.NewNop(), WithClock(clock.Now), WithObserver(obs))
			defer c.Close(time.Second)

			runOnce(t, c)

			s := c.Stats()
			if s.ConsecutiveFailures != 1 || s.GenerationCount != 0 || s.Updating {
				t.Errorf("Stats() = %+v", s)
			}
			if len(obs.attempts) != 1 || obs.attempts[0].Outcome != OutcomeFailure {
				t.Fatalf("attempts = %+v", obs.attempts)
			}
			if tt.wantErr != nil && !errors.Is(obs.attempts[0].Err, tt.wantErr) {
				t.Errorf("attempt error = %v, want %v", obs.attempts[0].Err, tt.wantErr)
			}
		})
	}
}

func TestController_ColorTransition(t *testing.T) {
	c, clock := newTestController(t, testConfig(), &mockBackend{})

	white := palette.White(75)
	if got := c.DominantColorWithTransition(); got != white {
		t.Errorf("initial color = %v, want %v", got, white)
	}
	if ts := c.Transition(); ts.Previous != nil || ts.Progress != 1 {
		t.Errorf("initial Transition() = %+v", ts)
	}

	runOnce(t, c)
	target := palette.Color{R: 200, G: 180, B: 50, A: 75}

	steps := []struct {
		at   time.Duration
		want palette.Color
	}{
		{0, white},
		{3 * time.Second, palette.Color{R: 222, G: 210, B: 132, A: 75}},
		{5 * time.Second, target},
		{10 * time.Second, target},
	}
	start := clock.Now()
	for _, s := range steps {
		clock.Advance(start.Add(s.at).Sub(clock.Now()))
		if got := c.DominantColorWithTransition(); got != s.want {
			t.Errorf("color at +%v = %v, want %v", s.at, got, s.want)
		}
	}

	ts := c.Transition()
	if ts.Previous == nil || *ts.Previous != white || ts.Current != target || ts.Progress != 1 {
		t.Errorf("Transition() = %+v", ts)
	}

	clock.Advance(start.Add(20 * time.Second).Sub(clock.Now()))
	if !c.ShouldUpdate() {
		t.Error("ShouldUpdate() = false 20s after dispatch")
	}
}

func TestController_TransitionMonotonic(t *testing.T) {
	c, clock := newTestController(t, testConfig(), &mockBackend{})
	runOnce(t, c)

	prev := c.DominantColorWithTransition()
	for i := 0; i < 50; i++ {
		clock.Advance(100 * time.Millisecond)
		cur := c.DominantColorWithTransition()
		// white (255,255,255) falls toward (200,180,50) on every channel
		if cur.R > prev.R || cur.G > prev.G || cur.B > prev.B || cur.A != 75 {
			t.Fatalf("step %d: %v after %v is not monotonic", i, cur, prev)
		}
		prev = cur
	}
}

func TestController_SetOverlayAlpha(t *testing.T) {
	c, clock := newTestController(t, testConfig(), &mockBackend{})
	runOnce(t, c)

	c.SetOverlayAlpha(200)
	ts := c.Transition()
	if ts.Current.A != 200 || ts.Previous == nil || ts.Previous.A != 200 {
		t.Fatalf("transition after SetOverlayAlpha = %+v", ts)
	}
	if got := c.DominantColorWithTransition().A; got != 200 {
		t.Errorf("blended alpha = %d, want 200", got)
	}

	clock.Advance(15 * time.Second)
	runOnce(t, c)
	if got := c.Transition().Current.A; got != 200 {
		t.Errorf("next generation alpha = %d, want 200", got)
	}
}

func TestController_CacheCleanupInterval(t *testing.T) {
	cfg := testConfig()
	cfg.CacheCleanupInterval = 5
	backend := &mockBackend{}
	c, clock := newTestController(t, cfg, backend)

	for i := 0; i < 12; i++ {
		runOnce(t, c)
		clock.Advance(15 * time.Second)
	}

	_, _, cacheCalls := backend.snapshot()
	if len(cacheCalls) != 2 || cacheCalls[0] != 5 || cacheCalls[1] != 10 {
		t.Errorf("EmptyCache at generations %v, want [5 10]", cacheCalls)
	}
	if got := c.Stats().CacheCleanups; got != 2 {
		t.Errorf("CacheCleanups = %d, want 2", got)
	}
}

func TestController_CacheCleanupDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.CacheCleanupInterval = 0
	backend := &mockBackend{}
	c, clock := newTestController(t, cfg, backend)

	for i := 0; i < 3; i++ {
		runOnce(t, c)
		clock.Advance(15 * time.Second)
	}
	if _, _, cacheCalls := backend.snapshot(); len(cacheCalls) != 0 {
		t.Errorf("EmptyCache called %v with cleanup disabled", cacheCalls)
	}
}

func TestController_WatchdogAbandonsHungWorker(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	backend := &mockBackend{}
	backend.generate = func(call int, ctx context.Context, _ image.Image, _ string) (image.Image, int64, error) {
		if call == 1 {
			close(entered)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return solidImage(color.NRGBA{R: 255, A: 255}), 1, nil
		}
		return solidImage(color.NRGBA{B: 255, A: 255}), int64(call), nil
	}

	core, logs := observer.New(zapcore.WarnLevel)
	obs := &recordingObserver{}
	c, clock := newTestControllerWithLogger(t, testConfig(), backend, logging.NewFromZap(zap.New(core)), WithObserver(obs))

	if !c.RequestUpdate(control()) {
		t.Fatal("first RequestUpdate() did not dispatch")
	}
	// The first worker must own call 1 before the replacement can run.
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first worker never reached Generate")
	}

	clock.Advance(60 * time.Second)
	if c.RequestUpdate(control()) {
		t.Fatal("dispatched while the first worker is within the timeout")
	}

	clock.Advance(61 * time.Second)
	if !c.RequestUpdate(control()) {
		t.Fatal("RequestUpdate() after watchdog recovery did not dispatch")
	}

	blue := palette.Color{B: 255, A: 75}
	waitFor(t, "replacement worker", func() bool { return c.Stats().GenerationCount == 1 })
	s := c.Stats()
	if s.WatchdogRecoveries != 1 {
		t.Errorf("WatchdogRecoveries = %d, want 1", s.WatchdogRecoveries)
	}
	if s.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d after replacement succeeded", s.ConsecutiveFailures)
	}
	if _, _, cacheCalls := backend.snapshot(); len(cacheCalls) != 1 {
		t.Errorf("emergency EmptyCache calls = %d, want 1", len(cacheCalls))
	}
	if got := logs.FilterMessage("background worker exceeded watchdog timeout, abandoning it").Len(); got != 1 {
		t.Errorf("watchdog warnings = %d, want 1", got)
	}

	// The abandoned worker now returns a red background, which must be dropped.
	close(release)
	if err := c.Wait(2 * time.Second); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	s = c.Stats()
	if s.GenerationCount != 1 || s.StaleResults != 1 {
		t.Errorf("after stale result: GenerationCount = %d, StaleResults = %d", s.GenerationCount, s.StaleResults)
	}
	if ts := c.Transition(); ts.Current != blue {
		t.Errorf("current color = %v, want %v", ts.Current, blue)
	}

	want := map[Outcome]int{OutcomeHung: 1, OutcomeSuccess: 1, OutcomeStale: 1}
	got := map[Outcome]int{}
	for _, o := range obs.outcomes() {
		got[o]++
	}
	for o, n := range want {
		if got[o] != n {
			t.Errorf("outcome %s seen %d times, want %d (all: %v)", o, got[o], n, obs.outcomes())
		}
	}
}

func TestController_CheckAndRecoverStuckWorker(t *testing.T) {
	tests := []struct {
		name          string
		updating      bool
		handle        func() *workerHandle
		age           time.Duration
		wantRecovered bool
		wantAbandoned bool
		wantFailures  int
	}{
		{name: "idle", updating: false},
		{
			name:     "alive within timeout",
			updating: true,
			handle:   func() *workerHandle { return &workerHandle{done: make(chan struct{})} },
			age:      120 * time.Second,
		},
		{
			name:          "alive past timeout",
			updating:      true,
			handle:        func() *workerHandle { return &workerHandle{done: make(chan struct{})} },
			age:           121 * time.Second,
			wantRecovered: true,
			wantAbandoned: true,
			wantFailures:  1,
		},
		{
			name:          "flag without handle",
			updating:      true,
			wantRecovered: true,
		},
		{
			name:     "flag with finished worker",
			updating: true,
			handle: func() *workerHandle {
				h := &workerHandle{done: make(chan struct{})}
				close(h.done)
				return h
			},
			wantRecovered: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			clock := newFakeClock()
			c := NewController(testConfig(), &mockBackend{}, staticPrompts{prompt: "p"},
				logging.NewFromZap(zap.New(core)), WithClock(clock.Now))

			now := clock.Now()
			c.mu.Lock()
			c.isUpdating = tt.updating
			if tt.handle != nil {
				c.worker = tt.handle()
			}
			c.workerStartTime = now.Add(-tt.age)
			epoch := c.epoch
			recovered, abandoned := c.checkAndRecoverStuckWorker(now)
			updating, failures, newEpoch := c.isUpdating, c.consecutiveFailures, c.epoch
			c.mu.Unlock()

			if recovered != tt.wantRecovered || (abandoned != nil) != tt.wantAbandoned {
				t.Fatalf("recovered = %v, abandoned = %v", recovered, abandoned)
			}
			if failures != tt.wantFailures {
				t.Errorf("consecutiveFailures = %d, want %d", failures, tt.wantFailures)
			}
			if recovered {
				if updating {
					t.Error("isUpdating still set after recovery")
				}
				if newEpoch != epoch+1 {
					t.Errorf("epoch = %d, want %d", newEpoch, epoch+1)
				}
				if logs.Len() != 1 {
					t.Errorf("warnings logged = %d, want 1", logs.Len())
				}
			} else if updating != tt.updating {
				t.Error("isUpdating changed without recovery")
			}
			if abandoned != nil && !errors.Is(abandoned.Err, ErrWorkerHung) {
				t.Errorf("abandoned error = %v, want ErrWorkerHung", abandoned.Err)
			}
		})
	}
}

func TestController_ReloadGatesDispatch(t *testing.T) {
	backend := &mockBackend{}
	c, clock := newTestController(t, testConfig(), backend)

	completed := make(chan struct{})
	if err := c.ReloadBackend(func() { close(completed) }, nil); err != nil {
		t.Fatalf("ReloadBackend() error: %v", err)
	}
	if !c.Stats().Reloading {
		t.Error("Stats().Reloading = false during reload")
	}
	if c.RequestUpdate(control()) {
		t.Error("dispatched during reload")
	}
	if err := c.ReloadBackend(nil, nil); !errors.Is(err, ErrReloadInProgress) {
		t.Errorf("second ReloadBackend() error = %v, want ErrReloadInProgress", err)
	}

	backend.finishReload(nil)
	<-completed
	clock.Advance(time.Second)
	runOnce(t, c)
}

func TestController_ReloadFailureKeepsBackendBusy(t *testing.T) {
	backend := &mockBackend{}
	c, _ := newTestController(t, testConfig(), backend)

	errCh := make(chan error, 1)
	if err := c.ReloadBackend(func() { t.Error("onComplete called") }, func(err error) { errCh <- err }); err != nil {
		t.Fatalf("ReloadBackend() error: %v", err)
	}
	loadErr := errors.New("checkpoint not found")
	backend.finishReload(loadErr)

	if err := <-errCh; !errors.Is(err, loadErr) {
		t.Errorf("onError(%v), want %v", err, loadErr)
	}
	if c.Stats().Reloading {
		t.Error("controller still reloading after the callback")
	}
	if c.RequestUpdate(control()) {
		t.Error("dispatched while the backend still reports loading")
	}
	if !c.ShouldUpdate() {
		t.Error("ShouldUpdate() should only look at timing")
	}
}

func TestController_WorkerContextHasDeadline(t *testing.T) {
	deadlines := make(chan bool, 1)
	backend := &mockBackend{
		generate: func(call int, ctx context.Context, _ image.Image, _ string) (image.Image, int64, error) {
			_, ok := ctx.Deadline()
			deadlines <- ok
			return solidImage(color.NRGBA{A: 255}), 1, nil
		},
	}
	c, _ := newTestController(t, testConfig(), backend)
	runOnce(t, c)

	if !<-deadlines {
		t.Error("worker context has no deadline")
	}
}

func TestController_Close(t *testing.T) {
	backend := &mockBackend{}
	clock := newFakeClock()
	c := NewController(testConfig(), backend, staticPrompts{prompt: "p"}, logging.NewNop(), WithClock(clock.Now))

	if err := c.Close(time.Second); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if c.RequestUpdate(control()) {
		t.Error("dispatched after Close")
	}
	if c.Stats().Updating {
		t.Error("Updating set after rejected dispatch")
	}
	if err := c.ReloadBackend(nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("ReloadBackend() error = %v, want ErrClosed", err)
	}
}

func TestConfig_EffectiveInterval(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 15 * time.Second},
		{2, 15 * time.Second},
		{3, 45 * time.Second},
		{10, 45 * time.Second},
	}
	for _, tt := range tests {
		if got := cfg.effectiveInterval(tt.failures); got != tt.want {
			t.Errorf("effectiveInterval(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.UpdateInterval != 15*time.Second || cfg.TransitionDuration != 5*time.Second {
		t.Errorf("intervals = %v / %v", cfg.UpdateInterval, cfg.TransitionDuration)
	}
	if cfg.WatchdogTimeout != 120*time.Second || cfg.CacheCleanupInterval != 50 {
		t.Errorf("watchdog/cleanup = %v / %d", cfg.WatchdogTimeout, cfg.CacheCleanupInterval)
	}
	if cfg.MaxConsecutiveFailures != 3 || cfg.FailureBackoffMultiplier != 3 || cfg.OverlayAlpha != 75 {
		t.Errorf("failure policy = %+v", cfg)
	}
}
