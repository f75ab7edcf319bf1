package background

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"aiclock/logging"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type generateFunc func(call int, ctx context.Context, control image.Image, prompt string) (image.Image, int64, error)

type mockBackend struct {
	mu         sync.Mutex
	generate   generateFunc
	calls      int
	active     int
	maxActive  int
	cacheCalls []int

	loading    atomic.Bool
	onComplete func()
	onError    func(error)
	checkpoint string
}

func (m *mockBackend) Generate(ctx context.Context, control image.Image, prompt string) (image.Image, int64, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	fn := m.generate
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if fn == nil {
		return solidImage(color.NRGBA{R: 200, G: 180, B: 50, A: 255}), int64(call), nil
	}
	return fn(call, ctx, control, prompt)
}

func (m *mockBackend) Reload(onComplete func(), onError func(error)) {
	m.loading.Store(true)
	m.mu.Lock()
	m.onComplete, m.onError = onComplete, onError
	m.mu.Unlock()
}

func (m *mockBackend) finishReload(err error) {
	m.mu.Lock()
	onComplete, onError := m.onComplete, m.onError
	m.mu.Unlock()
	if err != nil {
		onError(err)
		return
	}
	m.loading.Store(false)
	onComplete()
}

func (m *mockBackend) IsLoading() bool { return m.loading.Load() }

func (m *mockBackend) EmptyCache() {
	m.mu.Lock()
	m.cacheCalls = append(m.cacheCalls, m.calls)
	m.mu.Unlock()
}

func (m *mockBackend) Checkpoint() string { return m.checkpoint }

func (m *mockBackend) snapshot() (calls, maxActive int, cacheCalls []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, m.maxActive, append([]int(nil), m.cacheCalls...)
}

type staticPrompts struct {
	prompt string
	err    error
	panic  bool
}

func (s staticPrompts) Generate(ctx context.Context) (string, time.Duration, error) {
	if s.panic {
		panic("prompt source exploded")
	}
	if s.err != nil {
		return "", 0, s.err
	}
	return s.prompt, 250 * time.Millisecond, nil
}

type recordingSurface struct {
	mu       sync.Mutex
	images   []image.Image
	requests []RenderRequest
}

func (s *recordingSurface) UpdateBackground(img image.Image) {
	s.mu.Lock()
	s.images = append(s.images, img)
	s.mu.Unlock()
}

func (s *recordingSurface) UpdateRenderRequest(req RenderRequest) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (o *recordingObserver) OnAttempt(a Attempt) {
	o.mu.Lock()
	o.attempts = append(o.attempts, a)
	o.mu.Unlock()
}

func (o *recordingObserver) outcomes() []Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Outcome, len(o.attempts))
	for i, a := range o.attempts {
		out[i] = a.Outcome
	}
	return out
}

var errBackend = errors.New("cuda error: out of memory")

func solidImage(c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func testConfig() Config {
	return Config{
		UpdateInterval:           15 * time.Second,
		TransitionDuration:       5 * time.Second,
		WatchdogTimeout:          120 * time.Second,
		CacheCleanupInterval:     50,
		MaxConsecutiveFailures:   3,
		FailureBackoffMultiplier: 3,
		OverlayAlpha:             75,
	}
}

func newTestController(t *testing.T, cfg Config, backend *mockBackend, opts ...Option) (*Controller, *fakeClock) {
	t.Helper()
	return newTestControllerWithLogger(t, cfg, backend, logging.NewFromZap(zaptest.NewLogger(t)), opts...)
}

func newTestControllerWithLogger(t *testing.T, cfg Config, backend *mockBackend, logger *logging.Logger, opts ...Option) (*Controller, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	c := NewController(cfg, backend, staticPrompts{prompt: "a quantum clock tower at dusk"}, logger, opts...)
	t.Cleanup(func() {
		if err := c.Close(2 * time.Second); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return c, clock
}

func control() image.Image {
	return image.NewNRGBA(image.Rect(0, 0, 64, 64))
}

// runOnce dispatches a worker and waits for it.
func runOnce(t *testing.T, c *Controller) {
	t.Helper()
	if !c.RequestUpdate(control()) {
		t.Fatal("RequestUpdate() = false, want dispatch")
	}
	if err := c.Wait(2 * time.Second); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
