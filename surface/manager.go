// Package surface holds the images the renderer composites: the latest
// control image, the current and previous generated backgrounds, and the
// metadata of the last render request.
package surface

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"aiclock/background"
	"aiclock/logging"
)

// ErrNothingToSnapshot is returned by SaveSnapshot before the first control
// image has been set.
var ErrNothingToSnapshot = errors.New("surface: no clock image to snapshot")

// SnapshotTimeFormat prefixes snapshot file names.
const SnapshotTimeFormat = "20060102_150405"

// TempPrefix marks snapshot files that are still being written.
const TempPrefix = "temp_"

// Config sizes the display and the crossfade.
type Config struct {
	DisplayWidth       int
	DisplayHeight      int
	TransitionDuration time.Duration
}

// Manager implements background.Surface. Backgrounds are scaled to the
// display once when they arrive; DisplayFrame only blends.
type Manager struct {
	cfg    Config
	logger *logging.Logger
	now    func() time.Time

	mu              sync.RWMutex
	hands           image.Image
	current         image.Image
	previous        image.Image
	scaledCurrent   *image.NRGBA
	scaledPrevious  *image.NRGBA
	transitionStart time.Time
	lastRequest     *background.RenderRequest
}

// NewManager creates an empty manager. now may be nil for time.Now.
func NewManager(cfg Config, logger *logging.Logger, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{cfg: cfg, logger: logger.Named("surface"), now: now}
}

// UpdateHands stores the control image most recently sent for generation.
func (m *Manager) UpdateHands(img image.Image) {
	m.mu.Lock()
	m.hands = img
	m.mu.Unlock()
}

// UpdateBackground makes img current, shifts the old current to previous
// and restarts the crossfade.
func (m *Manager) UpdateBackground(img image.Image) {
	if img == nil {
		return
	}
	scaled := scaleToDisplay(img, m.cfg.DisplayWidth, m.cfg.DisplayHeight)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.previous, m.scaledPrevious = m.current, m.scaledCurrent
	}
	m.current, m.scaledCurrent = img, scaled
	m.transitionStart = m.now()
}

// UpdateRenderRequest records the metadata of the latest background.
func (m *Manager) UpdateRenderRequest(req background.RenderRequest) {
	m.mu.Lock()
	m.lastRequest = &req
	m.mu.Unlock()
}

// LastRenderRequest returns the latest metadata, if any.
func (m *Manager) LastRenderRequest() (background.RenderRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastRequest == nil {
		return background.RenderRequest{}, false
	}
	return *m.lastRequest, true
}

// BackgroundState returns the backgrounds at generation resolution and the
// crossfade progress. Progress is 1 when there is no current background.
func (m *Manager) BackgroundState() (current, previous image.Image, progress float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.previous, m.progressLocked()
}

func (m *Manager) progressLocked() float64 {
	if m.current == nil || m.cfg.TransitionDuration <= 0 {
		return 1
	}
	p := float64(m.now().Sub(m.transitionStart)) / float64(m.cfg.TransitionDuration)
	return math.Min(1, math.Max(0, p))
}

// DisplayFrame returns the frame to draw behind the clock: the control
// image scaled up until the first background arrives, then a crossfade
// from previous to current while the transition runs, then current. It
// returns nil when there is nothing to show yet. The result is a new image
// the caller may modify.
func (m *Manager) DisplayFrame() *image.NRGBA {
	m.mu.RLock()
	hands := m.hands
	cur, prev := m.scaledCurrent, m.scaledPrevious
	progress := m.progressLocked()
	m.mu.RUnlock()

	if cur == nil {
		if hands == nil {
			return nil
		}
		return scaleToDisplay(hands, m.cfg.DisplayWidth, m.cfg.DisplayHeight)
	}
	if prev != nil && progress < 1 {
		return crossfade(prev, cur, progress)
	}
	out := image.NewNRGBA(cur.Rect)
	copy(out.Pix, cur.Pix)
	return out
}

// SaveSnapshot writes the control image, the last render request and the
// current background to dir and returns the paths written.
func (m *Manager) SaveSnapshot(dir string) ([]string, error) {
	m.mu.RLock()
	hands, current, req := m.hands, m.current, m.lastRequest
	m.mu.RUnlock()

	if hands == nil {
		return nil, ErrNothingToSnapshot
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("surface: create snapshot dir: %w", err)
	}

	ts := m.now().Format(SnapshotTimeFormat)
	var written []string

	path := filepath.Join(dir, ts+"_1_clock.png")
	if err := writePNG(path, hands); err != nil {
		return written, err
	}
	written = append(written, path)

	if req != nil {
		path = filepath.Join(dir, ts+"_2_render_request.json")
		data, err := json.MarshalIndent(req, "", "  ")
		if err != nil {
			return written, fmt.Errorf("surface: encode render request: %w", err)
		}
		err = writeFile(path, func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		})
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if current != nil {
		path = filepath.Join(dir, ts+"_3_background.png")
		if err := writePNG(path, current); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	m.logger.Info("snapshot saved", zap.String("dir", dir), zap.Int("files", len(written)))
	return written, nil
}

func writePNG(path string, img image.Image) error {
	return writeFile(path, func(w io.Writer) error {
		return png.Encode(w, img)
	})
}

// writeFile writes through a TempPrefix file next to path and renames it
// into place, so a crash never leaves a truncated snapshot behind.
func writeFile(path string, write func(io.Writer) error) error {
	tmp := filepath.Join(filepath.Dir(path), TempPrefix+filepath.Base(path))
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("surface: create %s: %w", tmp, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("surface: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("surface: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("surface: rename %s: %w", tmp, err)
	}
	return nil
}

// scaleToDisplay resizes img to w x h. Downscaling uses bilinear
// filtering, upscaling Catmull-Rom.
func scaleToDisplay(img image.Image, w, h int) *image.NRGBA {
	src := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	switch {
	case src.Dx() == w && src.Dy() == h:
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
	case src.Dx() > w || src.Dy() > h:
		draw.BiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	default:
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	}
	return dst
}

// crossfade blends a toward b by t. Both must have the same bounds.
func crossfade(a, b *image.NRGBA, t float64) *image.NRGBA {
	out := image.NewNRGBA(b.Rect)
	for i := range out.Pix {
		va, vb := float64(a.Pix[i]), float64(b.Pix[i])
		out.Pix[i] = uint8(math.Round(va + (vb-va)*t))
	}
	return out
}
