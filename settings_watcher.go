package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"aiclock/core"
	"aiclock/logging"
)

// settingsDebounce absorbs the burst of events one editor save produces.
const settingsDebounce = 250 * time.Millisecond

// settingsWatcher re-resolves the configuration whenever the dynamic
// settings file changes and hands the new snapshot to apply. An invalid
// file is logged and ignored; the running configuration stays.
type settingsWatcher struct {
	basePath    string
	dynamicPath string
	apply       func(*core.Config)
	logger      *logging.Logger
	debounce    time.Duration

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// newSettingsWatcher watches the directory of dynamicPath, since editors
// and SaveDynamic replace the file rather than write it in place.
func newSettingsWatcher(basePath, dynamicPath string, apply func(*core.Config), logger *logging.Logger) (*settingsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("settings watcher: %w", err)
	}
	dir := filepath.Dir(dynamicPath)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("settings watcher: watch %s: %w", dir, err)
	}
	return &settingsWatcher{
		basePath:    basePath,
		dynamicPath: filepath.Clean(dynamicPath),
		apply:       apply,
		logger:      logger.Named("settings"),
		debounce:    settingsDebounce,
		watcher:     w,
	}, nil
}

// Start runs the event loop until ctx is cancelled or Close is called.
func (s *settingsWatcher) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *settingsWatcher) loop(ctx context.Context) {
	defer s.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.dynamicPath {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Settings watcher error", zap.Error(err))
		}
	}
}

func (s *settingsWatcher) reload() {
	cfg, err := core.LoadConfig(s.basePath, s.dynamicPath)
	if err != nil {
		s.logger.Warn("Ignoring invalid settings", zap.String("path", s.dynamicPath), zap.Error(err))
		return
	}
	s.logger.Info("Settings changed", zap.String("path", s.dynamicPath))
	s.apply(cfg)
}

// Close stops watching. It matches core.ShutdownFunc.
func (s *settingsWatcher) Close(ctx context.Context) error {
	err := s.watcher.Close()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
