package shutdown

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"aiclock/core"
	"aiclock/logging"
)

// CleanupTempFiles returns a handler that removes files in dir whose name
// starts with prefix, such as half-written snapshots left by a crash or an
// interrupted save. It always returns nil; failures are logged.
//
//	manager.Register("snapshot temp files", shutdown.PriorityFiles,
//		shutdown.CleanupTempFiles(logger, cfg.System.SnapshotDir, surface.TempPrefix))
func CleanupTempFiles(logger *logging.Logger, dir, prefix string) core.ShutdownFunc {
	return func(ctx context.Context) error {
		removeTempFiles(ctx, logger, dir, prefix)
		return nil
	}
}

// removeTempFiles returns the number of files removed.
func removeTempFiles(ctx context.Context, logger *logging.Logger, dir, prefix string) int {
	if dir == "" || prefix == "" {
		return 0
	}

	pattern := filepath.Join(dir, prefix+"*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		logger.Error("Failed to list temporary files",
			zap.String("pattern", pattern),
			zap.Error(err),
		)
		return 0
	}
	if len(matches) == 0 {
		return 0
	}

	removed, failed := 0, 0
	for _, match := range matches {
		select {
		case <-ctx.Done():
			logger.Warn("Shutdown context cancelled during temp file cleanup",
				zap.Int("removed", removed),
				zap.Int("remaining", len(matches)-removed-failed),
			)
			return removed
		default:
		}

		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		if err := os.Remove(match); err != nil {
			failed++
			logger.Warn("Failed to remove temporary file",
				zap.String("file", filepath.Base(match)),
				zap.Error(err),
			)
			continue
		}
		removed++
	}

	logger.Info("Temporary files cleaned up",
		zap.String("directory", dir),
		zap.Int("removed", removed),
		zap.Int("failed", failed),
	)
	return removed
}
