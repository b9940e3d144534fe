// Package cleanup removes downloaded artifacts that were never fetched.
// Served files are deleted shortly after serving; this sweep is the backstop
// for everything left behind.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/vidgrab/vidgrab/internal/logctx"
)

// DeleteExpiredFiles deletes regular files in dir whose modification time is
// older than keepDuration. Subdirectories are left alone.
func DeleteExpiredFiles(ctx context.Context, dir string, keepDuration time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	cutoff := time.Now().Add(-keepDuration)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue // already deleted
			}

			logger.Error("Failed to stat file", "file", entry.Name(), "err", err)

			continue
		}

		if info.ModTime().Before(cutoff) {
			filePath := filepath.Join(dir, entry.Name())

			if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
				logger.Error("Failed to delete expired file", "file", filePath, "err", err)

				continue
			}

			logger.Info("Deleted expired file", "file", filePath)
		}
	}

	return nil
}
