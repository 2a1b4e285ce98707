package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/lazypreview/internal/logctx"
)

// DeleteExpiredFiles deletes regular files in dir last modified more than
// keepDuration before now, and returns the names it removed. Records that
// point at removed files stay; streaming them reports the source as
// unavailable.
func DeleteExpiredFiles(ctx context.Context, dir string, keepDuration time.Duration, now time.Time) ([]string, error) {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil // nothing uploaded yet
		}

		return nil, err
	}

	var removed []string

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		if !entry.Type().IsRegular() {
			continue
		}

		filePath := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // already deleted
			}

			logger.Error("Failed to stat file", "file", filePath, "err", err)

			return removed, err
		}

		if now.Sub(info.ModTime()) <= keepDuration {
			continue
		}

		if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Error("Failed to delete expired file", "file", filePath, "err", err)

			return removed, err
		}

		logger.Info("Deleted expired file", "file", filePath, "size", humanize.IBytes(uint64(info.Size())))

		removed = append(removed, entry.Name())
	}

	return removed, nil
}

// Sweeper periodically deletes expired uploads.
type Sweeper struct {
	Dir          string
	KeepDuration time.Duration
	Interval     time.Duration
	// OnDeleted is called once per removed file.
	OnDeleted func(name string)

	now func() time.Time
}

// Run sweeps on every tick until ctx is done. It returns nil on cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	if s.KeepDuration <= 0 || s.Interval <= 0 {
		logger.Info("upload retention disabled")

		return nil
	}

	now := s.now
	if now == nil {
		now = time.Now
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down.")

			return nil
		case <-ticker.C:
			removed, err := DeleteExpiredFiles(ctx, s.Dir, s.KeepDuration, now())
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("failed to delete expired uploads", "err", err)
			}

			if s.OnDeleted != nil {
				for _, name := range removed {
					s.OnDeleted(name)
				}
			}
		}
	}
}
