package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ScratchCleaner empties the directory where downloads are spooled before
// they are served with range support.
type ScratchCleaner struct {
	logger    *slog.Logger
	metrics   *Metrics
	directory string
	interval  time.Duration
}

func NewScratchCleaner(logger *slog.Logger, directory string, interval time.Duration, metrics *Metrics) *ScratchCleaner {
	return &ScratchCleaner{
		logger:    logger,
		metrics:   metrics,
		directory: directory,
		interval:  interval,
	}
}

func (cleaner *ScratchCleaner) Run(ctx context.Context) error {
	ticker := time.NewTicker(cleaner.interval)
	defer ticker.Stop()

	for {
		if _, err := cleaner.Clean(ctx); err != nil {
			cleaner.logger.ErrorContext(ctx, "failed to clean the scratch directory",
				"directory", cleaner.directory,
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Clean removes every entry of the scratch directory and returns how many
// were removed. A missing directory has nothing to clean.
func (cleaner *ScratchCleaner) Clean(ctx context.Context) (int, error) {
	removed, err := removeEntries(cleaner.directory)
	cleaner.metrics.ScratchEntriesRemoved.Add(float64(removed))
	if err != nil {
		return removed, fmt.Errorf("removeEntries: %w", err)
	}
	if removed > 0 {
		cleaner.logger.InfoContext(ctx, "cleaned the scratch directory",
			"directory", cleaner.directory,
			"removed", removed,
		)
	}
	return removed, nil
}
