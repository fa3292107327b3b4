package monitor

//go:generate mockgen -source=capacity.go -destination=mock_restarter.go -package=monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/dustin/go-humanize"
	"github.com/michael-freling/telecloud/internal/config"
)

type Restarter interface {
	Restart(ctx context.Context, name string) error
}

type State int32

const (
	StateIdle State = iota
	StateMeasuring
	StatePurging
	StateRestarting
)

func (state State) String() string {
	switch state {
	case StateIdle:
		return "idle"
	case StateMeasuring:
		return "measuring"
	case StatePurging:
		return "purging"
	case StateRestarting:
		return "restarting"
	}
	return fmt.Sprintf("State(%d)", int32(state))
}

// Cycle describes what one RunCycle call did.
type Cycle struct {
	SizeBytes int64
	Purged    bool
	Restarted bool
}

// CapacityMonitor keeps the Bot API server cache directory under a ceiling.
// Once the ceiling is exceeded, the directory is emptied and the container
// serving it is restarted so that it forgets the removed files.
type CapacityMonitor struct {
	logger        *slog.Logger
	restarter     Restarter
	metrics       *Metrics
	directory     string
	ceilingBytes  int64
	interval      time.Duration
	containerName string

	state atomic.Int32
}

func NewCapacityMonitor(
	logger *slog.Logger,
	conf config.MonitorConfig,
	restarter Restarter,
	metrics *Metrics,
) *CapacityMonitor {
	return &CapacityMonitor{
		logger:        logger,
		restarter:     restarter,
		metrics:       metrics,
		directory:     conf.CacheDirectory,
		ceilingBytes:  conf.CeilingBytes,
		interval:      conf.Interval,
		containerName: conf.ContainerName,
	}
}

func (monitor *CapacityMonitor) State() State {
	return State(monitor.state.Load())
}

func (monitor *CapacityMonitor) setState(state State) {
	monitor.state.Store(int32(state))
}

// Run measures the cache at start and then every interval until ctx is done.
func (monitor *CapacityMonitor) Run(ctx context.Context) error {
	monitor.logger.InfoContext(ctx, "started the capacity monitor",
		"directory", monitor.directory,
		"ceiling", humanize.IBytes(uint64(monitor.ceilingBytes)),
		"interval", monitor.interval,
	)
	ticker := time.NewTicker(monitor.interval)
	defer ticker.Stop()

	for {
		if _, err := monitor.RunCycle(ctx); err != nil {
			monitor.logger.ErrorContext(ctx, "capacity check failed",
				"directory", monitor.directory,
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

// RunCycle measures the cache directory and purges it when it is over the
// ceiling. A failed restart is logged and counted but not returned, and the
// next cycle does not retry it.
func (monitor *CapacityMonitor) RunCycle(ctx context.Context) (Cycle, error) {
	defer monitor.setState(StateIdle)

	monitor.setState(StateMeasuring)
	size, err := directorySize(monitor.directory)
	if err != nil {
		return Cycle{}, fmt.Errorf("directorySize: %w", err)
	}
	monitor.metrics.CacheBytes.Set(float64(size))
	cycle := Cycle{SizeBytes: size}
	if size <= monitor.ceilingBytes {
		monitor.logger.DebugContext(ctx, "the cache is under the ceiling",
			"size", humanize.IBytes(uint64(size)),
		)
		return cycle, nil
	}

	monitor.logger.InfoContext(ctx, "the cache exceeded the ceiling, purging it",
		"directory", monitor.directory,
		"size", humanize.IBytes(uint64(size)),
		"ceiling", humanize.IBytes(uint64(monitor.ceilingBytes)),
	)
	monitor.setState(StatePurging)
	if _, err := removeEntries(monitor.directory); err != nil {
		return cycle, fmt.Errorf("removeEntries: %w", err)
	}
	monitor.metrics.Purges.Inc()
	monitor.metrics.CacheBytes.Set(0)
	cycle.Purged = true

	monitor.setState(StateRestarting)
	if err := monitor.restarter.Restart(ctx, monitor.containerName); err != nil {
		monitor.metrics.RestartFailures.Inc()
		monitor.logger.ErrorContext(ctx, "failed to restart the container",
			"container", monitor.containerName,
			"error", err,
		)
		return cycle, nil
	}
	cycle.Restarted = true
	monitor.logger.InfoContext(ctx, "restarted the container",
		"container", monitor.containerName,
	)
	return cycle, nil
}

// directorySize sums the sizes of regular files below directory. A missing
// directory is empty.
func directorySize(directory string) (int64, error) {
	if _, err := os.Stat(directory); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("os.Stat: %w", err)
	}

	var total atomic.Int64
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// files can disappear while the server is running
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("d.Info: %w", err)
		}
		total.Add(info.Size())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("fastwalk.Walk: %w", err)
	}
	return total.Load(), nil
}

// removeEntries removes everything inside directory but keeps directory.
func removeEntries(directory string) (int, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("os.ReadDir: %w", err)
	}

	removed := 0
	errs := make([]error, 0)
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(directory, entry.Name())); err != nil {
			errs = append(errs, fmt.Errorf("os.RemoveAll: %w", err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
