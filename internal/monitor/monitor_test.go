package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/michael-freling/telecloud/internal/config"
	"github.com/michael-freling/telecloud/internal/xlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testContainerName = "telegram-bot-api"

func writeFiles(t *testing.T, directory string, files map[string]int) {
	t.Helper()

	for path, size := range files {
		fullPath := filepath.Join(directory, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
		require.NoError(t, os.WriteFile(fullPath, make([]byte, size), 0644))
	}
}

func metricValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		metric := family.GetMetric()[0]
		if metric.GetGauge() != nil {
			return metric.GetGauge().GetValue()
		}
		return metric.GetCounter().GetValue()
	}
	t.Fatalf("metric %s is not registered", name)
	return 0
}

func TestCapacityMonitor_RunCycle(t *testing.T) {
	testCases := []struct {
		name          string
		files         map[string]int
		removeCache   bool
		ceilingBytes  int64
		restartErr    error
		wantCycle     Cycle
		wantRemaining int
		wantRestarts  int
		wantFailures  float64
	}{
		{
			name: "over the ceiling",
			files: map[string]int{
				"123:secret/documents/file_1.bin": 600,
				"123:secret/documents/file_2.bin": 600,
				"temp/upload.part":                10,
			},
			ceilingBytes:  1000,
			wantCycle:     Cycle{SizeBytes: 1210, Purged: true, Restarted: true},
			wantRemaining: 0,
			wantRestarts:  1,
		},
		{
			name: "at the ceiling",
			files: map[string]int{
				"123:secret/documents/file_1.bin": 500,
				"123:secret/documents/file_2.bin": 500,
			},
			ceilingBytes:  1000,
			wantCycle:     Cycle{SizeBytes: 1000},
			wantRemaining: 1,
		},
		{
			name:         "the directory does not exist",
			removeCache:  true,
			ceilingBytes: 1000,
			wantCycle:    Cycle{},
		},
		{
			name: "a failed restart is counted",
			files: map[string]int{
				"file_1.bin": 2000,
			},
			ceilingBytes:  1000,
			restartErr:    errors.New("connection refused"),
			wantCycle:     Cycle{SizeBytes: 2000, Purged: true},
			wantRemaining: 0,
			wantRestarts:  1,
			wantFailures:  1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cacheDirectory := filepath.Join(t.TempDir(), "cache")
			require.NoError(t, os.MkdirAll(cacheDirectory, 0755))
			writeFiles(t, cacheDirectory, tc.files)
			if tc.removeCache {
				require.NoError(t, os.RemoveAll(cacheDirectory))
			}

			mockController := gomock.NewController(t)
			restarter := NewMockRestarter(mockController)
			registry := prometheus.NewRegistry()
			monitor := NewCapacityMonitor(xlog.Nop(), config.MonitorConfig{
				CacheDirectory: cacheDirectory,
				CeilingBytes:   tc.ceilingBytes,
				Interval:       time.Hour,
				ContainerName:  testContainerName,
			}, restarter, NewMetrics(registry))

			restarter.EXPECT().
				Restart(gomock.Any(), testContainerName).
				DoAndReturn(func(ctx context.Context, name string) error {
					assert.Equal(t, StateRestarting, monitor.State())
					return tc.restartErr
				}).
				Times(tc.wantRestarts)

			got, err := monitor.RunCycle(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.wantCycle, got)
			assert.Equal(t, StateIdle, monitor.State())
			assert.Equal(t, tc.wantFailures, metricValue(t, registry, "telecloud_restart_failures_total"))

			if tc.removeCache {
				return
			}
			entries, err := os.ReadDir(cacheDirectory)
			require.NoError(t, err)
			assert.Len(t, entries, tc.wantRemaining)
			assert.Equal(t, float64(tc.wantRestarts), metricValue(t, registry, "telecloud_cache_purges_total"))
		})
	}
}

func TestCapacityMonitor_Run(t *testing.T) {
	cacheDirectory := t.TempDir()
	writeFiles(t, cacheDirectory, map[string]int{
		"file_1.bin": 2000,
	})

	mockController := gomock.NewController(t)
	restarter := NewMockRestarter(mockController)
	monitor := NewCapacityMonitor(xlog.Nop(), config.MonitorConfig{
		CacheDirectory: cacheDirectory,
		CeilingBytes:   1000,
		Interval:       time.Hour,
		ContainerName:  testContainerName,
	}, restarter, NewMetrics(prometheus.NewRegistry()))

	ctx, cancel := context.WithCancel(context.Background())
	restarter.EXPECT().
		Restart(gomock.Any(), testContainerName).
		DoAndReturn(func(context.Context, string) error {
			cancel()
			return nil
		}).
		Times(1)

	done := make(chan error)
	go func() {
		done <- monitor.Run(ctx)
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after the context was canceled")
	}

	entries, err := os.ReadDir(cacheDirectory)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScratchCleaner_Clean(t *testing.T) {
	testCases := []struct {
		name        string
		files       map[string]int
		missing     bool
		wantRemoved int
	}{
		{
			name: "files and directories",
			files: map[string]int{
				"8d3e.mp4":      10,
				"b1c2.pdf":      10,
				"nested/a.part": 10,
			},
			wantRemoved: 3,
		},
		{
			name:        "empty",
			wantRemoved: 0,
		},
		{
			name:        "missing",
			missing:     true,
			wantRemoved: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			directory := filepath.Join(t.TempDir(), "scratch")
			require.NoError(t, os.MkdirAll(directory, 0755))
			writeFiles(t, directory, tc.files)
			if tc.missing {
				require.NoError(t, os.RemoveAll(directory))
			}

			registry := prometheus.NewRegistry()
			cleaner := NewScratchCleaner(xlog.Nop(), directory, time.Minute, NewMetrics(registry))
			got, err := cleaner.Clean(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.wantRemoved, got)
			assert.Equal(t, float64(tc.wantRemoved), metricValue(t, registry, "telecloud_scratch_entries_removed_total"))

			if tc.missing {
				return
			}
			entries, err := os.ReadDir(directory)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}
