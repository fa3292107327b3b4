package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CacheBytes            prometheus.Gauge
	Purges                prometheus.Counter
	RestartFailures       prometheus.Counter
	ScratchEntriesRemoved prometheus.Counter
}

// NewMetrics registers the monitor metrics on registerer. Each registerer
// accepts them once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		CacheBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "telecloud_cache_bytes",
			Help: "Size of the Bot API server cache directory at the last measurement",
		}),
		Purges: factory.NewCounter(prometheus.CounterOpts{
			Name: "telecloud_cache_purges_total",
			Help: "Number of times the cache directory was emptied",
		}),
		RestartFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "telecloud_restart_failures_total",
			Help: "Number of failed Bot API server container restarts",
		}),
		ScratchEntriesRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "telecloud_scratch_entries_removed_total",
			Help: "Number of entries removed from the scratch directory",
		}),
	}
}
