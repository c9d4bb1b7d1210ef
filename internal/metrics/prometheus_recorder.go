package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	cycles        *prom.CounterVec
	cycleDuration *prom.HistogramVec
	discovered    *prom.CounterVec
	orphans       prom.Counter
	evicted       prom.Counter
	cacheSize     prom.Gauge
}

// NewPrometheusRecorder constructs and registers engine metrics on reg.
// A nil registry gets its own private one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}

	pr := &PrometheusRecorder{
		cycles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "recentws",
			Name:      "scan_cycles_total",
			Help:      "Scan cycles run, by kind",
		}, []string{"kind"}),
		cycleDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "recentws",
			Name:      "scan_cycle_duration_seconds",
			Help:      "Duration of scan cycles",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"}),
		discovered: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "recentws",
			Name:      "workspaces_discovered_total",
			Help:      "Workspace records ingested, by editor",
		}, []string{"editor"}),
		orphans: prom.NewCounter(prom.CounterOpts{
			Namespace: "recentws",
			Name:      "orphans_archived_total",
			Help:      "Orphaned store records archived",
		}),
		evicted: prom.NewCounter(prom.CounterOpts{
			Namespace: "recentws",
			Name:      "cache_evictions_total",
			Help:      "Workspace records evicted from the cache",
		}),
		cacheSize: prom.NewGauge(prom.GaugeOpts{
			Namespace: "recentws",
			Name:      "cache_size",
			Help:      "Current number of cached workspace records",
		}),
	}

	reg.MustRegister(pr.cycles, pr.cycleDuration, pr.discovered, pr.orphans, pr.evicted, pr.cacheSize)
	return pr
}

func (p *PrometheusRecorder) IncCycle(kind string) {
	p.cycles.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) ObserveCycleDuration(kind string, d time.Duration) {
	p.cycleDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddDiscovered(editor string, n int) {
	if n > 0 {
		p.discovered.WithLabelValues(editor).Add(float64(n))
	}
}

func (p *PrometheusRecorder) IncOrphanArchived() {
	p.orphans.Inc()
}

func (p *PrometheusRecorder) IncEvicted(n int) {
	if n > 0 {
		p.evicted.Add(float64(n))
	}
}

func (p *PrometheusRecorder) SetCacheSize(n int) {
	p.cacheSize.Set(float64(n))
}
