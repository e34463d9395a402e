// Package metrics accumulates pipeline health and prediction accuracy
// counters. Counters are monotonic and reset only on process restart; derived
// ratios are recomputed on a fixed interval rather than per write to keep the
// hot path cheap.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EMA smoothing: avg = avg*0.9 + latency*0.1.
const latencyAlpha = 0.1

// Counter names used across the engine.
const (
	PredictionsTotal        = "predictions.total"
	PredictionsAccurate     = "predictions.accurate"
	OptimizationsTotal      = "optimizations.total"
	OptimizationsSuccessful = "optimizations.successful"
	PipelineProcessed       = "pipeline.processed"
	PipelineErrors          = "pipeline.errors"
	PipelineSkipped         = "pipeline.skipped"
)

// Snapshot is the read-only view handed to reporting collaborators.
type Snapshot struct {
	Counters     map[string]int64 `json:"counters"`
	LatencyAvgMs float64          `json:"latency_avg_ms"`
	Accuracy     float64          `json:"accuracy"`
	Efficiency   float64          `json:"efficiency"`
	GeneratedAt  string           `json:"generated_at"`
}

// Aggregator owns the counters and the smoothed pipeline latency. A
// prometheus mirror is registered so the same numbers are scrapeable.
type Aggregator struct {
	mu           sync.RWMutex
	counters     map[string]int64
	latencyAvgMs float64
	accuracy     float64
	efficiency   float64

	promCounters *prometheus.CounterVec
	promLatency  prometheus.Histogram
	promAccuracy prometheus.Gauge
	promEffic    prometheus.Gauge
}

// New builds an Aggregator and registers its prometheus mirror on reg.
// Pass a fresh prometheus.NewRegistry() in tests to avoid collisions.
func New(reg prometheus.Registerer) *Aggregator {
	a := &Aggregator{
		counters: make(map[string]int64),
		promCounters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "binsync_events_total",
			Help: "Monotonic engine counters, labeled by counter name.",
		}, []string{"name"}),
		promLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "binsync_pipeline_latency_seconds",
			Help:    "Per-tick pipeline latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		promAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "binsync_prediction_accuracy_percent",
			Help: "Share of collection predictions confirmed by sensors.",
		}),
		promEffic: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "binsync_optimization_efficiency_percent",
			Help: "Share of optimizations that paid off.",
		}),
	}
	if reg != nil {
		reg.MustRegister(a.promCounters, a.promLatency, a.promAccuracy, a.promEffic)
	}
	return a
}

// Inc bumps a named counter.
func (a *Aggregator) Inc(name string, delta int64) {
	a.mu.Lock()
	a.counters[name] += delta
	a.mu.Unlock()
	a.promCounters.WithLabelValues(name).Add(float64(delta))
}

// Counter reads one counter.
func (a *Aggregator) Counter(name string) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.counters[name]
}

// RecordLatency folds a pipeline tick's latency into the moving average.
func (a *Aggregator) RecordLatency(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000
	a.mu.Lock()
	a.latencyAvgMs = a.latencyAvgMs*(1-latencyAlpha) + ms*latencyAlpha
	a.mu.Unlock()
	a.promLatency.Observe(d.Seconds())
}

// LatencyAvgMs returns the current smoothed latency.
func (a *Aggregator) LatencyAvgMs() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latencyAvgMs
}

// RecomputeDerived refreshes accuracy and efficiency from the raw counters.
// Called on a maintenance interval, not on every write.
func (a *Aggregator) RecomputeDerived() {
	a.mu.Lock()
	a.accuracy = ratio(a.counters[PredictionsAccurate], a.counters[PredictionsTotal])
	a.efficiency = ratio(a.counters[OptimizationsSuccessful], a.counters[OptimizationsTotal])
	accuracy, efficiency := a.accuracy, a.efficiency
	a.mu.Unlock()
	a.promAccuracy.Set(accuracy)
	a.promEffic.Set(efficiency)
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Snapshot copies the current state for read-only consumers.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	counters := make(map[string]int64, len(a.counters))
	for k, v := range a.counters {
		counters[k] = v
	}
	return Snapshot{
		Counters:     counters,
		LatencyAvgMs: a.latencyAvgMs,
		Accuracy:     a.accuracy,
		Efficiency:   a.efficiency,
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}
