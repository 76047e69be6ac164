// metrics.go - Metrics collection for the settlement daemon.
package main

import (
	"sync"
	"time"
)

// Predefined metric names.
const (
	MetricDepositCount    = "deposit_count"
	MetricWithdrawCount   = "withdraw_count"
	MetricLockCount       = "lock_count"
	MetricUnlockCount     = "unlock_count"
	MetricSettlementCount = "settlement_count"
	MetricErrorCount      = "error_count"
	MetricNullifierCount  = "nullifier_count"
	MetricRequestLatency  = "request_latency_seconds"
)

// histogramCap bounds the samples kept per histogram.
const histogramCap = 1000

// MetricsCollector gathers operation counters, gauges and latency
// histograms for the /metrics endpoint.
type MetricsCollector struct {
	mu         sync.RWMutex
	startTime  time.Time
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime:  time.Now(),
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// IncrementCounter adds one to the named counter.
func (mc *MetricsCollector) IncrementCounter(name string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters[name]++
}

// SetGauge sets the named gauge.
func (mc *MetricsCollector) SetGauge(name string, value float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.gauges[name] = value
}

// RecordHistogram appends a sample, keeping the newest histogramCap
// values.
func (mc *MetricsCollector) RecordHistogram(name string, value float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	samples := append(mc.histograms[name], value)
	if len(samples) > histogramCap {
		samples = samples[len(samples)-histogramCap:]
	}
	mc.histograms[name] = samples
}

// CounterValue reads one counter, zero when never incremented.
func (mc *MetricsCollector) CounterValue(name string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[name]
}

// Summary renders all metrics for the /metrics endpoint.
func (mc *MetricsCollector) Summary() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	counters := make(map[string]int64, len(mc.counters))
	for name, v := range mc.counters {
		counters[name] = v
	}

	gauges := make(map[string]float64, len(mc.gauges))
	for name, v := range mc.gauges {
		gauges[name] = v
	}

	histograms := make(map[string]map[string]float64, len(mc.histograms))
	for name, samples := range mc.histograms {
		if len(samples) == 0 {
			continue
		}
		stats := map[string]float64{
			"count": float64(len(samples)),
			"min":   samples[0],
			"max":   samples[0],
			"sum":   0,
		}
		for _, v := range samples {
			if v < stats["min"] {
				stats["min"] = v
			}
			if v > stats["max"] {
				stats["max"] = v
			}
			stats["sum"] += v
		}
		stats["avg"] = stats["sum"] / stats["count"]
		histograms[name] = stats
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(mc.startTime).Seconds(),
		"counters":       counters,
		"gauges":         gauges,
		"histograms":     histograms,
	}
}

// RecordOperation counts one completed operation and its latency.
func (mc *MetricsCollector) RecordOperation(name string, duration time.Duration) {
	mc.IncrementCounter(name)
	mc.RecordHistogram(MetricRequestLatency, duration.Seconds())
}

// RecordError counts one failed operation.
func (mc *MetricsCollector) RecordError() {
	mc.IncrementCounter(MetricErrorCount)
}
