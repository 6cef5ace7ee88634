// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - inferences/successes: Total and successful inference counts
//   - streams:              Inferences served as streams
//   - input/output_tokens:  Provider-reported token usage
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	inferences   atomic.Int64
	successes    atomic.Int64
	streams      atomic.Int64
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordInference records an inference.
func (mc *MetricsCollector) RecordInference(success, stream bool, _ time.Duration) {
	mc.inferences.Add(1)
	if success {
		mc.successes.Add(1)
	}
	if stream {
		mc.streams.Add(1)
	}
}

// RecordUsage adds provider-reported token counts. Absent counts are skipped.
func (mc *MetricsCollector) RecordUsage(input, output *uint32) {
	if input != nil {
		mc.inputTokens.Add(int64(*input))
	}
	if output != nil {
		mc.outputTokens.Add(int64(*output))
	}
}

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"inferences":    mc.inferences.Load(),
		"successes":     mc.successes.Load(),
		"streams":       mc.streams.Load(),
		"input_tokens":  mc.inputTokens.Load(),
		"output_tokens": mc.outputTokens.Load(),
	}
}
