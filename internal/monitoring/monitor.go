// Package monitoring - monitor.go bundles the monitoring components.
//
// DESIGN: The gateway client takes one *Monitor and reports each inference
// through Observe; the Monitor fans the event out to telemetry, metrics and
// alerts.
package monitoring

import "time"

// Config configures every monitoring component.
type Config struct {
	Logger    LoggerConfig
	Telemetry TelemetryConfig
	Alerts    AlertConfig
}

// Monitor bundles logger, telemetry, metrics and alerts.
type Monitor struct {
	Logger   *Logger
	Tracker  *Tracker
	Metrics  *MetricsCollector
	Alerts   *AlertManager
	Requests *RequestLogger
}

// NewMonitor builds all monitoring components from cfg.
func NewMonitor(cfg Config) (*Monitor, error) {
	logger := New(cfg.Logger)
	tracker, err := NewTracker(cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		Logger:   logger,
		Tracker:  tracker,
		Metrics:  NewMetricsCollector(),
		Alerts:   NewAlertManager(logger, cfg.Alerts),
		Requests: NewRequestLogger(logger),
	}, nil
}

// NewNopMonitor returns a monitor that discards logs and records no telemetry.
func NewNopMonitor() *Monitor {
	m, _ := NewMonitor(Config{Logger: LoggerConfig{Level: "disabled", Output: "discard"}})
	return m
}

// Observe records a finished inference.
func (m *Monitor) Observe(event *InferenceEvent) {
	latency := time.Duration(event.LatencyMs) * time.Millisecond
	m.Metrics.RecordInference(event.Success, event.Stream, latency)
	m.Metrics.RecordUsage(event.InputTokens, event.OutputTokens)
	m.Alerts.FlagHighLatency(event.InferenceID, latency, event.Provider)
	m.Tracker.RecordInference(event)
}

// Close flushes telemetry.
func (m *Monitor) Close() error {
	return m.Tracker.Close()
}
