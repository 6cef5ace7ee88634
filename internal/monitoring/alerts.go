// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:       Warn when an inference exceeds threshold
//   - FlagProviderError:     Warn on upstream 4xx/5xx responses
//   - FlagProtocolViolation: Error when a provider breaks its wire protocol
//   - FlagUpstreamTimeout:   Error when the provider call times out
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 30 * time.Second
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when inference latency exceeds threshold.
func (am *AlertManager) FlagHighLatency(inferenceID string, latency time.Duration, provider string) {
	if latency < am.highLatencyThreshold {
		return
	}
	am.logger.Warn().
		Str("inference_id", inferenceID).
		Dur("latency", latency).
		Str("provider", provider).
		Msg("high_latency")
}

// FlagProviderError logs upstream provider error.
func (am *AlertManager) FlagProviderError(inferenceID, provider string, statusCode int, errorMsg string) {
	am.logger.Warn().
		Str("inference_id", inferenceID).
		Str("provider", provider).
		Int("status", statusCode).
		Str("error", errorMsg).
		Msg("provider_error")
}

// FlagProtocolViolation logs a response or stream the adapter rejected.
func (am *AlertManager) FlagProtocolViolation(inferenceID, provider string, err error) {
	am.logger.Error().
		Str("inference_id", inferenceID).
		Str("provider", provider).
		Err(err).
		Msg("protocol_violation")
}

// FlagUpstreamTimeout logs upstream timeout.
func (am *AlertManager) FlagUpstreamTimeout(inferenceID, provider string, timeout time.Duration) {
	am.logger.Error().
		Str("inference_id", inferenceID).
		Str("provider", provider).
		Dur("timeout", timeout).
		Msg("upstream_timeout")
}
