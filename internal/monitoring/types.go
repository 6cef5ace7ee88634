// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - InferenceEvent:  Telemetry data for each inference
//   - FailedInference: Raw exchange of an inference that failed
//   - Config types:    TelemetryConfig, LoggerConfig, AlertConfig
package monitoring

import "time"

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// InferenceEvent captures one inference through the gateway.
type InferenceEvent struct {
	InferenceID      string    `json:"inference_id"`
	Timestamp        time.Time `json:"timestamp"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model,omitempty"`
	Stream           bool      `json:"stream"`
	RequestBodySize  int       `json:"request_body_size"`
	ResponseBodySize int       `json:"response_body_size"`
	StatusCode       int       `json:"status_code"`
	Chunks           int       `json:"chunks,omitempty"`
	FinishReason     string    `json:"finish_reason,omitempty"`
	Success          bool      `json:"success"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	Error            string    `json:"error,omitempty"`
	LatencyMs        int64     `json:"latency_ms"`
	// Usage reported by the provider (absent counts are omitted)
	InputTokens  *uint32 `json:"input_tokens,omitempty"`
	OutputTokens *uint32 `json:"output_tokens,omitempty"`
}

// FailedInference captures the raw exchange of a failed inference for
// debugging provider protocol issues.
type FailedInference struct {
	InferenceID string    `json:"inference_id"`
	Timestamp   time.Time `json:"timestamp"`
	Provider    string    `json:"provider"`
	ErrorKind   string    `json:"error_kind"`
	Error       string    `json:"error"`
	StatusCode  int       `json:"status_code,omitempty"`
	RawRequest  string    `json:"raw_request,omitempty"`
	RawResponse string    `json:"raw_response,omitempty"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled              bool   `yaml:"enabled"`
	LogPath              string `yaml:"log_path"`
	LogToStdout          bool   `yaml:"log_to_stdout"`
	FailedRequestLogPath string `yaml:"failed_request_log_path"`
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}
