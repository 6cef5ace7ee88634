// Package monitoring - request_logger.go logs the provider call lifecycle.
//
// DESIGN: Structured logging for inference tracing at DEBUG level:
//   - LogOutgoing:  Request sent to provider
//   - LogResponse:  Response headers received
//   - LogStreamEnd: Stream finished or failed
package monitoring

import (
	"time"
)

// RequestLogger logs provider call lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// OutgoingRequestInfo contains outgoing request information.
type OutgoingRequestInfo struct {
	InferenceID string
	Provider    string
	TargetURL   string
	Method      string
	BodySize    int
	Stream      bool
}

// LogOutgoing logs an outgoing request.
func (rl *RequestLogger) LogOutgoing(info *OutgoingRequestInfo) {
	event := rl.logger.Debug().
		Str("inference_id", info.InferenceID).
		Str("provider", info.Provider).
		Str("url", info.TargetURL).
		Int("body_size", info.BodySize)
	if info.Stream {
		event = event.Bool("stream", true)
	}
	event.Msg("outgoing")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	InferenceID string
	StatusCode  int
	Latency     time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	rl.logger.Debug().
		Str("inference_id", info.InferenceID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency).
		Msg("response")
}

// StreamEndInfo contains the outcome of a stream.
type StreamEndInfo struct {
	InferenceID string
	Chunks      int
	Latency     time.Duration
	Err         error
}

// LogStreamEnd logs the end of a stream.
func (rl *RequestLogger) LogStreamEnd(info *StreamEndInfo) {
	event := rl.logger.Debug().
		Str("inference_id", info.InferenceID).
		Int("chunks", info.Chunks).
		Dur("latency", info.Latency)
	if info.Err != nil {
		event = event.Err(info.Err)
	}
	event.Msg("stream_end")
}
