// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker writes structured events as JSONL (one JSON object per line):
//   - InferenceEvent:  Every inference through the gateway
//   - FailedInference: Raw request/response of failed inferences (debug aid)
//
// Events are appended to files immediately after each event for real-time logging.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to file and stdout.
type Tracker struct {
	config        TelemetryConfig
	eventLogPath  string
	failedLogPath string
	eventCount    int
	failedCount   int
	mu            sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{
		config: cfg,
	}

	if !cfg.Enabled {
		return t, nil
	}

	var err error
	if t.eventLogPath, err = prepareLogFile(cfg.LogPath); err != nil {
		return nil, err
	}
	if t.failedLogPath, err = prepareLogFile(cfg.FailedRequestLogPath); err != nil {
		return nil, err
	}
	return t, nil
}

// prepareLogFile ensures the directory exists and creates an empty file.
func prepareLogFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if f, err := os.Create(path); err == nil {
			f.Close()
		}
	}
	return path, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// RecordInference records an inference event.
func (t *Tracker) RecordInference(event *InferenceEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Log summary to stdout if enabled
	if t.config.LogToStdout {
		id := event.InferenceID
		if len(id) > 8 {
			id = id[:8]
		}
		log.Info().
			Str("inference_id", id).
			Str("provider", event.Provider).
			Bool("stream", event.Stream).
			Int64("latency_ms", event.LatencyMs).
			Bool("success", event.Success).
			Msg("telemetry")
	}

	if t.eventLogPath != "" {
		if err := appendJSONL(t.eventLogPath, event); err != nil {
			log.Error().Err(err).Str("path", t.eventLogPath).Msg("telemetry: failed to write inference event")
		} else {
			t.eventCount++
		}
	}
}

// FailedLogEnabled returns true if failed-inference logging is enabled.
func (t *Tracker) FailedLogEnabled() bool {
	return t.config.Enabled && t.failedLogPath != ""
}

// RecordFailure logs the raw exchange of a failed inference.
func (t *Tracker) RecordFailure(failure FailedInference) {
	if !t.FailedLogEnabled() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendJSONL(t.failedLogPath, failure); err != nil {
		log.Error().Err(err).Str("path", t.failedLogPath).Msg("telemetry: failed to write failed inference")
	} else {
		t.failedCount++
	}
}

// Close logs a session summary.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.eventLogPath != "" && t.eventCount > 0 {
		log.Info().
			Str("path", t.eventLogPath).
			Int("events", t.eventCount).
			Int("failures", t.failedCount).
			Msg("telemetry: session complete")
	}

	return nil
}
