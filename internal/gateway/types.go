// Package gateway types - types for one inference through the client.
//
// DESIGN: Types used by the gateway for:
//   - Carrying a resolved inference (provider, adapter, target, wire request)
//   - Reporting it to monitoring once it finishes
//
// Types are defined here to avoid circular imports and provide clear contracts.
package gateway

import (
	"time"

	"github.com/google/uuid"

	"github.com/compresr/inference-gateway/internal/adapters"
	"github.com/compresr/inference-gateway/internal/config"
	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/monitoring"
)

// InferenceContext carries one inference from routing to completion.
type InferenceContext struct {
	// Inference identity
	ID     uuid.UUID
	Stream bool

	// Provider info
	ProviderName string
	Provider     config.ProviderConfig
	Adapter      adapters.Adapter
	Target       adapters.Target

	// Wire data
	Wire       *adapters.WireRequest
	RawRequest string
	StartedAt  time.Time
}

// newInferenceContext resolves the request ID, assigning one when unset.
func newInferenceContext(name string, provider config.ProviderConfig, adapter adapters.Adapter, req *inference.Request, stream bool) *InferenceContext {
	id := req.InferenceID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &InferenceContext{
		ID:           id,
		Stream:       stream,
		ProviderName: name,
		Provider:     provider,
		Adapter:      adapter,
		StartedAt:    time.Now(),
		Target: adapters.Target{
			ProviderName:         name,
			ModelName:            provider.Model,
			Model:                provider.Model,
			APIBase:              provider.GetEndpoint(name),
			Region:               provider.Region,
			DiscardUnknownChunks: provider.DiscardUnknownChunks,
		},
	}
}

// event builds the telemetry record for this inference.
func (ic *InferenceContext) event(statusCode int, responseSize int, err error) *monitoring.InferenceEvent {
	ev := &monitoring.InferenceEvent{
		InferenceID:      ic.ID.String(),
		Timestamp:        ic.StartedAt,
		Provider:         ic.ProviderName,
		Model:            ic.Target.Model,
		Stream:           ic.Stream,
		ResponseBodySize: responseSize,
		StatusCode:       statusCode,
		Success:          err == nil,
		LatencyMs:        time.Since(ic.StartedAt).Milliseconds(),
	}
	if ic.Wire != nil {
		ev.RequestBodySize = len(ic.Wire.Body)
	}
	if err != nil {
		ev.Error = err.Error()
		if e, ok := inference.AsError(err); ok {
			ev.ErrorKind = string(e.Kind)
		}
	}
	return ev
}

// failure builds the failed-inference record for err.
func (ic *InferenceContext) failure(err error) monitoring.FailedInference {
	f := monitoring.FailedInference{
		InferenceID: ic.ID.String(),
		Timestamp:   ic.StartedAt,
		Provider:    ic.ProviderName,
		Error:       err.Error(),
		RawRequest:  ic.RawRequest,
	}
	if e, ok := inference.AsError(err); ok {
		f.ErrorKind = string(e.Kind)
		f.StatusCode = e.StatusCode
		f.RawResponse = e.RawResponse
		if e.RawRequest != "" {
			f.RawRequest = e.RawRequest
		}
	}
	return f
}
