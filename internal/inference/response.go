package inference

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FinishReason explains why the model stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishStopSequence  FinishReason = "stop_sequence"
	FinishLength        FinishReason = "length"
	FinishToolCall      FinishReason = "tool_call"
	FinishContentFilter FinishReason = "content_filter"
	FinishUnknown       FinishReason = "unknown"
)

// Usage is token accounting. Either side may be missing because some
// providers omit usage while streaming.
type Usage struct {
	InputTokens  *uint32 `json:"input_tokens"`
	OutputTokens *uint32 `json:"output_tokens"`
}

// NewUsage builds a Usage from provider counters. Negative counters mean
// "not reported".
func NewUsage(input, output int64) Usage {
	var u Usage
	if input >= 0 {
		u.InputTokens = Ptr(uint32(input))
	}
	if output >= 0 {
		u.OutputTokens = Ptr(uint32(output))
	}
	return u
}

// Response is the canonical result of a non-streaming inference.
type Response struct {
	ID           uuid.UUID     `json:"id"`
	Output       []OutputBlock `json:"output"`
	Usage        Usage         `json:"usage"`
	FinishReason *FinishReason `json:"finish_reason,omitempty"`
	RawRequest   string        `json:"raw_request"`
	RawResponse  string        `json:"raw_response"`
	Latency      time.Duration `json:"-"`
}

// MarshalJSON keeps an empty output list as [] rather than null.
func (r Response) MarshalJSON() ([]byte, error) {
	type alias Response
	out := alias(r)
	if out.Output == nil {
		out.Output = []OutputBlock{}
	}
	return json.Marshal(struct {
		alias
		LatencyMs int64 `json:"latency_ms"`
	}{out, r.Latency.Milliseconds()})
}
