package inference

import (
	"encoding/json"
	"time"
)

// ChunkBlock is one streaming increment. Chunks sharing an ID belong to the
// same logical block and are concatenated in arrival order.
type ChunkBlock interface {
	ChunkID() string
}

// TextChunk is a fragment of a text block.
type TextChunk struct {
	ID   string
	Text string
}

// ToolCallChunk is a fragment of a tool call. RawName is set only on the
// chunk that introduces the call; later chunks append to RawArguments.
type ToolCallChunk struct {
	ID           string
	RawName      *string
	RawArguments string
}

// ThoughtChunk is a fragment of a reasoning block.
type ThoughtChunk struct {
	ID           string
	SummaryID    *string
	Text         *string
	SummaryText  *string
	Signature    *string
	ProviderType *string
}

// UnknownChunk carries a streaming frame or item the decoder did not recognize.
type UnknownChunk struct {
	ID           string
	Data         json.RawMessage
	ModelName    *string
	ProviderName *string
}

func (c TextChunk) ChunkID() string     { return c.ID }
func (c ToolCallChunk) ChunkID() string { return c.ID }
func (c ThoughtChunk) ChunkID() string  { return c.ID }
func (c UnknownChunk) ChunkID() string  { return c.ID }

// MarshalJSON encodes the chunk with its type tag.
func (c TextChunk) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Text string `json:"text"`
	}{BlockText, c.ID, c.Text})
}

// MarshalJSON encodes the chunk with its type tag. raw_name is omitted, not
// emptied, on continuation chunks.
func (c ToolCallChunk) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         string  `json:"type"`
		ID           string  `json:"id"`
		RawName      *string `json:"raw_name,omitempty"`
		RawArguments string  `json:"raw_arguments"`
	}{BlockToolCall, c.ID, c.RawName, c.RawArguments})
}

// MarshalJSON encodes the chunk with its type tag.
func (c ThoughtChunk) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         string  `json:"type"`
		ID           string  `json:"id"`
		SummaryID    *string `json:"summary_id,omitempty"`
		Text         *string `json:"text,omitempty"`
		SummaryText  *string `json:"summary_text,omitempty"`
		Signature    *string `json:"signature,omitempty"`
		ProviderType *string `json:"provider_type,omitempty"`
	}{BlockThought, c.ID, c.SummaryID, c.Text, c.SummaryText, c.Signature, c.ProviderType})
}

// MarshalJSON encodes the chunk with its type tag and provenance.
func (c UnknownChunk) MarshalJSON() ([]byte, error) {
	data := c.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return json.Marshal(struct {
		Type         string          `json:"type"`
		ID           string          `json:"id"`
		Data         json.RawMessage `json:"data"`
		ModelName    *string         `json:"model_name"`
		ProviderName *string         `json:"provider_name"`
	}{BlockUnknown, c.ID, data, c.ModelName, c.ProviderName})
}

// Chunk is one element of a canonical stream. A terminal chunk carries no
// content but the usage and finish reason of the inference.
type Chunk struct {
	Content      []ChunkBlock  `json:"content"`
	Usage        *Usage        `json:"usage,omitempty"`
	FinishReason *FinishReason `json:"finish_reason,omitempty"`
	RawResponse  string        `json:"raw_response"`
	Latency      time.Duration `json:"-"`
}

// MarshalJSON keeps an empty content list as [] rather than null.
func (c Chunk) MarshalJSON() ([]byte, error) {
	type alias Chunk
	out := alias(c)
	if out.Content == nil {
		out.Content = []ChunkBlock{}
	}
	return json.Marshal(struct {
		alias
		LatencyMs int64 `json:"latency_ms"`
	}{out, c.Latency.Milliseconds()})
}
