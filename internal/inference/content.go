// Package inference defines the canonical inference model shared by every
// provider adapter.
//
// DESIGN: Content is modelled as closed tagged unions. Every union has one
// catch-all arm (Unknown / UnknownChunk) that carries the raw provider JSON, so
// a shape the gateway does not understand is preserved instead of rejected.
//
// TYPES:
//   - InputBlock:  request-side content (Text, ToolCall, ToolResult, File, Thought, Unknown)
//   - OutputBlock: final response content (Text, ToolCall, Thought, Unknown)
//   - ChunkBlock:  streaming increments (TextChunk, ToolCallChunk, ThoughtChunk, UnknownChunk)
//
// The JSON shape of every block is a contract with downstream consumers: each
// block carries a "type" tag and optional fields are omitted when absent.
package inference

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Block type tags used in the canonical JSON encoding.
const (
	BlockText       = "text"
	BlockToolCall   = "tool_call"
	BlockToolResult = "tool_result"
	BlockFile       = "file"
	BlockThought    = "thought"
	BlockUnknown    = "unknown"
)

// InputBlock is a content block inside a request message.
type InputBlock interface {
	inputBlock()
}

// OutputBlock is a content block inside a final response.
type OutputBlock interface {
	outputBlock()
}

// =============================================================================
// BLOCKS
// =============================================================================

// Text is plain text content.
type Text struct {
	Text string
}

// ToolCall is a model's request to invoke a tool. Arguments is the fully
// assembled argument string exactly as the provider produced it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResult is the output of a tool invocation, sent back on a user turn.
type ToolResult struct {
	ID     string
	Name   string
	Result string
}

// File is a file attachment. Either Data (base64) or URL is set.
type File struct {
	URL      string
	MimeType string
	Data     string
	Filename string
}

// ThoughtSummary is one summary paragraph of a reasoning block.
type ThoughtSummary struct {
	Text string `json:"text"`
}

// Thought is model reasoning. Signature is an opaque provider credential
// (e.g. encrypted reasoning) that must be echoed back verbatim.
type Thought struct {
	Text         *string
	Signature    *string
	Summary      []ThoughtSummary
	ProviderType *string
}

// Empty reports whether the thought carries nothing worth storing.
func (t Thought) Empty() bool {
	return (t.Text == nil || *t.Text == "") && (t.Signature == nil || *t.Signature == "") && len(t.Summary) == 0
}

// Unknown is a provider shape the gateway did not recognize, kept verbatim
// together with the model and provider that produced it.
type Unknown struct {
	Data         json.RawMessage
	ModelName    *string
	ProviderName *string
}

// Matches reports whether the block may be replayed to the given target.
// Blocks without provenance match every target.
func (u Unknown) Matches(modelName, providerName string) bool {
	if u.ModelName != nil && *u.ModelName != modelName {
		return false
	}
	if u.ProviderName != nil && *u.ProviderName != providerName {
		return false
	}
	return true
}

func (Text) inputBlock()       {}
func (ToolCall) inputBlock()   {}
func (ToolResult) inputBlock() {}
func (File) inputBlock()       {}
func (Thought) inputBlock()    {}
func (Unknown) inputBlock()    {}

func (Text) outputBlock()     {}
func (ToolCall) outputBlock() {}
func (Thought) outputBlock()  {}
func (Unknown) outputBlock()  {}

// =============================================================================
// JSON ENCODING
// =============================================================================

// MarshalJSON encodes the block with its type tag.
func (t Text) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{BlockText, t.Text})
}

// MarshalJSON encodes the block with its type tag.
func (tc ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string `json:"type"`
		ID        string `json:"id"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	}{BlockToolCall, tc.ID, tc.Name, tc.Arguments})
}

// MarshalJSON encodes the block with its type tag.
func (tr ToolResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Name   string `json:"name"`
		Result string `json:"result"`
	}{BlockToolResult, tr.ID, tr.Name, tr.Result})
}

// MarshalJSON encodes the block with its type tag.
func (f File) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		URL      string `json:"url,omitempty"`
		MimeType string `json:"mime_type,omitempty"`
		Data     string `json:"data,omitempty"`
		Filename string `json:"filename,omitempty"`
	}{BlockFile, f.URL, f.MimeType, f.Data, f.Filename})
}

// MarshalJSON encodes the block with its type tag.
func (t Thought) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         string           `json:"type"`
		Text         *string          `json:"text,omitempty"`
		Signature    *string          `json:"signature,omitempty"`
		Summary      []ThoughtSummary `json:"summary,omitempty"`
		ProviderType *string          `json:"provider_type,omitempty"`
	}{BlockThought, t.Text, t.Signature, t.Summary, t.ProviderType})
}

// MarshalJSON encodes the block with its type tag. Provenance fields are
// always present (null when unknown).
func (u Unknown) MarshalJSON() ([]byte, error) {
	data := u.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return json.Marshal(struct {
		Type         string          `json:"type"`
		Data         json.RawMessage `json:"data"`
		ModelName    *string         `json:"model_name"`
		ProviderName *string         `json:"provider_name"`
	}{BlockUnknown, data, u.ModelName, u.ProviderName})
}

// DecodeInputBlock decodes one canonical input block from its tagged JSON form.
func DecodeInputBlock(data []byte) (InputBlock, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid content block JSON")
	}
	typ := gjson.GetBytes(data, "type").String()
	switch typ {
	case BlockText:
		var v struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode text block: %w", err)
		}
		return Text{Text: v.Text}, nil
	case BlockToolCall:
		var v struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode tool_call block: %w", err)
		}
		return ToolCall{ID: v.ID, Name: v.Name, Arguments: v.Arguments}, nil
	case BlockToolResult:
		var v struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Result string `json:"result"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode tool_result block: %w", err)
		}
		return ToolResult{ID: v.ID, Name: v.Name, Result: v.Result}, nil
	case BlockFile:
		var v struct {
			URL      string `json:"url"`
			MimeType string `json:"mime_type"`
			Data     string `json:"data"`
			Filename string `json:"filename"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode file block: %w", err)
		}
		return File{URL: v.URL, MimeType: v.MimeType, Data: v.Data, Filename: v.Filename}, nil
	case BlockThought:
		var v struct {
			Text         *string          `json:"text"`
			Signature    *string          `json:"signature"`
			Summary      []ThoughtSummary `json:"summary"`
			ProviderType *string          `json:"provider_type"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode thought block: %w", err)
		}
		return Thought{Text: v.Text, Signature: v.Signature, Summary: v.Summary, ProviderType: v.ProviderType}, nil
	case BlockUnknown:
		var v struct {
			Data         json.RawMessage `json:"data"`
			ModelName    *string         `json:"model_name"`
			ProviderName *string         `json:"provider_name"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode unknown block: %w", err)
		}
		return Unknown{Data: v.Data, ModelName: v.ModelName, ProviderName: v.ProviderName}, nil
	default:
		return nil, fmt.Errorf("unsupported content block type %q", typ)
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
