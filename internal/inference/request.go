package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation history.
type Message struct {
	Role    Role
	Content []InputBlock
}

// MarshalJSON encodes the message with tagged content blocks.
func (m Message) MarshalJSON() ([]byte, error) {
	content := m.Content
	if content == nil {
		content = []InputBlock{}
	}
	return json.Marshal(struct {
		Role    Role         `json:"role"`
		Content []InputBlock `json:"content"`
	}{m.Role, content})
}

// UnmarshalJSON accepts either a plain string (a single Text block) or an
// array of tagged content blocks.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	switch raw.Role {
	case RoleUser, RoleAssistant:
	default:
		return fmt.Errorf("unsupported message role %q", raw.Role)
	}
	m.Role = raw.Role
	m.Content = nil

	content := gjson.ParseBytes(raw.Content)
	switch {
	case content.Type == gjson.String:
		m.Content = []InputBlock{Text{Text: content.String()}}
	case content.IsArray():
		for i, item := range content.Array() {
			block, err := DecodeInputBlock([]byte(item.Raw))
			if err != nil {
				return fmt.Errorf("message content[%d]: %w", i, err)
			}
			m.Content = append(m.Content, block)
		}
	case len(raw.Content) == 0 || content.Type == gjson.Null:
	default:
		return fmt.Errorf("message content must be a string or an array")
	}
	return nil
}

// JSONMode controls whether the model is asked for JSON output.
type JSONMode string

const (
	JSONModeOff    JSONMode = "off"
	JSONModeOn     JSONMode = "on"
	JSONModeStrict JSONMode = "strict"
)

// ExtraBodyReplacement overrides one dotted path of the built provider body.
// Delete removes the path instead of setting Value.
type ExtraBodyReplacement struct {
	Path   string          `json:"path"`
	Value  json.RawMessage `json:"value,omitempty"`
	Delete bool            `json:"delete,omitempty"`
}

// Request is the canonical input of one inference. Adapters treat it as
// read-only.
type Request struct {
	InferenceID uuid.UUID `json:"inference_id"`
	System      *string   `json:"system,omitempty"`
	Messages    []Message `json:"messages"`

	Temperature      *float32 `json:"temperature,omitempty"`
	TopP             *float32 `json:"top_p,omitempty"`
	PresencePenalty  *float32 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float32 `json:"frequency_penalty,omitempty"`
	MaxTokens        *uint32  `json:"max_tokens,omitempty"`
	Seed             *uint32  `json:"seed,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`

	ReasoningEffort      *string `json:"reasoning_effort,omitempty"`
	ThinkingBudgetTokens *int32  `json:"thinking_budget_tokens,omitempty"`

	JSONMode     JSONMode        `json:"json_mode,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	ToolConfig   *ToolConfig     `json:"tool_config,omitempty"`
	Stream       bool            `json:"stream,omitempty"`

	ExtraBody    []ExtraBodyReplacement `json:"extra_body,omitempty"`
	ExtraHeaders map[string]string      `json:"extra_headers,omitempty"`
}

// Validate checks the request for shapes no provider can express.
func (r *Request) Validate() error {
	if len(r.Messages) == 0 && (r.System == nil || *r.System == "") {
		return NewError(KindInvalidRequest, "request has no system text and no messages")
	}
	switch r.JSONMode {
	case "", JSONModeOff, JSONModeOn, JSONModeStrict:
	default:
		return NewError(KindInvalidRequest, fmt.Sprintf("unknown json_mode %q", r.JSONMode))
	}
	if len(r.OutputSchema) > 0 && !json.Valid(r.OutputSchema) {
		return NewError(KindInvalidRequest, "output_schema is not valid JSON")
	}
	if tc := r.ToolConfig; tc != nil && tc.Choice.Mode == ToolChoiceSpecific {
		if !tc.hasTool(tc.Choice.Name) {
			return NewError(KindInvalidRequest, fmt.Sprintf("tool_choice names unknown tool %q", tc.Choice.Name))
		}
	}
	return nil
}

// WantsJSONObject reports whether the request asks for JSON output without a
// schema the provider can enforce.
func (r *Request) WantsJSONObject() bool {
	switch r.JSONMode {
	case JSONModeOn:
		return true
	case JSONModeStrict:
		return len(r.OutputSchema) == 0
	}
	return false
}

// MentionsJSON reports whether the system text or any message text contains
// the word "json" in any case.
func (r *Request) MentionsJSON() bool {
	if r.System != nil && strings.Contains(strings.ToLower(*r.System), "json") {
		return true
	}
	for _, msg := range r.Messages {
		for _, block := range msg.Content {
			if t, ok := block.(Text); ok && strings.Contains(strings.ToLower(t.Text), "json") {
				return true
			}
		}
	}
	return false
}

func (c *ToolConfig) hasTool(name string) bool {
	for _, t := range c.Tools {
		if t.Name == name {
			return true
		}
	}
	for _, t := range c.CustomTools {
		if t.Name == name {
			return true
		}
	}
	return false
}
