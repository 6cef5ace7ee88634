package adapters

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/compresr/inference-gateway/internal/inference"
)

const (
	anthropicAPIVersion = "2023-06-01"
	// anthropicThoughtType marks thinking signatures. Anthropic documents them
	// as portable between its own API and Bedrock.
	anthropicThoughtType = "anthropic"
	// anthropicDefaultMaxTokens is sent when the request leaves max_tokens
	// unset; the Messages API requires it.
	anthropicDefaultMaxTokens = 4096
)

// AnthropicAdapter speaks the Anthropic Messages API (POST {base}/v1/messages).
//
// Request shape: top-level system string, messages[] whose content is a list
// of typed blocks (text, image, document, tool_use, tool_result, thinking,
// redacted_thinking). Tool results travel inside user messages.
type AnthropicAdapter struct {
	BaseAdapter
}

// NewAnthropicAdapter creates a new Anthropic adapter.
func NewAnthropicAdapter(files inference.FileResolver) *AnthropicAdapter {
	return &AnthropicAdapter{
		BaseAdapter: newBaseAdapter("anthropic", ProviderAnthropic, files),
	}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type anthropicRequest struct {
	Model            string             `json:"model,omitempty"`
	AnthropicVersion string             `json:"anthropic_version,omitempty"`
	System           *string            `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	MaxTokens        uint32             `json:"max_tokens"`
	Temperature      *float32           `json:"temperature,omitempty"`
	TopP             *float32           `json:"top_p,omitempty"`
	StopSequences    []string           `json:"stop_sequences,omitempty"`
	Thinking         *anthropicThinking `json:"thinking,omitempty"`
	Tools            []any              `json:"tools,omitempty"`
	ToolChoice       any                `json:"tool_choice,omitempty"`
	Stream           bool               `json:"stream,omitempty"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int32  `json:"budget_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content []any  `json:"content"`
}

type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicSourceBlock struct {
	Type   string          `json:"type"`
	Source anthropicSource `json:"source"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthropicToolUse struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type anthropicToolResult struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

type anthropicThinkingBlock struct {
	Type      string `json:"type"`
	Thinking  string `json:"thinking"`
	Signature string `json:"signature"`
}

type anthropicRedactedThinking struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type                   string `json:"type"`
	Name                   string `json:"name,omitempty"`
	DisableParallelToolUse *bool  `json:"disable_parallel_tool_use,omitempty"`
}

type anthropicUsage struct {
	InputTokens  *int64 `json:"input_tokens"`
	OutputTokens *int64 `json:"output_tokens"`
}

func (u *anthropicUsage) canonical() inference.Usage {
	if u == nil {
		return inference.Usage{}
	}
	return inference.NewUsage(valueOr(u.InputTokens, -1), valueOr(u.OutputTokens, -1))
}

// anthropicDialect captures the body differences between the first-party API
// and Bedrock.
type anthropicDialect struct {
	// version is sent as anthropic_version in the body (Bedrock).
	version string
	// modelInURL omits model and stream from the body.
	modelInURL bool
}

// =============================================================================
// REQUEST
// =============================================================================

// BuildRequest translates a canonical request into a Messages API request.
func (a *AnthropicAdapter) BuildRequest(ctx context.Context, req *inference.Request, target Target) (*WireRequest, error) {
	data, err := a.buildBody(ctx, req, target, anthropicDialect{})
	if err != nil {
		return nil, err
	}
	wire := newWireRequest(joinURL(target.APIBase, "v1/messages"), data, req)
	if wire.Headers.Get("anthropic-version") == "" {
		wire.Headers.Set("anthropic-version", anthropicAPIVersion)
	}
	return wire, nil
}

func (a *AnthropicAdapter) buildBody(ctx context.Context, req *inference.Request, target Target, dialect anthropicDialect) ([]byte, error) {
	if err := requireNoCustomTools(a.name, req.ToolConfig); err != nil {
		return nil, err
	}
	if req.Seed != nil || req.PresencePenalty != nil || req.FrequencyPenalty != nil {
		warn(ctx, a.name).Msg("ignoring seed and penalties: not supported by the Messages API")
	}

	messages, err := a.buildMessages(ctx, req, target)
	if err != nil {
		return nil, err
	}

	body := anthropicRequest{
		System:        systemTextWithoutNativeJSON(req),
		Messages:      messages,
		MaxTokens:     anthropicDefaultMaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.StopSequences,
	}
	if dialect.modelInURL {
		body.AnthropicVersion = dialect.version
	} else {
		body.Model = target.Model
		body.Stream = req.Stream
	}
	if req.MaxTokens != nil {
		body.MaxTokens = *req.MaxTokens
	}
	if req.ThinkingBudgetTokens != nil {
		body.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: *req.ThinkingBudgetTokens}
	} else if req.ReasoningEffort != nil {
		warn(ctx, a.name).Msg("ignoring reasoning_effort: set thinking_budget_tokens instead")
	}

	body.Tools, body.ToolChoice = buildAnthropicTools(req.ToolConfig, target)

	return marshalBody(a.name, body, req)
}

func (a *AnthropicAdapter) buildMessages(ctx context.Context, req *inference.Request, target Target) ([]anthropicMessage, error) {
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		var content []any
		var err error
		switch msg.Role {
		case inference.RoleUser:
			content, err = a.userContent(ctx, msg, target)
		case inference.RoleAssistant:
			content, err = a.assistantContent(ctx, msg, target)
		default:
			err = inference.NewError(inference.KindInvalidRequest, "unsupported role "+string(msg.Role)).WithProvider(a.name)
		}
		if err != nil {
			return nil, err
		}
		if len(content) == 0 {
			continue
		}
		messages = append(messages, anthropicMessage{Role: string(msg.Role), Content: content})
	}
	return messages, nil
}

func (a *AnthropicAdapter) userContent(ctx context.Context, msg inference.Message, target Target) ([]any, error) {
	var content []any
	for _, block := range msg.Content {
		switch b := block.(type) {
		case inference.Text:
			content = append(content, anthropicTextBlock{Type: "text", Text: b.Text})
		case inference.ToolResult:
			content = append(content, anthropicToolResult{Type: "tool_result", ToolUseID: b.ID, Content: b.Result})
		case inference.File:
			resolved, err := a.resolveFile(ctx, b)
			if err != nil {
				return nil, err
			}
			content = append(content, anthropicFileBlock(resolved))
		case inference.Unknown:
			if data, ok := replayableUnknown(ctx, a.name, b, target); ok {
				content = append(content, data)
			}
		case inference.ToolCall:
			return nil, inference.UnsupportedContent(a.name, "tool call in a user message")
		case inference.Thought:
			return nil, inference.UnsupportedContent(a.name, "thought in a user message")
		default:
			return nil, inference.InternalError(a.name, "unexpected input block %T", block)
		}
	}
	return content, nil
}

func anthropicFileBlock(f inference.ResolvedFile) anthropicSourceBlock {
	typ := "document"
	if f.IsImage() {
		typ = "image"
	}
	if f.Inline() {
		return anthropicSourceBlock{Type: typ, Source: anthropicSource{Type: "base64", MediaType: f.MimeType, Data: f.Data}}
	}
	return anthropicSourceBlock{Type: typ, Source: anthropicSource{Type: "url", URL: f.URL}}
}

func (a *AnthropicAdapter) assistantContent(ctx context.Context, msg inference.Message, target Target) ([]any, error) {
	var content []any
	for _, block := range msg.Content {
		switch b := block.(type) {
		case inference.Text:
			content = append(content, anthropicTextBlock{Type: "text", Text: b.Text})
		case inference.ToolCall:
			input := json.RawMessage(b.Arguments)
			if b.Arguments == "" {
				input = json.RawMessage("{}")
			}
			if !json.Valid(input) {
				return nil, inference.UnsupportedContent(a.name, "tool call %q arguments are not valid JSON", b.ID)
			}
			content = append(content, anthropicToolUse{Type: "tool_use", ID: b.ID, Name: b.Name, Input: input})
		case inference.Thought:
			if !replayableThought(ctx, a.name, anthropicThoughtType, b, true) {
				continue
			}
			if b.Text == nil || *b.Text == "" {
				content = append(content, anthropicRedactedThinking{Type: "redacted_thinking", Data: *b.Signature})
				continue
			}
			content = append(content, anthropicThinkingBlock{Type: "thinking", Thinking: *b.Text, Signature: *b.Signature})
		case inference.Unknown:
			if data, ok := replayableUnknown(ctx, a.name, b, target); ok {
				content = append(content, data)
			}
		case inference.File:
			return nil, inference.UnsupportedContent(a.name, "file in an assistant message")
		case inference.ToolResult:
			return nil, inference.UnsupportedContent(a.name, "tool result in an assistant message")
		default:
			return nil, inference.InternalError(a.name, "unexpected input block %T", block)
		}
	}
	return content, nil
}

// systemTextWithoutNativeJSON applies the JSON instruction for every JSON
// mode, since the provider cannot enforce a schema itself.
func systemTextWithoutNativeJSON(req *inference.Request) *string {
	if req.JSONMode == "" || req.JSONMode == inference.JSONModeOff || req.MentionsJSON() {
		return req.System
	}
	relaxed := *req
	relaxed.JSONMode = inference.JSONModeOn
	return systemText(&relaxed)
}

// =============================================================================
// TOOLS
// =============================================================================

// buildAnthropicTools renders the tool plan. The Messages API has no
// allow-list construct, so an allow-list filters the declared tools instead.
func buildAnthropicTools(tc *inference.ToolConfig, target Target) ([]any, any) {
	plan := planToolChoice(tc, hasAnyTools(tc, target))
	if plan.kind == planOmit {
		return nil, nil
	}

	var tools []any
	for _, t := range tc.Tools {
		if !plan.allows(t.Name) {
			continue
		}
		tools = append(tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: toolParameters(t)})
	}
	for _, raw := range scopedProviderTools(tc, target) {
		tools = append(tools, raw)
	}

	var choice anthropicToolChoice
	switch plan.kind {
	case planForce:
		choice = anthropicToolChoice{Type: "tool", Name: plan.force}
	case planConstrained:
		choice = anthropicToolChoice{Type: "auto"}
		if plan.mode == inference.ToolChoiceRequired {
			choice.Type = "any"
		}
	default:
		switch plan.literal {
		case inference.ToolChoiceNone:
			choice = anthropicToolChoice{Type: "none"}
		case inference.ToolChoiceRequired:
			choice = anthropicToolChoice{Type: "any"}
		default:
			choice = anthropicToolChoice{Type: "auto"}
		}
	}
	if tc.ParallelToolCalls != nil && !*tc.ParallelToolCalls && choice.Type != "none" {
		choice.DisableParallelToolUse = inference.Ptr(true)
	}
	return tools, choice
}

// =============================================================================
// RESPONSE
// =============================================================================

type anthropicResponse struct {
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []json.RawMessage `json:"content"`
	StopReason *string           `json:"stop_reason"`
	Usage      *anthropicUsage   `json:"usage"`
}

// ParseResponse translates a Messages API body.
func (a *AnthropicAdapter) ParseResponse(body []byte, target Target) (*ParsedResponse, error) {
	if gjson.GetBytes(body, "type").String() == "error" {
		return nil, inference.ServerError(a.name, "%s", gjson.GetBytes(body, "error.message").String())
	}
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, inference.ServerError(a.name, "failed to parse response").Wrap(err)
	}
	if resp.Role != "assistant" {
		return nil, inference.ServerError(a.name, "unexpected message role %q in response", resp.Role)
	}

	out := &ParsedResponse{Usage: resp.Usage.canonical()}
	for _, raw := range resp.Content {
		if block, ok := parseAnthropicBlock(raw, target); ok {
			out.Output = append(out.Output, block)
		}
	}
	if resp.StopReason != nil {
		out.FinishReason = inference.Ptr(anthropicFinishReason(*resp.StopReason))
	}
	return out, nil
}

// parseAnthropicBlock maps one content block. It reports false only for
// thoughts with nothing to store.
func parseAnthropicBlock(raw json.RawMessage, target Target) (inference.OutputBlock, bool) {
	switch gjson.GetBytes(raw, "type").String() {
	case "text":
		var b anthropicTextBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return unknownBlock(raw, target), true
		}
		return inference.Text{Text: b.Text}, true
	case "tool_use":
		var b anthropicToolUse
		if err := json.Unmarshal(raw, &b); err != nil || b.ID == "" {
			return unknownBlock(raw, target), true
		}
		args := string(b.Input)
		if args == "" {
			args = "{}"
		}
		return inference.ToolCall{ID: b.ID, Name: b.Name, Arguments: args}, true
	case "thinking":
		var b anthropicThinkingBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return unknownBlock(raw, target), true
		}
		th := inference.Thought{ProviderType: inference.Ptr(anthropicThoughtType)}
		if b.Thinking != "" {
			th.Text = inference.Ptr(b.Thinking)
		}
		if b.Signature != "" {
			th.Signature = inference.Ptr(b.Signature)
		}
		return th, !th.Empty()
	case "redacted_thinking":
		var b anthropicRedactedThinking
		if err := json.Unmarshal(raw, &b); err != nil {
			return unknownBlock(raw, target), true
		}
		th := inference.Thought{Signature: inference.Ptr(b.Data), ProviderType: inference.Ptr(anthropicThoughtType)}
		return th, !th.Empty()
	default:
		return unknownBlock(raw, target), true
	}
}

func anthropicFinishReason(reason string) inference.FinishReason {
	switch reason {
	case "end_turn":
		return inference.FinishStop
	case "stop_sequence":
		return inference.FinishStopSequence
	case "max_tokens", "model_context_window_exceeded":
		return inference.FinishLength
	case "tool_use":
		return inference.FinishToolCall
	case "refusal":
		return inference.FinishContentFilter
	default:
		return inference.FinishUnknown
	}
}

var _ Adapter = (*AnthropicAdapter)(nil)
