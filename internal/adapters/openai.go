package adapters

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/compresr/inference-gateway/internal/inference"
)

// OpenAIAdapter speaks the OpenAI Chat Completions API
// (POST {base}/chat/completions). It also serves OpenAI-compatible servers.
//
// Request shape: messages[] with role="system"/"user"/"assistant"/"tool";
// assistant tool calls live in tool_calls[] and their results come back as
// separate role="tool" messages.
type OpenAIAdapter struct {
	BaseAdapter
	path string
	// legacyMaxTokens sends max_tokens instead of max_completion_tokens.
	legacyMaxTokens bool
}

// NewOpenAIAdapter creates a new OpenAI Chat Completions adapter.
func NewOpenAIAdapter(files inference.FileResolver) *OpenAIAdapter {
	return &OpenAIAdapter{
		BaseAdapter: newBaseAdapter("openai", ProviderOpenAI, files),
		path:        "chat/completions",
	}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type chatRequest struct {
	Model               string              `json:"model"`
	Messages            []chatMessage       `json:"messages"`
	Temperature         *float32            `json:"temperature,omitempty"`
	TopP                *float32            `json:"top_p,omitempty"`
	PresencePenalty     *float32            `json:"presence_penalty,omitempty"`
	FrequencyPenalty    *float32            `json:"frequency_penalty,omitempty"`
	MaxCompletionTokens *uint32             `json:"max_completion_tokens,omitempty"`
	MaxTokens           *uint32             `json:"max_tokens,omitempty"`
	Seed                *uint32             `json:"seed,omitempty"`
	Stop                []string            `json:"stop,omitempty"`
	ReasoningEffort     *string             `json:"reasoning_effort,omitempty"`
	ResponseFormat      *chatResponseFormat `json:"response_format,omitempty"`
	Tools               []any               `json:"tools,omitempty"`
	ToolChoice          any                 `json:"tool_choice,omitempty"`
	ParallelToolCalls   *bool               `json:"parallel_tool_calls,omitempty"`
	Stream              bool                `json:"stream,omitempty"`
	StreamOptions       *chatStreamOptions  `json:"stream_options,omitempty"`
}

type chatStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *chatJSONSchema `json:"json_schema,omitempty"`
}

type chatJSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatContentPart struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *chatImageURL  `json:"image_url,omitempty"`
	File     *chatFileInput `json:"file,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatFileInput struct {
	FileData string `json:"file_data,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatFunctionTool struct {
	Type     string          `json:"type"`
	Function chatFunctionDef `json:"function"`
}

type chatFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
	Strict      bool            `json:"strict,omitempty"`
}

type chatToolRef struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

type chatAllowedTools struct {
	Type         string `json:"type"`
	AllowedTools struct {
		Mode  string        `json:"mode"`
		Tools []chatToolRef `json:"tools"`
	} `json:"allowed_tools"`
}

type chatUsage struct {
	PromptTokens     *int64 `json:"prompt_tokens"`
	CompletionTokens *int64 `json:"completion_tokens"`
}

func (u *chatUsage) canonical() inference.Usage {
	if u == nil {
		return inference.Usage{}
	}
	return inference.NewUsage(valueOr(u.PromptTokens, -1), valueOr(u.CompletionTokens, -1))
}

func newChatToolRef(name string) chatToolRef {
	ref := chatToolRef{Type: "function"}
	ref.Function.Name = name
	return ref
}

// =============================================================================
// REQUEST
// =============================================================================

// BuildRequest translates a canonical request into a Chat Completions request.
func (a *OpenAIAdapter) BuildRequest(ctx context.Context, req *inference.Request, target Target) (*WireRequest, error) {
	if err := requireNoCustomTools(a.name, req.ToolConfig); err != nil {
		return nil, err
	}
	if req.ThinkingBudgetTokens != nil {
		warn(ctx, a.name).Msg("ignoring thinking budget: not supported by Chat Completions")
	}

	messages, err := a.buildMessages(ctx, req, target)
	if err != nil {
		return nil, err
	}

	body := chatRequest{
		Model:            target.Model,
		Messages:         messages,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		Seed:             req.Seed,
		Stop:             req.StopSequences,
		ReasoningEffort:  req.ReasoningEffort,
		ResponseFormat:   chatResponseFormatFor(req),
		Stream:           req.Stream,
	}
	if a.legacyMaxTokens {
		body.MaxTokens = req.MaxTokens
	} else {
		body.MaxCompletionTokens = req.MaxTokens
	}
	if req.Stream {
		body.StreamOptions = &chatStreamOptions{IncludeUsage: true}
	}

	tools, choice := buildChatTools(req.ToolConfig, target)
	body.Tools = tools
	body.ToolChoice = choice
	if len(tools) > 0 {
		body.ParallelToolCalls = parallelToolCalls(req.ToolConfig, target.Model)
	}

	data, err := marshalBody(a.name, body, req)
	if err != nil {
		return nil, err
	}
	return newWireRequest(joinURL(target.APIBase, a.path), data, req), nil
}

func chatResponseFormatFor(req *inference.Request) *chatResponseFormat {
	switch req.JSONMode {
	case inference.JSONModeStrict:
		if len(req.OutputSchema) > 0 {
			return &chatResponseFormat{
				Type:       "json_schema",
				JSONSchema: &chatJSONSchema{Name: "response", Schema: req.OutputSchema, Strict: true},
			}
		}
		return &chatResponseFormat{Type: "json_object"}
	case inference.JSONModeOn:
		return &chatResponseFormat{Type: "json_object"}
	}
	return nil
}

func (a *OpenAIAdapter) buildMessages(ctx context.Context, req *inference.Request, target Target) ([]chatMessage, error) {
	var messages []chatMessage
	if system := systemText(req); system != nil {
		messages = append(messages, chatMessage{Role: "system", Content: *system})
	}
	for _, msg := range req.Messages {
		var out []chatMessage
		var err error
		switch msg.Role {
		case inference.RoleUser:
			out, err = a.userMessages(ctx, msg, target)
		case inference.RoleAssistant:
			out, err = a.assistantMessage(ctx, msg, target)
		default:
			err = inference.NewError(inference.KindInvalidRequest, "unsupported role "+string(msg.Role)).WithProvider(a.name)
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, out...)
	}
	return messages, nil
}

// userMessages converts one user message. Tool results become role="tool"
// messages; pending content parts are flushed first to keep the order.
func (a *OpenAIAdapter) userMessages(ctx context.Context, msg inference.Message, target Target) ([]chatMessage, error) {
	var out []chatMessage
	var parts []any
	flush := func() {
		if len(parts) > 0 {
			out = append(out, chatMessage{Role: "user", Content: parts})
			parts = nil
		}
	}

	for _, block := range msg.Content {
		switch b := block.(type) {
		case inference.Text:
			parts = append(parts, chatContentPart{Type: "text", Text: b.Text})
		case inference.File:
			resolved, err := a.resolveFile(ctx, b)
			if err != nil {
				return nil, err
			}
			parts = append(parts, chatFilePart(resolved))
		case inference.ToolResult:
			flush()
			out = append(out, chatMessage{Role: "tool", ToolCallID: b.ID, Content: b.Result})
		case inference.Unknown:
			if data, ok := replayableUnknown(ctx, a.name, b, target); ok {
				parts = append(parts, data)
			}
		case inference.ToolCall:
			return nil, inference.UnsupportedContent(a.name, "tool call in a user message")
		case inference.Thought:
			return nil, inference.UnsupportedContent(a.name, "thought in a user message")
		default:
			return nil, inference.InternalError(a.name, "unexpected input block %T", block)
		}
	}
	flush()
	return out, nil
}

func chatFilePart(f inference.ResolvedFile) chatContentPart {
	if f.IsImage() {
		url := f.URL
		if f.Inline() {
			url = f.DataURL()
		}
		return chatContentPart{Type: "image_url", ImageURL: &chatImageURL{URL: url}}
	}
	if !f.Inline() {
		// Chat Completions only accepts inline files; hosted ones go as links.
		return chatContentPart{Type: "text", Text: f.URL}
	}
	return chatContentPart{Type: "file", File: &chatFileInput{FileData: f.DataURL(), Filename: f.Filename}}
}

func (a *OpenAIAdapter) assistantMessage(ctx context.Context, msg inference.Message, target Target) ([]chatMessage, error) {
	out := chatMessage{Role: "assistant"}
	var parts []any
	for _, block := range msg.Content {
		switch b := block.(type) {
		case inference.Text:
			parts = append(parts, chatContentPart{Type: "text", Text: b.Text})
		case inference.ToolCall:
			out.ToolCalls = append(out.ToolCalls, chatToolCall{
				ID:       b.ID,
				Type:     "function",
				Function: chatFunctionCall{Name: b.Name, Arguments: b.Arguments},
			})
		case inference.Thought:
			warn(ctx, a.name).Msg("dropping thought: Chat Completions cannot replay reasoning")
		case inference.Unknown:
			if data, ok := replayableUnknown(ctx, a.name, b, target); ok {
				parts = append(parts, data)
			}
		case inference.File:
			return nil, inference.UnsupportedContent(a.name, "file in an assistant message")
		case inference.ToolResult:
			return nil, inference.UnsupportedContent(a.name, "tool result in an assistant message")
		default:
			return nil, inference.InternalError(a.name, "unexpected input block %T", block)
		}
	}
	if len(parts) == 0 && len(out.ToolCalls) == 0 {
		return nil, nil
	}
	if len(parts) > 0 {
		out.Content = parts
	}
	return []chatMessage{out}, nil
}

// =============================================================================
// TOOLS
// =============================================================================

func buildChatTools(tc *inference.ToolConfig, target Target) ([]any, any) {
	plan := planToolChoice(tc, hasAnyTools(tc, target))
	if plan.kind == planOmit {
		return nil, nil
	}

	var tools []any
	for _, t := range tc.Tools {
		tools = append(tools, chatFunctionTool{
			Type: "function",
			Function: chatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toolParameters(t),
				Strict:      t.Strict,
			},
		})
	}
	for _, raw := range scopedProviderTools(tc, target) {
		tools = append(tools, raw)
	}

	switch plan.kind {
	case planForce:
		return tools, newChatToolRef(plan.force)
	case planConstrained:
		choice := chatAllowedTools{Type: "allowed_tools"}
		choice.AllowedTools.Mode = string(plan.mode)
		choice.AllowedTools.Tools = make([]chatToolRef, 0, len(plan.allowed))
		for _, name := range plan.allowed {
			choice.AllowedTools.Tools = append(choice.AllowedTools.Tools, newChatToolRef(name))
		}
		return tools, choice
	default:
		return tools, string(plan.literal)
	}
}

// =============================================================================
// RESPONSE
// =============================================================================

type chatResponse struct {
	Choices []struct {
		FinishReason *string         `json:"finish_reason"`
		Message      json.RawMessage `json:"message"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
	// Ollama native counters, returned by some versions instead of usage.
	PromptEvalCount *int64 `json:"prompt_eval_count"`
	EvalCount       *int64 `json:"eval_count"`
}

type chatResponseMessage struct {
	Role             string            `json:"role"`
	Content          *string           `json:"content"`
	ReasoningContent *string           `json:"reasoning_content"`
	Refusal          *string           `json:"refusal"`
	ToolCalls        []json.RawMessage `json:"tool_calls"`
}

// ParseResponse translates a Chat Completions body. Only the first choice is used.
func (a *OpenAIAdapter) ParseResponse(body []byte, target Target) (*ParsedResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, inference.ServerError(a.name, "failed to parse response").Wrap(err)
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return nil, inference.ServerError(a.name, "%s", msg.String())
	}
	if len(resp.Choices) == 0 {
		return nil, inference.ServerError(a.name, "response has no choices")
	}

	out := &ParsedResponse{Usage: resp.Usage.canonical()}
	if resp.Usage == nil && (resp.PromptEvalCount != nil || resp.EvalCount != nil) {
		out.Usage = inference.NewUsage(valueOr(resp.PromptEvalCount, -1), valueOr(resp.EvalCount, -1))
	}

	choice := resp.Choices[0]
	var msg chatResponseMessage
	if err := json.Unmarshal(choice.Message, &msg); err != nil {
		out.Output = []inference.OutputBlock{unknownBlock(choice.Message, target)}
		return out, nil
	}
	if msg.Role != "assistant" {
		return nil, inference.ServerError(a.name, "unexpected message role %q in response", msg.Role)
	}
	if msg.Refusal != nil && *msg.Refusal != "" {
		return nil, inference.ServerError(a.name, "model refused: %s", *msg.Refusal)
	}

	if msg.ReasoningContent != nil && *msg.ReasoningContent != "" {
		out.Output = append(out.Output, inference.Thought{Text: msg.ReasoningContent})
	}
	if msg.Content != nil && *msg.Content != "" {
		out.Output = append(out.Output, inference.Text{Text: *msg.Content})
	}
	for _, raw := range msg.ToolCalls {
		var call chatToolCall
		if typ := gjson.GetBytes(raw, "type").String(); typ != "" && typ != "function" {
			out.Output = append(out.Output, unknownBlock(raw, target))
			continue
		}
		if err := json.Unmarshal(raw, &call); err != nil {
			out.Output = append(out.Output, unknownBlock(raw, target))
			continue
		}
		out.Output = append(out.Output, inference.ToolCall{ID: call.ID, Name: call.Function.Name, Arguments: call.Function.Arguments})
	}

	if choice.FinishReason != nil {
		out.FinishReason = inference.Ptr(chatFinishReason(*choice.FinishReason))
	}
	return out, nil
}

func chatFinishReason(reason string) inference.FinishReason {
	switch reason {
	case "stop":
		return inference.FinishStop
	case "length":
		return inference.FinishLength
	case "tool_calls", "function_call":
		return inference.FinishToolCall
	case "content_filter":
		return inference.FinishContentFilter
	default:
		return inference.FinishUnknown
	}
}

var _ Adapter = (*OpenAIAdapter)(nil)
