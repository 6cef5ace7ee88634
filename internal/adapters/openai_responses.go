package adapters

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/compresr/inference-gateway/internal/inference"
)

// openAIThoughtType marks thoughts whose signature is OpenAI encrypted reasoning.
const openAIThoughtType = "openai"

// OpenAIResponsesAdapter speaks the OpenAI Responses API (POST {base}/responses).
//
// Request shape: instructions + input[] where messages, function_call,
// function_call_output and reasoning items are siblings in one ordered list.
// Reasoning is requested with store=false and encrypted content included, so
// thoughts can be replayed on later turns without server-side state.
type OpenAIResponsesAdapter struct {
	BaseAdapter
}

// NewOpenAIResponsesAdapter creates a new OpenAI Responses adapter.
func NewOpenAIResponsesAdapter(files inference.FileResolver) *OpenAIResponsesAdapter {
	return &OpenAIResponsesAdapter{
		BaseAdapter: newBaseAdapter("openai_responses", ProviderOpenAIResponses, files),
	}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type responsesRequest struct {
	Model             string              `json:"model"`
	Instructions      *string             `json:"instructions,omitempty"`
	Input             []any               `json:"input"`
	Temperature       *float32            `json:"temperature,omitempty"`
	TopP              *float32            `json:"top_p,omitempty"`
	MaxOutputTokens   *uint32             `json:"max_output_tokens,omitempty"`
	Reasoning         *responsesReasoning `json:"reasoning,omitempty"`
	Text              *responsesText      `json:"text,omitempty"`
	Tools             []any               `json:"tools,omitempty"`
	ToolChoice        any                 `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool               `json:"parallel_tool_calls,omitempty"`
	Stream            bool                `json:"stream,omitempty"`
	Store             bool                `json:"store"`
	Include           []string            `json:"include,omitempty"`
}

type responsesReasoning struct {
	Effort  *string `json:"effort,omitempty"`
	Summary string  `json:"summary,omitempty"`
}

type responsesText struct {
	Format responsesTextFormat `json:"format"`
}

type responsesTextFormat struct {
	Type   string          `json:"type"`
	Name   string          `json:"name,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
	Strict *bool           `json:"strict,omitempty"`
}

type responsesMessage struct {
	Role    string `json:"role"`
	Content []any  `json:"content"`
}

type responsesContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	FileData string `json:"file_data,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type responsesFunctionCall struct {
	Type      string `json:"type"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type responsesCustomCall struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Input  string `json:"input"`
}

type responsesFunctionOutput struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type responsesReasoningItem struct {
	Type             string                 `json:"type"`
	ID               string                 `json:"id,omitempty"`
	EncryptedContent *string                `json:"encrypted_content,omitempty"`
	Summary          []responsesSummaryPart `json:"summary"`
	Content          []responsesSummaryPart `json:"content,omitempty"`
}

type responsesSummaryPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responsesFunctionTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
	Strict      bool            `json:"strict"`
}

type responsesCustomTool struct {
	Type        string                      `json:"type"`
	Name        string                      `json:"name"`
	Description string                      `json:"description,omitempty"`
	Format      *inference.CustomToolFormat `json:"format,omitempty"`
}

type responsesToolRef struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type responsesAllowedTools struct {
	Type  string             `json:"type"`
	Mode  string             `json:"mode"`
	Tools []responsesToolRef `json:"tools"`
}

type responsesUsage struct {
	InputTokens  *int64 `json:"input_tokens"`
	OutputTokens *int64 `json:"output_tokens"`
}

func (u *responsesUsage) canonical() inference.Usage {
	if u == nil {
		return inference.Usage{}
	}
	return inference.NewUsage(valueOr(u.InputTokens, -1), valueOr(u.OutputTokens, -1))
}

// =============================================================================
// REQUEST
// =============================================================================

// BuildRequest translates a canonical request into a Responses API request.
func (a *OpenAIResponsesAdapter) BuildRequest(ctx context.Context, req *inference.Request, target Target) (*WireRequest, error) {
	if len(req.StopSequences) > 0 {
		return nil, inference.UnsupportedContent(a.name, "stop sequences are not supported by the Responses API")
	}
	a.warnUnsupportedParams(ctx, req)

	input, err := a.buildInput(ctx, req, target)
	if err != nil {
		return nil, err
	}

	body := responsesRequest{
		Model:           target.Model,
		Instructions:    systemText(req),
		Input:           input,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxTokens,
		Stream:          req.Stream,
		Store:           false,
		Include:         []string{"reasoning.encrypted_content"},
	}
	if req.ReasoningEffort != nil {
		body.Reasoning = &responsesReasoning{Effort: req.ReasoningEffort, Summary: "auto"}
	}
	body.Text = responsesTextFormatFor(req)

	tools, choice := a.buildTools(req.ToolConfig, target)
	body.Tools = tools
	body.ToolChoice = choice
	if len(tools) > 0 {
		body.ParallelToolCalls = parallelToolCalls(req.ToolConfig, target.Model)
	}

	data, err := marshalBody(a.name, body, req)
	if err != nil {
		return nil, err
	}
	return newWireRequest(joinURL(target.APIBase, "responses"), data, req), nil
}

func (a *OpenAIResponsesAdapter) warnUnsupportedParams(ctx context.Context, req *inference.Request) {
	if req.Seed != nil || req.PresencePenalty != nil || req.FrequencyPenalty != nil || req.ThinkingBudgetTokens != nil {
		warn(ctx, a.name).
			Msg("ignoring seed, penalties and thinking budget: not supported by the Responses API")
	}
}

func responsesTextFormatFor(req *inference.Request) *responsesText {
	switch req.JSONMode {
	case inference.JSONModeStrict:
		if len(req.OutputSchema) > 0 {
			return &responsesText{Format: responsesTextFormat{
				Type:   "json_schema",
				Name:   "response",
				Schema: req.OutputSchema,
				Strict: inference.Ptr(true),
			}}
		}
		return &responsesText{Format: responsesTextFormat{Type: "json_object"}}
	case inference.JSONModeOn:
		return &responsesText{Format: responsesTextFormat{Type: "json_object"}}
	}
	return nil
}

// buildInput flattens messages into the ordered input item list.
func (a *OpenAIResponsesAdapter) buildInput(ctx context.Context, req *inference.Request, target Target) ([]any, error) {
	input := make([]any, 0, len(req.Messages))
	for _, msg := range req.Messages {
		var items []any
		var err error
		switch msg.Role {
		case inference.RoleUser:
			items, err = a.userItems(ctx, msg, req.ToolConfig, target)
		case inference.RoleAssistant:
			items, err = a.assistantItems(ctx, msg, req.ToolConfig, target)
		default:
			err = inference.NewError(inference.KindInvalidRequest, "unsupported role "+string(msg.Role)).WithProvider(a.name)
		}
		if err != nil {
			return nil, err
		}
		input = append(input, items...)
	}
	return input, nil
}

// userItems converts one user message. Content parts are grouped into message
// items; tool results and unknown blocks are standalone items, so a pending
// message is flushed before them to keep the original order.
func (a *OpenAIResponsesAdapter) userItems(ctx context.Context, msg inference.Message, tc *inference.ToolConfig, target Target) ([]any, error) {
	var items []any
	var parts []any
	flush := func() {
		if len(parts) > 0 {
			items = append(items, responsesMessage{Role: "user", Content: parts})
			parts = nil
		}
	}

	for _, block := range msg.Content {
		switch b := block.(type) {
		case inference.Text:
			parts = append(parts, responsesContentPart{Type: "input_text", Text: b.Text})
		case inference.File:
			part, err := a.filePart(ctx, b)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case inference.ToolResult:
			flush()
			typ := "function_call_output"
			if isCustomTool(tc, b.Name) {
				typ = "custom_tool_call_output"
			}
			items = append(items, responsesFunctionOutput{Type: typ, CallID: b.ID, Output: b.Result})
		case inference.Unknown:
			if data, ok := replayableUnknown(ctx, a.name, b, target); ok {
				flush()
				items = append(items, data)
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
	return items, nil
}

func (a *OpenAIResponsesAdapter) filePart(ctx context.Context, file inference.File) (responsesContentPart, error) {
	resolved, err := a.resolveFile(ctx, file)
	if err != nil {
		return responsesContentPart{}, err
	}
	if resolved.IsImage() {
		url := resolved.URL
		if resolved.Inline() {
			url = resolved.DataURL()
		}
		return responsesContentPart{Type: "input_image", ImageURL: url}, nil
	}
	if resolved.Inline() {
		return responsesContentPart{Type: "input_file", FileData: resolved.DataURL(), Filename: resolved.Filename}, nil
	}
	return responsesContentPart{Type: "input_file", FileURL: resolved.URL, Filename: resolved.Filename}, nil
}

func (a *OpenAIResponsesAdapter) assistantItems(ctx context.Context, msg inference.Message, tc *inference.ToolConfig, target Target) ([]any, error) {
	var items []any
	var parts []any
	flush := func() {
		if len(parts) > 0 {
			items = append(items, responsesMessage{Role: "assistant", Content: parts})
			parts = nil
		}
	}

	for _, block := range msg.Content {
		switch b := block.(type) {
		case inference.Text:
			parts = append(parts, responsesContentPart{Type: "output_text", Text: b.Text})
		case inference.ToolCall:
			flush()
			if isCustomTool(tc, b.Name) {
				items = append(items, responsesCustomCall{Type: "custom_tool_call", CallID: b.ID, Name: b.Name, Input: b.Arguments})
			} else {
				items = append(items, responsesFunctionCall{Type: "function_call", CallID: b.ID, Name: b.Name, Arguments: b.Arguments})
			}
		case inference.Thought:
			if !replayableThought(ctx, a.name, openAIThoughtType, b, true) {
				continue
			}
			flush()
			item := responsesReasoningItem{Type: "reasoning", EncryptedContent: b.Signature, Summary: []responsesSummaryPart{}}
			for _, s := range b.Summary {
				item.Summary = append(item.Summary, responsesSummaryPart{Type: "summary_text", Text: s.Text})
			}
			items = append(items, item)
		case inference.Unknown:
			if data, ok := replayableUnknown(ctx, a.name, b, target); ok {
				flush()
				items = append(items, data)
			}
		case inference.File:
			return nil, inference.UnsupportedContent(a.name, "file in an assistant message")
		case inference.ToolResult:
			return nil, inference.UnsupportedContent(a.name, "tool result in an assistant message")
		default:
			return nil, inference.InternalError(a.name, "unexpected input block %T", block)
		}
	}
	flush()
	return items, nil
}

func isCustomTool(tc *inference.ToolConfig, name string) bool {
	if tc == nil {
		return false
	}
	for _, t := range tc.CustomTools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// =============================================================================
// TOOLS
// =============================================================================

func (a *OpenAIResponsesAdapter) buildTools(tc *inference.ToolConfig, target Target) ([]any, any) {
	plan := planToolChoice(tc, hasAnyTools(tc, target))
	if plan.kind == planOmit {
		return nil, nil
	}

	var tools []any
	for _, t := range tc.Tools {
		tools = append(tools, responsesFunctionTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toolParameters(t),
			Strict:      t.Strict,
		})
	}
	for _, t := range tc.CustomTools {
		tools = append(tools, responsesCustomTool{Type: "custom", Name: t.Name, Description: t.Description, Format: t.Format})
	}
	for _, raw := range scopedProviderTools(tc, target) {
		tools = append(tools, raw)
	}

	toolRef := func(name string) responsesToolRef {
		if isCustomTool(tc, name) {
			return responsesToolRef{Type: "custom", Name: name}
		}
		return responsesToolRef{Type: "function", Name: name}
	}

	switch plan.kind {
	case planForce:
		return tools, toolRef(plan.force)
	case planConstrained:
		refs := make([]responsesToolRef, 0, len(plan.allowed))
		for _, name := range plan.allowed {
			refs = append(refs, toolRef(name))
		}
		return tools, responsesAllowedTools{Type: "allowed_tools", Mode: string(plan.mode), Tools: refs}
	default:
		return tools, string(plan.literal)
	}
}

// =============================================================================
// RESPONSE
// =============================================================================

type responsesResponse struct {
	Output            []json.RawMessage `json:"output"`
	Usage             *responsesUsage   `json:"usage"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type responsesOutputMessage struct {
	Role    string            `json:"role"`
	Content []json.RawMessage `json:"content"`
}

// ParseResponse translates a Responses API body.
func (a *OpenAIResponsesAdapter) ParseResponse(body []byte, target Target) (*ParsedResponse, error) {
	var resp responsesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, inference.ServerError(a.name, "failed to parse response").Wrap(err)
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, inference.ServerError(a.name, "%s", resp.Error.Message)
	}

	out := &ParsedResponse{Usage: resp.Usage.canonical()}
	for _, raw := range resp.Output {
		blocks, err := a.parseOutputItem(raw, target)
		if err != nil {
			return nil, err
		}
		out.Output = append(out.Output, blocks...)
	}
	if resp.IncompleteDetails != nil {
		out.FinishReason = inference.Ptr(responsesIncompleteReason(resp.IncompleteDetails.Reason))
	}
	return out, nil
}

func responsesIncompleteReason(reason string) inference.FinishReason {
	switch reason {
	case "max_output_tokens":
		return inference.FinishLength
	case "content_filter":
		return inference.FinishContentFilter
	default:
		return inference.FinishUnknown
	}
}

func (a *OpenAIResponsesAdapter) parseOutputItem(raw json.RawMessage, target Target) ([]inference.OutputBlock, error) {
	switch gjson.GetBytes(raw, "type").String() {
	case "message":
		var msg responsesOutputMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return []inference.OutputBlock{unknownBlock(raw, target)}, nil
		}
		if msg.Role != "assistant" {
			return nil, inference.ServerError(a.name, "unexpected message role %q in response output", msg.Role)
		}
		var blocks []inference.OutputBlock
		for _, part := range msg.Content {
			switch gjson.GetBytes(part, "type").String() {
			case "output_text":
				blocks = append(blocks, inference.Text{Text: gjson.GetBytes(part, "text").String()})
			case "refusal":
				return nil, inference.ServerError(a.name, "model refused: %s", gjson.GetBytes(part, "refusal").String())
			default:
				blocks = append(blocks, unknownBlock(part, target))
			}
		}
		return blocks, nil
	case "function_call":
		var call responsesFunctionCall
		if err := json.Unmarshal(raw, &call); err != nil || call.CallID == "" {
			return []inference.OutputBlock{unknownBlock(raw, target)}, nil
		}
		return []inference.OutputBlock{inference.ToolCall{ID: call.CallID, Name: call.Name, Arguments: call.Arguments}}, nil
	case "custom_tool_call":
		var call responsesCustomCall
		if err := json.Unmarshal(raw, &call); err != nil || call.CallID == "" {
			return []inference.OutputBlock{unknownBlock(raw, target)}, nil
		}
		return []inference.OutputBlock{inference.ToolCall{ID: call.CallID, Name: call.Name, Arguments: call.Input}}, nil
	case "reasoning":
		var item responsesReasoningItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return []inference.OutputBlock{unknownBlock(raw, target)}, nil
		}
		thought := reasoningThought(item)
		if thought.Empty() {
			return nil, nil
		}
		return []inference.OutputBlock{thought}, nil
	default:
		return []inference.OutputBlock{unknownBlock(raw, target)}, nil
	}
}

func reasoningThought(item responsesReasoningItem) inference.Thought {
	thought := inference.Thought{ProviderType: inference.Ptr(openAIThoughtType)}
	if item.EncryptedContent != nil && *item.EncryptedContent != "" {
		thought.Signature = item.EncryptedContent
	}
	for _, s := range item.Summary {
		thought.Summary = append(thought.Summary, inference.ThoughtSummary{Text: s.Text})
	}
	var text []string
	for _, c := range item.Content {
		if c.Type == "reasoning_text" {
			text = append(text, c.Text)
		}
	}
	if len(text) > 0 {
		thought.Text = inference.Ptr(strings.Join(text, ""))
	}
	return thought
}

func valueOr[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}

var _ Adapter = (*OpenAIResponsesAdapter)(nil)
