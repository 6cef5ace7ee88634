package adapters

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/compresr/inference-gateway/internal/inference"
)

// geminiThoughtType marks Gemini thought signatures.
const geminiThoughtType = "gemini"

// GeminiAdapter handles the Google Gemini API.
// Gemini uses contents[]/parts[] with functionCall/functionResponse parts,
// distinct from both OpenAI and Anthropic formats.
//
// Key format differences:
//   - Roles: "user" and "model"
//   - Tool responses: parts[].functionResponse with name/response (object, not string)
//   - Thoughts: parts with thought=true; signatures ride on the following part
//   - Usage: usageMetadata.promptTokenCount/candidatesTokenCount
//   - Model: in URL path (/models/{model}:generateContent), not request body
type GeminiAdapter struct {
	BaseAdapter
}

// NewGeminiAdapter creates a new Gemini adapter.
func NewGeminiAdapter(files inference.FileResolver) *GeminiAdapter {
	return &GeminiAdapter{
		BaseAdapter: newBaseAdapter("gemini", ProviderGemini, files),
	}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []any                   `json:"tools,omitempty"`
	ToolConfig        *geminiToolConfig       `json:"toolConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiPart is one part. Unknown parts are replayed verbatim through raw.
type geminiPart struct {
	Text             *string                 `json:"text,omitempty"`
	Thought          bool                    `json:"thought,omitempty"`
	ThoughtSignature string                  `json:"thoughtSignature,omitempty"`
	InlineData       *geminiBlob             `json:"inlineData,omitempty"`
	FileData         *geminiFileData         `json:"fileData,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`

	raw json.RawMessage
}

// MarshalJSON emits raw passthrough parts verbatim.
func (p geminiPart) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	type alias geminiPart
	return json.Marshal(alias(p))
}

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type geminiFunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiGenerationConfig struct {
	Temperature        *float32              `json:"temperature,omitempty"`
	TopP               *float32              `json:"topP,omitempty"`
	MaxOutputTokens    *uint32               `json:"maxOutputTokens,omitempty"`
	Seed               *uint32               `json:"seed,omitempty"`
	StopSequences      []string              `json:"stopSequences,omitempty"`
	PresencePenalty    *float32              `json:"presencePenalty,omitempty"`
	FrequencyPenalty   *float32              `json:"frequencyPenalty,omitempty"`
	ResponseMimeType   string                `json:"responseMimeType,omitempty"`
	ResponseJSONSchema json.RawMessage       `json:"responseJsonSchema,omitempty"`
	ThinkingConfig     *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

func (g *geminiGenerationConfig) empty() bool {
	return g.Temperature == nil && g.TopP == nil && g.MaxOutputTokens == nil && g.Seed == nil &&
		len(g.StopSequences) == 0 && g.PresencePenalty == nil && g.FrequencyPenalty == nil &&
		g.ResponseMimeType == "" && len(g.ResponseJSONSchema) == 0 && g.ThinkingConfig == nil
}

type geminiThinkingConfig struct {
	ThinkingBudget  *int32 `json:"thinkingBudget,omitempty"`
	IncludeThoughts bool   `json:"includeThoughts"`
}

type geminiFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type geminiFunctionTools struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiToolConfig struct {
	FunctionCallingConfig geminiFunctionCallingConfig `json:"functionCallingConfig"`
}

type geminiFunctionCallingConfig struct {
	Mode                 string   `json:"mode"`
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     *int64 `json:"promptTokenCount"`
	CandidatesTokenCount *int64 `json:"candidatesTokenCount"`
	ThoughtsTokenCount   *int64 `json:"thoughtsTokenCount"`
}

// canonical counts thinking tokens as output.
func (u *geminiUsage) canonical() inference.Usage {
	if u == nil {
		return inference.Usage{}
	}
	output := int64(-1)
	if u.CandidatesTokenCount != nil || u.ThoughtsTokenCount != nil {
		output = valueOr(u.CandidatesTokenCount, 0) + valueOr(u.ThoughtsTokenCount, 0)
	}
	return inference.NewUsage(valueOr(u.PromptTokenCount, -1), output)
}

// =============================================================================
// REQUEST
// =============================================================================

// BuildRequest translates a canonical request into generateContent or
// streamGenerateContent.
func (a *GeminiAdapter) BuildRequest(ctx context.Context, req *inference.Request, target Target) (*WireRequest, error) {
	if err := requireNoCustomTools(a.name, req.ToolConfig); err != nil {
		return nil, err
	}
	if req.ReasoningEffort != nil && req.ThinkingBudgetTokens == nil {
		warn(ctx, a.name).Msg("ignoring reasoning_effort: set thinking_budget_tokens instead")
	}

	contents, err := a.buildContents(ctx, req, target)
	if err != nil {
		return nil, err
	}

	body := geminiRequest{Contents: contents}
	if system := systemText(req); system != nil && *system != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	gen := &geminiGenerationConfig{
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxOutputTokens:  req.MaxTokens,
		Seed:             req.Seed,
		StopSequences:    req.StopSequences,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
	}
	switch req.JSONMode {
	case inference.JSONModeStrict:
		gen.ResponseMimeType = "application/json"
		if len(req.OutputSchema) > 0 {
			gen.ResponseJSONSchema = req.OutputSchema
		}
	case inference.JSONModeOn:
		gen.ResponseMimeType = "application/json"
	}
	if req.ThinkingBudgetTokens != nil {
		gen.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: req.ThinkingBudgetTokens, IncludeThoughts: true}
	}
	if !gen.empty() {
		body.GenerationConfig = gen
	}

	body.Tools, body.ToolConfig = buildGeminiTools(req.ToolConfig, target)

	data, err := marshalBody(a.name, body, req)
	if err != nil {
		return nil, err
	}

	path := "v1beta/models/" + url.PathEscape(target.Model) + ":generateContent"
	if req.Stream {
		path = "v1beta/models/" + url.PathEscape(target.Model) + ":streamGenerateContent?alt=sse"
	}
	return newWireRequest(joinURL(target.APIBase, path), data, req), nil
}

func (a *GeminiAdapter) buildContents(ctx context.Context, req *inference.Request, target Target) ([]geminiContent, error) {
	contents := make([]geminiContent, 0, len(req.Messages))
	for _, msg := range req.Messages {
		var parts []geminiPart
		var err error
		role := "user"
		switch msg.Role {
		case inference.RoleUser:
			parts, err = a.userParts(ctx, msg, target)
		case inference.RoleAssistant:
			role = "model"
			parts, err = a.modelParts(ctx, msg, target)
		default:
			err = inference.NewError(inference.KindInvalidRequest, "unsupported role "+string(msg.Role)).WithProvider(a.name)
		}
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, geminiContent{Role: role, Parts: parts})
	}
	return contents, nil
}

func (a *GeminiAdapter) userParts(ctx context.Context, msg inference.Message, target Target) ([]geminiPart, error) {
	var parts []geminiPart
	for _, block := range msg.Content {
		switch b := block.(type) {
		case inference.Text:
			parts = append(parts, geminiPart{Text: inference.Ptr(b.Text)})
		case inference.ToolResult:
			parts = append(parts, geminiPart{FunctionResponse: &geminiFunctionResponse{
				ID:       b.ID,
				Name:     b.Name,
				Response: map[string]any{"content": b.Result},
			}})
		case inference.File:
			resolved, err := a.resolveFile(ctx, b)
			if err != nil {
				return nil, err
			}
			if resolved.Inline() {
				parts = append(parts, geminiPart{InlineData: &geminiBlob{MimeType: resolved.MimeType, Data: resolved.Data}})
			} else {
				parts = append(parts, geminiPart{FileData: &geminiFileData{MimeType: resolved.MimeType, FileURI: resolved.URL}})
			}
		case inference.Unknown:
			if data, ok := replayableUnknown(ctx, a.name, b, target); ok {
				parts = append(parts, geminiPart{raw: data})
			}
		case inference.ToolCall:
			return nil, inference.UnsupportedContent(a.name, "tool call in a user message")
		case inference.Thought:
			return nil, inference.UnsupportedContent(a.name, "thought in a user message")
		default:
			return nil, inference.InternalError(a.name, "unexpected input block %T", block)
		}
	}
	return parts, nil
}

// modelParts renders an assistant message. A signature-only thought is
// attached to the part that follows it, mirroring how Gemini returns it.
func (a *GeminiAdapter) modelParts(ctx context.Context, msg inference.Message, target Target) ([]geminiPart, error) {
	var parts []geminiPart
	pending := ""
	add := func(p geminiPart) {
		if pending != "" && p.raw == nil {
			p.ThoughtSignature = pending
			pending = ""
		}
		parts = append(parts, p)
	}

	for _, block := range msg.Content {
		switch b := block.(type) {
		case inference.Text:
			add(geminiPart{Text: inference.Ptr(b.Text)})
		case inference.ToolCall:
			var args json.RawMessage
			if b.Arguments != "" {
				if !json.Valid([]byte(b.Arguments)) {
					return nil, inference.UnsupportedContent(a.name, "tool call %q arguments are not valid JSON", b.ID)
				}
				args = json.RawMessage(b.Arguments)
			}
			add(geminiPart{FunctionCall: &geminiFunctionCall{ID: b.ID, Name: b.Name, Args: args}})
		case inference.Thought:
			if !replayableThought(ctx, a.name, geminiThoughtType, b, false) {
				continue
			}
			if b.Text != nil && *b.Text != "" {
				p := geminiPart{Text: b.Text, Thought: true}
				if b.Signature != nil {
					p.ThoughtSignature = *b.Signature
				}
				add(p)
				continue
			}
			if b.Signature != nil && *b.Signature != "" {
				pending = *b.Signature
			}
		case inference.Unknown:
			if data, ok := replayableUnknown(ctx, a.name, b, target); ok {
				add(geminiPart{raw: data})
			}
		case inference.File:
			return nil, inference.UnsupportedContent(a.name, "file in an assistant message")
		case inference.ToolResult:
			return nil, inference.UnsupportedContent(a.name, "tool result in an assistant message")
		default:
			return nil, inference.InternalError(a.name, "unexpected input block %T", block)
		}
	}
	if pending != "" {
		parts = append(parts, geminiPart{Thought: true, ThoughtSignature: pending})
	}
	return parts, nil
}

// =============================================================================
// TOOLS
// =============================================================================

// buildGeminiTools renders the tool plan. Gemini has no force-one construct,
// so a specific choice becomes ANY restricted to one name. An AUTO allow-list
// filters the declarations since allowedFunctionNames requires ANY.
func buildGeminiTools(tc *inference.ToolConfig, target Target) ([]any, *geminiToolConfig) {
	plan := planToolChoice(tc, hasAnyTools(tc, target))
	if plan.kind == planOmit {
		return nil, nil
	}
	if plan.kind == planForce {
		plan = plan.asConstrained()
	}

	var cfg geminiFunctionCallingConfig
	filter := false
	switch plan.kind {
	case planConstrained:
		if plan.mode == inference.ToolChoiceRequired {
			cfg = geminiFunctionCallingConfig{Mode: "ANY", AllowedFunctionNames: plan.allowed}
		} else {
			cfg = geminiFunctionCallingConfig{Mode: "AUTO"}
			filter = true
		}
	default:
		switch plan.literal {
		case inference.ToolChoiceNone:
			cfg.Mode = "NONE"
		case inference.ToolChoiceRequired:
			cfg.Mode = "ANY"
		default:
			cfg.Mode = "AUTO"
		}
	}

	var decls []geminiFunctionDeclaration
	for _, t := range tc.Tools {
		if filter && !plan.allows(t.Name) {
			continue
		}
		decls = append(decls, geminiFunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: toolParameters(t)})
	}
	var tools []any
	if len(decls) > 0 {
		tools = append(tools, geminiFunctionTools{FunctionDeclarations: decls})
	}
	for _, raw := range scopedProviderTools(tc, target) {
		tools = append(tools, raw)
	}
	return tools, &geminiToolConfig{FunctionCallingConfig: cfg}
}

// =============================================================================
// RESPONSE
// =============================================================================

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Role  string            `json:"role"`
			Parts []json.RawMessage `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *geminiUsage `json:"usageMetadata"`
}

// ParseResponse translates a generateContent body.
func (a *GeminiAdapter) ParseResponse(body []byte, target Target) (*ParsedResponse, error) {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return nil, inference.ServerError(a.name, "%s", msg.String())
	}
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, inference.ServerError(a.name, "failed to parse response").Wrap(err)
	}

	out := &ParsedResponse{Usage: resp.UsageMetadata.canonical()}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			out.FinishReason = inference.Ptr(inference.FinishContentFilter)
			return out, nil
		}
		return nil, inference.ServerError(a.name, "response has no candidates")
	}

	candidate := resp.Candidates[0]
	if role := candidate.Content.Role; role != "" && role != "model" {
		return nil, inference.ServerError(a.name, "unexpected content role %q in response", role)
	}
	sawToolCall := false
	for _, raw := range candidate.Content.Parts {
		blocks := parseGeminiPart(raw, target)
		for _, b := range blocks {
			if _, ok := b.(inference.ToolCall); ok {
				sawToolCall = true
			}
		}
		out.Output = append(out.Output, blocks...)
	}
	if candidate.FinishReason != "" {
		out.FinishReason = inference.Ptr(geminiFinishReason(candidate.FinishReason, sawToolCall))
	}
	return out, nil
}

// parseGeminiPart maps one part. A thoughtSignature on a non-thought part
// becomes its own Thought placed before the part.
func parseGeminiPart(raw json.RawMessage, target Target) []inference.OutputBlock {
	var p geminiPart
	if err := json.Unmarshal(raw, &p); err != nil {
		return []inference.OutputBlock{unknownBlock(raw, target)}
	}

	if p.Thought {
		th := inference.Thought{ProviderType: inference.Ptr(geminiThoughtType)}
		if p.Text != nil && *p.Text != "" {
			th.Text = p.Text
		}
		if p.ThoughtSignature != "" {
			th.Signature = inference.Ptr(p.ThoughtSignature)
		}
		if th.Empty() {
			return nil
		}
		return []inference.OutputBlock{th}
	}

	var out []inference.OutputBlock
	if p.ThoughtSignature != "" {
		out = append(out, inference.Thought{
			Signature:    inference.Ptr(p.ThoughtSignature),
			ProviderType: inference.Ptr(geminiThoughtType),
		})
	}
	switch {
	case p.FunctionCall != nil:
		out = append(out, geminiToolCall(p.FunctionCall))
	case p.Text != nil:
		out = append(out, inference.Text{Text: *p.Text})
	default:
		out = append(out, unknownBlock(raw, target))
	}
	return out
}

// geminiToolCall assigns a UUID when Gemini omits the call id.
func geminiToolCall(fc *geminiFunctionCall) inference.ToolCall {
	id := fc.ID
	if id == "" {
		id = uuid.NewString()
	}
	args := "{}"
	if len(fc.Args) > 0 && string(fc.Args) != "null" {
		args = string(fc.Args)
	}
	return inference.ToolCall{ID: id, Name: fc.Name, Arguments: args}
}

// geminiFinishReason maps candidate.finishReason. Gemini reports STOP even
// when the turn ends in function calls.
func geminiFinishReason(reason string, sawToolCall bool) inference.FinishReason {
	switch reason {
	case "STOP":
		if sawToolCall {
			return inference.FinishToolCall
		}
		return inference.FinishStop
	case "MAX_TOKENS":
		return inference.FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY":
		return inference.FinishContentFilter
	default:
		return inference.FinishUnknown
	}
}

var _ Adapter = (*GeminiAdapter)(nil)
