package inference_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/inference-gateway/internal/inference"
)

// =============================================================================
// CONTENT BLOCK JSON
// =============================================================================

func TestMessage_StringContentBecomesTextBlock(t *testing.T) {
	var msg inference.Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":"hello"}`), &msg))

	assert.Equal(t, inference.RoleUser, msg.Role)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, inference.Text{Text: "hello"}, msg.Content[0])
}

func TestMessage_TaggedBlocksRoundTrip(t *testing.T) {
	in := `{"role":"assistant","content":[` +
		`{"type":"text","text":"calling"},` +
		`{"type":"tool_call","id":"c1","name":"get_weather","arguments":"{\"city\":\"Paris\"}"},` +
		`{"type":"thought","signature":"sig","provider_type":"anthropic"},` +
		`{"type":"unknown","data":{"x":1},"model_name":"m","provider_name":null}` +
		`]}`

	var msg inference.Message
	require.NoError(t, json.Unmarshal([]byte(in), &msg))
	require.Len(t, msg.Content, 4)

	call, ok := msg.Content[1].(inference.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "c1", call.ID)
	assert.Equal(t, `{"city":"Paris"}`, call.Arguments)

	th, ok := msg.Content[2].(inference.Thought)
	require.True(t, ok)
	assert.Nil(t, th.Text)
	assert.Equal(t, "sig", *th.Signature)

	out, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestMessage_RejectsUnknownRoleAndBlockType(t *testing.T) {
	var msg inference.Message
	assert.Error(t, json.Unmarshal([]byte(`{"role":"system","content":"x"}`), &msg))
	assert.Error(t, json.Unmarshal([]byte(`{"role":"user","content":[{"type":"video"}]}`), &msg))
	assert.Error(t, json.Unmarshal([]byte(`{"role":"user","content":42}`), &msg))
}

func TestUnknown_ProvenanceAlwaysPresent(t *testing.T) {
	out, err := json.Marshal(inference.Unknown{Data: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"unknown","data":{"a":1},"model_name":null,"provider_name":null}`, string(out))
}

func TestUnknown_Matches(t *testing.T) {
	u := inference.Unknown{ModelName: inference.Ptr("m1")}
	assert.True(t, u.Matches("m1", "anything"))
	assert.False(t, u.Matches("m2", "anything"))
	assert.True(t, inference.Unknown{}.Matches("m2", "p2"))
}

func TestThought_Empty(t *testing.T) {
	assert.True(t, inference.Thought{}.Empty())
	assert.True(t, inference.Thought{Text: inference.Ptr("")}.Empty())
	assert.False(t, inference.Thought{Signature: inference.Ptr("s")}.Empty())
	assert.False(t, inference.Thought{Summary: []inference.ThoughtSummary{{Text: "x"}}}.Empty())
}

// =============================================================================
// CHUNK JSON
// =============================================================================

func TestToolCallChunk_OmitsRawNameOnContinuation(t *testing.T) {
	out, err := json.Marshal(inference.ToolCallChunk{ID: "fc_1", RawArguments: `{"x":1}`})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_call","id":"fc_1","raw_arguments":"{\"x\":1}"}`, string(out))

	out, err = json.Marshal(inference.ToolCallChunk{ID: "fc_1", RawName: inference.Ptr("get_weather")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_call","id":"fc_1","raw_name":"get_weather","raw_arguments":""}`, string(out))
}

func TestChunk_TerminalShape(t *testing.T) {
	reason := inference.FinishStop
	usage := inference.NewUsage(15, 25)
	out, err := json.Marshal(inference.Chunk{Usage: &usage, FinishReason: &reason, Latency: 1500 * time.Millisecond})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"content": [],
		"usage": {"input_tokens": 15, "output_tokens": 25},
		"finish_reason": "stop",
		"raw_response": "",
		"latency_ms": 1500
	}`, string(out))
}

func TestNewUsage_NegativeMeansMissing(t *testing.T) {
	u := inference.NewUsage(-1, 7)
	assert.Nil(t, u.InputTokens)
	require.NotNil(t, u.OutputTokens)
	assert.Equal(t, uint32(7), *u.OutputTokens)
}

// =============================================================================
// TOOL CHOICE
// =============================================================================

func TestToolChoice_JSON(t *testing.T) {
	out, err := json.Marshal(inference.Specific("get_weather"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"specific":"get_weather"}`, string(out))

	out, err = json.Marshal(inference.ToolChoice{})
	require.NoError(t, err)
	assert.Equal(t, `"auto"`, string(out))

	var c inference.ToolChoice
	require.NoError(t, json.Unmarshal([]byte(`{"specific":"lookup"}`), &c))
	assert.Equal(t, inference.Specific("lookup"), c)

	require.NoError(t, json.Unmarshal([]byte(`"required"`), &c))
	assert.Equal(t, inference.ToolChoiceRequired, c.Mode)

	assert.Error(t, json.Unmarshal([]byte(`"sometimes"`), &c))
	assert.Error(t, json.Unmarshal([]byte(`{"specific":""}`), &c))
}

func TestToolConfig_AllowedToolNames(t *testing.T) {
	tc := &inference.ToolConfig{
		Tools:        []inference.FunctionTool{{Name: "a"}, {Name: "b"}},
		CustomTools:  []inference.CustomTool{{Name: "c"}},
		AllowedTools: &inference.AllowedTools{Choice: inference.AllowedToolsFunctionDefault},
	}
	assert.Equal(t, []string{"a", "b", "c"}, tc.AllowedToolNames())

	tc.AllowedTools = &inference.AllowedTools{Choice: inference.AllowedToolsExplicit, Tools: []string{"b"}}
	assert.Equal(t, []string{"b"}, tc.AllowedToolNames())

	tc.AllowedTools = nil
	assert.Nil(t, tc.AllowedToolNames())
}

func TestProviderTool_InScope(t *testing.T) {
	pt := inference.ProviderTool{Scope: &inference.ProviderToolScope{ProviderName: "oai"}}
	assert.True(t, pt.InScope("any-model", "oai"))
	assert.False(t, pt.InScope("any-model", "other"))
	assert.True(t, inference.ProviderTool{}.InScope("x", "y"))
}

// =============================================================================
// REQUEST
// =============================================================================

func TestRequest_Validate(t *testing.T) {
	empty := &inference.Request{}
	err := empty.Validate()
	require.Error(t, err)
	assert.True(t, inference.IsKind(err, inference.KindInvalidRequest))

	systemOnly := &inference.Request{System: inference.Ptr("be brief")}
	assert.NoError(t, systemOnly.Validate())

	msgs := []inference.Message{{Role: inference.RoleUser, Content: []inference.InputBlock{inference.Text{Text: "hi"}}}}

	badMode := &inference.Request{Messages: msgs, JSONMode: "maybe"}
	assert.True(t, inference.IsKind(badMode.Validate(), inference.KindInvalidRequest))

	badSchema := &inference.Request{Messages: msgs, OutputSchema: json.RawMessage(`{`)}
	assert.Error(t, badSchema.Validate())

	unknownTool := &inference.Request{Messages: msgs, ToolConfig: &inference.ToolConfig{
		Tools:  []inference.FunctionTool{{Name: "a"}},
		Choice: inference.Specific("b"),
	}}
	assert.True(t, inference.IsKind(unknownTool.Validate(), inference.KindInvalidRequest))
}

func TestRequest_JSONHelpers(t *testing.T) {
	req := &inference.Request{JSONMode: inference.JSONModeStrict}
	assert.True(t, req.WantsJSONObject())
	req.OutputSchema = json.RawMessage(`{"type":"object"}`)
	assert.False(t, req.WantsJSONObject())
	req.JSONMode = inference.JSONModeOn
	assert.True(t, req.WantsJSONObject())

	assert.False(t, req.MentionsJSON())
	req.Messages = []inference.Message{{Role: inference.RoleUser, Content: []inference.InputBlock{inference.Text{Text: "Reply in Json"}}}}
	assert.True(t, req.MentionsJSON())
}

// =============================================================================
// ACCUMULATOR
// =============================================================================

func TestAccumulator_RebuildsBlocksInFirstSeenOrder(t *testing.T) {
	acc := inference.NewAccumulator()
	acc.Add(&inference.Chunk{Content: []inference.ChunkBlock{
		inference.ThoughtChunk{ID: "0", SummaryID: inference.Ptr("10"), SummaryText: inference.Ptr("late")},
		inference.ThoughtChunk{ID: "0", SummaryID: inference.Ptr("2"), SummaryText: inference.Ptr("ear")},
	}})
	acc.Add(&inference.Chunk{Content: []inference.ChunkBlock{
		inference.ThoughtChunk{ID: "0", SummaryID: inference.Ptr("2"), SummaryText: inference.Ptr("ly")},
		inference.ThoughtChunk{ID: "0", Signature: inference.Ptr("enc"), ProviderType: inference.Ptr("openai")},
		inference.TextChunk{ID: "0", Text: "Hel"},
		inference.ToolCallChunk{ID: "fc_1", RawName: inference.Ptr("get_weather")},
	}})
	acc.Add(&inference.Chunk{Content: []inference.ChunkBlock{
		inference.TextChunk{ID: "0", Text: "lo"},
		inference.ToolCallChunk{ID: "fc_1", RawArguments: `{"x":`},
		inference.ToolCallChunk{ID: "fc_1", RawArguments: `1}`},
		inference.UnknownChunk{ID: "0", Data: json.RawMessage(`{"a":1}`)},
		inference.UnknownChunk{ID: "0", Data: json.RawMessage(`{"a":2}`)},
	}})
	reason := inference.FinishToolCall
	acc.Add(&inference.Chunk{Usage: &inference.Usage{OutputTokens: inference.Ptr(uint32(3))}, FinishReason: &reason})

	out := acc.Output()
	require.Len(t, out, 5)

	th, ok := out[0].(inference.Thought)
	require.True(t, ok)
	assert.Equal(t, []inference.ThoughtSummary{{Text: "early"}, {Text: "late"}}, th.Summary)
	assert.Equal(t, "enc", *th.Signature)
	assert.Equal(t, "openai", *th.ProviderType)

	assert.Equal(t, inference.Text{Text: "Hello"}, out[1])
	assert.Equal(t, inference.ToolCall{ID: "fc_1", Name: "get_weather", Arguments: `{"x":1}`}, out[2])
	assert.JSONEq(t, `{"a":1}`, string(out[3].(inference.Unknown).Data))
	assert.JSONEq(t, `{"a":2}`, string(out[4].(inference.Unknown).Data))

	assert.Equal(t, inference.FinishToolCall, *acc.FinishReason())
	assert.Equal(t, uint32(3), *acc.Usage().OutputTokens)
}

func TestAccumulator_DropsEmptyThoughts(t *testing.T) {
	acc := inference.NewAccumulator()
	acc.Add(&inference.Chunk{Content: []inference.ChunkBlock{inference.ThoughtChunk{ID: "1", ProviderType: inference.Ptr("gemini")}}})
	acc.Add(nil)
	assert.Empty(t, acc.Output())
	assert.Nil(t, acc.FinishReason())
}

// =============================================================================
// FILES
// =============================================================================

func TestInlineFileResolver(t *testing.T) {
	r := inference.InlineFileResolver{}
	ctx := context.Background()

	f, err := r.Resolve(ctx, inference.File{Data: "aGk=", MimeType: "text/plain", Filename: "a.txt"})
	require.NoError(t, err)
	assert.True(t, f.Inline())
	assert.Equal(t, "data:text/plain;base64,aGk=", f.DataURL())

	f, err = r.Resolve(ctx, inference.File{URL: "data:image/png;base64,iVBO"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", f.MimeType)
	assert.Equal(t, "iVBO", f.Data)
	assert.True(t, f.IsImage())

	f, err = r.Resolve(ctx, inference.File{URL: "https://example.com/doc.pdf", MimeType: "application/pdf"})
	require.NoError(t, err)
	assert.False(t, f.Inline())
	assert.Equal(t, "https://example.com/doc.pdf", f.URL)

	_, err = r.Resolve(ctx, inference.File{Data: "aGk="})
	assert.Error(t, err, "inline data needs a mime type")
	_, err = r.Resolve(ctx, inference.File{Data: "not base64!", MimeType: "text/plain"})
	assert.Error(t, err)
	_, err = r.Resolve(ctx, inference.File{})
	assert.Error(t, err)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestError_FormatAndKind(t *testing.T) {
	e := inference.ServerError("anthropic", "overloaded")
	e.StatusCode = 529
	assert.Equal(t, "inference_server (anthropic) status 529: overloaded", e.Error())

	wrapped := fmt.Errorf("call failed: %w", e)
	assert.True(t, inference.IsKind(wrapped, inference.KindInferenceServer))
	assert.False(t, inference.IsKind(wrapped, inference.KindInferenceClient))

	got, ok := inference.AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 529, got.StatusCode)

	cause := fmt.Errorf("boom")
	assert.ErrorIs(t, inference.InternalError("x", "bad").Wrap(cause), cause)
}
