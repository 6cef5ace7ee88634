package adapters_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/inference-gateway/internal/adapters"
	"github.com/compresr/inference-gateway/internal/inference"
)

func responsesTarget() adapters.Target {
	return testTarget("https://api.openai.com/v1", "gpt-5")
}

// =============================================================================
// REQUEST
// =============================================================================

func TestOpenAIResponses_BuildRequest_Basics(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	req := &inference.Request{
		System:          inference.Ptr("Be brief."),
		Messages:        []inference.Message{user(text("hi"))},
		MaxTokens:       inference.Ptr(uint32(256)),
		ReasoningEffort: inference.Ptr("low"),
		Stream:          true,
		ExtraHeaders:    map[string]string{"OpenAI-Beta": "x"},
	}

	wire, body := build(t, adapter, req, responsesTarget())

	assert.Equal(t, "POST", wire.Method)
	assert.Equal(t, "https://api.openai.com/v1/responses", wire.URL)
	assert.Equal(t, "application/json", wire.Headers.Get("Content-Type"))
	assert.Equal(t, "x", wire.Headers.Get("OpenAI-Beta"))

	assert.Equal(t, "gpt-5", body.Get("model").String())
	assert.Equal(t, "Be brief.", body.Get("instructions").String())
	assert.Equal(t, int64(256), body.Get("max_output_tokens").Int())
	assert.Equal(t, "low", body.Get("reasoning.effort").String())
	assert.True(t, body.Get("stream").Bool())
	assert.False(t, body.Get("store").Bool())
	assert.True(t, body.Get("store").Exists())
	assert.Equal(t, "reasoning.encrypted_content", body.Get("include.0").String())
	assert.JSONEq(t, `[{"role":"user","content":[{"type":"input_text","text":"hi"}]}]`, body.Get("input").Raw)
	assert.False(t, body.Get("tools").Exists())
	assert.False(t, body.Get("tool_choice").Exists())
}

func TestOpenAIResponses_BuildRequest_HistoryOrder(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	req := &inference.Request{
		Messages: []inference.Message{
			user(text("weather?")),
			assistant(
				inference.Thought{Signature: inference.Ptr("enc-1"), Summary: []inference.ThoughtSummary{{Text: "plan"}}, ProviderType: inference.Ptr("openai")},
				inference.Thought{Text: inference.Ptr("unsigned")},
				inference.Thought{Signature: inference.Ptr("foreign"), ProviderType: inference.Ptr("anthropic")},
				inference.ToolCall{ID: "call_1", Name: "get_weather", Arguments: `{"city":"Paris"}`},
			),
			user(
				text("before"),
				inference.ToolResult{ID: "call_1", Name: "get_weather", Result: "sunny"},
				text("after"),
			),
		},
	}

	_, body := build(t, adapter, req, responsesTarget())

	assert.JSONEq(t, `[
		{"role":"user","content":[{"type":"input_text","text":"weather?"}]},
		{"type":"reasoning","encrypted_content":"enc-1","summary":[{"type":"summary_text","text":"plan"}]},
		{"type":"function_call","call_id":"call_1","name":"get_weather","arguments":"{\"city\":\"Paris\"}"},
		{"role":"user","content":[{"type":"input_text","text":"before"}]},
		{"type":"function_call_output","call_id":"call_1","output":"sunny"},
		{"role":"user","content":[{"type":"input_text","text":"after"}]}
	]`, body.Get("input").Raw)
}

func TestOpenAIResponses_BuildRequest_ToolChoice(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	base := func(tc *inference.ToolConfig) *inference.Request {
		return &inference.Request{Messages: []inference.Message{user(text("go"))}, ToolConfig: tc}
	}

	_, body := build(t, adapter, base(&inference.ToolConfig{Tools: weatherTools(), Choice: inference.Specific("get_weather")}), responsesTarget())
	assert.JSONEq(t, `{"type":"function","name":"get_weather"}`, body.Get("tool_choice").Raw)
	assert.Equal(t, "get_weather", body.Get("tools.0.name").String())
	assert.JSONEq(t, `{"type":"object","properties":{}}`, body.Get("tools.1.parameters").Raw)

	_, body = build(t, adapter, base(&inference.ToolConfig{
		Tools:        weatherTools(),
		Choice:       inference.ToolChoice{Mode: inference.ToolChoiceNone},
		AllowedTools: &inference.AllowedTools{Choice: inference.AllowedToolsExplicit, Tools: []string{"get_time"}},
	}), responsesTarget())
	assert.JSONEq(t, `{"type":"allowed_tools","mode":"auto","tools":[{"type":"function","name":"get_time"}]}`, body.Get("tool_choice").Raw)
	assert.Len(t, body.Get("tools").Array(), 2, "allow-list does not filter the declared tools")

	_, body = build(t, adapter, base(&inference.ToolConfig{
		CustomTools: []inference.CustomTool{{Name: "shell", Format: &inference.CustomToolFormat{Type: "text"}}},
		Choice:      inference.Specific("shell"),
	}), responsesTarget())
	assert.JSONEq(t, `{"type":"custom","name":"shell"}`, body.Get("tool_choice").Raw)
	assert.JSONEq(t, `{"type":"custom","name":"shell","format":{"type":"text"}}`, body.Get("tools.0").Raw)

	_, body = build(t, adapter, base(&inference.ToolConfig{Tools: weatherTools(), Choice: inference.ToolChoice{Mode: inference.ToolChoiceRequired}}), responsesTarget())
	assert.Equal(t, "required", body.Get("tool_choice").String())
}

func TestOpenAIResponses_BuildRequest_JSONSchema(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	req := &inference.Request{
		Messages:     []inference.Message{user(text("list"))},
		JSONMode:     inference.JSONModeStrict,
		OutputSchema: json.RawMessage(`{"type":"object"}`),
	}
	_, body := build(t, adapter, req, responsesTarget())
	assert.Equal(t, "json_schema", body.Get("text.format.type").String())
	assert.True(t, body.Get("text.format.strict").Bool())
	assert.False(t, body.Get("instructions").Exists(), "schema mode needs no JSON instruction")

	req.OutputSchema = nil
	_, body = build(t, adapter, req, responsesTarget())
	assert.Equal(t, "json_object", body.Get("text.format.type").String())
	assert.Equal(t, "Respond using JSON.", body.Get("instructions").String())
}

func TestOpenAIResponses_BuildRequest_RejectsStopSequences(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	req := &inference.Request{Messages: []inference.Message{user(text("hi"))}, StopSequences: []string{"END"}}

	_, err := adapter.BuildRequest(context.Background(), req, responsesTarget())
	assert.True(t, inference.IsKind(err, inference.KindUnsupportedContent))
}

func TestOpenAIResponses_BuildRequest_UnknownReplay(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	target := responsesTarget()
	req := &inference.Request{Messages: []inference.Message{
		user(text("hi")),
		assistant(
			inference.Unknown{Data: json.RawMessage(`{"type":"web_search_call","id":"ws_1"}`), ModelName: inference.Ptr(target.ModelName)},
			inference.Unknown{Data: json.RawMessage(`{"type":"other"}`), ModelName: inference.Ptr("someone-else")},
		),
	}}

	_, body := build(t, adapter, req, target)
	input := body.Get("input").Array()
	require.Len(t, input, 2)
	assert.JSONEq(t, `{"type":"web_search_call","id":"ws_1"}`, input[1].Raw)
}

// =============================================================================
// RESPONSE
// =============================================================================

func TestOpenAIResponses_ParseResponse(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	body := []byte(`{
		"id": "resp_1",
		"output": [
			{"type":"reasoning","id":"rs_1","encrypted_content":"enc","summary":[{"type":"summary_text","text":"thinking"}]},
			{"type":"message","role":"assistant","content":[{"type":"output_text","text":"Hi"}]},
			{"type":"function_call","call_id":"call_1","name":"get_weather","arguments":"{}"},
			{"type":"web_search_call","id":"ws_1","status":"completed"}
		],
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	parsed, err := adapter.ParseResponse(body, responsesTarget())
	require.NoError(t, err)
	require.Len(t, parsed.Output, 4)

	th := parsed.Output[0].(inference.Thought)
	assert.Equal(t, "enc", *th.Signature)
	assert.Equal(t, "openai", *th.ProviderType)
	assert.Equal(t, []inference.ThoughtSummary{{Text: "thinking"}}, th.Summary)

	assert.Equal(t, inference.Text{Text: "Hi"}, parsed.Output[1])
	assert.Equal(t, inference.ToolCall{ID: "call_1", Name: "get_weather", Arguments: "{}"}, parsed.Output[2])

	unknown := parsed.Output[3].(inference.Unknown)
	assert.JSONEq(t, `{"type":"web_search_call","id":"ws_1","status":"completed"}`, string(unknown.Data))
	assert.Equal(t, "test-model", *unknown.ModelName)
	assert.Equal(t, "test-provider", *unknown.ProviderName)

	assert.Equal(t, uint32(10), *parsed.Usage.InputTokens)
	assert.Equal(t, uint32(5), *parsed.Usage.OutputTokens)
	assert.Nil(t, parsed.FinishReason, "no completion-status field means no finish reason")
}

func TestOpenAIResponses_ParseResponse_Incomplete(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	parsed, err := adapter.ParseResponse([]byte(`{"output":[],"incomplete_details":{"reason":"max_output_tokens"}}`), responsesTarget())
	require.NoError(t, err)
	assert.Equal(t, inference.FinishLength, *parsed.FinishReason)
}

func TestOpenAIResponses_ParseResponse_ProtocolViolations(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)

	_, err := adapter.ParseResponse([]byte(`{"output":[{"type":"message","role":"user","content":[]}]}`), responsesTarget())
	assert.True(t, inference.IsKind(err, inference.KindInferenceServer))

	_, err = adapter.ParseResponse([]byte(`not json`), responsesTarget())
	assert.True(t, inference.IsKind(err, inference.KindInferenceServer))

	_, err = adapter.ParseResponse([]byte(`{"output":[{"type":"message","role":"assistant","content":[{"type":"refusal","refusal":"no"}]}]}`), responsesTarget())
	assert.True(t, inference.IsKind(err, inference.KindInferenceServer))
}

// =============================================================================
// STREAMING
// =============================================================================

func TestOpenAIResponses_Stream_TextDelta(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	d := adapter.NewStreamDecoder(responsesTarget())

	chunk, done, err := decodeFrame(d, `{"type":"response.output_text.delta","delta":"Hello","content_index":2,"item_id":"msg_1","output_index":0}`)
	require.NoError(t, err)
	assert.False(t, done)
	require.NotNil(t, chunk)
	assert.Equal(t, []inference.ChunkBlock{inference.TextChunk{ID: "2", Text: "Hello"}}, chunk.Content)
	assert.Nil(t, chunk.FinishReason)
}

func TestOpenAIResponses_Stream_ToolCallSharesID(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	chunks, err := decode(t, adapter, responsesTarget(),
		`{"type":"response.output_item.added","output_index":0,"item":{"type":"function_call","id":"fc_1","call_id":"","name":"get_weather","arguments":""}}`,
		`{"type":"response.function_call_arguments.delta","output_index":0,"item_id":"fc_1","delta":"{\"x\":1}"}`,
		`{"type":"response.function_call_arguments.done","output_index":0,"item_id":"fc_1","arguments":"{\"x\":1}"}`,
	)
	require.Error(t, err, "stream has no terminal event")
	require.Len(t, chunks, 3)

	assert.Equal(t, []inference.ChunkBlock{
		inference.ToolCallChunk{ID: "fc_1", RawName: inference.Ptr("get_weather")},
		inference.ToolCallChunk{ID: "fc_1", RawArguments: `{"x":1}`},
		inference.ToolCallChunk{ID: "fc_1"},
	}, blocksOf(chunks))
}

func TestOpenAIResponses_Stream_Completed(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	d := adapter.NewStreamDecoder(responsesTarget())

	chunk, done, err := decodeFrame(d, `{"type":"response.completed","response":{"id":"resp_1","usage":{"input_tokens":15,"output_tokens":25}}}`)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, chunk.Content)
	assert.Equal(t, uint32(15), *chunk.Usage.InputTokens)
	assert.Equal(t, uint32(25), *chunk.Usage.OutputTokens)
	assert.Equal(t, inference.FinishStop, *chunk.FinishReason)
}

func TestOpenAIResponses_Stream_CompletedWithIncompleteDetails(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	d := adapter.NewStreamDecoder(responsesTarget())

	chunk, done, err := decodeFrame(d, `{"type":"response.completed","response":{"incomplete_details":{"reason":"max_output_tokens"}}}`)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, inference.FinishLength, *chunk.FinishReason)
}

func TestOpenAIResponses_Stream_ArgumentsBeforeAnnouncement(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	d := adapter.NewStreamDecoder(responsesTarget())

	chunk, done, err := decodeFrame(d, `{"type":"response.function_call_arguments.delta","item_id":"fc_9","delta":"{"}`)
	assert.Nil(t, chunk)
	assert.True(t, done)
	assert.True(t, inference.IsKind(err, inference.KindInferenceServer))
}

func TestOpenAIResponses_Stream_ReasoningAndUnknown(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	chunks, err := decode(t, adapter, responsesTarget(),
		`{"type":"response.created","response":{}}`,
		`{"type":"response.output_item.added","output_index":0,"item":{"type":"reasoning","id":"rs_1","summary":[]}}`,
		`{"type":"response.reasoning_summary_text.delta","output_index":0,"summary_index":1,"delta":"step"}`,
		`{"type":"response.output_item.done","output_index":0,"item":{"type":"reasoning","id":"rs_1","encrypted_content":"enc","summary":[]}}`,
		`{"type":"response.web_search_call.searching","item_id":"ws_1","output_index":1}`,
		`{"type":"response.completed","response":{}}`,
	)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	assert.Equal(t, inference.ThoughtChunk{ID: "0", SummaryID: inference.Ptr("1"), SummaryText: inference.Ptr("step")}, chunks[0].Content[0])
	assert.Equal(t, inference.ThoughtChunk{ID: "0", Signature: inference.Ptr("enc"), ProviderType: inference.Ptr("openai")}, chunks[1].Content[0])

	unknown := chunks[2].Content[0].(inference.UnknownChunk)
	assert.Equal(t, "ws_1", unknown.ID)
	assert.Equal(t, "test-model", *unknown.ModelName)

	assert.Equal(t, []inference.FinishReason{inference.FinishStop}, finishReasons(chunks))
}

func TestOpenAIResponses_Stream_DiscardUnknownChunks(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	target := responsesTarget()
	target.DiscardUnknownChunks = true

	chunks, err := decode(t, adapter, target,
		`{"type":"response.web_search_call.searching","item_id":"ws_1"}`,
		`{"type":"response.completed","response":{}}`,
	)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.NotNil(t, chunks[0].FinishReason)
}

func TestOpenAIResponses_Stream_MalformedFrameSkipped(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)
	chunks, err := decode(t, adapter, responsesTarget(),
		`{not json`,
		`{"type":"response.output_text.delta","delta":"ok","content_index":0}`,
		`{"type":"response.incomplete","response":{"usage":{"input_tokens":1}}}`,
	)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, inference.FinishLength, *chunks[1].FinishReason)
	assert.Nil(t, chunks[1].Usage.OutputTokens)
}

func TestOpenAIResponses_Stream_Failures(t *testing.T) {
	adapter := adapters.NewOpenAIResponsesAdapter(nil)

	_, err := decode(t, adapter, responsesTarget(), `{"type":"response.failed","response":{"error":{"code":"server_error","message":"boom"}}}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = decode(t, adapter, responsesTarget(), `{"type":"error","message":"rate limited"}`)
	assert.Contains(t, err.Error(), "rate limited")

	_, err = decode(t, adapter, responsesTarget(), `{"type":"response.refusal.delta","delta":"no"}`)
	assert.True(t, inference.IsKind(err, inference.KindInferenceServer))
}
