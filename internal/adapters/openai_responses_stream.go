package adapters

import (
	"encoding/json"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/transport"
)

// Responses API streaming.
//
// Every SSE frame is one JSON event discriminated by "type". Tool calls are
// announced by response.output_item.added (name), then streamed as argument
// deltas, then closed by an arguments.done event. The decoder remembers the
// call being assembled in responsesStreamState.

// Lifecycle events that never produce a chunk.
var responsesSilentEvents = map[string]bool{
	"response.created":                      true,
	"response.in_progress":                  true,
	"response.queued":                       true,
	"response.content_part.added":           true,
	"response.content_part.done":            true,
	"response.output_text.done":             true,
	"response.output_text.annotation.added": true,
	"response.reasoning_summary_part.added": true,
	"response.reasoning_summary_part.done":  true,
	"response.reasoning_summary_text.done":  true,
	"response.reasoning_text.done":          true,
}

// Output item types that are known but produce no chunk when added.
var responsesKnownItems = map[string]bool{
	"message":   true,
	"reasoning": true,
}

type responsesStreamState struct {
	toolID   *string
	toolName *string
}

type responsesStreamDecoder struct {
	provider string
	target   Target
	state    responsesStreamState
}

// NewStreamDecoder creates a decoder for one Responses API stream.
func (a *OpenAIResponsesAdapter) NewStreamDecoder(target Target) StreamDecoder {
	return &responsesStreamDecoder{provider: a.name, target: target}
}

type responsesStreamItem struct {
	Type             string                 `json:"type"`
	ID               string                 `json:"id"`
	CallID           string                 `json:"call_id"`
	Name             string                 `json:"name"`
	EncryptedContent *string                `json:"encrypted_content"`
	Summary          []responsesSummaryPart `json:"summary"`
}

type responsesStreamEvent struct {
	Type         string          `json:"type"`
	Delta        string          `json:"delta"`
	ContentIndex int64           `json:"content_index"`
	OutputIndex  int64           `json:"output_index"`
	SummaryIndex int64           `json:"summary_index"`
	Item         json.RawMessage `json:"item"`
	Message      string          `json:"message"`
	Code         string          `json:"code"`
	Response     *struct {
		Usage             *responsesUsage `json:"usage"`
		IncompleteDetails json.RawMessage `json:"incomplete_details"`
		Error             *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"response"`
}

// Decode applies one event to the stream state.
func (d *responsesStreamDecoder) Decode(frame transport.Frame) (*inference.Chunk, bool, error) {
	data := frame.Data
	if !gjson.ValidBytes(data) {
		skipMalformed(d.provider, data, errInvalidJSON)
		return nil, false, nil
	}
	typ := gjson.GetBytes(data, "type").String()
	if responsesSilentEvents[typ] {
		return nil, false, nil
	}

	if !responsesKnownEvent(typ) {
		if d.target.DiscardUnknownChunks {
			return nil, false, nil
		}
		return contentChunk(unknownChunk(unknownEventID(data, typ), data, d.target)), false, nil
	}

	var ev responsesStreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		skipMalformed(d.provider, data, err)
		return nil, false, nil
	}

	switch typ {
	case "response.output_item.added":
		return d.itemAdded(ev)
	case "response.output_item.done":
		return d.itemDone(ev), false, nil

	case "response.output_text.delta":
		return contentChunk(inference.TextChunk{ID: strconv.FormatInt(ev.ContentIndex, 10), Text: ev.Delta}), false, nil

	case "response.reasoning_summary_text.delta":
		return contentChunk(inference.ThoughtChunk{
			ID:          strconv.FormatInt(ev.OutputIndex, 10),
			SummaryID:   inference.Ptr(strconv.FormatInt(ev.SummaryIndex, 10)),
			SummaryText: inference.Ptr(ev.Delta),
		}), false, nil
	case "response.reasoning_text.delta":
		return contentChunk(inference.ThoughtChunk{
			ID:   strconv.FormatInt(ev.OutputIndex, 10),
			Text: inference.Ptr(ev.Delta),
		}), false, nil

	case "response.function_call_arguments.delta", "response.custom_tool_call_input.delta":
		if d.state.toolID == nil {
			return nil, true, inference.ServerError(d.provider, "received %s before its tool call was announced", typ)
		}
		return contentChunk(inference.ToolCallChunk{ID: *d.state.toolID, RawArguments: ev.Delta}), false, nil
	case "response.function_call_arguments.done", "response.custom_tool_call_input.done":
		if d.state.toolID == nil {
			return nil, true, inference.ServerError(d.provider, "received %s before its tool call was announced", typ)
		}
		return contentChunk(inference.ToolCallChunk{ID: *d.state.toolID}), false, nil

	case "response.refusal.delta", "response.refusal.done":
		return nil, true, inference.ServerError(d.provider, "model refused to respond")

	case "response.completed":
		var usage inference.Usage
		reason := inference.FinishStop
		if ev.Response != nil {
			usage = ev.Response.Usage.canonical()
			if isPresent(ev.Response.IncompleteDetails) {
				reason = inference.FinishLength
			}
		}
		return terminalChunk(&usage, reason), true, nil
	case "response.incomplete":
		var usage inference.Usage
		if ev.Response != nil {
			usage = ev.Response.Usage.canonical()
		}
		return terminalChunk(&usage, inference.FinishLength), true, nil

	case "response.failed":
		msg := "response failed"
		if ev.Response != nil && ev.Response.Error != nil && ev.Response.Error.Message != "" {
			msg = ev.Response.Error.Message
		}
		return nil, true, inference.ServerError(d.provider, "%s", msg)
	case "error":
		msg := ev.Message
		if msg == "" {
			msg = gjson.GetBytes(data, "error.message").String()
		}
		return nil, true, inference.ServerError(d.provider, "%s", msg)
	}
	return nil, false, inference.InternalError(d.provider, "unhandled stream event %q", typ)
}

// itemAdded announces a new output item. Tool calls start here.
func (d *responsesStreamDecoder) itemAdded(ev responsesStreamEvent) (*inference.Chunk, bool, error) {
	var item responsesStreamItem
	if err := json.Unmarshal(ev.Item, &item); err != nil {
		skipMalformed(d.provider, ev.Item, err)
		return nil, false, nil
	}
	switch item.Type {
	case "function_call", "custom_tool_call":
		id := item.CallID
		if id == "" {
			id = item.ID
		}
		if id == "" {
			return nil, true, inference.ServerError(d.provider, "tool call announced without an id")
		}
		d.state.toolID = inference.Ptr(id)
		d.state.toolName = inference.Ptr(item.Name)
		return contentChunk(inference.ToolCallChunk{ID: id, RawName: d.state.toolName}), false, nil
	default:
		if responsesKnownItems[item.Type] {
			return nil, false, nil
		}
		id := item.ID
		if id == "" {
			id = strconv.FormatInt(ev.OutputIndex, 10)
		}
		return contentChunk(unknownChunk(id, ev.Item, d.target)), false, nil
	}
}

// itemDone is silent except for reasoning items, whose encrypted content is
// only complete once the item is done.
func (d *responsesStreamDecoder) itemDone(ev responsesStreamEvent) *inference.Chunk {
	var item responsesStreamItem
	if err := json.Unmarshal(ev.Item, &item); err != nil {
		return nil
	}
	switch item.Type {
	case "function_call", "custom_tool_call":
		d.state = responsesStreamState{}
	case "reasoning":
		if item.EncryptedContent != nil && *item.EncryptedContent != "" {
			return contentChunk(inference.ThoughtChunk{
				ID:           strconv.FormatInt(ev.OutputIndex, 10),
				Signature:    item.EncryptedContent,
				ProviderType: inference.Ptr(openAIThoughtType),
			})
		}
	}
	return nil
}

// Finish fails: a Responses stream must end with a terminal event.
func (d *responsesStreamDecoder) Finish() (*inference.Chunk, error) {
	return nil, errEndedEarly(d.provider)
}

func responsesKnownEvent(typ string) bool {
	switch typ {
	case "response.output_item.added",
		"response.output_item.done",
		"response.output_text.delta",
		"response.reasoning_summary_text.delta",
		"response.reasoning_text.delta",
		"response.function_call_arguments.delta",
		"response.function_call_arguments.done",
		"response.custom_tool_call_input.delta",
		"response.custom_tool_call_input.done",
		"response.refusal.delta",
		"response.refusal.done",
		"response.completed",
		"response.incomplete",
		"response.failed",
		"error":
		return true
	}
	return false
}

// isPresent reports whether a raw JSON field exists and is not null.
func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
