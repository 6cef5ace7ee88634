package adapters

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/transport"
)

// Messages API streaming.
//
// Every frame carries a "type". Content arrives as indexed blocks:
// content_block_start opens one, content_block_delta extends it,
// content_block_stop closes it. Usage is split between message_start (input)
// and message_delta (output, stop_reason); both are held until message_stop.
// A tool_use block whose input deltas were all empty is closed with "{}", the
// arguments the non-streaming response reports for it.

type anthropicStreamDecoder struct {
	provider   string
	target     Target
	toolIDs    map[int64]string
	toolArgs   map[int64]bool // tool blocks that received arguments
	usage      *inference.Usage
	stopReason *inference.FinishReason
}

// NewStreamDecoder creates a decoder for one Messages API stream.
func (a *AnthropicAdapter) NewStreamDecoder(target Target) StreamDecoder {
	return newAnthropicStreamDecoder(a.name, target)
}

func newAnthropicStreamDecoder(provider string, target Target) *anthropicStreamDecoder {
	return &anthropicStreamDecoder{
		provider: provider,
		target:   target,
		toolIDs:  make(map[int64]string),
		toolArgs: make(map[int64]bool),
	}
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Index   int64  `json:"index"`
	Message struct {
		Usage *anthropicUsage `json:"usage"`
	} `json:"message"`
	ContentBlock json.RawMessage `json:"content_block"`
	Delta        struct {
		Type        string  `json:"type"`
		Text        string  `json:"text"`
		PartialJSON string  `json:"partial_json"`
		Thinking    string  `json:"thinking"`
		Signature   string  `json:"signature"`
		StopReason  *string `json:"stop_reason"`
	} `json:"delta"`
	Usage *anthropicUsage `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Decode applies one frame to the stream state.
func (d *anthropicStreamDecoder) Decode(frame transport.Frame) (*inference.Chunk, bool, error) {
	data := frame.Data
	if !gjson.ValidBytes(data) {
		skipMalformed(d.provider, data, errInvalidJSON)
		return nil, false, nil
	}
	var ev anthropicStreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		skipMalformed(d.provider, data, err)
		return nil, false, nil
	}

	id := strconv.FormatInt(ev.Index, 10)
	switch ev.Type {
	case "ping":
		return nil, false, nil
	case "content_block_stop":
		if call := d.closeTool(ev.Index); call != nil {
			return contentChunk(*call), false, nil
		}
		return nil, false, nil
	case "message_start":
		if ev.Message.Usage != nil {
			d.usage = mergeUsage(d.usage, ev.Message.Usage.canonical())
		}
		return nil, false, nil
	case "content_block_start":
		return d.blockStart(id, ev)
	case "content_block_delta":
		return d.blockDelta(id, ev, data)
	case "message_delta":
		if ev.Usage != nil {
			d.usage = mergeUsage(d.usage, ev.Usage.canonical())
		}
		if ev.Delta.StopReason != nil && d.stopReason == nil {
			d.stopReason = inference.Ptr(anthropicFinishReason(*ev.Delta.StopReason))
		}
		return nil, false, nil
	case "message_stop":
		return d.terminal(), true, nil
	case "error":
		return nil, true, inference.ServerError(d.provider, "%s: %s", ev.Error.Type, ev.Error.Message)
	default:
		return d.unknown(unknownEventID(data, ev.Type), data)
	}
}

func (d *anthropicStreamDecoder) blockStart(id string, ev anthropicStreamEvent) (*inference.Chunk, bool, error) {
	block := ev.ContentBlock
	switch gjson.GetBytes(block, "type").String() {
	case "text":
		if text := gjson.GetBytes(block, "text").String(); text != "" {
			return contentChunk(inference.TextChunk{ID: id, Text: text}), false, nil
		}
		return nil, false, nil
	case "tool_use":
		callID := gjson.GetBytes(block, "id").String()
		if callID == "" {
			return nil, true, inference.ServerError(d.provider, "tool_use block %s has no id", id)
		}
		d.toolIDs[ev.Index] = callID
		name := gjson.GetBytes(block, "name").String()
		// input is always {} at block start; arguments arrive as deltas.
		return contentChunk(inference.ToolCallChunk{ID: callID, RawName: inference.Ptr(name)}), false, nil
	case "thinking":
		th := inference.ThoughtChunk{ID: id, ProviderType: inference.Ptr(anthropicThoughtType)}
		if text := gjson.GetBytes(block, "thinking").String(); text != "" {
			th.Text = inference.Ptr(text)
		}
		if sig := gjson.GetBytes(block, "signature").String(); sig != "" {
			th.Signature = inference.Ptr(sig)
		}
		return contentChunk(th), false, nil
	case "redacted_thinking":
		return contentChunk(inference.ThoughtChunk{
			ID:           id,
			Signature:    inference.Ptr(gjson.GetBytes(block, "data").String()),
			ProviderType: inference.Ptr(anthropicThoughtType),
		}), false, nil
	default:
		return d.unknown(id, block)
	}
}

func (d *anthropicStreamDecoder) blockDelta(id string, ev anthropicStreamEvent, data []byte) (*inference.Chunk, bool, error) {
	switch ev.Delta.Type {
	case "text_delta":
		if ev.Delta.Text == "" {
			return nil, false, nil
		}
		return contentChunk(inference.TextChunk{ID: id, Text: ev.Delta.Text}), false, nil
	case "input_json_delta":
		callID, ok := d.toolIDs[ev.Index]
		if !ok {
			return nil, true, inference.ServerError(d.provider, "input_json_delta for block %s before its tool_use start", id)
		}
		if ev.Delta.PartialJSON != "" {
			d.toolArgs[ev.Index] = true
		}
		return contentChunk(inference.ToolCallChunk{ID: callID, RawArguments: ev.Delta.PartialJSON}), false, nil
	case "thinking_delta":
		return contentChunk(inference.ThoughtChunk{ID: id, Text: inference.Ptr(ev.Delta.Thinking)}), false, nil
	case "signature_delta":
		return contentChunk(inference.ThoughtChunk{
			ID:           id,
			Signature:    inference.Ptr(ev.Delta.Signature),
			ProviderType: inference.Ptr(anthropicThoughtType),
		}), false, nil
	default:
		return d.unknown(id, data)
	}
}

// closeTool returns the "{}" arguments chunk for a tool block at index that
// received no arguments, once.
func (d *anthropicStreamDecoder) closeTool(index int64) *inference.ToolCallChunk {
	callID, ok := d.toolIDs[index]
	if !ok || d.toolArgs[index] {
		return nil
	}
	d.toolArgs[index] = true
	return &inference.ToolCallChunk{ID: callID, RawArguments: "{}"}
}

func (d *anthropicStreamDecoder) unknown(id string, data []byte) (*inference.Chunk, bool, error) {
	if d.target.DiscardUnknownChunks {
		return nil, false, nil
	}
	return contentChunk(unknownChunk(id, data, d.target)), false, nil
}

// Finish reports a stream that ended before message_stop.
func (d *anthropicStreamDecoder) Finish() (*inference.Chunk, error) {
	return nil, errEndedEarly(d.provider)
}

func (d *anthropicStreamDecoder) terminal() *inference.Chunk {
	reason := inference.FinishUnknown
	if d.stopReason != nil {
		reason = *d.stopReason
	}
	usage := d.usage
	if usage == nil {
		usage = &inference.Usage{}
	}
	chunk := terminalChunk(usage, reason)

	// Tool blocks left open by a missing content_block_stop.
	indexes := make([]int64, 0, len(d.toolIDs))
	for index := range d.toolIDs {
		indexes = append(indexes, index)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	for _, index := range indexes {
		if call := d.closeTool(index); call != nil {
			chunk.Content = append(chunk.Content, *call)
		}
	}
	return chunk
}
