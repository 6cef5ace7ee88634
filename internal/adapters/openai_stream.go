package adapters

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/transport"
)

// Chat Completions streaming.
//
// Frames are untagged deltas: choices[0].delta carries content,
// reasoning_content and tool_calls[] keyed by index. A tool call's id and
// name arrive once, on the first delta for its index. finish_reason and usage
// arrive on late frames; both are held and emitted on the terminal chunk,
// which is produced at "data: [DONE]".

const (
	chatTextID    = "0"
	chatThoughtID = "0"
	chatDoneFrame = "[DONE]"
)

type chatStreamDecoder struct {
	provider     string
	target       Target
	toolIDs      map[int64]string
	finishReason *inference.FinishReason
	usage        *inference.Usage
}

// NewStreamDecoder creates a decoder for one Chat Completions stream.
func (a *OpenAIAdapter) NewStreamDecoder(target Target) StreamDecoder {
	return &chatStreamDecoder{
		provider: a.name,
		target:   target,
		toolIDs:  make(map[int64]string),
	}
}

type chatStreamFrame struct {
	Choices []struct {
		Index int64 `json:"index"`
		Delta struct {
			Content          *string `json:"content"`
			ReasoningContent *string `json:"reasoning_content"`
			Refusal          *string `json:"refusal"`
			ToolCalls        []struct {
				Index    int64  `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      *string `json:"name"`
					Arguments string  `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

// Decode applies one frame to the stream state.
func (d *chatStreamDecoder) Decode(frame transport.Frame) (*inference.Chunk, bool, error) {
	data := frame.Data
	if strings.TrimSpace(string(data)) == chatDoneFrame {
		return d.terminal(), true, nil
	}
	if !gjson.ValidBytes(data) {
		skipMalformed(d.provider, data, errInvalidJSON)
		return nil, false, nil
	}
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
		return nil, true, inference.ServerError(d.provider, "%s", msg.String())
	}

	var f chatStreamFrame
	if err := json.Unmarshal(data, &f); err != nil {
		skipMalformed(d.provider, data, err)
		return nil, false, nil
	}
	if f.Usage != nil {
		d.usage = mergeUsage(d.usage, f.Usage.canonical())
	}

	var blocks []inference.ChunkBlock
	for _, choice := range f.Choices {
		if choice.Index != 0 {
			continue
		}
		delta := choice.Delta
		if delta.Refusal != nil && *delta.Refusal != "" {
			return nil, true, inference.ServerError(d.provider, "model refused to respond")
		}
		if delta.ReasoningContent != nil && *delta.ReasoningContent != "" {
			blocks = append(blocks, inference.ThoughtChunk{ID: chatThoughtID, Text: delta.ReasoningContent})
		}
		if delta.Content != nil && *delta.Content != "" {
			blocks = append(blocks, inference.TextChunk{ID: chatTextID, Text: *delta.Content})
		}
		for _, tc := range delta.ToolCalls {
			id, known := d.toolIDs[tc.Index]
			if !known {
				if tc.ID == "" {
					return nil, true, inference.ServerError(d.provider, "tool call delta for index %d arrived before the call's id", tc.Index)
				}
				id = tc.ID
				d.toolIDs[tc.Index] = id
				name := ""
				if tc.Function.Name != nil {
					name = *tc.Function.Name
				}
				blocks = append(blocks, inference.ToolCallChunk{ID: id, RawName: inference.Ptr(name), RawArguments: tc.Function.Arguments})
				continue
			}
			blocks = append(blocks, inference.ToolCallChunk{ID: id, RawArguments: tc.Function.Arguments})
		}
		if choice.FinishReason != nil && d.finishReason == nil {
			d.finishReason = inference.Ptr(chatFinishReason(*choice.FinishReason))
		}
	}

	if len(blocks) == 0 {
		return nil, false, nil
	}
	return contentChunk(blocks...), false, nil
}

// Finish accepts a body that ends without [DONE] once a finish reason was seen.
func (d *chatStreamDecoder) Finish() (*inference.Chunk, error) {
	if d.finishReason == nil {
		return nil, errEndedEarly(d.provider)
	}
	return d.terminal(), nil
}

func (d *chatStreamDecoder) terminal() *inference.Chunk {
	reason := inference.FinishUnknown
	if d.finishReason != nil {
		reason = *d.finishReason
	}
	usage := d.usage
	if usage == nil {
		usage = &inference.Usage{}
	}
	return terminalChunk(usage, reason)
}
