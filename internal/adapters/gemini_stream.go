package adapters

import (
	"encoding/json"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/transport"
)

// Gemini streaming (streamGenerateContent?alt=sse).
//
// Every frame is a complete partial GenerateContentResponse. Consecutive text
// parts extend one text block and consecutive thought parts extend one thought
// block until it is signed. A thoughtSignature on any other part is a thought
// block of its own, and each functionCall arrives whole. Block ids come from a
// per-stream counter so the stream reassembles to the blocks ParseResponse
// returns for the same parts. The frame whose candidate carries finishReason
// ends the stream, together with any content it holds.

type geminiStreamDecoder struct {
	provider    string
	target      Target
	usage       *inference.Usage
	sawToolCall bool

	blocks     int    // ids handed out so far
	openID     string // block that text or thought parts extend
	openKind   string // "text", "thought" or "" when nothing is open
	openSigned bool   // the open thought already carries its signature
}

// NewStreamDecoder creates a decoder for one Gemini stream.
func (a *GeminiAdapter) NewStreamDecoder(target Target) StreamDecoder {
	return &geminiStreamDecoder{provider: a.name, target: target}
}

// Decode applies one frame to the stream state.
func (d *geminiStreamDecoder) Decode(frame transport.Frame) (*inference.Chunk, bool, error) {
	data := frame.Data
	if !gjson.ValidBytes(data) {
		skipMalformed(d.provider, data, errInvalidJSON)
		return nil, false, nil
	}
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
		return nil, true, inference.ServerError(d.provider, "%s", msg.String())
	}

	var resp geminiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		skipMalformed(d.provider, data, err)
		return nil, false, nil
	}
	if resp.UsageMetadata != nil {
		d.usage = mergeUsage(d.usage, resp.UsageMetadata.canonical())
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return d.terminal(nil, inference.FinishContentFilter), true, nil
		}
		return nil, false, nil
	}

	candidate := resp.Candidates[0]
	var blocks []inference.ChunkBlock
	for _, raw := range candidate.Content.Parts {
		blocks = append(blocks, d.partChunks(raw)...)
	}

	if candidate.FinishReason != "" {
		return d.terminal(blocks, geminiFinishReason(candidate.FinishReason, d.sawToolCall)), true, nil
	}
	if len(blocks) == 0 {
		return nil, false, nil
	}
	return contentChunk(blocks...), false, nil
}

func (d *geminiStreamDecoder) partChunks(raw json.RawMessage) []inference.ChunkBlock {
	var p geminiPart
	if err := json.Unmarshal(raw, &p); err != nil {
		d.close()
		return d.unknown(raw)
	}

	if p.Thought {
		th := inference.ThoughtChunk{ProviderType: inference.Ptr(geminiThoughtType)}
		if p.Text != nil && *p.Text != "" {
			th.Text = p.Text
		}
		if p.ThoughtSignature != "" {
			th.Signature = inference.Ptr(p.ThoughtSignature)
		}
		if th.Text == nil && th.Signature == nil {
			return nil
		}
		th.ID = d.extend("thought")
		if th.Signature != nil {
			d.openSigned = true
		}
		return []inference.ChunkBlock{th}
	}

	var out []inference.ChunkBlock
	if p.ThoughtSignature != "" {
		d.close()
		out = append(out, inference.ThoughtChunk{
			ID:           d.nextID(),
			Signature:    inference.Ptr(p.ThoughtSignature),
			ProviderType: inference.Ptr(geminiThoughtType),
		})
	}

	switch {
	case p.FunctionCall != nil:
		d.close()
		call := geminiToolCall(p.FunctionCall)
		d.sawToolCall = true
		out = append(out, inference.ToolCallChunk{ID: call.ID, RawName: inference.Ptr(call.Name), RawArguments: call.Arguments})
	case p.Text != nil:
		if *p.Text != "" {
			out = append(out, inference.TextChunk{ID: d.extend("text"), Text: *p.Text})
		}
	default:
		d.close()
		out = append(out, d.unknown(raw)...)
	}
	return out
}

// extend returns the id of the open block of kind, opening a new one when the
// open block is of another kind or is a signed thought.
func (d *geminiStreamDecoder) extend(kind string) string {
	if d.openKind != kind || (kind == "thought" && d.openSigned) {
		d.openID = d.nextID()
		d.openKind = kind
		d.openSigned = false
	}
	return d.openID
}

func (d *geminiStreamDecoder) close() {
	d.openKind = ""
	d.openSigned = false
}

func (d *geminiStreamDecoder) nextID() string {
	id := strconv.Itoa(d.blocks)
	d.blocks++
	return id
}

func (d *geminiStreamDecoder) unknown(raw json.RawMessage) []inference.ChunkBlock {
	if d.target.DiscardUnknownChunks {
		return nil
	}
	return []inference.ChunkBlock{unknownChunk(d.nextID(), raw, d.target)}
}

// Finish reports a stream that ended before a finishReason.
func (d *geminiStreamDecoder) Finish() (*inference.Chunk, error) {
	return nil, errEndedEarly(d.provider)
}

func (d *geminiStreamDecoder) terminal(blocks []inference.ChunkBlock, reason inference.FinishReason) *inference.Chunk {
	usage := d.usage
	if usage == nil {
		usage = &inference.Usage{}
	}
	chunk := terminalChunk(usage, reason)
	if len(blocks) > 0 {
		chunk.Content = blocks
	}
	return chunk
}
