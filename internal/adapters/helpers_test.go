package adapters_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/compresr/inference-gateway/internal/adapters"
	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/transport"
)

func testTarget(apiBase, model string) adapters.Target {
	return adapters.Target{
		ProviderName: "test-provider",
		ModelName:    "test-model",
		Model:        model,
		APIBase:      apiBase,
	}
}

func user(blocks ...inference.InputBlock) inference.Message {
	return inference.Message{Role: inference.RoleUser, Content: blocks}
}

func assistant(blocks ...inference.InputBlock) inference.Message {
	return inference.Message{Role: inference.RoleAssistant, Content: blocks}
}

func text(s string) inference.Text {
	return inference.Text{Text: s}
}

func weatherTools() []inference.FunctionTool {
	return []inference.FunctionTool{
		{Name: "get_weather", Description: "Current weather", Parameters: []byte(`{"type":"object","properties":{"city":{"type":"string"}}}`)},
		{Name: "get_time"},
	}
}

// build runs BuildRequest and returns the wire request with its parsed body.
func build(t *testing.T, a adapters.Adapter, req *inference.Request, target adapters.Target) (*adapters.WireRequest, gjson.Result) {
	t.Helper()
	wire, err := a.BuildRequest(context.Background(), req, target)
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(wire.Body), "body must be valid JSON: %s", wire.Body)
	return wire, gjson.ParseBytes(wire.Body)
}

// decode feeds SSE data payloads to a fresh decoder and returns every chunk.
// It stops at the first terminal event or error.
func decode(t *testing.T, a adapters.Adapter, target adapters.Target, payloads ...string) ([]*inference.Chunk, error) {
	t.Helper()
	d := a.NewStreamDecoder(target)
	var chunks []*inference.Chunk
	for _, p := range payloads {
		chunk, done, err := d.Decode(transport.Frame{Data: []byte(p)})
		if err != nil {
			return chunks, err
		}
		if chunk != nil {
			chunks = append(chunks, chunk)
		}
		if done {
			return chunks, nil
		}
	}
	chunk, err := d.Finish()
	if chunk != nil {
		chunks = append(chunks, chunk)
	}
	return chunks, err
}

func decodeFrame(d adapters.StreamDecoder, payload string) (*inference.Chunk, bool, error) {
	return d.Decode(transport.Frame{Data: []byte(payload)})
}

// sseBody renders payloads as an SSE body.
func sseBody(payloads ...string) string {
	var sb strings.Builder
	for _, p := range payloads {
		sb.WriteString("data: ")
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// trackingBody records whether the stream closed the upstream body.
type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func newStream(t *testing.T, a adapters.Adapter, target adapters.Target, body io.Reader) (*adapters.ChunkStream, *trackingBody) {
	t.Helper()
	tb := &trackingBody{Reader: body}
	stream, err := adapters.NewChunkStream(tb, a, target, `{"raw":"request"}`, time.Now())
	require.NoError(t, err)
	return stream, tb
}

// finishReasons returns the finish reason of every chunk that carries one.
func finishReasons(chunks []*inference.Chunk) []inference.FinishReason {
	var out []inference.FinishReason
	for _, c := range chunks {
		if c.FinishReason != nil {
			out = append(out, *c.FinishReason)
		}
	}
	return out
}

func blocksOf(chunks []*inference.Chunk) []inference.ChunkBlock {
	var out []inference.ChunkBlock
	for _, c := range chunks {
		out = append(out, c.Content...)
	}
	return out
}
