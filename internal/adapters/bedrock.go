package adapters

import (
	"context"
	"encoding/base64"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/transport"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// BedrockAdapter handles Anthropic models served by AWS Bedrock.
// Bedrock with Claude uses the same Messages API body as direct Anthropic,
// so this adapter delegates body building and parsing to an AnthropicAdapter.
//
// The key differences from direct Anthropic are:
//   - Authentication: AWS SigV4 instead of x-api-key (handled by the client)
//   - URL pattern: /model/{modelId}/invoke[-with-response-stream]
//   - Body: anthropic_version instead of model/stream
//   - Streaming: AWS event-stream frames wrapping base64 Anthropic events
type BedrockAdapter struct {
	BaseAdapter
	anthropic *AnthropicAdapter
}

// NewBedrockAdapter creates a new Bedrock adapter.
func NewBedrockAdapter(files inference.FileResolver) *BedrockAdapter {
	base := newBaseAdapter("bedrock", ProviderBedrock, files)
	return &BedrockAdapter{
		BaseAdapter: base,
		anthropic:   &AnthropicAdapter{BaseAdapter: base},
	}
}

// BuildRequest builds an InvokeModel or InvokeModelWithResponseStream call.
func (a *BedrockAdapter) BuildRequest(ctx context.Context, req *inference.Request, target Target) (*WireRequest, error) {
	data, err := a.anthropic.buildBody(ctx, req, target, anthropicDialect{
		version:    bedrockAnthropicVersion,
		modelInURL: true,
	})
	if err != nil {
		return nil, err
	}

	base := target.APIBase
	if base == "" {
		base = transport.BedrockEndpoint(target.Region)
	}
	action := "invoke"
	if req.Stream {
		action = "invoke-with-response-stream"
	}
	wire := newWireRequest(joinURL(base, "model/"+url.PathEscape(target.Model)+"/"+action), data, req)
	if req.Stream {
		wire.Headers.Set("Accept", "application/vnd.amazon.eventstream")
	}
	return wire, nil
}

// ParseResponse parses an InvokeModel body, which is a Messages API response.
func (a *BedrockAdapter) ParseResponse(body []byte, target Target) (*ParsedResponse, error) {
	if msg := gjson.GetBytes(body, "message"); msg.Exists() && !gjson.GetBytes(body, "content").Exists() {
		return nil, inference.ServerError(a.name, "%s", msg.String())
	}
	return a.anthropic.ParseResponse(body, target)
}

// Framing returns the AWS event-stream framing.
func (a *BedrockAdapter) Framing() transport.Framing {
	return transport.FramingEventStream
}

// NewStreamDecoder unwraps event-stream frames into Messages API events.
func (a *BedrockAdapter) NewStreamDecoder(target Target) StreamDecoder {
	return &bedrockStreamDecoder{
		provider: a.name,
		inner:    newAnthropicStreamDecoder(a.name, target),
	}
}

// bedrockStreamDecoder handles frames shaped {"bytes": "<base64 event>"}.
type bedrockStreamDecoder struct {
	provider string
	inner    *anthropicStreamDecoder
}

func (d *bedrockStreamDecoder) Decode(frame transport.Frame) (*inference.Chunk, bool, error) {
	if frame.IsException() {
		msg := gjson.GetBytes(frame.Data, "message").String()
		if msg == "" {
			msg = string(frame.Data)
		}
		return nil, true, inference.ServerError(d.provider, "%s: %s", frame.Event, msg)
	}
	encoded := gjson.GetBytes(frame.Data, "bytes")
	if !encoded.Exists() {
		skipMalformed(d.provider, frame.Data, errMissingBytes)
		return nil, false, nil
	}
	payload, err := base64.StdEncoding.DecodeString(encoded.String())
	if err != nil {
		skipMalformed(d.provider, frame.Data, err)
		return nil, false, nil
	}
	return d.inner.Decode(transport.Frame{Event: frame.Event, Data: payload})
}

func (d *bedrockStreamDecoder) Finish() (*inference.Chunk, error) {
	return d.inner.Finish()
}

var _ Adapter = (*BedrockAdapter)(nil)
