// Package adapters translates canonical inferences to and from provider wire
// protocols.
//
// DESIGN: Every provider speaks its own request JSON, tool-call dialect and
// streaming event vocabulary. An Adapter hides those differences behind three
// operations:
//
//   - BuildRequest:     canonical Request    -> provider wire request
//   - ParseResponse:    provider body        -> canonical output, usage, finish reason
//   - NewStreamDecoder: provider event frames -> canonical chunks
//
// FLOW:
//  1. Gateway resolves the configured provider and gets its adapter from the registry
//  2. BuildRequest produces URL, body and headers (no network I/O)
//  3. Gateway sends the request (auth, signing) and reads the body
//  4. ParseResponse, or a ChunkStream driving the adapter's StreamDecoder, yields
//     canonical output
//
// Any provider shape an adapter does not recognize becomes an Unknown block or
// UnknownChunk instead of an error.
//
// To add a new provider: implement Adapter and register it in Registry.
package adapters

import (
	"context"

	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/transport"
)

// Adapter defines the unified interface for provider protocol translation.
// Adapters are stateless and thread-safe; per-stream state lives in the
// StreamDecoder.
type Adapter interface {
	// Name returns the adapter identifier (e.g., "openai", "anthropic")
	Name() string

	// Provider returns the provider type for this adapter
	Provider() Provider

	// =========================================================================
	// REQUEST
	// =========================================================================

	// BuildRequest translates a canonical request into the provider's wire
	// request. Constructs the provider cannot express fail with
	// KindUnsupportedContent before any network call.
	BuildRequest(ctx context.Context, req *inference.Request, target Target) (*WireRequest, error)

	// =========================================================================
	// RESPONSE
	// =========================================================================

	// ParseResponse translates a non-streaming response body.
	ParseResponse(body []byte, target Target) (*ParsedResponse, error)

	// =========================================================================
	// STREAMING
	// =========================================================================

	// Framing returns how the provider frames streaming bodies.
	Framing() transport.Framing

	// NewStreamDecoder creates the per-stream decoder state.
	NewStreamDecoder(target Target) StreamDecoder
}

// StreamDecoder turns provider frames into canonical chunks for one stream.
type StreamDecoder interface {
	// Decode consumes one frame. It returns at most one chunk; done reports a
	// terminal event after which no further frames are read.
	Decode(frame transport.Frame) (chunk *inference.Chunk, done bool, err error)

	// Finish is called when the body ends before Decode reported done. It
	// returns a final chunk when the protocol allows an implicit end, or an
	// error otherwise.
	Finish() (*inference.Chunk, error)
}

// BaseAdapter provides common functionality for all adapters.
type BaseAdapter struct {
	name     string
	provider Provider
	files    inference.FileResolver
}

func newBaseAdapter(name string, provider Provider, files inference.FileResolver) BaseAdapter {
	if files == nil {
		files = inference.InlineFileResolver{}
	}
	return BaseAdapter{name: name, provider: provider, files: files}
}

// Name returns the adapter name.
func (a *BaseAdapter) Name() string {
	return a.name
}

// Provider returns the provider type.
func (a *BaseAdapter) Provider() Provider {
	return a.provider
}

// Framing defaults to Server-Sent Events.
func (a *BaseAdapter) Framing() transport.Framing {
	return transport.FramingSSE
}

// resolveFile resolves a file block, mapping failures to UnsupportedContent.
func (a *BaseAdapter) resolveFile(ctx context.Context, file inference.File) (inference.ResolvedFile, error) {
	resolved, err := a.files.Resolve(ctx, file)
	if err != nil {
		return inference.ResolvedFile{}, inference.UnsupportedContent(a.name, "cannot resolve file: %v", err).Wrap(err)
	}
	return resolved, nil
}
