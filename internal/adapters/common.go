package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/compresr/inference-gateway/internal/inference"
	"github.com/compresr/inference-gateway/internal/monitoring"
)

// jsonInstruction is prepended to the system text when JSON output is
// requested but nothing in the prompt mentions JSON.
const jsonInstruction = "Respond using JSON."

// =============================================================================
// SYSTEM TEXT
// =============================================================================

// systemText returns the system text to send, with the JSON instruction
// prepended when the request needs it.
func systemText(req *inference.Request) *string {
	if !req.WantsJSONObject() || req.MentionsJSON() {
		return req.System
	}
	if req.System == nil || *req.System == "" {
		return inference.Ptr(jsonInstruction)
	}
	return inference.Ptr(jsonInstruction + "\n\n" + *req.System)
}

// =============================================================================
// WIRE REQUEST
// =============================================================================

// marshalBody encodes the provider body and applies extra-body overrides.
func marshalBody(provider string, body any, req *inference.Request) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, inference.InternalError(provider, "failed to marshal request: %v", err).Wrap(err)
	}
	return applyExtraBody(provider, data, req.ExtraBody)
}

// applyExtraBody sets or deletes dotted paths in a built body, in order.
func applyExtraBody(provider string, body []byte, replacements []inference.ExtraBodyReplacement) ([]byte, error) {
	var err error
	for _, r := range replacements {
		if r.Path == "" {
			return nil, inference.NewError(inference.KindInvalidRequest, "extra_body replacement has an empty path").WithProvider(provider)
		}
		if r.Delete {
			body, err = sjson.DeleteBytes(body, r.Path)
		} else {
			value := r.Value
			if len(value) == 0 {
				value = json.RawMessage("null")
			}
			body, err = sjson.SetRawBytes(body, r.Path, value)
		}
		if err != nil {
			return nil, inference.NewError(inference.KindInvalidRequest, fmt.Sprintf("extra_body %q", r.Path)).WithProvider(provider).Wrap(err)
		}
	}
	return body, nil
}

// newWireRequest assembles a JSON POST with the request's extra headers.
func newWireRequest(url string, body []byte, req *inference.Request) *WireRequest {
	headers := make(http.Header)
	headers.Set("Content-Type", "application/json")
	for k, v := range req.ExtraHeaders {
		headers.Set(k, v)
	}
	return &WireRequest{Method: http.MethodPost, URL: url, Body: body, Headers: headers}
}

// joinURL appends path to base, normalizing the slash between them.
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// =============================================================================
// REPLAY FILTERS
// =============================================================================

// warn starts a build-time warning for provider, tagged with the inference id
// that ctx carries.
func warn(ctx context.Context, provider string) *zerolog.Event {
	ev := log.Warn().Str("provider", provider)
	if id := monitoring.InferenceIDFromContext(ctx); id != "" {
		ev = ev.Str("inference_id", id)
	}
	return ev
}

// replayableThought reports whether an assistant thought can be sent back to
// this provider. Thoughts from another provider type, or without the opaque
// signature the provider requires, are dropped with a warning.
func replayableThought(ctx context.Context, provider, providerType string, th inference.Thought, needSignature bool) bool {
	if th.ProviderType != nil && *th.ProviderType != providerType {
		warn(ctx, provider).
			Str("thought_provider_type", *th.ProviderType).
			Msg("dropping thought produced by a different provider type")
		return false
	}
	if needSignature && (th.Signature == nil || *th.Signature == "") {
		warn(ctx, provider).
			Msg("dropping thought without signature: it cannot be replayed")
		return false
	}
	return true
}

// replayableUnknown returns the raw data of an Unknown block when its
// provenance matches the target.
func replayableUnknown(ctx context.Context, provider string, u inference.Unknown, target Target) (json.RawMessage, bool) {
	if !u.Matches(target.ModelName, target.ProviderName) {
		warn(ctx, provider).
			Str("model", target.ModelName).
			Msg("dropping unknown block produced for a different model or provider")
		return nil, false
	}
	if len(u.Data) == 0 {
		return nil, false
	}
	return u.Data, true
}

// =============================================================================
// STREAM HELPERS
// =============================================================================

// terminalChunk is the content-free chunk that closes a stream.
func terminalChunk(usage *inference.Usage, reason inference.FinishReason) *inference.Chunk {
	return &inference.Chunk{Content: []inference.ChunkBlock{}, Usage: usage, FinishReason: &reason}
}

// contentChunk wraps blocks in a chunk.
func contentChunk(blocks ...inference.ChunkBlock) *inference.Chunk {
	return &inference.Chunk{Content: blocks}
}

// skipMalformed logs a frame that could not be parsed.
func skipMalformed(provider string, data []byte, err error) {
	log.Warn().
		Err(err).
		Str("provider", provider).
		Int("bytes", len(data)).
		Msg("skipping malformed stream frame")
}

var (
	errInvalidJSON  = errors.New("invalid JSON")
	errMissingBytes = errors.New("event has no bytes payload")
)

// errEndedEarly is returned by Finish when the body ends before a terminal event.
func errEndedEarly(provider string) error {
	return inference.ServerError(provider, "stream ended before a terminal event")
}

// mergeUsage overlays the fields reported in next onto prev.
func mergeUsage(prev *inference.Usage, next inference.Usage) *inference.Usage {
	out := inference.Usage{}
	if prev != nil {
		out = *prev
	}
	if next.InputTokens != nil {
		out.InputTokens = next.InputTokens
	}
	if next.OutputTokens != nil {
		out.OutputTokens = next.OutputTokens
	}
	return &out
}
