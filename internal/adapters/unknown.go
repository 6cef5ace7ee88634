package adapters

import (
	"encoding/json"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/compresr/inference-gateway/internal/inference"
)

// Unknown passthrough: wire shapes an adapter does not recognize are kept
// verbatim, tagged with the model and provider that produced them.

// provenance returns the model and provider names recorded on unknown blocks.
func provenance(target Target) (*string, *string) {
	var model, provider *string
	if target.ModelName != "" {
		model = inference.Ptr(target.ModelName)
	}
	if target.ProviderName != "" {
		provider = inference.Ptr(target.ProviderName)
	}
	return model, provider
}

// unknownBlock wraps a raw output element. data is copied so the block does
// not alias the response buffer.
func unknownBlock(data []byte, target Target) inference.Unknown {
	model, provider := provenance(target)
	return inference.Unknown{Data: ownedJSON(data), ModelName: model, ProviderName: provider}
}

// unknownChunk wraps a raw stream frame or item.
func unknownChunk(id string, data []byte, target Target) inference.UnknownChunk {
	model, provider := provenance(target)
	return inference.UnknownChunk{ID: id, Data: ownedJSON(data), ModelName: model, ProviderName: provider}
}

// unknownEventID derives a stable id for an unrecognized stream event: the
// item id or output index when present, else the event type.
func unknownEventID(data []byte, fallback string) string {
	if id := gjson.GetBytes(data, "item_id"); id.Exists() && id.String() != "" {
		return id.String()
	}
	if id := gjson.GetBytes(data, "item.id"); id.Exists() && id.String() != "" {
		return id.String()
	}
	if idx := gjson.GetBytes(data, "output_index"); idx.Exists() {
		return strconv.FormatInt(idx.Int(), 10)
	}
	if typ := gjson.GetBytes(data, "type"); typ.Exists() && typ.String() != "" {
		return typ.String()
	}
	return fallback
}

// ownedJSON copies raw JSON, substituting null for empty input.
func ownedJSON(data []byte) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("null")
	}
	return append(json.RawMessage(nil), data...)
}
