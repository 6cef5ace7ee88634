package adapters

import (
	"net/http"

	"github.com/compresr/inference-gateway/internal/inference"
)

// Provider identifies a wire protocol.
type Provider string

const (
	ProviderOpenAIResponses Provider = "openai_responses"
	ProviderOpenAI          Provider = "openai"
	ProviderOllama          Provider = "ollama"
	ProviderAnthropic       Provider = "anthropic"
	ProviderBedrock         Provider = "bedrock"
	ProviderGemini          Provider = "gemini"
)

// String returns the provider name.
func (p Provider) String() string {
	return string(p)
}

// Target is the resolved destination of one inference.
type Target struct {
	// ProviderName is the configured provider entry name, used for Unknown provenance.
	ProviderName string
	// ModelName is the gateway-level model name, used for Unknown provenance.
	ModelName string
	// Model is the provider's own model identifier.
	Model string
	// APIBase is the provider base URL without a trailing slash.
	APIBase string
	// Region is the AWS region (Bedrock only).
	Region string
	// DiscardUnknownChunks drops unrecognized stream events instead of
	// surfacing them as UnknownChunk.
	DiscardUnknownChunks bool
}

// WireRequest is a fully built provider HTTP request.
type WireRequest struct {
	Method  string
	URL     string
	Body    []byte
	Headers http.Header
}

// ParsedResponse is the provider-independent content of a non-streaming response.
type ParsedResponse struct {
	Output       []inference.OutputBlock
	Usage        inference.Usage
	FinishReason *inference.FinishReason
}
