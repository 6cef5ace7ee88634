package gateway

import (
	"net/http"

	"github.com/compresr/inference-gateway/internal/config"
)

// setAuthHeaders applies provider credentials. Bedrock is authenticated by
// the SigV4 signing transport instead; Ollama needs no key. Headers the
// caller set explicitly (extra_headers) win.
func setAuthHeaders(h http.Header, providerType, apiKey string) {
	if apiKey == "" {
		return
	}
	var name, value string
	switch providerType {
	case config.ProviderAnthropic:
		name, value = "x-api-key", apiKey
	case config.ProviderGemini:
		name, value = "x-goog-api-key", apiKey
	case config.ProviderBedrock:
		return
	default: // openai, openai_responses, ollama behind a proxy
		name, value = "Authorization", "Bearer "+apiKey
	}
	if h.Get(name) == "" {
		h.Set(name, value)
	}
}

// setProviderHeaders applies the configured static headers.
func setProviderHeaders(h http.Header, headers map[string]string) {
	for k, v := range headers {
		if h.Get(k) == "" {
			h.Set(k, v)
		}
	}
}
