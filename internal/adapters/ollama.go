package adapters

import (
	"github.com/compresr/inference-gateway/internal/inference"
)

// OllamaAdapter handles Ollama's OpenAI-compatible endpoint
// ({base}/v1/chat/completions).
// Ollama uses the OpenAI Chat Completions format for requests and streams
// (messages[], tool_calls[], role: tool), so this adapter embeds OpenAIAdapter.
// The differences are the endpoint path, max_tokens instead of
// max_completion_tokens, and usage that older versions report as
// prompt_eval_count/eval_count (handled by the shared response parser).
type OllamaAdapter struct {
	*OpenAIAdapter
}

// NewOllamaAdapter creates a new Ollama adapter.
func NewOllamaAdapter(files inference.FileResolver) *OllamaAdapter {
	return &OllamaAdapter{
		OpenAIAdapter: &OpenAIAdapter{
			BaseAdapter:     newBaseAdapter("ollama", ProviderOllama, files),
			path:            "v1/chat/completions",
			legacyMaxTokens: true,
		},
	}
}

// Ensure OllamaAdapter implements Adapter
var _ Adapter = (*OllamaAdapter)(nil)
