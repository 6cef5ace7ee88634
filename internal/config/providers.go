package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Provider types understood by the gateway. Each names an adapter.
const (
	ProviderOpenAIResponses = "openai_responses"
	ProviderOpenAI          = "openai"
	ProviderOllama          = "ollama"
	ProviderAnthropic       = "anthropic"
	ProviderBedrock         = "bedrock"
	ProviderGemini          = "gemini"
)

// defaultAPIBases holds the public endpoint of each provider type. Bedrock has
// none: its endpoint derives from the region.
var defaultAPIBases = map[string]string{
	ProviderOpenAIResponses: "https://api.openai.com/v1",
	ProviderOpenAI:          "https://api.openai.com/v1",
	ProviderOllama:          "http://localhost:11434",
	ProviderAnthropic:       "https://api.anthropic.com",
	ProviderGemini:          "https://generativelanguage.googleapis.com",
	ProviderBedrock:         "",
}

// defaultAPIKeyEnv names the environment variable read when api_key and
// api_key_env are both unset.
var defaultAPIKeyEnv = map[string]string{
	ProviderOpenAIResponses: "OPENAI_API_KEY",
	ProviderOpenAI:          "OPENAI_API_KEY",
	ProviderAnthropic:       "ANTHROPIC_API_KEY",
	ProviderGemini:          "GEMINI_API_KEY",
}

// ProvidersConfig maps a provider name to its configuration.
type ProvidersConfig map[string]ProviderConfig

// ProviderConfig configures one named provider.
type ProviderConfig struct {
	Type                 string            `yaml:"type"`                   // Provider type; defaults to the entry name
	APIBase              string            `yaml:"api_base"`               // Override of the default API base
	Model                string            `yaml:"model"`                  // Model identifier sent to the provider
	APIKey               string            `yaml:"api_key"`                // Literal key, usually ${VAR}
	APIKeyEnv            string            `yaml:"api_key_env"`            // Environment variable holding the key
	Region               string            `yaml:"region"`                 // AWS region (bedrock)
	DiscardUnknownChunks bool              `yaml:"discard_unknown_chunks"` // Drop unrecognized stream events
	ExtraHeaders         map[string]string `yaml:"extra_headers"`          // Sent with every request
}

// ResolveAPIBase returns the default API base for a provider type.
func ResolveAPIBase(providerType string) string {
	return defaultAPIBases[providerType]
}

// KnownProviderTypes returns the supported provider types, sorted.
func KnownProviderTypes() []string {
	types := make([]string, 0, len(defaultAPIBases))
	for t := range defaultAPIBases {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ProviderType returns the configured type, falling back to the entry name.
func (p ProviderConfig) ProviderType(name string) string {
	if p.Type != "" {
		return p.Type
	}
	return name
}

// GetEndpoint returns the API base for this provider: the configured
// api_base if set, otherwise the type's default.
func (p ProviderConfig) GetEndpoint(name string) string {
	if p.APIBase != "" {
		return strings.TrimRight(p.APIBase, "/")
	}
	return ResolveAPIBase(p.ProviderType(name))
}

// ResolveAPIKey returns the API key from api_key, api_key_env, or the type's
// conventional variable, in that order. Empty means no key.
func (p ProviderConfig) ResolveAPIKey(name string) string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	if env := defaultAPIKeyEnv[p.ProviderType(name)]; env != "" {
		return os.Getenv(env)
	}
	return ""
}

// Validate checks every provider entry.
func (pc ProvidersConfig) Validate() error {
	names := make([]string, 0, len(pc))
	for name := range pc {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := pc[name]
		typ := p.ProviderType(name)
		if _, ok := defaultAPIBases[typ]; !ok {
			return fmt.Errorf("providers.%s: unknown type %q (known: %s)", name, typ, strings.Join(KnownProviderTypes(), ", "))
		}
		if p.Model == "" {
			return fmt.Errorf("providers.%s.model is required", name)
		}
		if typ != ProviderBedrock && p.GetEndpoint(name) == "" {
			return fmt.Errorf("providers.%s.api_base is required", name)
		}
		if typ != ProviderBedrock && p.Region != "" {
			return fmt.Errorf("providers.%s.region is only valid for bedrock", name)
		}
	}
	return nil
}

// Get returns the named provider.
func (pc ProvidersConfig) Get(name string) (ProviderConfig, error) {
	p, ok := pc[name]
	if !ok {
		names := make([]string, 0, len(pc))
		for n := range pc {
			names = append(names, n)
		}
		sort.Strings(names)
		return ProviderConfig{}, fmt.Errorf("provider %q is not configured (configured: %s)", name, strings.Join(names, ", "))
	}
	return p, nil
}
