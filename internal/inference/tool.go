package inference

import (
	"encoding/json"
	"fmt"
)

// FunctionTool is a JSON-schema described function the model may call.
type FunctionTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
}

// CustomToolGrammar constrains the free-form input of a custom tool.
type CustomToolGrammar struct {
	Syntax     string `json:"syntax"` // "lark" or "regex"
	Definition string `json:"definition"`
}

// CustomToolFormat is the input format of a custom tool: "text" or "grammar".
type CustomToolFormat struct {
	Type    string             `json:"type"`
	Grammar *CustomToolGrammar `json:"grammar,omitempty"`
}

// CustomTool is a free-form tool whose input is raw text rather than JSON.
type CustomTool struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Format      *CustomToolFormat `json:"format,omitempty"`
}

// ProviderToolScope restricts a provider tool to one model and/or provider.
type ProviderToolScope struct {
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// ProviderTool is a provider-native tool definition passed through unchanged.
type ProviderTool struct {
	Scope *ProviderToolScope `json:"scope,omitempty"`
	Tool  json.RawMessage    `json:"tool"`
}

// InScope reports whether the tool applies to the given model and provider.
func (p ProviderTool) InScope(modelName, providerName string) bool {
	if p.Scope == nil {
		return true
	}
	if p.Scope.ModelName != "" && p.Scope.ModelName != modelName {
		return false
	}
	if p.Scope.ProviderName != "" && p.Scope.ProviderName != providerName {
		return false
	}
	return true
}

// ToolChoiceMode is the canonical tool-choice policy.
type ToolChoiceMode string

const (
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceSpecific ToolChoiceMode = "specific"
)

// ToolChoice selects how the model may use tools. Name is only meaningful
// for ToolChoiceSpecific.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// Specific forces the model to call the named tool.
func Specific(name string) ToolChoice {
	return ToolChoice{Mode: ToolChoiceSpecific, Name: name}
}

// MarshalJSON encodes literals as strings and Specific as {"specific": name}.
func (c ToolChoice) MarshalJSON() ([]byte, error) {
	if c.Mode == ToolChoiceSpecific {
		return json.Marshal(map[string]string{"specific": c.Name})
	}
	mode := c.Mode
	if mode == "" {
		mode = ToolChoiceAuto
	}
	return json.Marshal(string(mode))
}

// UnmarshalJSON accepts "none" | "auto" | "required" | {"specific": name}.
func (c *ToolChoice) UnmarshalJSON(data []byte) error {
	var literal string
	if err := json.Unmarshal(data, &literal); err == nil {
		switch ToolChoiceMode(literal) {
		case ToolChoiceNone, ToolChoiceAuto, ToolChoiceRequired:
			*c = ToolChoice{Mode: ToolChoiceMode(literal)}
			return nil
		}
		return fmt.Errorf("unknown tool_choice %q", literal)
	}
	var specific struct {
		Specific string `json:"specific"`
	}
	if err := json.Unmarshal(data, &specific); err != nil {
		return fmt.Errorf("decode tool_choice: %w", err)
	}
	if specific.Specific == "" {
		return fmt.Errorf("tool_choice.specific requires a tool name")
	}
	*c = Specific(specific.Specific)
	return nil
}

// AllowedToolsChoice records where an allow-list came from.
type AllowedToolsChoice string

const (
	// AllowedToolsFunctionDefault is the function's configured tool set.
	AllowedToolsFunctionDefault AllowedToolsChoice = "function_default"
	// AllowedToolsExplicit is an allow-list set by the caller.
	AllowedToolsExplicit AllowedToolsChoice = "explicit"
)

// AllowedTools restricts which of the configured tools the model may call.
// When present it takes precedence over a plain ToolChoice.
type AllowedTools struct {
	Choice AllowedToolsChoice `json:"choice"`
	Tools  []string           `json:"tools,omitempty"`
}

// ToolConfig is the canonical tool configuration of one inference.
type ToolConfig struct {
	Tools             []FunctionTool `json:"tools,omitempty"`
	CustomTools       []CustomTool   `json:"custom_tools,omitempty"`
	ProviderTools     []ProviderTool `json:"provider_tools,omitempty"`
	Choice            ToolChoice     `json:"tool_choice"`
	AllowedTools      *AllowedTools  `json:"allowed_tools,omitempty"`
	ParallelToolCalls *bool          `json:"parallel_tool_calls,omitempty"`
}

// AllowedToolNames resolves the allow-list. A function-default list with no
// names expands to every configured function and custom tool.
func (c *ToolConfig) AllowedToolNames() []string {
	if c == nil || c.AllowedTools == nil {
		return nil
	}
	if len(c.AllowedTools.Tools) > 0 || c.AllowedTools.Choice == AllowedToolsExplicit {
		return c.AllowedTools.Tools
	}
	names := make([]string, 0, len(c.Tools)+len(c.CustomTools))
	for _, t := range c.Tools {
		names = append(names, t.Name)
	}
	for _, t := range c.CustomTools {
		names = append(names, t.Name)
	}
	return names
}
