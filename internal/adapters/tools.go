package adapters

import (
	"encoding/json"
	"strings"

	"github.com/compresr/inference-gateway/internal/inference"
)

// =============================================================================
// TOOL CHOICE NORMALIZATION
// =============================================================================
//
// Every provider renders the same choicePlan in its own dialect:
//
//   planOmit:        no tools configured, send neither tools nor tool_choice
//   planLiteral:     "none" | "auto" | "required"
//   planForce:       force exactly one named tool
//   planConstrained: restrict to an allow-list, mode "auto" or "required"
//
// An allow-list always outranks a plain tool choice. Under an allow-list only
// Required maps to mode "required"; None and Auto both map to "auto".

type planKind int

const (
	planOmit planKind = iota
	planLiteral
	planForce
	planConstrained
)

type choicePlan struct {
	kind    planKind
	literal inference.ToolChoiceMode
	force   string
	mode    inference.ToolChoiceMode
	allowed []string
}

// planToolChoice normalizes the canonical tool choice. hasTools reports whether
// any tool (function, custom or in-scope provider tool) will be sent.
func planToolChoice(tc *inference.ToolConfig, hasTools bool) choicePlan {
	if tc == nil || !hasTools {
		return choicePlan{kind: planOmit}
	}
	if tc.AllowedTools != nil {
		mode := inference.ToolChoiceAuto
		if tc.Choice.Mode == inference.ToolChoiceRequired {
			mode = inference.ToolChoiceRequired
		}
		return choicePlan{kind: planConstrained, mode: mode, allowed: tc.AllowedToolNames()}
	}
	switch tc.Choice.Mode {
	case inference.ToolChoiceSpecific:
		return choicePlan{kind: planForce, force: tc.Choice.Name}
	case inference.ToolChoiceNone, inference.ToolChoiceRequired:
		return choicePlan{kind: planLiteral, literal: tc.Choice.Mode}
	default:
		return choicePlan{kind: planLiteral, literal: inference.ToolChoiceAuto}
	}
}

// asConstrained lowers a force plan for providers without a force-one-tool
// construct: a single-tool allow-list with mode required.
func (p choicePlan) asConstrained() choicePlan {
	if p.kind != planForce {
		return p
	}
	return choicePlan{kind: planConstrained, mode: inference.ToolChoiceRequired, allowed: []string{p.force}}
}

// allows reports whether name passes the plan's allow-list.
func (p choicePlan) allows(name string) bool {
	if p.kind != planConstrained {
		return true
	}
	for _, n := range p.allowed {
		if n == name {
			return true
		}
	}
	return false
}

// =============================================================================
// TOOL LISTS
// =============================================================================

// scopedProviderTools returns provider-native tools applicable to the target,
// passed through unchanged.
func scopedProviderTools(tc *inference.ToolConfig, target Target) []json.RawMessage {
	if tc == nil {
		return nil
	}
	var out []json.RawMessage
	for _, pt := range tc.ProviderTools {
		if len(pt.Tool) == 0 || !pt.InScope(target.ModelName, target.ProviderName) {
			continue
		}
		out = append(out, pt.Tool)
	}
	return out
}

// hasAnyTools reports whether the request configures any tool for the target.
func hasAnyTools(tc *inference.ToolConfig, target Target) bool {
	if tc == nil {
		return false
	}
	return len(tc.Tools) > 0 || len(tc.CustomTools) > 0 || len(scopedProviderTools(tc, target)) > 0
}

// requireNoCustomTools rejects custom tools on providers that only accept
// JSON-schema functions.
func requireNoCustomTools(provider string, tc *inference.ToolConfig) error {
	if tc != nil && len(tc.CustomTools) > 0 {
		return inference.UnsupportedContent(provider, "custom tool %q is not supported", tc.CustomTools[0].Name)
	}
	return nil
}

// emptyObjectSchema is used for functions declared without parameters.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

func toolParameters(t inference.FunctionTool) json.RawMessage {
	if len(t.Parameters) == 0 {
		return emptyObjectSchema
	}
	return t.Parameters
}

// =============================================================================
// PARALLEL TOOL CALLS
// =============================================================================

// reasoningFamilies ignore parallel_tool_calls=false and reject the flag.
var reasoningFamilies = []string{"o1", "o3", "o4"}

// parallelToolCalls returns the flag to send, dropping an explicit false for
// model families that do not support it.
func parallelToolCalls(tc *inference.ToolConfig, model string) *bool {
	if tc == nil || tc.ParallelToolCalls == nil {
		return nil
	}
	if !*tc.ParallelToolCalls && isReasoningFamily(model) {
		return nil
	}
	return tc.ParallelToolCalls
}

func isReasoningFamily(model string) bool {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	model = strings.ToLower(model)
	for _, family := range reasoningFamilies {
		if model == family || strings.HasPrefix(model, family+"-") {
			return true
		}
	}
	return false
}
