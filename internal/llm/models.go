package llm

import "strings"

// Model describes a supported chat model.
type Model struct {
	ID         string   // Canonical model ID (e.g., "gpt-5-mini")
	ProviderID Provider // Internal provider ID (e.g., "openai")
	Aliases    []string // Alternative IDs including dated versions
	IsDefault  bool     // Whether this is the default model for its provider
}

// ModelRegistry lists the models IdeaForge knows defaults and aliases for.
// Unknown models are still accepted; the registry only drives defaults and inference.
var ModelRegistry = []Model{
	{ID: "gpt-5-mini", ProviderID: ProviderOpenAI, Aliases: []string{"gpt-5-mini-2025-08-07"}, IsDefault: true},
	{ID: "gpt-5.1", ProviderID: ProviderOpenAI},
	{ID: "gpt-4.1-mini", ProviderID: ProviderOpenAI, Aliases: []string{"gpt-4.1-mini-2025-04-14"}},
	{ID: "gpt-4o-mini", ProviderID: ProviderOpenAI, Aliases: []string{"gpt-4o-mini-2024-07-18"}},

	{ID: "claude-sonnet-4-5", ProviderID: ProviderAnthropic, Aliases: []string{"claude-sonnet-4-5-20250929"}, IsDefault: true},
	{ID: "claude-haiku-4-5", ProviderID: ProviderAnthropic},
	{ID: "claude-3-5-haiku-latest", ProviderID: ProviderAnthropic, Aliases: []string{"claude-3-5-haiku-20241022"}},

	{ID: "gemini-2.5-flash", ProviderID: ProviderGemini, IsDefault: true},
	{ID: "gemini-2.5-pro", ProviderID: ProviderGemini},
	{ID: "gemini-2.0-flash", ProviderID: ProviderGemini},

	{ID: "llama3.2", ProviderID: ProviderOllama, IsDefault: true},
	{ID: "qwen2.5", ProviderID: ProviderOllama},
}

var modelIndex map[string]*Model

func init() {
	modelIndex = make(map[string]*Model)
	for i := range ModelRegistry {
		m := &ModelRegistry[i]
		modelIndex[m.ID] = m
		for _, alias := range m.Aliases {
			modelIndex[alias] = m
		}
	}
}

// GetModel returns the model definition for a given model ID or alias.
// Returns nil if the model is not found.
func GetModel(modelID string) *Model {
	return modelIndex[modelID]
}

// GetDefaultModelID returns the default model ID for a provider.
func GetDefaultModelID(provider Provider) string {
	for i := range ModelRegistry {
		m := &ModelRegistry[i]
		if m.ProviderID == provider && m.IsDefault {
			// Return the dated version for OpenAI (API compatibility)
			if provider == ProviderOpenAI && len(m.Aliases) > 0 {
				return m.Aliases[0]
			}
			return m.ID
		}
	}
	return ""
}

// InferProvider attempts to determine the provider from a model name.
// Returns the provider ID and true if inference succeeded.
func InferProvider(modelID string) (Provider, bool) {
	if m := GetModel(modelID); m != nil {
		return m.ProviderID, true
	}

	// Fallback to prefix-based inference for unknown models
	switch {
	case hasAnyPrefix(modelID, "gpt-", "o1", "o3", "o4"):
		return ProviderOpenAI, true
	case hasAnyPrefix(modelID, "claude-"):
		return ProviderAnthropic, true
	case hasAnyPrefix(modelID, "gemini-"):
		return ProviderGemini, true
	case hasAnyPrefix(modelID, "llama", "mistral", "codellama", "phi", "qwen"):
		return ProviderOllama, true
	}

	return "", false
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
