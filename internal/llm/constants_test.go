package llm

import "testing"

func TestInferProviderFromModel(t *testing.T) {
	tests := []struct {
		name         string
		model        string
		wantProvider Provider
		wantOk       bool
	}{
		{"gpt-5-mini", "gpt-5-mini", ProviderOpenAI, true},
		{"dated alias", "gpt-5-mini-2025-08-07", ProviderOpenAI, true},
		{"o3", "o3", ProviderOpenAI, true},
		{"o4-mini", "o4-mini", ProviderOpenAI, true},
		{"claude-sonnet-4-5", "claude-sonnet-4-5", ProviderAnthropic, true},
		{"claude-3-opus legacy", "claude-3-opus-latest", ProviderAnthropic, true},
		{"gemini-2.5-pro", "gemini-2.5-pro", ProviderGemini, true},
		{"gemini-1.5-pro legacy", "gemini-1.5-pro", ProviderGemini, true},
		{"llama3.2", "llama3.2", ProviderOllama, true},
		{"codellama", "codellama:7b", ProviderOllama, true},
		{"phi", "phi3", ProviderOllama, true},
		{"unknown model", "some-random-model", "", false},
		{"empty string", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, ok := InferProviderFromModel(tt.model)
			if ok != tt.wantOk {
				t.Errorf("InferProviderFromModel(%q) ok = %v, want %v", tt.model, ok, tt.wantOk)
			}
			if provider != tt.wantProvider {
				t.Errorf("InferProviderFromModel(%q) = %q, want %q", tt.model, provider, tt.wantProvider)
			}
		})
	}
}

func TestDefaultModelForProvider(t *testing.T) {
	tests := []struct {
		provider Provider
		want     string
	}{
		{ProviderOpenAI, "gpt-5-mini-2025-08-07"},
		{ProviderAnthropic, "claude-sonnet-4-5"},
		{ProviderGemini, "gemini-2.5-flash"},
		{ProviderOllama, "llama3.2"},
		{"unknown", ""},
	}
	for _, tt := range tests {
		if got := DefaultModelForProvider(tt.provider); got != tt.want {
			t.Errorf("DefaultModelForProvider(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}
