package llm

import (
	"context"
	"errors"
	"testing"
)

func TestValidateProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     Provider
		wantErr  bool
	}{
		{name: "valid openai", provider: "openai", want: ProviderOpenAI},
		{name: "valid ollama", provider: "ollama", want: ProviderOllama},
		{name: "valid anthropic", provider: "anthropic", want: ProviderAnthropic},
		{name: "valid gemini", provider: "gemini", want: ProviderGemini},
		{name: "invalid provider", provider: "invalid", wantErr: true},
		{name: "empty provider", provider: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateProvider(tt.provider)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProvider() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ValidateProvider() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewChatModel_MissingAPIKey(t *testing.T) {
	ctx := context.Background()
	for _, p := range []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGemini} {
		t.Run(string(p), func(t *testing.T) {
			_, err := NewChatModel(ctx, Config{Provider: p})
			var se *ServiceError
			if !errors.As(err, &se) {
				t.Fatalf("NewChatModel() error = %v, want *ServiceError", err)
			}
			if se.Code != CodeAuth {
				t.Errorf("code = %s, want %s", se.Code, CodeAuth)
			}
		})
	}
}

func TestNewChatModel_UnsupportedProvider(t *testing.T) {
	if _, err := NewChatModel(context.Background(), Config{Provider: "bogus"}); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestConfig_ServiceName(t *testing.T) {
	if got := (Config{Provider: ProviderOllama, Model: "llama3.2"}).ServiceName(); got != "ollama/llama3.2" {
		t.Errorf("ServiceName() = %q", got)
	}
	if got := (Config{Provider: ProviderOpenAI}).ServiceName(); got != "openai" {
		t.Errorf("ServiceName() = %q", got)
	}
}

func TestCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Code
		ok     bool
	}{
		{401, CodeAuth, true},
		{403, CodeAuth, true},
		{429, CodeRateLimit, true},
		{402, CodeQuota, true},
		{400, CodeInvalidRequest, true},
		{503, CodeUnavailable, true},
		{200, "", false},
	}
	for _, tt := range tests {
		got, ok := CodeForStatus(tt.status)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CodeForStatus(%d) = (%q, %v), want (%q, %v)", tt.status, got, ok, tt.want, tt.ok)
		}
	}
}
