package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/josephgoksu/IdeaForge/internal/llm"
	"github.com/spf13/viper"
)

// LoadLLMConfig loads the primary generation service.
// Precedence: explicit config > environment variables > defaults.
func LoadLLMConfig() (llm.Config, error) {
	return loadLLMConfig("llm")
}

// LoadFallbackLLMConfig loads the optional secondary generation service from
// llm.fallback. It returns nil when no fallback provider is configured.
func LoadFallbackLLMConfig() (*llm.Config, error) {
	if strings.TrimSpace(viper.GetString("llm.fallback.provider")) == "" {
		return nil, nil
	}
	cfg, err := loadLLMConfig("llm.fallback")
	if err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	return &cfg, nil
}

func loadLLMConfig(prefix string) (llm.Config, error) {
	key := func(name string) string { return prefix + "." + name }

	provider := viper.GetString(key("provider"))
	model := viper.GetString(key("model"))
	if provider == "" && model != "" {
		if inferred, ok := llm.InferProviderFromModel(model); ok {
			provider = string(inferred)
		}
	}
	if provider == "" {
		provider = string(llm.DefaultProvider)
	}
	llmProvider, err := llm.ValidateProvider(provider)
	if err != nil {
		return llm.Config{}, fmt.Errorf("invalid provider: %w", err)
	}

	if model == "" {
		model = llm.DefaultModelForProvider(llmProvider)
	}

	baseURL := viper.GetString(key("baseURL"))
	if baseURL == "" && llmProvider == llm.ProviderOllama {
		baseURL = llm.DefaultOllamaURL
	}

	// Generation settings are shared by the primary and the fallback.
	cfg := llm.Config{
		Provider:    llmProvider,
		Model:       model,
		APIKey:      ResolveAPIKey(llmProvider),
		BaseURL:     baseURL,
		Timeout:     viper.GetDuration("llm.timeout"),
		MaxTokens:   viper.GetInt("llm.maxTokens"),
		Temperature: float32(viper.GetFloat64("llm.temperature")),
	}
	if cfg.APIKey == "" && llm.RequiresAPIKey(llmProvider) {
		return cfg, fmt.Errorf("no API key for %s: set llm.apiKeys.%s or %s", llmProvider, llmProvider, providerEnvName(llmProvider))
	}
	return cfg, nil
}

// ResolveAPIKey returns the API key for provider: the per-provider config key
// llm.apiKeys.<provider> wins over the provider's environment variable.
func ResolveAPIKey(provider llm.Provider) string {
	path := fmt.Sprintf("llm.apiKeys.%s", provider)
	if viper.IsSet(path) {
		if key := strings.TrimSpace(viper.GetString(path)); key != "" {
			return key
		}
	}
	return providerEnvKey(provider)
}

func providerEnvName(provider llm.Provider) string {
	switch provider {
	case llm.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case llm.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case llm.ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

func providerEnvKey(provider llm.Provider) string {
	name := providerEnvName(provider)
	if name == "" {
		return ""
	}
	key := strings.TrimSpace(os.Getenv(name))
	if key == "" && provider == llm.ProviderGemini {
		key = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	}
	return key
}
