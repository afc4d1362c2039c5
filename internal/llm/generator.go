package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/singleflight"
)

// Generator is the text-generation service consumed by delegates.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, genCtx map[string]string) (string, error)
	IsHealthy(ctx context.Context) bool
}

// CredentialValidator is implemented by generators that can check an API key.
type CredentialValidator interface {
	ValidateCredential(ctx context.Context, key string) (bool, error)
}

// Default health probe settings.
const (
	DefaultHealthTTL     = 30 * time.Second
	DefaultHealthTimeout = 10 * time.Second
)

// ErrEmptyResponse is returned when the model answers with no content.
var ErrEmptyResponse = errors.New("empty response from model")

// ChatGenerator adapts an Eino chat model to the Generator interface.
type ChatGenerator struct {
	cfg   Config
	model model.BaseChatModel

	// newModel builds a model for credential checks.
	newModel func(ctx context.Context, cfg Config) (model.BaseChatModel, error)

	health    singleflight.Group
	mu        sync.Mutex
	checkedAt time.Time
	healthy   bool
	healthTTL time.Duration
	now       func() time.Time
}

// NewChatGenerator creates a ChatGenerator backed by the provider in cfg.
func NewChatGenerator(ctx context.Context, cfg Config) (*ChatGenerator, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModelForProvider(cfg.Provider)
	}
	chatModel, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}
	return NewChatGeneratorWithModel(cfg, chatModel), nil
}

// NewChatGeneratorWithModel wraps an existing chat model.
func NewChatGeneratorWithModel(cfg Config, chatModel model.BaseChatModel) *ChatGenerator {
	return &ChatGenerator{
		cfg:       cfg,
		model:     chatModel,
		newModel:  NewChatModel,
		healthTTL: DefaultHealthTTL,
		now:       time.Now,
	}
}

// Name returns the service name, e.g. "openai/gpt-5-mini".
func (g *ChatGenerator) Name() string { return g.cfg.ServiceName() }

// Generate sends prompt to the model. Entries of genCtx are rendered into a
// system message in key order.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string, genCtx map[string]string) (string, error) {
	messages := BuildMessages(prompt, genCtx)

	maxTokens := g.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := g.cfg.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}

	resp, err := g.model.Generate(ctx, messages,
		model.WithMaxTokens(maxTokens),
		model.WithTemperature(temperature),
	)
	if err != nil {
		return "", annotate(g.Name(), fmt.Errorf("llm generate: %w", err))
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", &ServiceError{Service: g.Name(), Code: CodeUnavailable, Err: ErrEmptyResponse}
	}
	return resp.Content, nil
}

// BuildMessages converts a prompt and its context into chat messages.
func BuildMessages(prompt string, genCtx map[string]string) []*schema.Message {
	var messages []*schema.Message
	if len(genCtx) > 0 {
		keys := make([]string, 0, len(genCtx))
		for k := range genCtx {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		sb.WriteString("Project context:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "%s: %s\n", k, genCtx[k])
		}
		messages = append(messages, schema.SystemMessage(sb.String()))
	}
	return append(messages, schema.UserMessage(prompt))
}

// IsHealthy probes the model with a tiny request. Results are cached for the
// health TTL and concurrent probes share one request.
func (g *ChatGenerator) IsHealthy(ctx context.Context) bool {
	if healthy, ok := g.cachedHealth(); ok {
		return healthy
	}

	v, _, _ := g.health.Do("health", func() (interface{}, error) {
		if healthy, ok := g.cachedHealth(); ok {
			return healthy, nil
		}
		probeCtx, cancel := context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()

		_, err := g.model.Generate(probeCtx, []*schema.Message{schema.UserMessage("ping")},
			model.WithMaxTokens(1))
		healthy := err == nil
		if err != nil {
			slog.Debug("health probe failed", "service", g.Name(), "error", err)
		}

		g.mu.Lock()
		g.healthy = healthy
		g.checkedAt = g.now()
		g.mu.Unlock()
		return healthy, nil
	})
	healthy, _ := v.(bool)
	return healthy
}

func (g *ChatGenerator) cachedHealth() (bool, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.checkedAt.IsZero() || g.now().Sub(g.checkedAt) >= g.healthTTL {
		return false, false
	}
	return g.healthy, true
}

// ValidateCredential reports whether key is accepted by the provider.
// An authentication failure returns (false, nil); other failures return an error.
func (g *ChatGenerator) ValidateCredential(ctx context.Context, key string) (bool, error) {
	if !RequiresAPIKey(g.cfg.Provider) {
		return true, nil
	}
	if strings.TrimSpace(key) == "" {
		return false, nil
	}

	cfg := g.cfg
	cfg.APIKey = key
	chatModel, err := g.newModel(ctx, cfg)
	if err != nil {
		return false, fmt.Errorf("create model: %w", err)
	}

	_, err = chatModel.Generate(ctx, []*schema.Message{schema.UserMessage("ping")}, model.WithMaxTokens(1))
	if err == nil {
		return true, nil
	}
	var se *ServiceError
	if errors.As(annotate(g.Name(), err), &se) && se.Code == CodeAuth {
		return false, nil
	}
	return false, fmt.Errorf("validate credential: %w", err)
}
