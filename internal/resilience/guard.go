package resilience

import (
	"context"

	"github.com/josephgoksu/IdeaForge/internal/llm"
)

// GuardedGenerator runs a generator's calls through its circuit breaker and
// returns classified errors.
type GuardedGenerator struct {
	gen     llm.Generator
	breaker *Breaker
}

// Guard wraps gen with breaker.
func Guard(gen llm.Generator, breaker *Breaker) *GuardedGenerator {
	return &GuardedGenerator{gen: gen, breaker: breaker}
}

// Name returns the wrapped generator's name.
func (g *GuardedGenerator) Name() string { return g.gen.Name() }

// Generate calls the wrapped generator unless the breaker is open.
func (g *GuardedGenerator) Generate(ctx context.Context, prompt string, genCtx map[string]string) (string, error) {
	var out string
	err := g.breaker.Execute(func() error {
		var genErr error
		out, genErr = g.gen.Generate(ctx, prompt, genCtx)
		return genErr
	})
	if err != nil {
		return "", Classify(err, map[string]string{"service": g.gen.Name()})
	}
	return out, nil
}

// IsHealthy reports false while the breaker rejects calls, otherwise defers
// to the wrapped generator.
func (g *GuardedGenerator) IsHealthy(ctx context.Context) bool {
	if !g.breaker.Available() {
		return false
	}
	return g.gen.IsHealthy(ctx)
}

// Available implements llm.Availability.
func (g *GuardedGenerator) Available() bool { return g.breaker.Available() }

// Breaker returns the guarding breaker.
func (g *GuardedGenerator) Breaker() *Breaker { return g.breaker }

// ValidateCredential delegates to the wrapped generator when it supports it.
func (g *GuardedGenerator) ValidateCredential(ctx context.Context, key string) (bool, error) {
	if v, ok := g.gen.(llm.CredentialValidator); ok {
		return v.ValidateCredential(ctx, key)
	}
	return true, nil
}
