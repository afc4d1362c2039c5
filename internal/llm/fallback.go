package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Availability reports whether a generator should currently receive calls.
// Circuit breakers implement it.
type Availability interface {
	Available() bool
}

// FallbackGenerator prefers a primary generator and switches to a secondary
// one when the primary is unavailable or fails.
type FallbackGenerator struct {
	primary      Generator
	secondary    Generator
	availability Availability
}

// NewFallbackGenerator returns a generator over primary and secondary.
// availability may be nil, in which case the primary is always tried first.
func NewFallbackGenerator(primary, secondary Generator, availability Availability) *FallbackGenerator {
	return &FallbackGenerator{primary: primary, secondary: secondary, availability: availability}
}

// Name returns both service names.
func (f *FallbackGenerator) Name() string {
	return fmt.Sprintf("%s|%s", f.primary.Name(), f.secondary.Name())
}

// Generate calls the primary, or the secondary when the primary is
// unavailable or returns an error. Caller cancellation is never retried.
func (f *FallbackGenerator) Generate(ctx context.Context, prompt string, genCtx map[string]string) (string, error) {
	if f.availability != nil && !f.availability.Available() {
		slog.Debug("primary generator unavailable, using fallback",
			"primary", f.primary.Name(), "fallback", f.secondary.Name())
		return f.secondary.Generate(ctx, prompt, genCtx)
	}

	out, err := f.primary.Generate(ctx, prompt, genCtx)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return "", err
	}

	slog.Warn("primary generator failed, using fallback",
		"primary", f.primary.Name(), "fallback", f.secondary.Name(), "error", err)
	out, fbErr := f.secondary.Generate(ctx, prompt, genCtx)
	if fbErr != nil {
		return "", fmt.Errorf("fallback %s: %w (primary: %v)", f.secondary.Name(), fbErr, err)
	}
	return out, nil
}

// IsHealthy reports whether either generator is healthy.
func (f *FallbackGenerator) IsHealthy(ctx context.Context) bool {
	return f.primary.IsHealthy(ctx) || f.secondary.IsHealthy(ctx)
}
