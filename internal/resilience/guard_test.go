package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/josephgoksu/IdeaForge/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGenerator struct {
	calls int
	err   error
}

func (g *countingGenerator) Name() string { return "openai/gpt-5-mini" }

func (g *countingGenerator) Generate(ctx context.Context, prompt string, genCtx map[string]string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return "content for " + prompt, nil
}

func (g *countingGenerator) IsHealthy(ctx context.Context) bool { return true }

func TestGuard_OpensAndRejects(t *testing.T) {
	clock := newFakeClock()
	gen := &countingGenerator{err: &llm.ServiceError{Service: "openai", Code: llm.CodeRateLimit, StatusCode: 429, Err: errors.New("429")}}
	guard := Guard(gen, NewBreaker(gen.Name(), BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute, Clock: clock.Now}))

	for i := 0; i < 2; i++ {
		_, err := guard.Generate(context.Background(), "p", nil)
		var re *Error
		require.ErrorAs(t, err, &re)
		assert.Equal(t, KindServiceRateLimit, re.Kind)
		assert.Equal(t, gen.Name(), re.Metadata["service"])
	}

	_, err := guard.Generate(context.Background(), "p", nil)
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindServiceUnavailable, re.Kind)
	assert.Equal(t, 2, gen.calls)
	assert.False(t, guard.Available())
	assert.False(t, guard.IsHealthy(context.Background()))

	var _ llm.Generator = guard
	var _ llm.Availability = guard
}

func TestGuard_PassesThroughOutput(t *testing.T) {
	gen := &countingGenerator{}
	guard := Guard(gen, NewBreaker(gen.Name(), BreakerConfig{}))

	out, err := guard.Generate(context.Background(), "research", nil)
	require.NoError(t, err)
	assert.Equal(t, "content for research", out)
	assert.True(t, guard.IsHealthy(context.Background()))

	ok, err := guard.ValidateCredential(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}
