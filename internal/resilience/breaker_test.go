package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/josephgoksu/IdeaForge/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errUnavailable = &llm.ServiceError{Service: "openai", Code: llm.CodeUnavailable, StatusCode: 503, Err: errors.New("down")}

func TestBreaker_FullCycle(t *testing.T) {
	const k, m = 3, 2
	clock := newFakeClock()
	b := NewBreaker("openai", BreakerConfig{
		FailureThreshold: k,
		SuccessThreshold: m,
		Cooldown:         time.Minute,
		Clock:            clock.Now,
	})

	calls := 0
	fail := func() error { calls++; return errUnavailable }
	succeed := func() error { calls++; return nil }

	for i := 0; i < k; i++ {
		require.Equal(t, StateClosed, b.State(), "call %d", i)
		_ = b.Execute(fail)
	}
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, k, calls)

	// The (K+1)th call is rejected without reaching the service.
	err := b.Execute(succeed)
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindServiceUnavailable, re.Kind)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, k, calls)
	assert.False(t, b.Available())

	clock.Advance(time.Minute)
	assert.True(t, b.Available())
	assert.Equal(t, StateHalfOpen, b.State())

	for i := 0; i < m; i++ {
		require.NoError(t, b.Execute(succeed))
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, k+m, calls)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("ollama", BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Cooldown: time.Second, Clock: clock.Now})

	_ = b.Execute(func() error { return errUnavailable })
	require.Equal(t, StateOpen, b.State())

	clock.Advance(time.Second)
	require.NoError(t, b.Execute(func() error { return nil }))
	require.Equal(t, StateHalfOpen, b.State())

	_ = b.Execute(func() error { return errUnavailable })
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_HalfOpenLimitsTrialCalls(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("openai", BreakerConfig{FailureThreshold: 1, Cooldown: time.Second, HalfOpenMaxCalls: 1, Clock: clock.Now})
	_ = b.Execute(func() error { return errUnavailable })
	clock.Advance(time.Second)

	trial, err := b.Allow()
	require.NoError(t, err)
	_, err = b.Allow()
	assert.ErrorIs(t, err, ErrCircuitOpen)

	b.Record(trial, nil)
	_, err = b.Allow()
	assert.NoError(t, err)
}

func TestBreaker_StaleResultIsNotATrial(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("openai", BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		HalfOpenMaxCalls: 1,
		Cooldown:         time.Second,
		Clock:            clock.Now,
	})

	slow, err := b.Allow()
	require.NoError(t, err)
	_ = b.Execute(func() error { return errUnavailable })
	require.Equal(t, StateOpen, b.State())

	clock.Advance(time.Second)
	trial, err := b.Allow()
	require.NoError(t, err)
	require.Equal(t, StateHalfOpen, b.State())

	// The call admitted while closed finishes during the trial.
	b.Record(slow, nil)
	assert.Equal(t, StateHalfOpen, b.State())
	_, err = b.Allow()
	assert.ErrorIs(t, err, ErrCircuitOpen, "trial limit exceeded")

	b.Record(trial, nil)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, int64(2), b.Health().Successes)
}

func TestBreaker_StaleFailureDoesNotReopen(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("openai", BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Cooldown: time.Second, Clock: clock.Now})

	slow, err := b.Allow()
	require.NoError(t, err)
	_ = b.Execute(func() error { return errUnavailable })
	clock.Advance(time.Second)
	require.NoError(t, b.Execute(func() error { return nil }))
	require.Equal(t, StateClosed, b.State())

	b.Record(slow, errUnavailable)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, int64(2), b.Health().Failures)
}

func TestBreaker_NonServiceErrorsDoNotCount(t *testing.T) {
	b := NewBreaker("openai", BreakerConfig{FailureThreshold: 2})
	for i := 0; i < 5; i++ {
		_ = b.Execute(func() error { return context.Canceled })
		_ = b.Execute(func() error { return NewError(KindValidation, "bad prompt", nil) })
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Health().ConsecutiveFailures)
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b := NewBreaker("openai", BreakerConfig{FailureThreshold: 3})
	_ = b.Execute(func() error { return errUnavailable })
	_ = b.Execute(func() error { return errUnavailable })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errUnavailable })
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_Health(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker("openai", BreakerConfig{FailureThreshold: 10, Clock: clock.Now})
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errUnavailable })

	h := b.Health()
	assert.Equal(t, "openai", h.Service)
	assert.Equal(t, StateClosed, h.State)
	assert.Equal(t, int64(3), h.Successes)
	assert.Equal(t, int64(1), h.Failures)
	assert.InDelta(t, 0.75, h.SuccessRate, 1e-9)
	assert.InDelta(t, 0.25, h.FailureRate, 1e-9)
	assert.Equal(t, clock.Now(), h.LastFailure)
}

func TestBreaker_OnStateChange(t *testing.T) {
	clock := newFakeClock()
	var mu sync.Mutex
	var transitions []State
	b := NewBreaker("openai", BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Cooldown:         time.Second,
		Clock:            clock.Now,
		OnStateChange: func(_ string, _, to State) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		},
	})

	_ = b.Execute(func() error { return errUnavailable })
	clock.Advance(time.Second)
	_ = b.Execute(func() error { return nil })

	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreaker_ConcurrentUse(t *testing.T) {
	b := NewBreaker("openai", BreakerConfig{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = b.Execute(func() error {
				if i%2 == 0 {
					return errUnavailable
				}
				return nil
			})
		}(i)
	}
	wg.Wait()
	h := b.Health()
	assert.Equal(t, int64(50), h.Successes+h.Failures)
}

func TestBreakers_SharedPerService(t *testing.T) {
	set := NewBreakers(BreakerConfig{})
	a := set.Get("openai")
	assert.Same(t, a, set.Get("openai"))
	assert.NotSame(t, a, set.Get("ollama"))

	health := set.Health()
	require.Len(t, health, 2)
	assert.Equal(t, "ollama", health[0].Service)
	assert.Equal(t, "openai", health[1].Service)
}
