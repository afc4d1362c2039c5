// Package config loads IdeaForge settings from viper. Every default lives in
// SetDefaults so flags, the config file and IDEAFORGE_* environment variables
// all override the same keys.
package config

import (
	"time"

	"github.com/josephgoksu/IdeaForge/internal/delegates/core"
	"github.com/josephgoksu/IdeaForge/internal/llm"
	"github.com/josephgoksu/IdeaForge/internal/resilience"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables bound to config keys.
const EnvPrefix = "IDEAFORGE"

// DefaultDataDir holds the database, policies and crash logs.
const DefaultDataDir = ".ideaforge"

// Orchestrator defaults
const (
	DefaultPolicy          = "any-success"
	DefaultMinSuccessRatio = 0.5
	DefaultDelegateTimeout = 5 * time.Minute
)

// Server defaults
const (
	DefaultServerAddr      = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultEventQueueSize  = 256
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", DefaultDataDir)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.maxTokens", llm.DefaultMaxTokens)
	v.SetDefault("llm.temperature", llm.DefaultTemperature)

	v.SetDefault("breaker.failureThreshold", resilience.DefaultFailureThreshold)
	v.SetDefault("breaker.successThreshold", resilience.DefaultSuccessThreshold)
	v.SetDefault("breaker.cooldown", resilience.DefaultCooldown)
	v.SetDefault("breaker.halfOpenMaxCalls", resilience.DefaultHalfOpenMaxCalls)

	v.SetDefault("orchestrator.policy", DefaultPolicy)
	v.SetDefault("orchestrator.minSuccessRatio", DefaultMinSuccessRatio)
	v.SetDefault("orchestrator.delegateTimeout", DefaultDelegateTimeout)
	v.SetDefault("orchestrator.maxContextTokens", core.DefaultMaxContextTokens)

	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.readTimeout", DefaultReadTimeout)
	v.SetDefault("server.shutdownTimeout", DefaultShutdownTimeout)
	v.SetDefault("server.eventQueueSize", DefaultEventQueueSize)

	v.SetDefault("telemetry.enabled", false)
}
