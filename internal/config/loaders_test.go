package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/josephgoksu/IdeaForge/internal/delegates/core"
	"github.com/josephgoksu/IdeaForge/internal/resilience"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrchestratorConfig_Defaults(t *testing.T) {
	resetViperForTest(t)

	cfg, err := LoadOrchestratorConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy, cfg.Policy)
	assert.Equal(t, DefaultMinSuccessRatio, cfg.MinSuccessRatio)
	assert.Equal(t, DefaultDelegateTimeout, cfg.DelegateTimeout)
	assert.Equal(t, core.DefaultMaxContextTokens, cfg.MaxContextTokens)
	assert.Equal(t, filepath.Join(DefaultDataDir, "policies"), cfg.PolicyPath)
}

func TestLoadOrchestratorConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"unknown policy", "orchestrator.policy", "majority"},
		{"ratio above one", "orchestrator.minSuccessRatio", 1.5},
		{"ratio zero", "orchestrator.minSuccessRatio", 0},
		{"no context budget", "orchestrator.maxContextTokens", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViperForTest(t)
			viper.Set(tt.key, tt.value)
			_, err := LoadOrchestratorConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadBreakerConfig(t *testing.T) {
	resetViperForTest(t)
	viper.Set("breaker.cooldown", "45s")

	cfg, err := LoadBreakerConfig()
	require.NoError(t, err)
	assert.Equal(t, resilience.DefaultFailureThreshold, cfg.FailureThreshold)
	assert.Equal(t, 45*time.Second, cfg.Cooldown)

	viper.Set("breaker.failureThreshold", -1)
	_, err = LoadBreakerConfig()
	assert.Error(t, err)
}

func TestLoadServerConfig(t *testing.T) {
	resetViperForTest(t)
	viper.Set("server.allowedOrigins", []string{"http://localhost:3000"})

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultServerAddr, cfg.Addr)
	assert.Equal(t, DefaultEventQueueSize, cfg.EventQueueSize)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)

	viper.Set("server.addr", "")
	_, err = LoadServerConfig()
	assert.Error(t, err)
}

func TestLoadTelemetryConfig(t *testing.T) {
	resetViperForTest(t)

	cfg, err := LoadTelemetryConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)

	viper.Set("telemetry.endpoint", "not a url")
	_, err = LoadTelemetryConfig()
	assert.Error(t, err)
}

func TestLoadLogConfig(t *testing.T) {
	resetViperForTest(t)

	cfg, err := LoadLogConfig()
	require.NoError(t, err)
	assert.Equal(t, LogConfig{Level: "info", Format: "text"}, cfg)

	viper.Set("log.format", "xml")
	_, err = LoadLogConfig()
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	resetViperForTest(t)
	viper.Set("data.dir", "/tmp/forge")

	assert.Equal(t, "/tmp/forge", DataDir())
	assert.Equal(t, "/tmp/forge/policies", PoliciesDir())
	assert.Equal(t, "/tmp/forge/crash_logs", CrashLogDir())
}
