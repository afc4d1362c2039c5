package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/josephgoksu/IdeaForge/internal/resilience"
	"github.com/spf13/viper"
)

var validate = validator.New()

// OrchestratorConfig configures stage execution and continuation.
type OrchestratorConfig struct {
	Policy           string        `validate:"oneof=any-success all-success min-ratio rego"`
	MinSuccessRatio  float64       `validate:"gt=0,lte=1"`
	PolicyPath       string        // rego file or directory; defaults to PoliciesDir
	DelegateTimeout  time.Duration `validate:"gte=0"`
	MaxContextTokens int           `validate:"gt=0"`
	CatalogPath      string        // optional YAML overlay on the builtin catalog
}

// ServerConfig configures the HTTP/WebSocket server.
type ServerConfig struct {
	Addr            string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	EventQueueSize  int           `validate:"gt=0"`
	AllowedOrigins  []string
}

// TelemetryConfig configures anonymous usage telemetry.
type TelemetryConfig struct {
	Enabled  bool
	APIKey   string
	Endpoint string `validate:"omitempty,url"`
}

// LogConfig configures the default slog logger.
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json"`
}

// LoadBreakerConfig loads the circuit breaker thresholds shared by every
// generation service.
func LoadBreakerConfig() (resilience.BreakerConfig, error) {
	cfg := resilience.BreakerConfig{
		FailureThreshold: viper.GetInt("breaker.failureThreshold"),
		SuccessThreshold: viper.GetInt("breaker.successThreshold"),
		Cooldown:         viper.GetDuration("breaker.cooldown"),
		HalfOpenMaxCalls: viper.GetInt("breaker.halfOpenMaxCalls"),
	}
	if cfg.FailureThreshold < 0 || cfg.SuccessThreshold < 0 || cfg.HalfOpenMaxCalls < 0 || cfg.Cooldown < 0 {
		return cfg, fmt.Errorf("breaker settings must not be negative")
	}
	return cfg, nil
}

func LoadOrchestratorConfig() (OrchestratorConfig, error) {
	cfg := OrchestratorConfig{
		Policy:           viper.GetString("orchestrator.policy"),
		MinSuccessRatio:  viper.GetFloat64("orchestrator.minSuccessRatio"),
		PolicyPath:       viper.GetString("orchestrator.policyPath"),
		DelegateTimeout:  viper.GetDuration("orchestrator.delegateTimeout"),
		MaxContextTokens: viper.GetInt("orchestrator.maxContextTokens"),
		CatalogPath:      viper.GetString("orchestrator.catalogPath"),
	}
	if cfg.PolicyPath == "" {
		cfg.PolicyPath = PoliciesDir()
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid orchestrator config: %w", err)
	}
	return cfg, nil
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := ServerConfig{
		Addr:            viper.GetString("server.addr"),
		ReadTimeout:     viper.GetDuration("server.readTimeout"),
		ShutdownTimeout: viper.GetDuration("server.shutdownTimeout"),
		EventQueueSize:  viper.GetInt("server.eventQueueSize"),
		AllowedOrigins:  viper.GetStringSlice("server.allowedOrigins"),
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}

func LoadTelemetryConfig() (TelemetryConfig, error) {
	cfg := TelemetryConfig{
		Enabled:  viper.GetBool("telemetry.enabled"),
		APIKey:   viper.GetString("telemetry.apiKey"),
		Endpoint: viper.GetString("telemetry.endpoint"),
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid telemetry config: %w", err)
	}
	return cfg, nil
}

func LoadLogConfig() (LogConfig, error) {
	cfg := LogConfig{
		Level:  viper.GetString("log.level"),
		Format: viper.GetString("log.format"),
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid log config: %w", err)
	}
	return cfg, nil
}
