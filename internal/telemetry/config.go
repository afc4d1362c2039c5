// Package telemetry sends anonymous usage events about generation runs.
// No idea text, artifact content or project identifiers leave the process.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ConfigFileName is the name of the telemetry state file inside the data dir.
const ConfigFileName = "telemetry.json"

// Config holds the telemetry opt-in state.
type Config struct {
	Enabled bool `json:"enabled"`

	// AnonymousID is a random UUID generated once per installation.
	AnonymousID string `json:"anonymous_id"`
}

// ConfigPath returns the telemetry state file under dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, ConfigFileName)
}

// Load reads the telemetry state from dataDir. A missing file yields a
// disabled Config with a fresh anonymous ID.
func Load(dataDir string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(ConfigPath(dataDir))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read telemetry config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse telemetry config: %w", err)
		}
	}

	if cfg.AnonymousID == "" {
		cfg.AnonymousID = uuid.New().String()
	}
	return cfg, nil
}

// Save writes the telemetry state to dataDir with owner-only permissions.
func (c *Config) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal telemetry config: %w", err)
	}
	if err := os.WriteFile(ConfigPath(dataDir), data, 0600); err != nil {
		return fmt.Errorf("write telemetry config: %w", err)
	}
	return nil
}

func (c *Config) Enable()  { c.Enabled = true }
func (c *Config) Disable() { c.Enabled = false }

// IsEnabled reports whether events may be sent.
func (c *Config) IsEnabled() bool {
	return c != nil && c.Enabled
}
