package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

// DataDir returns the directory holding the database, policies, telemetry
// state and crash logs.
func DataDir() string {
	if dir := viper.GetString("data.dir"); dir != "" {
		return dir
	}
	return DefaultDataDir
}

// PoliciesDir is where rego continuation policies are loaded from when
// orchestrator.policyPath is not set.
func PoliciesDir() string {
	return filepath.Join(DataDir(), "policies")
}

// CrashLogDir is where panic reports are written.
func CrashLogDir() string {
	return filepath.Join(DataDir(), "crash_logs")
}
