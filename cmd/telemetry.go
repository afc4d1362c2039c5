/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/josephgoksu/IdeaForge/internal/config"
	"github.com/josephgoksu/IdeaForge/internal/telemetry"
	"github.com/spf13/cobra"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Manage anonymous telemetry",
	Long: `View and manage IdeaForge's anonymous telemetry settings.

When enabled, IdeaForge reports stage counts, durations and outcomes. Idea
text, artifact content and project IDs are never sent. Events are only sent
when telemetry.enabled is true in the config and a telemetry.apiKey is set.`,
}

var telemetryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current telemetry status",
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := telemetry.Load(config.DataDir())
		if err != nil {
			return fmt.Errorf("read telemetry status: %w", err)
		}
		if isJSON() {
			return printJSON(state)
		}
		if state.IsEnabled() {
			fmt.Println("Telemetry: enabled")
			fmt.Printf("  Anonymous ID: %s\n", state.AnonymousID)
			fmt.Println("  To disable: ideaforge telemetry disable")
		} else {
			fmt.Println("Telemetry: disabled")
			fmt.Println("  To enable: ideaforge telemetry enable")
		}
		return nil
	},
}

var telemetryEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable anonymous telemetry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTelemetry(true)
	},
}

var telemetryDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable anonymous telemetry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTelemetry(false)
	},
}

func setTelemetry(enabled bool) error {
	dir := config.DataDir()
	state, err := telemetry.Load(dir)
	if err != nil {
		return fmt.Errorf("read telemetry status: %w", err)
	}
	if enabled {
		state.Enable()
	} else {
		state.Disable()
	}
	if err := state.Save(dir); err != nil {
		return err
	}
	if enabled {
		fmt.Println("Telemetry enabled.")
	} else {
		fmt.Println("Telemetry disabled.")
	}
	return nil
}

// newTelemetryClient returns a PostHog client when telemetry is enabled in
// both the config and the local opt-in state, and a no-op client otherwise.
func newTelemetryClient() telemetry.Client {
	cfg, err := config.LoadTelemetryConfig()
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
		return telemetry.NoopClient{}
	}
	if !cfg.Enabled || cfg.APIKey == "" {
		return telemetry.NoopClient{}
	}

	state, err := telemetry.Load(config.DataDir())
	if err != nil || !state.IsEnabled() {
		return telemetry.NoopClient{}
	}

	client, err := telemetry.NewPostHogClient(telemetry.ClientConfig{
		APIKey:   cfg.APIKey,
		Version:  version,
		Config:   state,
		Endpoint: cfg.Endpoint,
	})
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
		return telemetry.NoopClient{}
	}
	return client
}

func init() {
	rootCmd.AddCommand(telemetryCmd)
	telemetryCmd.AddCommand(telemetryStatusCmd, telemetryEnableCmd, telemetryDisableCmd)
}
