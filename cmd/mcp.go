/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/josephgoksu/IdeaForge/internal/app"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server over stdin/stdout",
	Long: `Start a Model Context Protocol server so AI assistants can create
projects, run stages and read the generated documents.

Tools:
  create-project    start a project from an idea
  list-projects     list projects, newest first
  get-project       project status, tasks and artifacts
  advance-project   run the current stage and wait for it
  run-project       run the remaining stages in the background
  pause-project     stop before the next stage
  resume-project    allow the next stage to start

Logs go to stderr so they never mix with the protocol stream.

Example:
  ideaforge mcp`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServer(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx, err := app.NewFromConfig(ctx, newTelemetryClient())
	if err != nil {
		return err
	}
	defer func() {
		if err := appCtx.Close(); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}()
	if err := appCtx.RequireGenerator(); err != nil {
		slog.Warn("stages will fail until a generation service is configured", "error", err)
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "ideaforge", Version: version}, &mcp.ServerOptions{})
	registerMCPTools(server, &mcpTools{ctx: ctx, app: appCtx})

	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
