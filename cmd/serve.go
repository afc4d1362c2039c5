/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/josephgoksu/IdeaForge/internal/app"
	"github.com/josephgoksu/IdeaForge/internal/config"
	"github.com/josephgoksu/IdeaForge/internal/server"
	"github.com/josephgoksu/IdeaForge/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and WebSocket event stream",
	Long: `Start the IdeaForge server.

Endpoints:
  POST /api/projects                 create a project ({"idea": "...", "run": true})
  GET  /api/projects                 list projects
  GET  /api/projects/{id}            project with its tasks and artifacts
  POST /api/projects/{id}/advance    run the current stage and wait for it
  POST /api/projects/{id}/run        run the remaining stages in the background
  POST /api/projects/{id}/pause      stop before the next stage
  POST /api/projects/{id}/resume     allow the next stage to start
  GET  /api/delegates                registered delegates
  GET  /api/health                   generation service breaker state
  GET  /metrics                      Prometheus metrics
  GET  /ws                           live progress events

Example:
  ideaforge serve --addr :9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().StringSlice("allowed-origin", nil, "extra origin allowed for CORS and WebSocket (repeatable)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.allowedOrigins", serveCmd.Flags().Lookup("allowed-origin"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvCfg, err := config.LoadServerConfig()
	if err != nil {
		return err
	}

	tel := newTelemetryClient()
	appCtx, err := app.NewFromConfig(ctx, tel)
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
	tel.Track(telemetry.EventServerStarted, telemetry.Properties{"delegates": appCtx.Registry.Len()})

	srv := server.New(server.Config{
		Addr:            srvCfg.Addr,
		ReadTimeout:     srvCfg.ReadTimeout,
		ShutdownTimeout: srvCfg.ShutdownTimeout,
		AllowedOrigins:  srvCfg.AllowedOrigins,
		Version:         version,
	}, server.Deps{
		Orchestrator: appCtx.Orchestrator,
		Delegates:    appCtx.Registry,
		Broadcaster:  appCtx.Broadcaster,
		Health:       appCtx.Breakers,
		Metrics:      appCtx.Metrics.Handler(),
	})

	slog.Info("starting ideaforge server",
		"addr", srvCfg.Addr,
		"generator", appCtx.Generator.Name(),
		"policy", appCtx.Orchestrator.Policy().Name(),
		"delegates", appCtx.Registry.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return appCtx.WatchPolicies(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		// Background runs finish their current stage before the store closes.
		appCtx.Orchestrator.StopRuns()
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
