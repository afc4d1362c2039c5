// Package app wires the store, delegate registry, generation services and
// orchestrator shared by the CLI and the HTTP server. Commands stay thin
// adapters over a Context.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/josephgoksu/IdeaForge/internal/config"
	"github.com/josephgoksu/IdeaForge/internal/delegates"
	"github.com/josephgoksu/IdeaForge/internal/events"
	"github.com/josephgoksu/IdeaForge/internal/executor"
	"github.com/josephgoksu/IdeaForge/internal/llm"
	"github.com/josephgoksu/IdeaForge/internal/logger"
	"github.com/josephgoksu/IdeaForge/internal/memory"
	"github.com/josephgoksu/IdeaForge/internal/metrics"
	"github.com/josephgoksu/IdeaForge/internal/orchestrator"
	"github.com/josephgoksu/IdeaForge/internal/policy"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/resilience"
	"github.com/josephgoksu/IdeaForge/internal/telemetry"
	"github.com/spf13/afero"
)

// Options configures New.
type Options struct {
	// DataDir holds the database. ":memory:" keeps everything in process.
	DataDir        string
	LLM            llm.Config
	Fallback       *llm.Config
	Breaker        resilience.BreakerConfig
	Orchestrator   config.OrchestratorConfig
	EventQueueSize int

	// Generator replaces the configured LLM services when set.
	Generator llm.Generator
	Telemetry telemetry.Client
	Fs        afero.Fs

	// generatorErr marks the generation service as unusable without failing New.
	generatorErr error
	// primary is the service NewFromConfig built from LLM; New builds it when nil.
	primary *llm.ChatGenerator
}

// Context holds shared dependencies for all commands.
type Context struct {
	Store        *memory.SQLiteStore
	Registry     *delegates.Registry
	Orchestrator *orchestrator.Orchestrator
	Broadcaster  *events.Broadcaster
	Breakers     *resilience.Breakers
	Metrics      *metrics.Recorder
	Generator    llm.Generator

	generatorErr error
	telemetry    telemetry.Client
	policyCfg    policy.EngineConfig
}

// New builds a Context from explicit options.
func New(ctx context.Context, opts Options) (*Context, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NoopClient{}
	}

	c := &Context{
		Breakers:    resilience.NewBreakers(opts.Breaker),
		Metrics:     metrics.NewRecorder(),
		Broadcaster: events.NewBroadcaster(opts.EventQueueSize),
		telemetry:   opts.Telemetry,
	}
	c.Broadcaster.Observe(c.Metrics.ObserveEvent)

	gen := opts.Generator
	if gen == nil && opts.generatorErr == nil {
		var err error
		if gen, err = c.buildGenerator(ctx, opts.primary, opts.LLM, opts.Fallback); err != nil {
			return nil, err
		}
	}
	if opts.generatorErr != nil {
		slog.Debug("generation service not configured", "error", opts.generatorErr)
		gen = unconfigured{err: opts.generatorErr}
	}
	c.Generator = gen
	c.generatorErr = opts.generatorErr

	registry, err := loadRegistry(opts.Fs, opts.Orchestrator.CatalogPath)
	if err != nil {
		return nil, err
	}
	c.Registry = registry

	pol, err := buildPolicy(ctx, opts.Fs, opts.Orchestrator)
	if err != nil {
		return nil, err
	}
	c.policyCfg = policy.EngineConfig{Path: opts.Orchestrator.PolicyPath, Fs: opts.Fs}

	store, err := memory.NewSQLiteStore(opts.DataDir)
	if err != nil {
		return nil, err
	}
	c.Store = store

	exec := executor.New(
		executor.WithTimeout(opts.Orchestrator.DelegateTimeout),
		executor.WithObserver(c.Metrics.ObserveOutcome),
	)
	tracker := telemetry.NewTracker(opts.Telemetry)

	c.Orchestrator = orchestrator.New(store, registry, exec, gen,
		orchestrator.WithPublisher(c.Broadcaster),
		orchestrator.WithPolicy(pol),
		orchestrator.WithMaxContextTokens(opts.Orchestrator.MaxContextTokens),
		orchestrator.WithStageListener(c.Metrics.ObserveStage),
		orchestrator.WithStageListener(tracker.ObserveStage),
		orchestrator.WithStageListener(func(_ context.Context, res *orchestrator.StageResult) {
			logger.SetProgress(res.Project.ID, int(res.Project.CurrentStage))
		}),
	)
	return c, nil
}

// NewFromConfig builds a Context from the loaded viper configuration.
// Generation service settings are best-effort so read-only commands work
// without credentials; RequireGenerator reports why stages cannot run.
func NewFromConfig(ctx context.Context, tel telemetry.Client) (*Context, error) {
	breakerCfg, err := config.LoadBreakerConfig()
	if err != nil {
		return nil, err
	}
	orchCfg, err := config.LoadOrchestratorConfig()
	if err != nil {
		return nil, err
	}
	serverCfg, err := config.LoadServerConfig()
	if err != nil {
		return nil, err
	}

	opts := Options{
		DataDir:        config.DataDir(),
		Breaker:        breakerCfg,
		Orchestrator:   orchCfg,
		EventQueueSize: serverCfg.EventQueueSize,
		Telemetry:      tel,
	}
	if opts.LLM, err = config.LoadLLMConfig(); err != nil {
		opts.generatorErr = err
	} else if opts.Fallback, err = config.LoadFallbackLLMConfig(); err != nil {
		opts.generatorErr = err
	} else if opts.primary, err = llm.NewChatGenerator(ctx, opts.LLM); err != nil {
		opts.generatorErr = fmt.Errorf("primary generation service: %w", err)
	}
	return New(ctx, opts)
}

// RequireGenerator returns the configuration error that keeps stages from
// running, or nil when a generation service is available.
func (c *Context) RequireGenerator() error {
	if c.generatorErr != nil {
		return fmt.Errorf("generation service unavailable: %w", c.generatorErr)
	}
	return nil
}

// unconfigured stands in for a generation service whose settings failed to load.
type unconfigured struct{ err error }

func (unconfigured) Name() string { return "unconfigured" }

func (u unconfigured) Generate(context.Context, string, map[string]string) (string, error) {
	return "", u.err
}

func (unconfigured) IsHealthy(context.Context) bool { return false }

// buildGenerator guards each configured service with its own breaker and
// chains the fallback behind the primary. primary is built from primaryCfg
// when nil.
func (c *Context) buildGenerator(ctx context.Context, primary *llm.ChatGenerator, primaryCfg llm.Config, fallbackCfg *llm.Config) (llm.Generator, error) {
	if primary == nil {
		var err error
		if primary, err = llm.NewChatGenerator(ctx, primaryCfg); err != nil {
			return nil, fmt.Errorf("primary generation service: %w", err)
		}
	}
	guarded := resilience.Guard(primary, c.Breakers.Get(primary.Name()))
	if fallbackCfg == nil {
		return guarded, nil
	}

	secondary, err := llm.NewChatGenerator(ctx, *fallbackCfg)
	if err != nil {
		return nil, fmt.Errorf("fallback generation service: %w", err)
	}
	slog.Debug("generation fallback configured", "primary", primary.Name(), "fallback", secondary.Name())
	return llm.NewFallbackGenerator(guarded, resilience.Guard(secondary, c.Breakers.Get(secondary.Name())), guarded), nil
}

func loadRegistry(fs afero.Fs, catalogPath string) (*delegates.Registry, error) {
	descs, err := delegates.LoadCatalog(fs, catalogPath)
	if err != nil {
		return nil, fmt.Errorf("load delegate catalog: %w", err)
	}

	registry := delegates.NewRegistry()
	res := registry.RegisterAll(descs)
	for _, msg := range res.Errors {
		slog.Warn("delegate registration failed", "error", msg)
	}
	if missing := registry.ValidateStageCoverage(project.AllStages()...); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, s := range missing {
			names[i] = fmt.Sprintf("%d (%s)", int(s), s)
		}
		return nil, fmt.Errorf("delegate catalog: %w: stages %s", orchestrator.ErrNoDelegates, strings.Join(names, ", "))
	}
	slog.Debug("delegates registered", "registered", res.Registered, "skipped", res.Skipped, "failed", res.Failed)
	return registry, nil
}

func buildPolicy(ctx context.Context, fs afero.Fs, cfg config.OrchestratorConfig) (orchestrator.Policy, error) {
	var engine *policy.Engine
	if cfg.Policy == orchestrator.PolicyRego {
		var err error
		engine, err = policy.NewEngine(ctx, policy.EngineConfig{Path: cfg.PolicyPath, Fs: fs})
		if err != nil {
			return nil, fmt.Errorf("load continuation policies: %w", err)
		}
		slog.Info("rego continuation policies loaded", "count", engine.PolicyCount(), "path", cfg.PolicyPath)
	}
	return orchestrator.NewPolicy(cfg.Policy, cfg.MinSuccessRatio, engine)
}

// WatchPolicies reloads rego continuation policies when their files change,
// blocking until ctx is done. It returns at once when the rego policy is not
// in use or the policy path does not exist.
func (c *Context) WatchPolicies(ctx context.Context) error {
	rp, ok := c.Orchestrator.Policy().(*orchestrator.RegoPolicy)
	if !ok {
		return nil
	}
	w, err := policy.NewWatcher(c.policyCfg, rp.SetEngine)
	if err != nil {
		slog.Debug("continuation policies not watched", "path", c.policyCfg.Path, "error", err)
		return nil
	}
	slog.Info("watching continuation policies", "path", c.policyCfg.Path)
	return w.Run(ctx)
}

// Health returns the breaker state of every generation service.
func (c *Context) Health() []resilience.Health {
	return c.Breakers.Health()
}

// Close stops background runs, disconnects observers and closes the store.
func (c *Context) Close() error {
	c.Orchestrator.StopRuns()
	c.Broadcaster.Close()
	return errors.Join(c.telemetry.Close(), c.Store.Close())
}
