/*
Package metrics collects delegate, stage and project counters.

A Recorder is fed by three hooks: executor.WithObserver for every delegate
outcome, an orchestrator stage listener for every completed stage, and a
broadcaster observer for every published event. Counts are kept in atomics for
Snapshot and mirrored to Prometheus collectors on a private registry.
*/
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/josephgoksu/IdeaForge/internal/events"
	"github.com/josephgoksu/IdeaForge/internal/executor"
	"github.com/josephgoksu/IdeaForge/internal/orchestrator"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ideaforge"

// Recorder collects metrics for delegates, stages and projects.
type Recorder struct {
	// Counters
	TotalRuns         atomic.Int64
	TotalErrors       atomic.Int64
	TotalArtifacts    atomic.Int64
	StagesCompleted   atomic.Int64
	ProjectsCompleted atomic.Int64
	ProjectsFailed    atomic.Int64
	EventsPublished   atomic.Int64

	// Per-delegate counters
	delegateRuns   map[string]*atomic.Int64
	delegateErrors map[string]*atomic.Int64

	totalDuration atomic.Int64 // nanoseconds

	mu sync.RWMutex

	registry      *prometheus.Registry
	runs          *prometheus.CounterVec
	errorKinds    *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	artifacts     *prometheus.CounterVec
	projects      *prometheus.CounterVec
	published     *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own Prometheus registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		delegateRuns:   make(map[string]*atomic.Int64),
		delegateErrors: make(map[string]*atomic.Int64),
		registry:       prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegate_runs_total",
			Help:      "Delegate invocations by delegate and task status.",
		}, []string{"delegate", "status"}),
		errorKinds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegate_errors_total",
			Help:      "Failed delegate invocations by error kind.",
		}, []string{"kind"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delegate_duration_seconds",
			Help:      "Delegate invocation latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of a stage from fan-out to barrier.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_created_total",
			Help:      "Persisted artifacts by kind.",
		}, []string{"kind"}),
		projects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projects_finished_total",
			Help:      "Projects reaching a terminal status.",
		}, []string{"status"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published to observers by type.",
		}, []string{"type"}),
	}
	r.registry.MustRegister(
		r.runs, r.errorKinds, r.runDuration, r.stageDuration, r.artifacts, r.projects, r.published,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the Prometheus registry holding the recorder's collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveOutcome records one delegate invocation. It matches executor.Observer.
func (r *Recorder) ObserveOutcome(stage project.Stage, o executor.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.TotalRuns.Add(1)
	r.totalDuration.Add(int64(o.Duration))

	if r.delegateRuns[o.DelegateID] == nil {
		r.delegateRuns[o.DelegateID] = &atomic.Int64{}
		r.delegateErrors[o.DelegateID] = &atomic.Int64{}
	}
	r.delegateRuns[o.DelegateID].Add(1)

	status := string(o.Status)
	if status == "" {
		status = string(project.TaskFailed)
	}
	r.runs.WithLabelValues(o.DelegateID, status).Inc()
	r.runDuration.WithLabelValues(stage.String()).Observe(o.Duration.Seconds())

	if !o.Success {
		r.TotalErrors.Add(1)
		r.delegateErrors[o.DelegateID].Add(1)
		kind := "UNKNOWN"
		if o.Error != nil {
			kind = string(o.Error.Kind)
		}
		r.errorKinds.WithLabelValues(kind).Inc()
	}
}

// ObserveStage records a completed stage. It matches orchestrator.StageListener.
func (r *Recorder) ObserveStage(_ context.Context, res *orchestrator.StageResult) {
	r.StagesCompleted.Add(1)
	r.stageDuration.WithLabelValues(res.Stage.String()).Observe(res.Outcome.Duration.Seconds())

	for _, a := range res.Artifacts {
		r.TotalArtifacts.Add(1)
		r.artifacts.WithLabelValues(string(a.Kind)).Inc()
	}

	switch res.Project.Status {
	case project.StatusCompleted:
		r.ProjectsCompleted.Add(1)
		r.projects.WithLabelValues(string(project.StatusCompleted)).Inc()
	case project.StatusFailed:
		r.ProjectsFailed.Add(1)
		r.projects.WithLabelValues(string(project.StatusFailed)).Inc()
	}
}

// ObserveEvent counts a published event. It matches events.Observer.
func (r *Recorder) ObserveEvent(_ string, env events.Envelope) {
	r.EventsPublished.Add(1)
	r.published.WithLabelValues(string(env.Type)).Inc()
}

// Snapshot returns a point-in-time view of the counters.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delegateStats := make(map[string]DelegateStats, len(r.delegateRuns))
	for id, runs := range r.delegateRuns {
		delegateStats[id] = DelegateStats{
			Runs:   runs.Load(),
			Errors: r.delegateErrors[id].Load(),
		}
	}

	totalDuration := time.Duration(r.totalDuration.Load())
	runs := r.TotalRuns.Load()

	var avgDuration time.Duration
	if runs > 0 {
		avgDuration = totalDuration / time.Duration(runs)
	}

	return Snapshot{
		TotalRuns:         runs,
		TotalErrors:       r.TotalErrors.Load(),
		TotalArtifacts:    r.TotalArtifacts.Load(),
		StagesCompleted:   r.StagesCompleted.Load(),
		ProjectsCompleted: r.ProjectsCompleted.Load(),
		ProjectsFailed:    r.ProjectsFailed.Load(),
		EventsPublished:   r.EventsPublished.Load(),
		TotalDuration:     totalDuration,
		AvgRunDuration:    avgDuration,
		DelegateStats:     delegateStats,
	}
}

// Snapshot is a point-in-time view of a Recorder.
type Snapshot struct {
	TotalRuns         int64                    `json:"totalRuns"`
	TotalErrors       int64                    `json:"totalErrors"`
	TotalArtifacts    int64                    `json:"totalArtifacts"`
	StagesCompleted   int64                    `json:"stagesCompleted"`
	ProjectsCompleted int64                    `json:"projectsCompleted"`
	ProjectsFailed    int64                    `json:"projectsFailed"`
	EventsPublished   int64                    `json:"eventsPublished"`
	TotalDuration     time.Duration            `json:"totalDuration"`
	AvgRunDuration    time.Duration            `json:"avgRunDuration"`
	DelegateStats     map[string]DelegateStats `json:"delegates"`
}

// DelegateStats contains per-delegate statistics.
type DelegateStats struct {
	Runs   int64 `json:"runs"`
	Errors int64 `json:"errors"`
}

// String returns a human-readable summary.
func (s Snapshot) String() string {
	var b strings.Builder
	b.WriteString("=== Generation Metrics ===\n")
	fmt.Fprintf(&b, "Delegate Runs: %d\n", s.TotalRuns)
	fmt.Fprintf(&b, "Delegate Errors: %d\n", s.TotalErrors)
	fmt.Fprintf(&b, "Artifacts: %d\n", s.TotalArtifacts)
	fmt.Fprintf(&b, "Stages Completed: %d\n", s.StagesCompleted)
	fmt.Fprintf(&b, "Projects Completed: %d\n", s.ProjectsCompleted)
	fmt.Fprintf(&b, "Projects Failed: %d\n", s.ProjectsFailed)
	fmt.Fprintf(&b, "Total Duration: %s\n", s.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Avg Run Duration: %s\n", s.AvgRunDuration.Round(time.Millisecond))

	if len(s.DelegateStats) > 0 {
		b.WriteString("\n--- Per-Delegate ---\n")
		ids := make([]string, 0, len(s.DelegateStats))
		for id := range s.DelegateStats {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			st := s.DelegateStats[id]
			fmt.Fprintf(&b, "%s: %d runs, %d errors\n", id, st.Runs, st.Errors)
		}
	}
	return b.String()
}
