/*
Package orchestrator drives projects through the six stages.

Each call to Advance runs exactly one stage: the stage's delegates execute in
parallel, their tasks and artifacts are persisted in one transaction, progress
is published, and the continuation policy decides whether the project moves on
or fails. Advances of one project are serialized; different projects proceed
independently.
*/
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/josephgoksu/IdeaForge/internal/delegates/core"
	"github.com/josephgoksu/IdeaForge/internal/events"
	"github.com/josephgoksu/IdeaForge/internal/executor"
	"github.com/josephgoksu/IdeaForge/internal/llm"
	"github.com/josephgoksu/IdeaForge/internal/memory"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/resilience"
	"github.com/josephgoksu/IdeaForge/internal/util"
)

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrNoDelegates      = errors.New("no active delegates for stage")
	ErrProjectPaused    = errors.New("project is paused")
	ErrProjectTerminal  = errors.New("project already finished")
	ErrProjectNotPaused = errors.New("project is not paused")
	ErrRunInProgress    = errors.New("project run already in progress")
)

// Store is the persistence the orchestrator needs.
type Store interface {
	CreateProject(ctx context.Context, p *project.Project) error
	GetProject(ctx context.Context, id string) (*project.Project, error)
	ListProjects(ctx context.Context) ([]project.Project, error)
	UpdateProjectStatus(ctx context.Context, id string, status project.Status) error
	UpdateProjectProgress(ctx context.Context, id string, stage project.Stage, status project.Status) error
	SaveStageResults(ctx context.Context, rec *memory.StageRecord) error
	ListTasks(ctx context.Context, projectID string) ([]project.Task, error)
	ListArtifacts(ctx context.Context, projectID string, beforeStage project.Stage) ([]project.Artifact, error)
	CountArtifacts(ctx context.Context, projectID string) (int, error)
}

// DelegateSource returns the active delegates of a stage.
type DelegateSource interface {
	GetByStage(stage project.Stage) []core.Delegate
}

// Publisher delivers progress events to observers of a project.
type Publisher interface {
	Publish(projectID string, typ events.Type, payload any) int
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, events.Type, any) int { return 0 }

// StageResult describes one completed Advance call.
type StageResult struct {
	Project   project.Project       `json:"project"`
	Stage     project.Stage         `json:"stage"`
	Outcome   executor.StageOutcome `json:"outcome"`
	Tasks     []project.Task        `json:"tasks"`
	Artifacts []project.Artifact    `json:"artifacts"`
	Decision  Decision              `json:"decision"`
}

// StageListener is called after every completed stage.
type StageListener func(ctx context.Context, res *StageResult)

// ProjectStatus is a project with everything it produced so far.
type ProjectStatus struct {
	Project   project.Project    `json:"project"`
	Tasks     []project.Task     `json:"tasks"`
	Artifacts []project.Artifact `json:"artifacts"`
}

// Orchestrator is the stage state machine.
type Orchestrator struct {
	store     Store
	delegates DelegateSource
	exec      *executor.Executor
	gen       llm.Generator
	pub       Publisher
	policy    Policy
	listeners []StageListener

	maxContextTokens int

	locks       *MutexMap // serializes Advance per project
	statusLocks *MutexMap // guards status read-modify-write per project

	runsMu sync.Mutex
	runs   map[string]context.CancelFunc
	runsWG sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher sets the event publisher. Without one, events are dropped.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.pub = p }
}

// WithPolicy sets the continuation policy. The default is AnySuccess.
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithMaxContextTokens bounds the prior-artifact context given to delegates.
func WithMaxContextTokens(n int) Option {
	return func(o *Orchestrator) { o.maxContextTokens = n }
}

// WithStageListener registers a callback run after each completed stage.
func WithStageListener(fn StageListener) Option {
	return func(o *Orchestrator) { o.listeners = append(o.listeners, fn) }
}

// New creates an Orchestrator.
func New(store Store, delegates DelegateSource, exec *executor.Executor, gen llm.Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:            store,
		delegates:        delegates,
		exec:             exec,
		gen:              gen,
		pub:              nopPublisher{},
		policy:           AnySuccess{},
		maxContextTokens: core.DefaultMaxContextTokens,
		locks:            NewMutexMap(),
		statusLocks:      NewMutexMap(),
		runs:             make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Policy returns the continuation policy in use.
func (o *Orchestrator) Policy() Policy { return o.policy }

// CreateProject stores a new project in stage 1 with status CREATED.
func (o *Orchestrator) CreateProject(ctx context.Context, idea string) (*project.Project, error) {
	p := &project.Project{
		Idea:         strings.TrimSpace(idea),
		Status:       project.StatusCreated,
		CurrentStage: project.FirstStage,
	}
	if err := o.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	slog.Info("project created", "project_id", p.ID)
	return p, nil
}

func (o *Orchestrator) getProject(ctx context.Context, id string) (*project.Project, error) {
	p, err := o.store.GetProject(ctx, id)
	if errors.Is(err, util.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects, newest first.
func (o *Orchestrator) ListProjects(ctx context.Context) ([]project.Project, error) {
	return o.store.ListProjects(ctx)
}

// Status returns a project with its tasks and artifacts.
func (o *Orchestrator) Status(ctx context.Context, id string) (*ProjectStatus, error) {
	p, err := o.getProject(ctx, id)
	if err != nil {
		return nil, err
	}
	tasks, err := o.store.ListTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	artifacts, err := o.store.ListArtifacts(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	return &ProjectStatus{Project: *p, Tasks: tasks, Artifacts: artifacts}, nil
}

// Advance runs the project's current stage and applies the continuation
// policy. Concurrent calls for the same project run one after the other.
func (o *Orchestrator) Advance(ctx context.Context, id string) (*StageResult, error) {
	o.locks.Lock(id)
	defer o.locks.Unlock(id)

	p, err := o.getProject(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case p.Status == project.StatusPaused:
		return nil, fmt.Errorf("%w: %s", ErrProjectPaused, id)
	case p.Status.IsTerminal():
		return nil, fmt.Errorf("%w: %s is %s", ErrProjectTerminal, id, p.Status)
	}

	stage := p.CurrentStage
	ds := o.delegates.GetByStage(stage)
	if len(ds) == 0 {
		return nil, fmt.Errorf("%w: stage %d (%s)", ErrNoDelegates, stage, stage)
	}

	prior, err := o.store.ListArtifacts(ctx, id, stage)
	if err != nil {
		return nil, fmt.Errorf("load prior artifacts: %w", err)
	}

	if p.Status == project.StatusCreated {
		if err := o.setStatus(ctx, p.ID, project.StatusCreated, project.StatusInProgress); err != nil {
			return nil, err
		}
		p.Status = project.StatusInProgress
	}

	taskIDs := make([]string, len(ds))
	names := make([]string, len(ds))
	for i, d := range ds {
		taskIDs[i] = util.NewTaskID()
		names[i] = d.ID()
	}

	slog.Info("stage started", "project_id", id, "stage", int(stage), "stage_name", stage.String(), "delegates", len(ds))
	o.pub.Publish(id, events.TypeProjectStart, events.ProjectStartPayload{
		ProjectID: id,
		Stage:     stage,
		StageName: stage.String(),
		Delegates: names,
	})
	for i, d := range ds {
		o.pub.Publish(id, events.TypeTaskUpdate, events.TaskUpdatePayload{
			TaskID:    taskIDs[i],
			ProjectID: id,
			Status:    project.TaskInProgress,
			Progress:  0,
			Agent:     d.ID(),
			Stage:     stage,
		})
	}

	outcome, err := o.exec.ExecuteParallel(ctx, ds, executor.Context{
		Project:          *p,
		Stage:            stage,
		Artifacts:        prior,
		TaskIDs:          taskIDs,
		Generator:        o.gen,
		MaxContextTokens: o.maxContextTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("execute stage %d: %w", stage, err)
	}

	outcome = enforceArtifactKinds(stage, outcome)
	rec := buildRecord(id, stage, ds, outcome)

	if err := o.store.SaveStageResults(ctx, rec); err != nil {
		slog.Error("persist stage results failed", "project_id", id, "stage", int(stage), "error", err)
		o.pub.Publish(id, events.TypeError, events.ErrorPayload{
			ProjectID: id,
			Error:     fmt.Sprintf("persist stage %d results: %v", stage, err),
		})
		return nil, fmt.Errorf("persist stage %d: %w", stage, err)
	}

	o.publishStageResults(id, stage, rec, outcome)

	summary := summarize(*p, stage, outcome)
	decision, err := o.policy.Decide(ctx, summary)
	if err != nil {
		slog.Error("continuation policy failed", "project_id", id, "stage", int(stage), "policy", o.policy.Name(), "error", err)
		o.pub.Publish(id, events.TypeError, events.ErrorPayload{ProjectID: id, Error: err.Error()})
		return nil, fmt.Errorf("decide continuation: %w", err)
	}
	for _, w := range decision.Warnings {
		slog.Warn("stage policy warning", "project_id", id, "stage", int(stage), "warning", w)
	}

	updated, err := o.applyDecision(ctx, p, stage, decision)
	if err != nil {
		slog.Error("update project progress failed", "project_id", id, "stage", int(stage), "error", err)
		o.pub.Publish(id, events.TypeError, events.ErrorPayload{ProjectID: id, Error: err.Error()})
		return nil, err
	}

	res := &StageResult{
		Project:   *updated,
		Stage:     stage,
		Outcome:   outcome,
		Tasks:     rec.Tasks,
		Artifacts: rec.Artifacts,
		Decision:  decision,
	}
	for _, fn := range o.listeners {
		fn(ctx, res)
	}
	return res, nil
}

// applyDecision moves the project forward, completes it, or fails it. A pause
// requested while the stage ran is preserved.
func (o *Orchestrator) applyDecision(ctx context.Context, p *project.Project, stage project.Stage, d Decision) (*project.Project, error) {
	o.statusLocks.Lock(p.ID)
	defer o.statusLocks.Unlock(p.ID)

	current, err := o.getProject(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	next, status := stage, project.StatusFailed
	switch {
	case d.Continue && stage == project.LastStage:
		status = project.StatusCompleted
	case d.Continue:
		next, status = stage+1, project.StatusInProgress
		if current.Status == project.StatusPaused {
			status = project.StatusPaused
		}
	}

	if err := o.store.UpdateProjectProgress(ctx, p.ID, next, status); err != nil {
		return nil, fmt.Errorf("update project progress: %w", err)
	}

	switch status {
	case project.StatusCompleted:
		total, err := o.store.CountArtifacts(ctx, p.ID)
		if err != nil {
			slog.Warn("count artifacts failed", "project_id", p.ID, "error", err)
		}
		slog.Info("project completed", "project_id", p.ID, "artifacts", total)
		o.pub.Publish(p.ID, events.TypeProjectComplete, events.ProjectCompletePayload{
			ProjectID:      p.ID,
			TotalArtifacts: total,
		})
	case project.StatusFailed:
		reason := strings.Join(d.Reasons, "; ")
		slog.Warn("project failed", "project_id", p.ID, "stage", int(stage), "policy", d.Policy, "reason", reason)
		o.pub.Publish(p.ID, events.TypeError, events.ErrorPayload{
			ProjectID: p.ID,
			Error:     fmt.Sprintf("stage %d (%s) halted by %s policy: %s", stage, stage, d.Policy, reason),
		})
	default:
		slog.Info("stage advanced", "project_id", p.ID, "from", int(stage), "to", int(next), "status", status)
	}

	return o.getProject(ctx, p.ID)
}

func (o *Orchestrator) setStatus(ctx context.Context, id string, from, to project.Status) error {
	o.statusLocks.Lock(id)
	defer o.statusLocks.Unlock(id)

	p, err := o.getProject(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != from {
		return nil
	}
	if err := o.store.UpdateProjectStatus(ctx, id, to); err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	return nil
}

func (o *Orchestrator) publishStageResults(id string, stage project.Stage, rec *memory.StageRecord, outcome executor.StageOutcome) {
	for i, t := range rec.Tasks {
		payload := events.TaskUpdatePayload{
			TaskID:    t.ID,
			ProjectID: id,
			Status:    t.Status,
			Progress:  100,
			Agent:     t.DelegateID,
			Stage:     stage,
			Error:     t.Error,
		}
		o.pub.Publish(id, events.TypeTaskUpdate, payload)

		if e := outcome.Outcomes[i].Error; e != nil {
			o.pub.Publish(id, events.TypeError, events.ErrorPayload{
				ProjectID: id,
				TaskID:    t.ID,
				Error:     e.Message,
				Kind:      string(e.Kind),
				Hints:     e.Hints,
			})
		}
	}

	summaries := make([]events.ArtifactSummary, 0, len(rec.Artifacts))
	for _, a := range rec.Artifacts {
		o.pub.Publish(id, events.TypeArtifactCreate, events.ArtifactCreatePayload{
			ArtifactID: a.ID,
			ProjectID:  id,
			Artifact:   a,
		})
		summaries = append(summaries, events.ArtifactSummary{ID: a.ID, Name: a.Name, Kind: a.Kind})
	}

	slog.Info("stage complete",
		"project_id", id,
		"stage", int(stage),
		"succeeded", outcome.Succeeded,
		"failed", outcome.Failed,
		"artifacts", len(rec.Artifacts),
		"duration_ms", outcome.Duration.Milliseconds())
	o.pub.Publish(id, events.TypeStageComplete, events.StageCompletePayload{
		ProjectID:      id,
		Stage:          stage,
		CompletedTasks: outcome.Succeeded,
		FailedTasks:    outcome.Failed,
		TotalTasks:     outcome.Total,
		DurationMs:     outcome.Duration.Milliseconds(),
		Artifacts:      summaries,
	})
}

// enforceArtifactKinds turns successful outcomes carrying artifacts that do
// not belong to stage into VALIDATION failures, then recounts.
func enforceArtifactKinds(stage project.Stage, outcome executor.StageOutcome) executor.StageOutcome {
	outcomes := make([]executor.Outcome, len(outcome.Outcomes))
	copy(outcomes, outcome.Outcomes)
	outcome.Outcomes = outcomes
	outcome.Succeeded, outcome.Failed = 0, 0

	for i := range outcomes {
		o := &outcomes[i]
		if o.Success {
			if err := checkArtifacts(stage, o.Artifacts); err != nil {
				o.Success = false
				o.Status = project.TaskFailed
				o.Artifacts = nil
				o.Result = ""
				o.Error = resilience.NewError(resilience.KindValidation, err.Error(), err).
					WithMetadata("delegate_id", o.DelegateID).
					WithMetadata("task_id", o.TaskID)
			}
		}
		if o.Success {
			outcome.Succeeded++
		} else {
			outcome.Failed++
		}
	}
	return outcome
}

func checkArtifacts(stage project.Stage, artifacts []project.Artifact) error {
	for _, a := range artifacts {
		if a.Stage != stage {
			return fmt.Errorf("artifact %q has stage %d, expected %d", a.Name, a.Stage, stage)
		}
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func buildRecord(projectID string, stage project.Stage, ds []core.Delegate, outcome executor.StageOutcome) *memory.StageRecord {
	now := time.Now().UTC()
	rec := &memory.StageRecord{ProjectID: projectID, Stage: stage}
	for i, o := range outcome.Outcomes {
		t := project.Task{
			ID:         o.TaskID,
			ProjectID:  projectID,
			Name:       ds[i].Name(),
			Status:     o.Status,
			Stage:      stage,
			DelegateID: o.DelegateID,
			Result:     o.Result,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if o.Error != nil {
			t.Error = o.Error.Error()
		}
		rec.Tasks = append(rec.Tasks, t)
		for _, a := range o.Artifacts {
			a.ProjectID = projectID
			a.TaskID = o.TaskID
			rec.Artifacts = append(rec.Artifacts, a)
		}
	}
	return rec
}

func summarize(p project.Project, stage project.Stage, outcome executor.StageOutcome) StageSummary {
	s := StageSummary{
		Project:   p,
		Stage:     stage,
		Total:     outcome.Total,
		Succeeded: outcome.Succeeded,
		Failed:    outcome.Failed,
	}
	for _, o := range outcome.Outcomes {
		if o.Success {
			continue
		}
		s.FailedDelegates = append(s.FailedDelegates, o.DelegateID)
		if o.Error != nil {
			s.ErrorKinds = append(s.ErrorKinds, string(o.Error.Kind))
		}
	}
	return s
}
