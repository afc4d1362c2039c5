/*
Package executor runs the delegates of one stage and converts every failure
into a task outcome.
*/
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/josephgoksu/IdeaForge/internal/delegates/core"
	"github.com/josephgoksu/IdeaForge/internal/llm"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/resilience"
	"github.com/josephgoksu/IdeaForge/internal/util"
)

// ErrStageMismatch is returned when a delegate's stage differs from the
// stage being executed. No delegate runs in that case.
var ErrStageMismatch = errors.New("delegate stage does not match execution stage")

// Context is the shared execution context of one stage.
type Context struct {
	Project   project.Project
	Stage     project.Stage
	Artifacts []project.Artifact // produced in earlier stages
	// TaskIDs holds one task ID per delegate, in delegate order. Missing
	// entries are generated.
	TaskIDs          []string
	Generator        llm.Generator
	MaxContextTokens int
}

// Outcome is the result of one delegate invocation.
type Outcome struct {
	DelegateID   string             `json:"delegateId"`
	DelegateName string             `json:"delegateName"`
	TaskID       string             `json:"taskId"`
	Success      bool               `json:"success"`
	Status       project.TaskStatus `json:"status"`
	Artifacts    []project.Artifact `json:"artifacts,omitempty"`
	Result       string             `json:"result,omitempty"`
	Error        *resilience.Error  `json:"error,omitempty"`
	Duration     time.Duration      `json:"duration"`
}

// StageOutcome aggregates the outcomes of one stage.
type StageOutcome struct {
	Stage     project.Stage `json:"stage"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Outcomes  []Outcome     `json:"outcomes"`
}

// Artifacts returns every artifact produced by successful outcomes, in
// outcome order.
func (s StageOutcome) Artifacts() []project.Artifact {
	var out []project.Artifact
	for _, o := range s.Outcomes {
		if o.Success {
			out = append(out, o.Artifacts...)
		}
	}
	return out
}

// Observer is notified after every delegate invocation.
type Observer func(stage project.Stage, o Outcome)

// Executor runs delegates.
type Executor struct {
	timeout   time.Duration
	observers []Observer
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout bounds every delegate invocation.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithObserver registers an outcome observer.
func WithObserver(fn Observer) Option {
	return func(e *Executor) { e.observers = append(e.observers, fn) }
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteOne runs a single delegate. It never returns an error: failures,
// including panics, become a FAILED outcome with a classified error.
func (e *Executor) ExecuteOne(ctx context.Context, d core.Delegate, in core.Input) (o Outcome) {
	start := time.Now()
	o = Outcome{DelegateID: d.ID(), DelegateName: d.Name(), TaskID: in.TaskID}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("fatal: delegate %s panicked: %v", d.ID(), r)
			slog.Error("delegate panicked", "delegate_id", d.ID(), "task_id", in.TaskID, "panic", r)
			o = e.failed(o, in, err)
		}
		o.Duration = time.Since(start)
		for _, fn := range e.observers {
			fn(in.Stage, o)
		}
	}()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out, err := d.Run(ctx, in)
	if err == nil && len(out.Artifacts) == 0 {
		err = fmt.Errorf("%w: delegate %s produced no artifacts", core.ErrValidation, d.ID())
	}
	if err != nil {
		return e.failed(o, in, err)
	}

	o.Success = true
	o.Status = project.TaskCompleted
	o.Artifacts = out.Artifacts
	o.Result = summarize(out.Artifacts)
	return o
}

func (e *Executor) failed(o Outcome, in core.Input, err error) Outcome {
	meta := map[string]string{
		"delegate_id": o.DelegateID,
		"task_id":     in.TaskID,
		"stage":       strconv.Itoa(int(in.Stage)),
	}
	var classified *resilience.Error
	if errors.Is(err, core.ErrValidation) && !errors.As(err, &classified) {
		classified = resilience.NewError(resilience.KindValidation, err.Error(), err)
		for k, v := range meta {
			classified.WithMetadata(k, v)
		}
	} else {
		classified = resilience.Classify(err, meta)
	}

	o.Success = false
	o.Status = project.TaskFailed
	o.Artifacts = nil
	o.Result = ""
	o.Error = classified
	return o
}

func summarize(artifacts []project.Artifact) string {
	names := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		names = append(names, a.Name)
	}
	return fmt.Sprintf("generated %d artifact(s): %s", len(artifacts), strings.Join(names, ", "))
}

// checkStage enforces the stage precondition for a batch.
func checkStage(ds []core.Delegate, stage project.Stage) error {
	for _, d := range ds {
		if d.Stage() != stage {
			return fmt.Errorf("%w: %s has stage %d, executing stage %d", ErrStageMismatch, d.ID(), d.Stage(), stage)
		}
	}
	return nil
}

func (ec Context) input(i int) core.Input {
	taskID := ""
	if i < len(ec.TaskIDs) {
		taskID = ec.TaskIDs[i]
	}
	if taskID == "" {
		taskID = util.NewTaskID()
	}
	return core.Input{
		Project:          ec.Project,
		Stage:            ec.Stage,
		TaskID:           taskID,
		Artifacts:        ec.Artifacts,
		Generator:        ec.Generator,
		MaxContextTokens: ec.MaxContextTokens,
	}
}

// ExecuteParallel runs every delegate concurrently and waits for all of them
// to settle. A failing delegate never cancels its siblings. Outcomes keep the
// order of ds.
func (e *Executor) ExecuteParallel(ctx context.Context, ds []core.Delegate, ec Context) (StageOutcome, error) {
	if err := checkStage(ds, ec.Stage); err != nil {
		return StageOutcome{}, err
	}

	slog.Info("stage batch started", "project_id", ec.Project.ID, "stage", int(ec.Stage), "delegates", len(ds), "mode", "parallel")
	start := time.Now()

	outcomes := make([]Outcome, len(ds))
	var wg sync.WaitGroup
	for i, d := range ds {
		wg.Add(1)
		go func(idx int, d core.Delegate) {
			defer wg.Done()
			outcomes[idx] = e.ExecuteOne(ctx, d, ec.input(idx))
		}(i, d)
	}
	wg.Wait()

	res := aggregate(ec.Stage, outcomes, time.Since(start))
	logBatch(ec, res, "parallel")
	return res, nil
}

// ExecuteSequential runs the delegates one at a time in order, continuing
// past failures.
func (e *Executor) ExecuteSequential(ctx context.Context, ds []core.Delegate, ec Context) (StageOutcome, error) {
	if err := checkStage(ds, ec.Stage); err != nil {
		return StageOutcome{}, err
	}

	slog.Info("stage batch started", "project_id", ec.Project.ID, "stage", int(ec.Stage), "delegates", len(ds), "mode", "sequential")
	start := time.Now()

	outcomes := make([]Outcome, 0, len(ds))
	for i, d := range ds {
		outcomes = append(outcomes, e.ExecuteOne(ctx, d, ec.input(i)))
	}

	res := aggregate(ec.Stage, outcomes, time.Since(start))
	logBatch(ec, res, "sequential")
	return res, nil
}

func aggregate(stage project.Stage, outcomes []Outcome, elapsed time.Duration) StageOutcome {
	res := StageOutcome{Stage: stage, Total: len(outcomes), Duration: elapsed, Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Success {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res
}

func logBatch(ec Context, res StageOutcome, mode string) {
	slog.Info("stage batch finished",
		"project_id", ec.Project.ID,
		"stage", int(ec.Stage),
		"mode", mode,
		"total", res.Total,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"duration_ms", res.Duration.Milliseconds())
	for _, o := range res.Outcomes {
		if !o.Success && o.Error != nil {
			slog.Warn("delegate failed",
				"project_id", ec.Project.ID,
				"delegate_id", o.DelegateID,
				"task_id", o.TaskID,
				"kind", o.Error.Kind,
				"severity", o.Error.Severity,
				"error", o.Error.Message)
		}
	}
}
