package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/josephgoksu/IdeaForge/internal/project"
)

// Run advances the project stage by stage until it completes, fails, is
// paused, or ctx is done. A paused or finished project is not an error; the
// returned project carries its final status.
func (o *Orchestrator) Run(ctx context.Context, id string) (*project.Project, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Cancellation takes effect between stages, never mid-stage.
		res, err := o.Advance(context.WithoutCancel(ctx), id)
		switch {
		case errors.Is(err, ErrProjectPaused), errors.Is(err, ErrProjectTerminal):
			return o.getProject(ctx, id)
		case err != nil:
			return nil, err
		}

		if res.Project.Status != project.StatusInProgress {
			return &res.Project, nil
		}
	}
}

// StartRun runs the project in the background. Only one background run per
// project may be active; a second call fails with ErrRunInProgress. The run
// stops after the current stage when ctx is cancelled.
func (o *Orchestrator) StartRun(ctx context.Context, id string) error {
	p, err := o.getProject(ctx, id)
	if err != nil {
		return err
	}
	if p.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrProjectTerminal, id, p.Status)
	}

	o.runsMu.Lock()
	if _, ok := o.runs[id]; ok {
		o.runsMu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunInProgress, id)
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.runs[id] = cancel
	o.runsWG.Add(1)
	o.runsMu.Unlock()

	go func() {
		defer o.runsWG.Done()
		defer func() {
			o.runsMu.Lock()
			delete(o.runs, id)
			o.runsMu.Unlock()
			cancel()
		}()

		final, err := o.Run(runCtx, id)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Error("background run failed", "project_id", id, "error", err)
			}
			return
		}
		slog.Info("background run finished", "project_id", id, "status", final.Status, "stage", int(final.CurrentStage))
	}()
	return nil
}

// Running reports whether a background run is active for the project.
func (o *Orchestrator) Running(id string) bool {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	_, ok := o.runs[id]
	return ok
}

// StopRuns cancels every background run and waits for them to return.
// Stages already executing finish and persist first.
func (o *Orchestrator) StopRuns() {
	o.runsMu.Lock()
	for _, cancel := range o.runs {
		cancel()
	}
	o.runsMu.Unlock()
	o.runsWG.Wait()
}

// Pause keeps the next stage from starting. A stage already executing is not
// interrupted; its results are persisted and the project stays paused in the
// following stage. Pausing a paused project is a no-op.
func (o *Orchestrator) Pause(ctx context.Context, id string) (*project.Project, error) {
	o.statusLocks.Lock(id)
	defer o.statusLocks.Unlock(id)

	p, err := o.getProject(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case p.Status == project.StatusPaused:
		return p, nil
	case p.Status.IsTerminal():
		return nil, fmt.Errorf("%w: %s is %s", ErrProjectTerminal, id, p.Status)
	}

	if err := o.store.UpdateProjectStatus(ctx, id, project.StatusPaused); err != nil {
		return nil, fmt.Errorf("pause project: %w", err)
	}
	slog.Info("project paused", "project_id", id, "stage", int(p.CurrentStage))
	p.Status = project.StatusPaused
	return p, nil
}

// Resume makes a paused project advanceable again.
func (o *Orchestrator) Resume(ctx context.Context, id string) (*project.Project, error) {
	o.statusLocks.Lock(id)
	defer o.statusLocks.Unlock(id)

	p, err := o.getProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != project.StatusPaused {
		return nil, fmt.Errorf("%w: %s is %s", ErrProjectNotPaused, id, p.Status)
	}

	if err := o.store.UpdateProjectStatus(ctx, id, project.StatusInProgress); err != nil {
		return nil, fmt.Errorf("resume project: %w", err)
	}
	slog.Info("project resumed", "project_id", id, "stage", int(p.CurrentStage))
	p.Status = project.StatusInProgress
	return p, nil
}
