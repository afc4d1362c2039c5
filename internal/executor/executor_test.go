package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/josephgoksu/IdeaForge/internal/delegates/core"
	"github.com/josephgoksu/IdeaForge/internal/llm"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDelegate struct {
	id    string
	stage project.Stage
	kind  project.ArtifactKind
	err   error
	panic bool
	empty bool
	delay time.Duration
	calls atomic.Int32
}

func (d *fakeDelegate) ID() string           { return d.id }
func (d *fakeDelegate) Name() string         { return "Fake " + d.id }
func (d *fakeDelegate) Stage() project.Stage { return d.stage }

func (d *fakeDelegate) Run(ctx context.Context, in core.Input) (core.Output, error) {
	d.calls.Add(1)
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return core.Output{}, ctx.Err()
		}
	}
	if d.panic {
		panic("boom")
	}
	if d.err != nil {
		return core.Output{}, d.err
	}
	if d.empty {
		return core.Output{DelegateID: d.id}, nil
	}
	return core.Output{
		DelegateID: d.id,
		Artifacts: []project.Artifact{{
			ID:        "art-" + d.id,
			ProjectID: in.Project.ID,
			TaskID:    in.TaskID,
			Name:      d.id,
			Content:   "content",
			Kind:      d.kind,
			Stage:     in.Stage,
		}},
	}, nil
}

func ok(id string) *fakeDelegate {
	return &fakeDelegate{id: id, stage: project.StageResearch, kind: project.KindMarketResearch}
}

func stageCtx() Context {
	return Context{
		Project: project.Project{ID: "proj-1", Idea: "idea"},
		Stage:   project.StageResearch,
	}
}

func TestExecuteParallel_AllSettle(t *testing.T) {
	failing := ok("b")
	failing.err = &llm.ServiceError{Service: "openai", Code: llm.CodeRateLimit, Err: errors.New("429")}
	ds := []core.Delegate{ok("a"), failing, ok("c")}

	res, err := New().ExecuteParallel(context.Background(), ds, stageCtx())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, res.Total, res.Succeeded+res.Failed)
	require.Len(t, res.Outcomes, 3)

	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id, res.Outcomes[i].DelegateID)
		assert.NotEmpty(t, res.Outcomes[i].TaskID)
	}

	b := res.Outcomes[1]
	assert.False(t, b.Success)
	assert.Equal(t, project.TaskFailed, b.Status)
	require.NotNil(t, b.Error)
	assert.Equal(t, resilience.KindServiceRateLimit, b.Error.Kind)
	assert.True(t, b.Error.Retryable)
	assert.Equal(t, "b", b.Error.Metadata["delegate_id"])
	assert.Empty(t, b.Artifacts)

	a := res.Outcomes[0]
	assert.True(t, a.Success)
	assert.Equal(t, project.TaskCompleted, a.Status)
	assert.Equal(t, "generated 1 artifact(s): a", a.Result)
	assert.Len(t, res.Artifacts(), 2)
}

func TestExecuteParallel_StageMismatchRunsNothing(t *testing.T) {
	a := ok("a")
	wrong := ok("wrong")
	wrong.stage = project.StageDesign

	_, err := New().ExecuteParallel(context.Background(), []core.Delegate{a, wrong}, stageCtx())
	assert.ErrorIs(t, err, ErrStageMismatch)
	assert.Zero(t, a.calls.Load())
	assert.Zero(t, wrong.calls.Load())

	_, err = New().ExecuteSequential(context.Background(), []core.Delegate{a, wrong}, stageCtx())
	assert.ErrorIs(t, err, ErrStageMismatch)
	assert.Zero(t, a.calls.Load())
}

func TestExecuteParallel_RunsConcurrently(t *testing.T) {
	ds := make([]core.Delegate, 5)
	for i := range ds {
		d := ok(string(rune('a' + i)))
		d.delay = 50 * time.Millisecond
		ds[i] = d
	}

	start := time.Now()
	res, err := New().ExecuteParallel(context.Background(), ds, stageCtx())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Succeeded)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestExecuteParallel_UsesGivenTaskIDs(t *testing.T) {
	ec := stageCtx()
	ec.TaskIDs = []string{"task-1", ""}

	res, err := New().ExecuteParallel(context.Background(), []core.Delegate{ok("a"), ok("b")}, ec)
	require.NoError(t, err)
	assert.Equal(t, "task-1", res.Outcomes[0].TaskID)
	assert.Equal(t, "task-1", res.Outcomes[0].Artifacts[0].TaskID)
	assert.NotEmpty(t, res.Outcomes[1].TaskID)
	assert.NotEqual(t, "task-1", res.Outcomes[1].TaskID)
}

func TestExecuteOne_PanicBecomesCriticalFailure(t *testing.T) {
	d := ok("p")
	d.panic = true

	o := New().ExecuteOne(context.Background(), d, core.Input{Stage: project.StageResearch, TaskID: "task-1"})
	assert.False(t, o.Success)
	assert.Equal(t, project.TaskFailed, o.Status)
	require.NotNil(t, o.Error)
	assert.Equal(t, resilience.KindDelegate, o.Error.Kind)
	assert.Equal(t, resilience.SeverityCritical, o.Error.Severity)
	assert.Contains(t, o.Error.Message, "panicked")
}

func TestExecuteOne_NoArtifactsIsValidationFailure(t *testing.T) {
	d := ok("e")
	d.empty = true

	o := New().ExecuteOne(context.Background(), d, core.Input{Stage: project.StageResearch, TaskID: "task-1"})
	assert.False(t, o.Success)
	require.NotNil(t, o.Error)
	assert.Equal(t, resilience.KindValidation, o.Error.Kind)
	assert.False(t, o.Error.Retryable)
	assert.Equal(t, "task-1", o.Error.Metadata["task_id"])
}

func TestExecuteOne_ValidationErrorFromDelegate(t *testing.T) {
	d := ok("v")
	d.err = core.ErrEmptyContent

	o := New().ExecuteOne(context.Background(), d, core.Input{Stage: project.StageResearch})
	require.NotNil(t, o.Error)
	assert.Equal(t, resilience.KindValidation, o.Error.Kind)
	assert.ErrorIs(t, o.Error, core.ErrValidation)
}

func TestExecuteOne_Timeout(t *testing.T) {
	d := ok("slow")
	d.delay = time.Second

	o := New(WithTimeout(20*time.Millisecond)).ExecuteOne(context.Background(), d, core.Input{Stage: project.StageResearch})
	assert.False(t, o.Success)
	require.NotNil(t, o.Error)
	assert.Equal(t, resilience.KindServiceUnavailable, o.Error.Kind)
	assert.Less(t, o.Duration, 500*time.Millisecond)
}

func TestExecuteSequential_ContinuesPastFailures(t *testing.T) {
	first := ok("a")
	first.err = errors.New("something odd")
	second := ok("b")
	third := ok("c")
	third.panic = true

	res, err := New().ExecuteSequential(context.Background(), []core.Delegate{first, second, third}, stageCtx())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, resilience.KindDelegate, res.Outcomes[0].Error.Kind)
	assert.True(t, res.Outcomes[1].Success)
	assert.EqualValues(t, 1, second.calls.Load())
}

func TestExecuteParallel_EmptyBatch(t *testing.T) {
	res, err := New().ExecuteParallel(context.Background(), nil, stageCtx())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, res.Artifacts())
}

func TestWithObserver(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	e := New(WithObserver(func(stage project.Stage, o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, project.StageResearch, stage)
		seen[o.DelegateID] = o.Success
	}))

	failing := ok("b")
	failing.panic = true
	_, err := e.ExecuteParallel(context.Background(), []core.Delegate{ok("a"), failing}, stageCtx())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]bool{"a": true, "b": false}, seen)
}
