package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/josephgoksu/IdeaForge/internal/events"
	"github.com/josephgoksu/IdeaForge/internal/policy"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicies_Decide(t *testing.T) {
	ctx := context.Background()
	summary := func(total, ok int) StageSummary {
		return StageSummary{Stage: project.StageDesign, Total: total, Succeeded: ok, Failed: total - ok}
	}

	tests := []struct {
		name   string
		policy Policy
		in     StageSummary
		want   bool
	}{
		{"any one of five", AnySuccess{}, summary(5, 1), true},
		{"any none", AnySuccess{}, summary(5, 0), false},
		{"all five", AllSuccess{}, summary(5, 5), true},
		{"all four of five", AllSuccess{}, summary(5, 4), false},
		{"all empty stage", AllSuccess{}, summary(0, 0), false},
		{"ratio met", MinRatio{Ratio: 0.6}, summary(5, 3), true},
		{"ratio missed", MinRatio{Ratio: 0.6}, summary(5, 2), false},
		{"ratio needs a success", MinRatio{Ratio: 0.01}, summary(5, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.policy.Decide(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Continue)
			assert.Equal(t, tt.policy.Name(), d.Policy)
			if !tt.want {
				assert.NotEmpty(t, d.Reasons)
			}
		})
	}
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy("", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, PolicyAnySuccess, p.Name())

	p, err = NewPolicy(PolicyMinRatio, 0.5, nil)
	require.NoError(t, err)
	assert.Equal(t, MinRatio{Ratio: 0.5}, p)

	_, err = NewPolicy(PolicyMinRatio, 1.5, nil)
	assert.Error(t, err)
	_, err = NewPolicy(PolicyRego, 0, nil)
	assert.Error(t, err)
	_, err = NewPolicy("majority", 0, nil)
	assert.ErrorContains(t, err, "unknown continuation policy")
}

const designGateRego = `package ideaforge.policy

import rego.v1

deny contains msg if {
    input.succeeded == 0
    msg := sprintf("stage %d produced nothing", [input.stage])
}

deny contains msg if {
    input.stage == 3
    some name in input.failed_delegates
    name == "product-requirements"
    msg := "design cannot continue without product requirements"
}

warn contains msg if {
    input.failed > 0
    msg := sprintf("%d delegate(s) failed", [input.failed])
}
`

func newRegoPolicy(t *testing.T) *RegoPolicy {
	t.Helper()
	engine, err := policy.NewEngineWithPolicies(context.Background(), "", []*policy.PolicyFile{
		{Name: "design-gate", Path: "design-gate.rego", Content: designGateRego},
	})
	require.NoError(t, err)
	return NewRegoPolicy(engine)
}

func TestRegoPolicy_Decide(t *testing.T) {
	ctx := context.Background()
	p := newRegoPolicy(t)

	d, err := p.Decide(ctx, StageSummary{Stage: project.StageDesign, Total: 5, Succeeded: 5})
	require.NoError(t, err)
	assert.True(t, d.Continue)
	assert.Empty(t, d.Warnings)

	d, err = p.Decide(ctx, StageSummary{
		Stage: project.StageDesign, Total: 5, Succeeded: 4, Failed: 1,
		FailedDelegates: []string{"ui-design"},
	})
	require.NoError(t, err)
	assert.True(t, d.Continue)
	assert.Equal(t, []string{"1 delegate(s) failed"}, d.Warnings)

	d, err = p.Decide(ctx, StageSummary{
		Stage: project.StageDesign, Total: 5, Succeeded: 4, Failed: 1,
		FailedDelegates: []string{"product-requirements"},
	})
	require.NoError(t, err)
	assert.False(t, d.Continue)
	assert.Equal(t, PolicyRego, d.Policy)
	assert.Contains(t, d.Reasons, "design cannot continue without product requirements")
}

func TestRegoPolicy_SetEngine(t *testing.T) {
	ctx := context.Background()
	p := newRegoPolicy(t)
	summary := StageSummary{Stage: project.StageDesign, Total: 5, Succeeded: 4, Failed: 1,
		FailedDelegates: []string{"product-requirements"}}

	d, err := p.Decide(ctx, summary)
	require.NoError(t, err)
	require.False(t, d.Continue)

	empty, err := policy.NewEngineWithPolicies(ctx, "", nil)
	require.NoError(t, err)
	p.SetEngine(empty)

	d, err = p.Decide(ctx, summary)
	require.NoError(t, err)
	assert.True(t, d.Continue)
}

func TestAdvance_RegoPolicyFailsProject(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	prd := stub(project.KindProductRequirements)
	prd.err = errors.New("model returned garbage")
	design := stageSource{project.StageDesign: {prd, stub(project.KindTechnicalArchitecture)}}
	o, pub := newOrchestrator(t, store, design, WithPolicy(newRegoPolicy(t)))

	p, err := o.CreateProject(ctx, "idea")
	require.NoError(t, err)
	moveTo(t, store, p.ID, project.StageDesign)

	res, err := o.Advance(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StatusFailed, res.Project.Status)
	assert.Equal(t, project.StageDesign, res.Project.CurrentStage)

	errs := pub.ofType(events.TypeError)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[len(errs)-1].payload.(events.ErrorPayload).Error, "product requirements")
}

func TestAdvance_AllSuccessPolicy(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	broken := stub(project.KindCompetitorAnalysis)
	broken.err = errors.New("boom")
	research := stageSource{project.StageResearch: {stub(project.KindMarketResearch), broken}}
	o, _ := newOrchestrator(t, store, research, WithPolicy(AllSuccess{}))

	p, err := o.CreateProject(ctx, "idea")
	require.NoError(t, err)
	moveTo(t, store, p.ID, project.StageResearch)

	res, err := o.Advance(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, project.StatusFailed, res.Project.Status)

	// the successful artifact is still persisted
	artifacts, err := store.ListArtifacts(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.Len(t, artifacts, 1)
}
