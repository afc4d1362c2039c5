package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/josephgoksu/IdeaForge/internal/policy"
	"github.com/josephgoksu/IdeaForge/internal/project"
)

// Continuation policy names accepted by NewPolicy.
const (
	PolicyAnySuccess = "any-success"
	PolicyAllSuccess = "all-success"
	PolicyMinRatio   = "min-ratio"
	PolicyRego       = "rego"
)

// StageSummary is what a continuation policy sees after a stage persisted.
type StageSummary struct {
	Project         project.Project
	Stage           project.Stage
	Total           int
	Succeeded       int
	Failed          int
	FailedDelegates []string
	ErrorKinds      []string
}

// Decision is the verdict of a continuation policy.
type Decision struct {
	Continue bool     `json:"continue"`
	Policy   string   `json:"policy"`
	Reasons  []string `json:"reasons,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Policy decides whether a project moves past a finished stage or fails.
type Policy interface {
	Name() string
	Decide(ctx context.Context, s StageSummary) (Decision, error)
}

// AnySuccess continues when at least one delegate of the stage succeeded.
type AnySuccess struct{}

func (AnySuccess) Name() string { return PolicyAnySuccess }

func (p AnySuccess) Decide(_ context.Context, s StageSummary) (Decision, error) {
	if s.Succeeded > 0 {
		return Decision{Continue: true, Policy: p.Name()}, nil
	}
	return Decision{Policy: p.Name(), Reasons: []string{
		fmt.Sprintf("all %d delegate(s) of stage %d failed", s.Total, s.Stage),
	}}, nil
}

// AllSuccess continues only when no delegate failed.
type AllSuccess struct{}

func (AllSuccess) Name() string { return PolicyAllSuccess }

func (p AllSuccess) Decide(_ context.Context, s StageSummary) (Decision, error) {
	if s.Failed == 0 && s.Total > 0 {
		return Decision{Continue: true, Policy: p.Name()}, nil
	}
	return Decision{Policy: p.Name(), Reasons: []string{
		fmt.Sprintf("%d of %d delegate(s) of stage %d failed: %v", s.Failed, s.Total, s.Stage, s.FailedDelegates),
	}}, nil
}

// MinRatio continues when succeeded/total reaches Ratio. A stage always
// needs at least one success.
type MinRatio struct {
	Ratio float64
}

func (MinRatio) Name() string { return PolicyMinRatio }

func (p MinRatio) Decide(_ context.Context, s StageSummary) (Decision, error) {
	if s.Total == 0 || s.Succeeded == 0 {
		return Decision{Policy: p.Name(), Reasons: []string{fmt.Sprintf("stage %d produced no successful delegate", s.Stage)}}, nil
	}
	got := float64(s.Succeeded) / float64(s.Total)
	if got >= p.Ratio {
		return Decision{Continue: true, Policy: p.Name()}, nil
	}
	return Decision{Policy: p.Name(), Reasons: []string{
		fmt.Sprintf("success ratio %.2f below required %.2f in stage %d", got, p.Ratio, s.Stage),
	}}, nil
}

// RegoPolicy delegates the decision to OPA deny rules. Any deny message
// fails the project; warn messages are carried in the decision.
type RegoPolicy struct {
	engine atomic.Pointer[policy.Engine]
}

func NewRegoPolicy(engine *policy.Engine) *RegoPolicy {
	p := &RegoPolicy{}
	p.engine.Store(engine)
	return p
}

// SetEngine swaps in recompiled policies. Stages already deciding keep the
// engine they loaded.
func (p *RegoPolicy) SetEngine(engine *policy.Engine) {
	p.engine.Store(engine)
}

func (*RegoPolicy) Name() string { return PolicyRego }

func (p *RegoPolicy) Decide(ctx context.Context, s StageSummary) (Decision, error) {
	failed := s.FailedDelegates
	if failed == nil {
		failed = []string{}
	}
	kinds := s.ErrorKinds
	if kinds == nil {
		kinds = []string{}
	}
	decision, err := p.engine.Load().EvaluateStage(ctx, &policy.StageInput{
		Stage:           int(s.Stage),
		StageName:       s.Stage.String(),
		Total:           s.Total,
		Succeeded:       s.Succeeded,
		Failed:          s.Failed,
		FailedDelegates: failed,
		ErrorKinds:      kinds,
		Project:         &policy.ProjectInput{ID: s.Project.ID, Idea: s.Project.Idea},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate stage policy: %w", err)
	}
	if decision.IsDenied() {
		slog.Info("stage denied by policy", "project_id", s.Project.ID, "stage", int(s.Stage),
			"decision_id", decision.DecisionID, "violations", decision.ViolationsJSON())
	}
	return Decision{
		Continue: decision.IsAllowed(),
		Policy:   p.Name(),
		Reasons:  decision.Violations,
		Warnings: decision.Warnings,
	}, nil
}

// NewPolicy builds a policy by name. The engine is required for "rego".
func NewPolicy(name string, minRatio float64, engine *policy.Engine) (Policy, error) {
	switch name {
	case "", PolicyAnySuccess:
		return AnySuccess{}, nil
	case PolicyAllSuccess:
		return AllSuccess{}, nil
	case PolicyMinRatio:
		if minRatio <= 0 || minRatio > 1 {
			return nil, fmt.Errorf("min-ratio policy needs a ratio in (0, 1], got %v", minRatio)
		}
		return MinRatio{Ratio: minRatio}, nil
	case PolicyRego:
		if engine == nil {
			return nil, fmt.Errorf("rego policy needs a policy engine")
		}
		return NewRegoPolicy(engine), nil
	default:
		return nil, fmt.Errorf("unknown continuation policy %q (valid: %s, %s, %s, %s)",
			name, PolicyAnySuccess, PolicyAllSuccess, PolicyMinRatio, PolicyRego)
	}
}
