package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/spf13/afero"
)

// DefaultPolicyPackage is the default Rego package path for IdeaForge policies.
const DefaultPolicyPackage = "ideaforge.policy"

// Engine wraps OPA for policy evaluation. All evaluation happens locally.
type Engine struct {
	policies      []*PolicyFile
	policyPackage string
	deny          rego.PreparedEvalQuery
	warn          rego.PreparedEvalQuery
}

// EngineConfig holds configuration for creating an Engine.
type EngineConfig struct {
	// Path is a .rego file or a directory of them.
	Path string

	// PolicyPackage is the Rego package to query.
	// If empty, defaults to "ideaforge.policy"
	PolicyPackage string

	// Fs is the filesystem to use for loading policies.
	// If nil, uses the OS filesystem.
	Fs afero.Fs
}

// NewEngine loads the policies at cfg.Path and compiles them.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}

	policies, err := NewLoader(cfg.Fs, cfg.Path).LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	return NewEngineWithPolicies(ctx, cfg.PolicyPackage, policies)
}

// NewEngineWithPolicies compiles explicitly provided policies. Compilation
// errors are reported here rather than on first evaluation.
func NewEngineWithPolicies(ctx context.Context, pkg string, policies []*PolicyFile) (*Engine, error) {
	if pkg == "" {
		pkg = DefaultPolicyPackage
	}
	e := &Engine{policies: policies, policyPackage: pkg}
	if len(policies) == 0 {
		return e, nil
	}

	var err error
	if e.deny, err = e.prepare(ctx, "deny"); err != nil {
		return nil, fmt.Errorf("compile deny rules: %w", err)
	}
	if e.warn, err = e.prepare(ctx, "warn"); err != nil {
		return nil, fmt.Errorf("compile warn rules: %w", err)
	}
	return e, nil
}

func (e *Engine) prepare(ctx context.Context, rule string) (rego.PreparedEvalQuery, error) {
	opts := []func(*rego.Rego){
		rego.Query(fmt.Sprintf("data.%s.%s", e.policyPackage, rule)),
	}
	for _, p := range e.policies {
		opts = append(opts, rego.Module(p.Path, p.Content))
	}
	return rego.New(opts...).PrepareForEval(ctx)
}

// PolicyCount returns the number of loaded policies.
func (e *Engine) PolicyCount() int {
	return len(e.policies)
}

// PolicyNames returns the names of all loaded policies.
func (e *Engine) PolicyNames() []string {
	names := make([]string, len(e.policies))
	for i, p := range e.policies {
		names[i] = p.Name
	}
	return names
}

// Evaluate runs the loaded policies against input. Strings produced by
// "deny" rules become violations that block; strings from "warn" rules are
// reported but never block. With no policies loaded everything is allowed.
func (e *Engine) Evaluate(ctx context.Context, input any) (*PolicyDecision, error) {
	decision := &PolicyDecision{
		DecisionID:  uuid.New().String(),
		PolicyPath:  e.policyPackage,
		Result:      PolicyResultAllow,
		Input:       input,
		EvaluatedAt: time.Now().UTC(),
	}
	if len(e.policies) == 0 {
		return decision, nil
	}

	violations, err := querySet(ctx, e.deny, input)
	if err != nil {
		return nil, fmt.Errorf("query deny rules: %w", err)
	}
	warnings, err := querySet(ctx, e.warn, input)
	if err != nil {
		return nil, fmt.Errorf("query warn rules: %w", err)
	}

	decision.Warnings = warnings
	if len(violations) > 0 {
		decision.Result = PolicyResultDeny
		decision.Violations = violations
	}
	return decision, nil
}

// EvaluateStage evaluates a finished stage.
func (e *Engine) EvaluateStage(ctx context.Context, in *StageInput) (*PolicyDecision, error) {
	return e.Evaluate(ctx, in)
}

// querySet evaluates a set-generating rule and returns its string members.
// An undefined rule yields an empty result set.
func querySet(ctx context.Context, q rego.PreparedEvalQuery, input any) ([]string, error) {
	rs, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var results []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			if set, ok := expr.Value.([]any); ok {
				for _, item := range set {
					if s, ok := item.(string); ok {
						results = append(results, s)
					}
				}
			}
		}
	}
	return results, nil
}
