// Package policy evaluates stage-advancement rules written in Rego using OPA.
// Operators use it to decide whether a project may move to its next stage.
package policy

import (
	"encoding/json"
	"time"
)

// PolicyDecision represents the outcome of evaluating the loaded policies
// against one input.
type PolicyDecision struct {
	DecisionID  string    `json:"decisionId"`           // UUID for referencing
	PolicyPath  string    `json:"policyPath"`           // Rego package path (e.g., "ideaforge.policy")
	Result      string    `json:"result"`               // "allow" or "deny"
	Violations  []string  `json:"violations,omitempty"` // Deny messages from OPA
	Warnings    []string  `json:"warnings,omitempty"`   // Warn messages; never block
	Input       any       `json:"input"`                // The input that was evaluated
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// PolicyResult constants.
const (
	PolicyResultAllow = "allow"
	PolicyResultDeny  = "deny"
)

// IsAllowed returns true if the policy decision was "allow".
func (d *PolicyDecision) IsAllowed() bool {
	return d.Result == PolicyResultAllow
}

// IsDenied returns true if the policy decision was "deny".
func (d *PolicyDecision) IsDenied() bool {
	return d.Result == PolicyResultDeny
}

// ViolationsJSON returns the violations as a JSON string for logging.
func (d *PolicyDecision) ViolationsJSON() string {
	if len(d.Violations) == 0 {
		return "[]"
	}
	b, err := json.Marshal(d.Violations)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// StageInput is what Rego policies receive as `input` when a stage finishes.
//
//	{
//	  "stage": 3, "stage_name": "Design",
//	  "total": 5, "succeeded": 4, "failed": 1,
//	  "failed_delegates": ["ui-design"],
//	  "error_kinds": ["GENERATION_SERVICE_RATE_LIMIT"],
//	  "project": {"id": "proj-...", "idea": "..."}
//	}
type StageInput struct {
	Stage           int           `json:"stage"`
	StageName       string        `json:"stage_name"`
	Total           int           `json:"total"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	FailedDelegates []string      `json:"failed_delegates"`
	ErrorKinds      []string      `json:"error_kinds"`
	Project         *ProjectInput `json:"project,omitempty"`
}

// ProjectInput contains project data for policy evaluation.
type ProjectInput struct {
	ID   string `json:"id"`
	Idea string `json:"idea"`
}
