// Package project defines the project, task and artifact records that flow
// through the six-stage generation workflow.
package project

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a project
type Status string

const (
	StatusCreated    Status = "CREATED"     // Created, no stage has run yet
	StatusInProgress Status = "IN_PROGRESS" // At least one stage has completed
	StatusCompleted  Status = "COMPLETED"   // Stage 6 completed
	StatusFailed     Status = "FAILED"      // Continuation policy halted the project
	StatusPaused     Status = "PAUSED"      // Next stage will not start until resumed
)

// IsTerminal reports whether no further stage can run for the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
	TaskSkipped    TaskStatus = "SKIPPED"
)

// Project is a single idea moving through the stages.
type Project struct {
	ID           string    `json:"id"`
	Idea         string    `json:"idea"`
	Status       Status    `json:"status"`
	CurrentStage Stage     `json:"currentStage"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Validate checks if the project has all required fields and valid data.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Idea) == "" {
		return fmt.Errorf("project idea required")
	}
	if len(p.Idea) > 20000 {
		return fmt.Errorf("project idea too long (max 20000 chars)")
	}
	if !p.CurrentStage.Valid() {
		return fmt.Errorf("invalid current stage %d", p.CurrentStage)
	}
	switch p.Status {
	case StatusCreated, StatusInProgress, StatusCompleted, StatusFailed, StatusPaused:
	default:
		return fmt.Errorf("invalid project status %q", p.Status)
	}
	return nil
}

// Task is the execution record of one delegate invocation within a stage.
// One task is created per delegate per stage and never reused.
type Task struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"projectId"`
	Name       string     `json:"name"`
	Status     TaskStatus `json:"status"`
	Stage      Stage      `json:"stage"`
	DelegateID string     `json:"delegateId"`
	Result     string     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Artifact is an immutable, typed text output of a delegate.
type Artifact struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"projectId"`
	TaskID    string       `json:"taskId,omitempty"`
	Name      string       `json:"name"`
	Content   string       `json:"content"`
	Kind      ArtifactKind `json:"type"`
	Stage     Stage        `json:"stage"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Validate checks the artifact is complete and its kind belongs to its stage.
func (a *Artifact) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("artifact name required")
	}
	if strings.TrimSpace(a.Content) == "" {
		return fmt.Errorf("artifact %q has empty content", a.Name)
	}
	return ValidateArtifactKind(a.Stage, a.Kind)
}

// ArtifactsBefore returns the artifacts produced in stages earlier than stage.
func ArtifactsBefore(artifacts []Artifact, stage Stage) []Artifact {
	var out []Artifact
	for _, a := range artifacts {
		if a.Stage < stage {
			out = append(out, a)
		}
	}
	return out
}
