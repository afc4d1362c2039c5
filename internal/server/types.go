package server

import (
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/resilience"
)

// CreateProjectRequest is the payload for POST /api/projects.
type CreateProjectRequest struct {
	Idea string `json:"idea" validate:"required,max=20000"`
	// Run starts a background run right after creation.
	Run bool `json:"run"`
}

// RunResponse acknowledges a background run.
type RunResponse struct {
	ProjectID string `json:"projectId"`
	Running   bool   `json:"running"`
}

// HealthResponse is the response for GET /api/health.
type HealthResponse struct {
	Status      string              `json:"status"`
	Version     string              `json:"version,omitempty"`
	Connections int                 `json:"connections"`
	Services    []resilience.Health `json:"services"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string   `json:"error"`
	Kind  string   `json:"kind,omitempty"`
	Hints []string `json:"hints,omitempty"`
}

// ProjectListResponse wraps GET /api/projects.
type ProjectListResponse struct {
	Projects []project.Project `json:"projects"`
}
