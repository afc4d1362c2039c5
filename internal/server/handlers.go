package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/josephgoksu/IdeaForge/internal/executor"
	"github.com/josephgoksu/IdeaForge/internal/orchestrator"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/resilience"
)

var validate = validator.New()

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Idea = strings.TrimSpace(req.Idea)
	if err := validate.Struct(req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "idea is required and must be at most 20000 characters")
		return
	}

	p, err := s.orch.CreateProject(r.Context(), req.Idea)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Run {
		if err := s.orch.StartRun(detached(r), p.ID); err != nil {
			writeError(w, err)
			return
		}
	}
	writeAPIJSONStatus(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.orch.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []project.Project{}
	}
	writeAPIJSON(w, ProjectListResponse{Projects: projects})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	st, err := s.orch.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeAPIJSON(w, st)
}

// handleAdvance runs one stage and blocks until it is persisted.
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.Advance(detached(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeAPIJSON(w, res)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orch.StartRun(detached(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeAPIJSONStatus(w, http.StatusAccepted, RunResponse{ProjectID: id, Running: true})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	p, err := s.orch.Pause(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeAPIJSON(w, p)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	p, err := s.orch.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeAPIJSON(w, p)
}

func (s *Server) handleDelegates(w http.ResponseWriter, r *http.Request) {
	writeAPIJSON(w, s.delegates.Descriptors())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		Version:     s.version,
		Connections: s.broadcaster.Connections(),
		Services:    []resilience.Health{},
	}
	if s.health != nil {
		resp.Services = s.health.Health()
	}
	for _, h := range resp.Services {
		if h.State == resilience.StateOpen {
			resp.Status = "degraded"
		}
	}
	writeAPIJSON(w, resp)
}

// detached keeps the request's values but drops its cancellation.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// statusFor maps orchestrator errors to HTTP status codes.
func statusFor(err error) int {
	var rerr *resilience.Error
	switch {
	case errors.Is(err, orchestrator.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrProjectPaused),
		errors.Is(err, orchestrator.ErrProjectTerminal),
		errors.Is(err, orchestrator.ErrProjectNotPaused),
		errors.Is(err, orchestrator.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrNoDelegates), errors.Is(err, executor.ErrStageMismatch):
		return http.StatusInternalServerError
	case errors.As(err, &rerr) && rerr.StatusCode > 0:
		return rerr.StatusCode
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	var rerr *resilience.Error
	if errors.As(err, &rerr) {
		resp.Kind = string(rerr.Kind)
		resp.Hints = rerr.Hints
	}
	if status >= http.StatusInternalServerError {
		slog.Error("api request failed", "status", status, "error", err)
	}
	writeAPIJSONStatus(w, status, resp)
}

func writeAPIError(w http.ResponseWriter, status int, msg string) {
	writeAPIJSONStatus(w, status, ErrorResponse{Error: msg})
}

func writeAPIJSON(w http.ResponseWriter, data any) {
	writeAPIJSONStatus(w, http.StatusOK, data)
}

func writeAPIJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
