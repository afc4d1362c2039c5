/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/josephgoksu/IdeaForge/internal/app"
	"github.com/josephgoksu/IdeaForge/internal/orchestrator"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CreateProjectParams are the arguments of create-project.
type CreateProjectParams struct {
	Idea string `json:"idea" mcp:"The product idea, one or two sentences (required)"`
	Run  bool   `json:"run,omitempty" mcp:"Start running all stages in the background"`
}

// ProjectRefParams identify one project.
type ProjectRefParams struct {
	ProjectID string `json:"projectId" mcp:"Project ID or a unique prefix of it (required)"`
}

// GetProjectParams are the arguments of get-project.
type GetProjectParams struct {
	ProjectID      string `json:"projectId" mcp:"Project ID or a unique prefix of it (required)"`
	IncludeContent bool   `json:"includeContent,omitempty" mcp:"Return the full text of every artifact"`
}

// ListProjectsParams are the arguments of list-projects.
type ListProjectsParams struct {
	Status string `json:"status,omitempty" mcp:"Only projects with this status: CREATED, IN_PROGRESS, COMPLETED, FAILED, PAUSED"`
}

// ProjectResponse is the structured result of single-project tools.
type ProjectResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Project *project.Project `json:"project,omitempty"`
	Running bool             `json:"running,omitempty"`
}

// ProjectListResponse is the structured result of list-projects.
type ProjectListResponse struct {
	Count    int               `json:"count"`
	Projects []project.Project `json:"projects"`
}

// ArtifactSummary describes an artifact without its content unless asked.
type ArtifactSummary struct {
	ID      string               `json:"id"`
	Name    string               `json:"name"`
	Kind    project.ArtifactKind `json:"type"`
	Stage   project.Stage        `json:"stage"`
	Words   int                  `json:"words"`
	Content string               `json:"content,omitempty"`
}

// ProjectDetailResponse is the structured result of get-project.
type ProjectDetailResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Project   *project.Project  `json:"project,omitempty"`
	Tasks     []project.Task    `json:"tasks,omitempty"`
	Artifacts []ArtifactSummary `json:"artifacts,omitempty"`
	Running   bool              `json:"running,omitempty"`
}

// StageResponse is the structured result of advance-project.
type StageResponse struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	Project   *project.Project       `json:"project,omitempty"`
	Stage     project.Stage          `json:"stage,omitempty"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Artifacts []ArtifactSummary      `json:"artifacts,omitempty"`
	Decision  *orchestrator.Decision `json:"decision,omitempty"`
}

// mcpTools holds what the tool handlers share. ctx outlives single calls so
// background runs keep going after the call that started them returns.
type mcpTools struct {
	ctx context.Context
	app *app.Context
}

func registerMCPTools(server *mcp.Server, t *mcpTools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create-project",
		Description: "Create a project from a product idea. It starts at stage 1 (Ideation). Set run to generate all six stages in the background.",
	}, t.createProject)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list-projects",
		Description: "List projects, newest first, optionally filtered by status.",
	}, t.listProjects)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get-project",
		Description: "Get a project's status, stage, tasks and artifacts. Set includeContent to read the generated documents.",
	}, t.getProject)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "advance-project",
		Description: "Run the project's current stage and wait for it. Returns the stage outcome and the continuation decision.",
	}, t.advanceProject)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run-project",
		Description: "Run the remaining stages in the background. Poll get-project for progress.",
	}, t.runProject)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pause-project",
		Description: "Pause a project. The stage in progress finishes; the next one does not start.",
	}, t.pauseProject)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resume-project",
		Description: "Resume a paused project so its next stage may start.",
	}, t.resumeProject)
}

func textContent(msg string) []mcp.Content {
	return []mcp.Content{&mcp.TextContent{Text: msg}}
}

func projectError(err error) (*mcp.CallToolResultFor[ProjectResponse], error) {
	return &mcp.CallToolResultFor[ProjectResponse]{
		Content:           textContent(err.Error()),
		StructuredContent: ProjectResponse{Message: err.Error()},
		IsError:           true,
	}, nil
}

func projectResult(msg string, p *project.Project, running bool) (*mcp.CallToolResultFor[ProjectResponse], error) {
	return &mcp.CallToolResultFor[ProjectResponse]{
		Content:           textContent(msg),
		StructuredContent: ProjectResponse{Success: true, Message: msg, Project: p, Running: running},
	}, nil
}

func summarizeArtifacts(arts []project.Artifact, withContent bool) []ArtifactSummary {
	out := make([]ArtifactSummary, 0, len(arts))
	for _, a := range arts {
		s := ArtifactSummary{ID: a.ID, Name: a.Name, Kind: a.Kind, Stage: a.Stage, Words: len(strings.Fields(a.Content))}
		if withContent {
			s.Content = a.Content
		}
		out = append(out, s)
	}
	return out
}

func (t *mcpTools) resolve(ctx context.Context, idOrPrefix string) (string, error) {
	if strings.TrimSpace(idOrPrefix) == "" {
		return "", fmt.Errorf("projectId is required")
	}
	return resolveProject(ctx, t.app.Store, idOrPrefix)
}

func (t *mcpTools) createProject(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[CreateProjectParams]) (*mcp.CallToolResultFor[ProjectResponse], error) {
	args := params.Arguments
	if args.Run {
		if err := t.app.RequireGenerator(); err != nil {
			return projectError(err)
		}
	}
	p, err := t.app.Orchestrator.CreateProject(ctx, args.Idea)
	if err != nil {
		return projectError(err)
	}
	if !args.Run {
		return projectResult(fmt.Sprintf("Created project %s at stage 1 (%s)", p.ID, p.CurrentStage), p, false)
	}
	if err := t.app.Orchestrator.StartRun(t.ctx, p.ID); err != nil {
		return projectError(err)
	}
	return projectResult(fmt.Sprintf("Created project %s and started running all stages", p.ID), p, true)
}

func (t *mcpTools) listProjects(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ListProjectsParams]) (*mcp.CallToolResultFor[ProjectListResponse], error) {
	all, err := t.app.Orchestrator.ListProjects(ctx)
	if err != nil {
		return &mcp.CallToolResultFor[ProjectListResponse]{Content: textContent(err.Error()), IsError: true}, nil
	}

	filter := project.Status(strings.ToUpper(strings.TrimSpace(params.Arguments.Status)))
	projects := make([]project.Project, 0, len(all))
	for _, p := range all {
		if filter == "" || p.Status == filter {
			projects = append(projects, p)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d project(s)", len(projects))
	for _, p := range projects {
		fmt.Fprintf(&b, "\n- %s [%s, stage %d %s] %s", p.ID, p.Status, int(p.CurrentStage), p.CurrentStage, p.Idea)
	}
	return &mcp.CallToolResultFor[ProjectListResponse]{
		Content:           textContent(b.String()),
		StructuredContent: ProjectListResponse{Count: len(projects), Projects: projects},
	}, nil
}

func (t *mcpTools) getProject(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[GetProjectParams]) (*mcp.CallToolResultFor[ProjectDetailResponse], error) {
	fail := func(err error) (*mcp.CallToolResultFor[ProjectDetailResponse], error) {
		return &mcp.CallToolResultFor[ProjectDetailResponse]{
			Content:           textContent(err.Error()),
			StructuredContent: ProjectDetailResponse{Message: err.Error()},
			IsError:           true,
		}, nil
	}

	id, err := t.resolve(ctx, params.Arguments.ProjectID)
	if err != nil {
		return fail(err)
	}
	st, err := t.app.Orchestrator.Status(ctx, id)
	if err != nil {
		return fail(err)
	}

	running := t.app.Orchestrator.Running(id)
	msg := fmt.Sprintf("%s is %s at stage %d (%s) with %d artifact(s)",
		st.Project.ID, st.Project.Status, int(st.Project.CurrentStage), st.Project.CurrentStage, len(st.Artifacts))
	if running {
		msg += "; a run is in progress"
	}
	return &mcp.CallToolResultFor[ProjectDetailResponse]{
		Content: textContent(msg),
		StructuredContent: ProjectDetailResponse{
			Success:   true,
			Message:   msg,
			Project:   &st.Project,
			Tasks:     st.Tasks,
			Artifacts: summarizeArtifacts(st.Artifacts, params.Arguments.IncludeContent),
			Running:   running,
		},
	}, nil
}

func (t *mcpTools) advanceProject(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ProjectRefParams]) (*mcp.CallToolResultFor[StageResponse], error) {
	fail := func(err error) (*mcp.CallToolResultFor[StageResponse], error) {
		return &mcp.CallToolResultFor[StageResponse]{
			Content:           textContent(err.Error()),
			StructuredContent: StageResponse{Message: err.Error()},
			IsError:           true,
		}, nil
	}

	if err := t.app.RequireGenerator(); err != nil {
		return fail(err)
	}
	id, err := t.resolve(ctx, params.Arguments.ProjectID)
	if err != nil {
		return fail(err)
	}
	// A stage always runs to completion once started.
	res, err := t.app.Orchestrator.Advance(context.WithoutCancel(ctx), id)
	if err != nil {
		return fail(err)
	}

	msg := fmt.Sprintf("Stage %d %s: %d/%d delegates succeeded; project is now %s at stage %d",
		int(res.Stage), res.Stage, res.Outcome.Succeeded, res.Outcome.Total, res.Project.Status, int(res.Project.CurrentStage))
	if len(res.Decision.Reasons) > 0 {
		msg += ": " + strings.Join(res.Decision.Reasons, "; ")
	}
	return &mcp.CallToolResultFor[StageResponse]{
		Content: textContent(msg),
		StructuredContent: StageResponse{
			Success:   true,
			Message:   msg,
			Project:   &res.Project,
			Stage:     res.Stage,
			Succeeded: res.Outcome.Succeeded,
			Failed:    res.Outcome.Failed,
			Artifacts: summarizeArtifacts(res.Artifacts, false),
			Decision:  &res.Decision,
		},
	}, nil
}

func (t *mcpTools) runProject(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ProjectRefParams]) (*mcp.CallToolResultFor[ProjectResponse], error) {
	if err := t.app.RequireGenerator(); err != nil {
		return projectError(err)
	}
	id, err := t.resolve(ctx, params.Arguments.ProjectID)
	if err != nil {
		return projectError(err)
	}
	if err := t.app.Orchestrator.StartRun(t.ctx, id); err != nil {
		return projectError(err)
	}
	st, err := t.app.Orchestrator.Status(ctx, id)
	if err != nil {
		return projectError(err)
	}
	return projectResult(fmt.Sprintf("Running %s from stage %d in the background", id, int(st.Project.CurrentStage)), &st.Project, true)
}

func (t *mcpTools) pauseProject(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ProjectRefParams]) (*mcp.CallToolResultFor[ProjectResponse], error) {
	id, err := t.resolve(ctx, params.Arguments.ProjectID)
	if err != nil {
		return projectError(err)
	}
	p, err := t.app.Orchestrator.Pause(ctx, id)
	if err != nil {
		return projectError(err)
	}
	return projectResult(fmt.Sprintf("%s is paused at stage %d", p.ID, int(p.CurrentStage)), p, t.app.Orchestrator.Running(id))
}

func (t *mcpTools) resumeProject(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[ProjectRefParams]) (*mcp.CallToolResultFor[ProjectResponse], error) {
	id, err := t.resolve(ctx, params.Arguments.ProjectID)
	if err != nil {
		return projectError(err)
	}
	p, err := t.app.Orchestrator.Resume(ctx, id)
	if err != nil {
		return projectError(err)
	}
	return projectResult(fmt.Sprintf("%s is %s at stage %d; use run-project to continue", p.ID, p.Status, int(p.CurrentStage)), p, false)
}
