/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/josephgoksu/IdeaForge/internal/app"
	"github.com/josephgoksu/IdeaForge/internal/events"
	"github.com/josephgoksu/IdeaForge/internal/orchestrator"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/ui"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [idea]",
	Short: "Generate every stage for an idea",
	Long: `Create a project from an idea and run it through all six stages, or
continue an existing project with --project.

In a terminal the run is shown as a live view: press p to pause after the
current stage and q to stop. Otherwise progress is printed line by line.

Examples:
  ideaforge run "A marketplace for renting camera gear between neighbours"
  ideaforge run --project proj-3f2a`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	runProjectID string
	runPlain     bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runProjectID, "project", "p", "", "continue an existing project (ID or prefix)")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "print progress lines instead of the live view")
}

func runRun(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (runProjectID == "") {
		return errors.New("give either an idea or --project")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx, err := app.NewFromConfig(ctx, newTelemetryClient())
	if err != nil {
		return err
	}
	defer func() {
		if err := appCtx.Close(); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}()

	if err := appCtx.RequireGenerator(); err != nil {
		return err
	}

	p, err := startingProject(ctx, appCtx, args)
	if err != nil {
		return err
	}

	var final *project.Project
	if ui.IsInteractive() && !isJSON() && !runPlain {
		final, err = runWithView(ctx, appCtx, p)
	} else {
		final, err = runWithLines(ctx, appCtx, p)
	}
	if err != nil {
		return err
	}
	return printRunSummary(ctx, appCtx, final)
}

func startingProject(ctx context.Context, appCtx *app.Context, args []string) (*project.Project, error) {
	orch := appCtx.Orchestrator
	if len(args) == 1 {
		return orch.CreateProject(ctx, args[0])
	}

	id, err := resolveProject(ctx, appCtx.Store, runProjectID)
	if err != nil {
		return nil, err
	}
	st, err := orch.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Project.Status == project.StatusPaused {
		return orch.Resume(ctx, id)
	}
	return &st.Project, nil
}

// runWithView drives the bubbletea progress view. Quitting the view stops
// the run after the current stage.
func runWithView(ctx context.Context, appCtx *app.Context, p *project.Project) (*project.Project, error) {
	orch := appCtx.Orchestrator

	evs := make(chan events.Envelope, 512)
	appCtx.Broadcaster.Observe(func(projectID string, env events.Envelope) {
		if projectID != p.ID {
			return
		}
		select {
		case evs <- env:
		default:
		}
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan ui.RunDoneMsg, 1)
	result := make(chan ui.RunDoneMsg, 1)
	go func() {
		final, err := orch.Run(runCtx, p.ID)
		msg := ui.RunDoneMsg{Project: final, Err: err}
		done <- msg
		result <- msg
	}()

	pause := func() {
		go func() {
			if _, err := orch.Pause(context.Background(), p.ID); err != nil {
				slog.Warn("pause failed", "project_id", p.ID, "error", err)
			}
		}()
	}

	out, err := tea.NewProgram(ui.NewRunModel(*p, evs, done, pause), tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, fmt.Errorf("progress view: %w", err)
	}
	if m, ok := out.(ui.RunModel); ok && m.Interrupted() {
		fmt.Fprintln(os.Stderr, "Stopping after the current stage...")
	}
	cancel()

	msg := <-result
	if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
		return nil, msg.Err
	}
	if msg.Project == nil {
		st, err := orch.Status(context.Background(), p.ID)
		if err != nil {
			return nil, err
		}
		return &st.Project, nil
	}
	return msg.Project, nil
}

// runWithLines runs in the foreground and prints one line per event.
func runWithLines(ctx context.Context, appCtx *app.Context, p *project.Project) (*project.Project, error) {
	if !isJSON() {
		fmt.Printf("Project %s: %s\n", p.ID, ui.Truncate(p.Idea, 72))
		appCtx.Broadcaster.Observe(func(projectID string, env events.Envelope) {
			if projectID == p.ID {
				printEventLine(env)
			}
		})
	}

	final, err := appCtx.Orchestrator.Run(ctx, p.ID)
	if errors.Is(err, context.Canceled) {
		st, serr := appCtx.Orchestrator.Status(context.Background(), p.ID)
		if serr != nil {
			return nil, serr
		}
		fmt.Fprintln(os.Stderr, "Interrupted.")
		return &st.Project, nil
	}
	return final, err
}

func printEventLine(env events.Envelope) {
	switch pl := env.Payload.(type) {
	case events.ProjectStartPayload:
		fmt.Printf("%s Stage %d %s: %d delegates\n", ui.Icon("▶", ui.StylePrimary), int(pl.Stage), pl.StageName, len(pl.Delegates))
	case events.TaskUpdatePayload:
		if pl.Status == project.TaskFailed {
			fmt.Printf("  %s %s: %s\n", ui.TaskIcon(pl.Status), pl.Agent, ui.Truncate(pl.Error, 100))
		} else if pl.Status == project.TaskCompleted {
			fmt.Printf("  %s %s\n", ui.TaskIcon(pl.Status), pl.Agent)
		}
	case events.StageCompletePayload:
		fmt.Printf("%s Stage %d done: %d/%d succeeded in %dms\n", ui.Icon("✓", ui.StyleSuccess), int(pl.Stage), pl.CompletedTasks, pl.TotalTasks, pl.DurationMs)
	case events.ErrorPayload:
		if pl.TaskID == "" {
			fmt.Printf("%s %s\n", ui.Icon("✗", ui.StyleError), pl.Error)
		}
	}
}

func printRunSummary(ctx context.Context, appCtx *app.Context, p *project.Project) error {
	st, err := appCtx.Orchestrator.Status(ctx, p.ID)
	if err != nil {
		return err
	}
	if isJSON() {
		return printJSON(st)
	}

	fmt.Println()
	fmt.Printf("%s %s at stage %d (%s)\n",
		ui.StyleTitle.Render(p.ID),
		ui.StatusStyle(st.Project.Status).Render(string(st.Project.Status)),
		int(st.Project.CurrentStage), st.Project.CurrentStage)
	if len(st.Artifacts) > 0 {
		fmt.Println(artifactTable(st).Render())
	}
	switch st.Project.Status {
	case project.StatusPaused, project.StatusInProgress:
		fmt.Printf("Continue with: ideaforge run --project %s\n", p.ID)
	case project.StatusCompleted:
		fmt.Printf("Read the documents with: ideaforge status %s --artifacts\n", p.ID)
	}
	return nil
}

func artifactTable(st *orchestrator.ProjectStatus) *ui.Table {
	t := ui.NewTable("STAGE", "ARTIFACT", "SIZE", "ID")
	t.MaxWidth = 40
	for _, a := range st.Artifacts {
		t.AddRow(
			fmt.Sprintf("%d %s", int(a.Stage), a.Stage),
			a.Name,
			fmt.Sprintf("%d words", len(strings.Fields(a.Content))),
			a.ID,
		)
	}
	return t
}
