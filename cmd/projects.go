/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/josephgoksu/IdeaForge/internal/app"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/ui"
	"github.com/josephgoksu/IdeaForge/internal/util"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
			projects, err := a.Orchestrator.ListProjects(ctx)
			if err != nil {
				return err
			}
			if isJSON() {
				if projects == nil {
					projects = []project.Project{}
				}
				return printJSON(projects)
			}
			if len(projects) == 0 {
				fmt.Println("No projects yet. Start one with: ideaforge run \"<idea>\"")
				return nil
			}
			t := ui.NewTable("ID", "STATUS", "STAGE", "UPDATED", "IDEA")
			t.MaxWidth = 48
			for _, p := range projects {
				t.AddRow(
					util.ShortID(p.ID, 13),
					string(p.Status),
					fmt.Sprintf("%d %s", int(p.CurrentStage), p.CurrentStage),
					p.UpdatedAt.Local().Format("2006-01-02 15:04"),
					p.Idea,
				)
			}
			fmt.Print(t.Render())
			return nil
		})
	},
}

var statusShowArtifacts bool

var statusCmd = &cobra.Command{
	Use:   "status <project>",
	Short: "Show a project's tasks and artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
			id, err := resolveProject(ctx, a.Store, args[0])
			if err != nil {
				return err
			}
			st, err := a.Orchestrator.Status(ctx, id)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(st)
			}

			ui.RenderPageHeader(cmd.OutOrStdout(), st.Project.ID, ui.Truncate(st.Project.Idea, 100))
			fmt.Printf("Status: %s   Stage: %d %s\n\n",
				ui.StatusStyle(st.Project.Status).Render(string(st.Project.Status)),
				int(st.Project.CurrentStage), st.Project.CurrentStage)

			if len(st.Tasks) > 0 {
				t := ui.NewTable("STAGE", "DELEGATE", "STATUS", "ERROR")
				t.MaxWidth = 60
				for _, task := range st.Tasks {
					t.AddRow(fmt.Sprintf("%d", int(task.Stage)), task.DelegateID, string(task.Status), task.Error)
				}
				fmt.Println(t.Render())
			}

			if !statusShowArtifacts {
				if len(st.Artifacts) > 0 {
					fmt.Println(artifactTable(st).Render())
				}
				return nil
			}
			for _, art := range st.Artifacts {
				title := fmt.Sprintf("%s (stage %d %s)", art.Name, int(art.Stage), art.Stage)
				fmt.Println(ui.NewPanel(title, art.Content).Render())
			}
			return nil
		})
	},
}

var advanceCmd = &cobra.Command{
	Use:   "advance <project>",
	Short: "Run only the project's current stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
			if err := a.RequireGenerator(); err != nil {
				return err
			}
			id, err := resolveProject(ctx, a.Store, args[0])
			if err != nil {
				return err
			}
			res, err := a.Orchestrator.Advance(ctx, id)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(res)
			}
			fmt.Printf("Stage %d %s: %d/%d delegates succeeded, %d artifacts\n",
				int(res.Stage), res.Stage, res.Outcome.Succeeded, res.Outcome.Total, len(res.Artifacts))
			for _, w := range res.Decision.Warnings {
				fmt.Printf("  %s %s\n", ui.Icon("!", ui.StyleWarning), w)
			}
			fmt.Printf("Project is now %s at stage %d\n",
				ui.StatusStyle(res.Project.Status).Render(string(res.Project.Status)), int(res.Project.CurrentStage))
			return nil
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <project>",
	Short: "Keep the next stage from starting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPaused(cmd.Context(), args[0], true)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <project>",
	Short: "Allow a paused project to continue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPaused(cmd.Context(), args[0], false)
	},
}

func setPaused(ctx context.Context, idOrPrefix string, paused bool) error {
	return withApp(ctx, func(ctx context.Context, a *app.Context) error {
		id, err := resolveProject(ctx, a.Store, idOrPrefix)
		if err != nil {
			return err
		}
		var p *project.Project
		if paused {
			p, err = a.Orchestrator.Pause(ctx, id)
		} else {
			p, err = a.Orchestrator.Resume(ctx, id)
		}
		if err != nil {
			return err
		}
		if isJSON() {
			return printJSON(p)
		}
		fmt.Printf("%s is %s at stage %d\n", p.ID, ui.StatusStyle(p.Status).Render(string(p.Status)), int(p.CurrentStage))
		return nil
	})
}

// withApp opens the shared components for a short-lived command.
func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.NewFromConfig(ctx, newTelemetryClient())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}()
	return fn(ctx, a)
}

func init() {
	statusCmd.Flags().BoolVarP(&statusShowArtifacts, "artifacts", "a", false, "print the full content of every artifact")
	rootCmd.AddCommand(listCmd, statusCmd, advanceCmd, pauseCmd, resumeCmd)
}
