/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/josephgoksu/IdeaForge/internal/app"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/ui"
	"github.com/spf13/cobra"
)

var delegatesCmd = &cobra.Command{
	Use:   "delegates",
	Short: "List the delegates registered for each stage",
	Long: `List the delegates loaded from the built-in catalog and any overlay set
with orchestrator.catalogPath.

Example:
  ideaforge delegates --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(_ context.Context, a *app.Context) error {
			descs := a.Registry.Descriptors()
			if isJSON() {
				return printJSON(descs)
			}

			t := ui.NewTable("STAGE", "ID", "NAME", "KIND")
			for _, d := range descs {
				t.AddRow(fmt.Sprintf("%d %s", int(d.Stage), d.Stage), d.ID, d.Name, string(d.Kind))
			}
			fmt.Print(t.Render())

			if missing := a.Registry.ValidateStageCoverage(project.AllStages()...); len(missing) > 0 {
				fmt.Printf("%s stages without delegates: %v\n", ui.Icon("!", ui.StyleWarning), missing)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(delegatesCmd)
}
