package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/tenantpal/internal/crew"
	"github.com/cloo-solutions/tenantpal/internal/pipeline"
)

// CrewCmd groups commands that inspect crew definitions.
func CrewCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crew",
		Short: "Inspect and validate crew definitions",
	}

	cmd.AddCommand(crewValidateCmd(app))
	cmd.AddCommand(crewExportCmd())

	return cmd
}

func crewValidateCmd(app *App) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a crew file and print its execution plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" && app.Config != nil {
				path = app.Config.CrewConfig
			}
			def, err := crew.Load(path)
			if err != nil {
				return err
			}
			plan, err := def.Plan()
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Crew YAML file (default: built-in renter crew)")

	return cmd
}

func crewExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the built-in crew definition as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(crew.DefaultYAML())
			return err
		},
	}
}

func printPlan(w io.Writer, plan *pipeline.Plan) {
	fmt.Fprintln(w, "Crew is valid.")
	fmt.Fprintf(w, "Inputs: %s\n", strings.Join(plan.RequiredInputs(), ", "))
	for i, level := range plan.Levels() {
		fmt.Fprintf(w, "Level %d: %s\n", i+1, strings.Join(level, ", "))
	}
	fmt.Fprintf(w, "Final task: %s\n", plan.Terminal())
}
