package commands

import (
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/tenantpal/internal/cli"
)

// NewRootCmd assembles the tenantpal command tree. Run it with App.Execute so
// telemetry and the logger are flushed on failure too.
func NewRootCmd(version string) (*cobra.Command, *App) {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "tenantpal",
		Short: "TenantPal - lease analysis for renters",
		Long: `TenantPal analyzes a renter's issue against their lease with a crew of
role-specialized agents grounded in an ingested tenant rights guide.

Environment variables (each also accepted with a TENANTPAL_ prefix):
  OPENAI_API_KEY   credential for embeddings and completions (required for run, ingest, query, serve)
  STORAGE_PATH     index directory or postgres:// URL (default: ./data/vectorstore)
  CREW_CONFIG      crew YAML file (default: built-in renter crew)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			return app.Setup(level)
		},
	}

	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(RunCmd(app))
	rootCmd.AddCommand(IngestCmd(app))
	rootCmd.AddCommand(QueryCmd(app))
	rootCmd.AddCommand(ServeCmd(app))
	rootCmd.AddCommand(CrewCmd(app))

	return rootCmd, app
}
