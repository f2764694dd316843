package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/tenantpal/internal/crew"
	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/pipeline"
)

// CrewExecutor runs the crew for one set of inputs.
type CrewExecutor interface {
	Run(ctx context.Context, inputs map[string]any) (*pipeline.Run, error)
	RequiredInputs() []string
}

var (
	errInvalidInputJSON = errors.New("invalid JSON received on stdin")
	errMissingFields    = errors.New("missing required fields in input JSON")
)

// RunCmd creates the run command.
func RunCmd(app *App) *cobra.Command {
	var (
		crewFile    string
		storagePath string
		collection  string
		maxParallel int
		noRetrieval bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the crew on a JSON request read from stdin",
		Long: `Reads {"renter_issue_description": "...", "lease_document": "..."} from stdin,
runs the crew and writes only the final report to stdout. Diagnostics go to stderr.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := app.Config

			inputs, err := readInputs(cmd.InOrStdin())
			if err != nil {
				return err
			}

			def, err := crew.Load(orDefault(crewFile, cfg.CrewConfig))
			if err != nil {
				return err
			}
			if err := checkRequired(def.Inputs, inputs); err != nil {
				return err
			}

			client, err := app.Capability()
			if err != nil {
				return err
			}

			var retriever pipeline.Retriever
			if !noRetrieval {
				index, err := app.OpenIndex(ctx, orDefault(storagePath, cfg.StoragePath))
				if err != nil {
					app.Logger.Warn("vector index unavailable, running without grounding", zap.Error(err))
				} else {
					defer index.Close()
					retriever = newRetriever(index, client)
				}
			}

			runner, err := app.Runner(def, client, retriever, CrewOptions{
				Collection:  orDefault(collection, cfg.CollectionName),
				MaxParallel: orDefaultInt(maxParallel, cfg.MaxParallel),
			})
			if err != nil {
				return err
			}

			return executeRun(ctx, runner, inputs, cmd.OutOrStdout(), app.Logger)
		},
	}

	cmd.Flags().StringVar(&crewFile, "crew", "", "Crew YAML file (default: built-in renter crew)")
	cmd.Flags().StringVar(&storagePath, "storage", "", "Index directory or postgres:// URL")
	cmd.Flags().StringVar(&collection, "collection", "", "Collection used for grounding")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "Maximum concurrent stages per level")
	cmd.Flags().BoolVar(&noRetrieval, "no-retrieval", false, "Run without consulting the vector index")

	return cmd
}

// readInputs decodes the request object. Only syntactically valid JSON
// objects are accepted; field checks happen in executeRun.
func readInputs(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	var inputs map[string]any
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidInputJSON, err)
	}
	if inputs == nil {
		return nil, errInvalidInputJSON
	}
	return inputs, nil
}

// executeRun checks the required fields, runs the crew, and writes the
// terminal output followed by a newline to out. Nothing else is written to
// out, on success or failure.
func executeRun(ctx context.Context, exec CrewExecutor, inputs map[string]any, out io.Writer, log *zap.Logger) error {
	if err := checkRequired(exec.RequiredInputs(), inputs); err != nil {
		return err
	}

	log.Info("received inputs", zap.Strings("keys", inputKeys(inputs)))

	run, err := exec.Run(ctx, inputs)
	if err != nil {
		var pe *domain.PipelineError
		if errors.As(err, &pe) {
			return fmt.Errorf("crew execution failed in task %q: %w", pe.TaskName, pe.Err)
		}
		return fmt.Errorf("crew execution failed: %w", err)
	}

	log.Info("crew finished", zap.String("run_id", run.ID.String()),
		zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)))

	_, err = fmt.Fprintln(out, run.Output())
	return err
}

func checkRequired(required []string, inputs map[string]any) error {
	var missing []string
	for _, key := range required {
		if _, ok := inputs[key].(string); !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errMissingFields, strings.Join(missing, ", "))
	}
	return nil
}

func inputKeys(inputs map[string]any) []string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	return keys
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
