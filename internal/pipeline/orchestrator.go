package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/tenantpal/internal/agent"
	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/metrics"
	"github.com/cloo-solutions/tenantpal/internal/telemetry"
)

const (
	DefaultMaxParallel = 3
	DefaultRetrievalK  = 4

	retrievedHeading = "Relevant passages from the reference collection:"
)

// Invoker runs one role against one invocation.
type Invoker interface {
	Invoke(ctx context.Context, role domain.RoleConfig, inv agent.Invocation) (string, error)
}

// Retriever ranks passages of a collection against query text.
type Retriever interface {
	Query(ctx context.Context, collection, text string, k int) ([]domain.QueryResult, error)
}

// Config tunes execution.
type Config struct {
	MaxParallel int
	RetrievalK  int
}

// Run is the outcome of one successful execution.
type Run struct {
	ID         uuid.UUID
	Results    map[string]domain.TaskResult
	Terminal   string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Output returns the terminal task's raw output.
func (r *Run) Output() string {
	if r == nil {
		return ""
	}
	return r.Results[r.Terminal].RawOutput
}

// Orchestrator executes plans. It holds no per-run state and is safe for
// concurrent use.
type Orchestrator struct {
	invoker   Invoker
	retriever Retriever
	cfg       Config
	logger    *zap.Logger
}

// NewOrchestrator creates an Orchestrator. retriever may be nil, in which
// case retrieval blocks are ignored.
func NewOrchestrator(invoker Invoker, retriever Retriever, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = DefaultRetrievalK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{invoker: invoker, retriever: retriever, cfg: cfg, logger: logger}
}

// ValidateInputs checks that every required input is present as a string.
// Empty strings are accepted.
func ValidateInputs(plan *Plan, inputs map[string]any) error {
	var missing []string
	for _, key := range plan.requiredInputs {
		if _, ok := inputs[key].(string); !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return domain.NewDomainErrorWithCause(domain.ErrCodeConfig, domain.ErrMissingRunInput.Message,
			fmt.Errorf("missing or not a string: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// Execute runs plan level by level. Tasks inside a level run concurrently up
// to MaxParallel. The first failing task cancels the rest of the run and is
// reported as a *domain.PipelineError; no partial Run is returned.
func (o *Orchestrator) Execute(ctx context.Context, plan *Plan, inputs map[string]any) (*Run, error) {
	if err := ValidateInputs(plan, inputs); err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.New(),
		Results:   make(map[string]domain.TaskResult, len(plan.order)),
		Terminal:  plan.terminal,
		StartedAt: time.Now(),
	}
	log := o.logger.With(zap.String("run_id", run.ID.String()))

	ctx, span := telemetry.StartSpan(ctx, "pipeline.run", telemetry.SpanAttributes{
		RunID:     run.ID.String(),
		Operation: "execute",
	})
	var runErr error
	defer func() { span.Finish(runErr) }()

	log.Info("pipeline started", zap.Int("tasks", len(plan.order)), zap.Int("levels", len(plan.levels)))

	var mu sync.Mutex
	for depth, level := range plan.levels {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.MaxParallel)

		snapshot := make(map[string]domain.TaskResult, len(run.Results))
		for k, v := range run.Results {
			snapshot[k] = v
		}

		for _, name := range level {
			stage := plan.stages[name]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return domain.NewPipelineError(stage.Name(), err)
				}
				result, err := o.runStage(gctx, log, run.ID, stage, snapshot, inputs)
				if err != nil {
					return domain.NewPipelineError(stage.Name(), err)
				}
				mu.Lock()
				defer mu.Unlock()
				run.Results[stage.Name()] = result
				return nil
			})
		}

		// errgroup returns the first error; sibling stages see gctx canceled.
		if err := g.Wait(); err != nil {
			runErr = err
			var pe *domain.PipelineError
			if errors.As(err, &pe) {
				log.Error("pipeline failed", zap.Int("level", depth), zap.String("task", pe.TaskName), zap.Error(pe.Err))
			}
			return nil, err
		}
	}

	run.FinishedAt = time.Now()
	log.Info("pipeline finished", zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)))
	return run, nil
}

func (o *Orchestrator) runStage(
	ctx context.Context,
	log *zap.Logger,
	runID uuid.UUID,
	stage *Stage,
	done map[string]domain.TaskResult,
	inputs map[string]any,
) (result domain.TaskResult, err error) {
	name := stage.Name()
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "pipeline.stage", telemetry.SpanAttributes{
		RunID:    runID.String(),
		TaskName: name,
	})
	defer func() {
		span.Finish(err)
		metrics.ObserveStage(name, start, err)
		if err == nil {
			telemetry.AddBreadcrumb(ctx, "pipeline", "stage finished", map[string]any{
				"task":        name,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		}
	}()

	bundle := contextBundle(stage.Descriptor.Dependencies, done)

	passages, err := o.retrieve(ctx, log, stage, inputs)
	if err != nil {
		return domain.TaskResult{}, err
	}
	retrieved := formatPassages(passages)

	data := templateData(inputs, bundle, retrieved)
	instructions, err := render(stage.instructions, data)
	if err != nil {
		return domain.TaskResult{}, err
	}
	expected, err := render(stage.expectedOutput, data)
	if err != nil {
		return domain.TaskResult{}, err
	}

	invocationContext := bundle
	if retrieved != "" {
		if invocationContext != "" {
			invocationContext += "\n\n"
		}
		invocationContext += retrievedHeading + "\n" + retrieved
	}

	log.Debug("stage started", zap.String("task", name), zap.Int("passages", len(passages)))

	raw, err := o.invoker.Invoke(ctx, stage.Descriptor.Role, agent.Invocation{
		Instructions:   instructions,
		ExpectedOutput: expected,
		Context:        invocationContext,
		JSONOutput:     stage.schema != nil,
	})
	if err != nil {
		return domain.TaskResult{}, err
	}

	var parsed any
	if stage.schema != nil {
		raw, parsed, err = validateOutput(stage.schema, raw)
		if err != nil {
			return domain.TaskResult{}, err
		}
	}

	result = domain.TaskResult{
		TaskName:     name,
		RawOutput:    raw,
		ParsedOutput: parsed,
		Context:      bundle,
		StartedAt:    start,
		FinishedAt:   time.Now(),
	}
	log.Info("stage finished", zap.String("task", name), zap.Duration("duration", result.Duration()))
	return result, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, log *zap.Logger, stage *Stage, inputs map[string]any) ([]domain.QueryResult, error) {
	spec := stage.Descriptor.Retrieval
	if spec == nil || o.retriever == nil {
		return nil, nil
	}

	query, err := render(stage.retrievalQuery, templateData(inputs, "", ""))
	if err != nil {
		return nil, err
	}
	k := spec.K
	if k <= 0 {
		k = o.cfg.RetrievalK
	}

	results, err := o.retriever.Query(ctx, spec.Collection, query, k)
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			log.Warn("retrieval collection not found, continuing without passages",
				zap.String("task", stage.Name()), zap.String("collection", spec.Collection))
			return nil, nil
		}
		if domain.HasCode(err, domain.ErrCodeRetrieval) {
			return nil, err
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrieval, domain.ErrRetrievalFailed.Message, err)
	}
	return results, nil
}

// contextBundle joins dependency outputs in declared order.
func contextBundle(deps []string, done map[string]domain.TaskResult) string {
	parts := make([]string, 0, len(deps))
	for _, dep := range deps {
		parts = append(parts, done[dep].RawOutput)
	}
	return strings.Join(parts, "\n\n")
}
