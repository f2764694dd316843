package pipeline

import "context"

// Runner binds one plan to an orchestrator so callers only supply inputs.
type Runner struct {
	orchestrator *Orchestrator
	plan         *Plan
}

func NewRunner(orchestrator *Orchestrator, plan *Plan) *Runner {
	return &Runner{orchestrator: orchestrator, plan: plan}
}

// Run executes the bound plan with inputs.
func (r *Runner) Run(ctx context.Context, inputs map[string]any) (*Run, error) {
	return r.orchestrator.Execute(ctx, r.plan, inputs)
}

// RequiredInputs returns the inputs the bound plan requires.
func (r *Runner) RequiredInputs() []string {
	return r.plan.RequiredInputs()
}
