// Package pipeline validates task graphs and executes them level by level.
package pipeline

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

// Stage is one validated task with its templates compiled.
type Stage struct {
	Descriptor     domain.TaskDescriptor
	instructions   *template.Template
	expectedOutput *template.Template
	retrievalQuery *template.Template
	schema         *jsonschema.Definition
}

// Name returns the task name.
func (s *Stage) Name() string {
	return s.Descriptor.Name
}

// Plan is an immutable, validated task graph. Build it once with NewPlan
// and execute it any number of times.
type Plan struct {
	stages         map[string]*Stage
	order          []string
	levels         [][]string
	terminal       string
	requiredInputs []string
}

// NewPlan validates tasks and computes their execution levels.
//
// The graph must be non-empty, every name unique, every dependency known,
// acyclic, and have exactly one terminal task that every other task feeds.
// All violations are CONFIG_ERRORs.
func NewPlan(tasks []domain.TaskDescriptor, requiredInputs []string) (*Plan, error) {
	if len(tasks) == 0 {
		return nil, graphError("no tasks declared")
	}

	p := &Plan{
		stages:         make(map[string]*Stage, len(tasks)),
		order:          make([]string, 0, len(tasks)),
		requiredInputs: append([]string(nil), requiredInputs...),
	}

	for i := range tasks {
		t := tasks[i]
		if err := domain.ValidateTaskDescriptor(&t); err != nil {
			return nil, graphError(err.Error())
		}
		if _, dup := p.stages[t.Name]; dup {
			return nil, graphError(fmt.Sprintf("task %q declared twice", t.Name))
		}
		t.Dependencies = append([]string(nil), t.Dependencies...)
		stage, err := compileStage(t)
		if err != nil {
			return nil, err
		}
		p.stages[t.Name] = stage
		p.order = append(p.order, t.Name)
	}

	for _, name := range p.order {
		for _, dep := range p.stages[name].Descriptor.Dependencies {
			if _, ok := p.stages[dep]; !ok {
				return nil, graphError(fmt.Sprintf("task %q depends on unknown task %q", name, dep))
			}
		}
	}

	levels, err := p.computeLevels()
	if err != nil {
		return nil, err
	}
	p.levels = levels

	terminal, err := p.findTerminal()
	if err != nil {
		return nil, err
	}
	p.terminal = terminal

	return p, nil
}

func graphError(msg string) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeConfig, domain.ErrInvalidTaskGraph.Message, fmt.Errorf("%s", msg))
}

// computeLevels runs Kahn's algorithm. A task's level is one more than the
// deepest of its dependencies; inside a level, declaration order is kept.
func (p *Plan) computeLevels() ([][]string, error) {
	indegree := make(map[string]int, len(p.order))
	dependents := make(map[string][]string, len(p.order))
	for _, name := range p.order {
		deps := p.stages[name].Descriptor.Dependencies
		indegree[name] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	level := make(map[string]int, len(p.order))
	queue := make([]string, 0, len(p.order))
	for _, name := range p.order {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	visited := 0
	maxLevel := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[name] {
			if level[name]+1 > level[next] {
				level[next] = level[name] + 1
			}
			if level[next] > maxLevel {
				maxLevel = level[next]
			}
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(p.order) {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfig, domain.ErrDependencyCycle.Message,
			fmt.Errorf("task %q is on a cycle", p.cycleMember(indegree)))
	}

	levels := make([][]string, maxLevel+1)
	for _, name := range p.order {
		levels[level[name]] = append(levels[level[name]], name)
	}
	return levels, nil
}

// cycleMember walks unresolved dependencies from any stuck task until a
// task repeats; that task lies on a cycle.
func (p *Plan) cycleMember(indegree map[string]int) string {
	var start string
	for _, name := range p.order {
		if indegree[name] > 0 {
			start = name
			break
		}
	}

	seen := make(map[string]bool)
	cur := start
	for !seen[cur] {
		seen[cur] = true
		for _, dep := range p.stages[cur].Descriptor.Dependencies {
			if indegree[dep] > 0 {
				cur = dep
				break
			}
		}
	}
	return cur
}

func (p *Plan) findTerminal() (string, error) {
	hasDependents := make(map[string]bool, len(p.order))
	for _, name := range p.order {
		for _, dep := range p.stages[name].Descriptor.Dependencies {
			hasDependents[dep] = true
		}
	}

	var sinks []string
	for _, name := range p.order {
		if !hasDependents[name] {
			sinks = append(sinks, name)
		}
	}
	if len(sinks) != 1 {
		return "", graphError(fmt.Sprintf("expected exactly one terminal task, found %d (%s)",
			len(sinks), strings.Join(sinks, ", ")))
	}
	return sinks[0], nil
}

// Terminal returns the name of the synthesis task.
func (p *Plan) Terminal() string {
	return p.terminal
}

// Levels returns the task names grouped by dependency depth.
func (p *Plan) Levels() [][]string {
	out := make([][]string, len(p.levels))
	for i, lvl := range p.levels {
		out[i] = append([]string(nil), lvl...)
	}
	return out
}

// Tasks returns task names in declaration order.
func (p *Plan) Tasks() []string {
	return append([]string(nil), p.order...)
}

// RequiredInputs returns the run inputs every execution must supply.
func (p *Plan) RequiredInputs() []string {
	return append([]string(nil), p.requiredInputs...)
}

// Stage returns the compiled stage for name.
func (p *Plan) Stage(name string) (*Stage, bool) {
	s, ok := p.stages[name]
	return s, ok
}
