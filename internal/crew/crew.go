// Package crew loads role and task definitions from YAML and turns them into
// a validated pipeline plan.
package crew

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/pipeline"
)

//go:embed default.yaml
var defaultCrew []byte

// AgentDef is one role persona.
type AgentDef struct {
	Role        string  `yaml:"role"`
	Goal        string  `yaml:"goal"`
	Backstory   string  `yaml:"backstory"`
	Model       string  `yaml:"model,omitempty"`
	Temperature float32 `yaml:"temperature,omitempty"`
}

// RetrievalDef grounds a task in an ingested collection.
type RetrievalDef struct {
	Collection string `yaml:"collection"`
	Query      string `yaml:"query"`
	K          int    `yaml:"k,omitempty"`
}

// TaskDef is one stage. Context lists the tasks whose output it receives,
// in the order they are bundled.
type TaskDef struct {
	Name           string         `yaml:"name"`
	Agent          string         `yaml:"agent"`
	Description    string         `yaml:"description"`
	ExpectedOutput string         `yaml:"expected_output"`
	Context        []string       `yaml:"context,omitempty"`
	Retrieval      *RetrievalDef  `yaml:"retrieval,omitempty"`
	OutputSchema   map[string]any `yaml:"output_schema,omitempty"`
}

// Definition is a whole crew file.
type Definition struct {
	Inputs []string            `yaml:"inputs"`
	Agents map[string]AgentDef `yaml:"agents"`
	Tasks  []TaskDef           `yaml:"tasks"`
}

// Default returns the embedded renter crew.
func Default() (*Definition, error) {
	return Parse(defaultCrew)
}

// DefaultYAML returns a copy of the embedded crew file.
func DefaultYAML() []byte {
	return bytes.Clone(defaultCrew)
}

// Load reads a crew file. An empty path selects the embedded default.
func Load(path string) (*Definition, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, configError(fmt.Errorf("read %s: %w", path, err))
	}
	def, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("crew %s: %w", path, err)
	}
	return def, nil
}

// LoadReader reads a crew definition from r.
func LoadReader(r io.Reader) (*Definition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, configError(fmt.Errorf("read definition: %w", err))
	}
	return Parse(content)
}

// Parse decodes YAML (or JSON) crew data.
func Parse(data []byte) (*Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, configError(fmt.Errorf("definition is empty"))
	}
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, configError(fmt.Errorf("decode definition: %w", err))
	}
	return &def, nil
}

func configError(err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeConfig, domain.ErrInvalidCrewConfig.Message, err)
}

// Descriptors resolves agent references and returns the task descriptors in
// declaration order.
func (d *Definition) Descriptors() ([]domain.TaskDescriptor, error) {
	out := make([]domain.TaskDescriptor, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		a, ok := d.Agents[t.Agent]
		if !ok {
			return nil, configError(fmt.Errorf("task %q references unknown agent %q", t.Name, t.Agent))
		}

		desc := domain.TaskDescriptor{
			Name: t.Name,
			Role: domain.RoleConfig{
				Name:        t.Agent,
				Role:        a.Role,
				Goal:        a.Goal,
				Backstory:   a.Backstory,
				Model:       a.Model,
				Temperature: a.Temperature,
			},
			Instructions:   t.Description,
			ExpectedOutput: t.ExpectedOutput,
			Dependencies:   append([]string(nil), t.Context...),
		}
		if t.Retrieval != nil {
			desc.Retrieval = &domain.RetrievalSpec{
				Collection: t.Retrieval.Collection,
				Query:      t.Retrieval.Query,
				K:          t.Retrieval.K,
			}
		}
		if len(t.OutputSchema) > 0 {
			raw, err := json.Marshal(t.OutputSchema)
			if err != nil {
				return nil, configError(fmt.Errorf("task %q output_schema: %w", t.Name, err))
			}
			desc.OutputSchema = raw
		}
		out = append(out, desc)
	}
	return out, nil
}

// Plan builds the validated execution plan for the crew.
func (d *Definition) Plan() (*pipeline.Plan, error) {
	descs, err := d.Descriptors()
	if err != nil {
		return nil, err
	}
	return pipeline.NewPlan(descs, d.Inputs)
}

// WithCollection points every retrieval block at collection. Used when the
// operator ingests into a non-default collection.
func (d *Definition) WithCollection(collection string) {
	if strings.TrimSpace(collection) == "" {
		return
	}
	for i := range d.Tasks {
		if d.Tasks[i].Retrieval != nil {
			d.Tasks[i].Retrieval.Collection = collection
		}
	}
}
