package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RoleConfig fixes the persona of a Role Agent and its model binding.
type RoleConfig struct {
	Name        string
	Role        string
	Goal        string
	Backstory   string
	Model       string // empty selects the capability handle's default model
	Temperature float32
}

// RetrievalSpec declares optional grounding for a task. Query is a template
// rendered with the run inputs.
type RetrievalSpec struct {
	Collection string
	Query      string
	K          int
}

// TaskDescriptor is the declarative configuration of one pipeline stage.
// Dependencies are kept in declared order; that order decides how the
// stage's context bundle is assembled.
type TaskDescriptor struct {
	Name           string
	Role           RoleConfig
	Instructions   string
	ExpectedOutput string
	Dependencies   []string
	OutputSchema   json.RawMessage
	Retrieval      *RetrievalSpec
}

// HasSchema reports whether the task declares an output schema.
func (t TaskDescriptor) HasSchema() bool {
	return len(t.OutputSchema) > 0
}

// ValidateTaskDescriptor checks the fields that do not depend on other descriptors.
func ValidateTaskDescriptor(t *TaskDescriptor) error {
	if t == nil {
		return fmt.Errorf("task descriptor cannot be nil")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("task descriptor Name is required")
	}
	if strings.TrimSpace(t.Instructions) == "" {
		return fmt.Errorf("task %q: Instructions are required", t.Name)
	}
	if strings.TrimSpace(t.Role.Role) == "" {
		return fmt.Errorf("task %q: Role.Role is required", t.Name)
	}
	seen := make(map[string]struct{}, len(t.Dependencies))
	for _, dep := range t.Dependencies {
		if dep == t.Name {
			return fmt.Errorf("task %q depends on itself", t.Name)
		}
		if _, ok := seen[dep]; ok {
			return fmt.Errorf("task %q declares dependency %q twice", t.Name, dep)
		}
		seen[dep] = struct{}{}
	}
	if t.Retrieval != nil && strings.TrimSpace(t.Retrieval.Collection) == "" {
		return fmt.Errorf("task %q: retrieval collection is required", t.Name)
	}
	return nil
}

// TaskResult is the immutable record of one completed stage.
type TaskResult struct {
	TaskName     string
	RawOutput    string
	ParsedOutput any
	Context      string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns how long the stage took.
func (r TaskResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// CompletionRequest is one call to the external reasoning capability.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	JSONOutput   bool
}
