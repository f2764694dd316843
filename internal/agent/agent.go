// Package agent invokes the reasoning capability on behalf of one role.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

// Completer issues one chat completion against the reasoning capability.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

// Invocation is everything a stage hands to its role for one call.
type Invocation struct {
	Instructions   string
	ExpectedOutput string
	Context        string
	JSONOutput     bool
}

// Agent is stateless: each Invoke sees only the role and the invocation.
type Agent struct {
	completer    Completer
	defaultModel string
}

// New creates an Agent. defaultModel is used for roles that bind no model.
func New(completer Completer, defaultModel string) *Agent {
	return &Agent{completer: completer, defaultModel: defaultModel}
}

// Invoke renders the prompts for role and returns the raw completion.
// A failed call or an empty completion is an INVOCATION_ERROR; nothing is retried.
func (a *Agent) Invoke(ctx context.Context, role domain.RoleConfig, inv Invocation) (string, error) {
	model := role.Model
	if model == "" {
		model = a.defaultModel
	}

	out, err := a.completer.Complete(ctx, domain.CompletionRequest{
		Model:        model,
		SystemPrompt: SystemPrompt(role),
		UserPrompt:   UserPrompt(inv),
		Temperature:  role.Temperature,
		JSONOutput:   inv.JSONOutput,
	})
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInvocation, domain.ErrInvocationFailed.Message,
			fmt.Errorf("role %q: %w", role.Role, err))
	}
	if strings.TrimSpace(out) == "" {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInvocation, domain.ErrEmptyCompletion.Message,
			fmt.Errorf("role %q", role.Role))
	}
	return out, nil
}

// SystemPrompt renders the persona of role.
func SystemPrompt(role domain.RoleConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", strings.TrimSpace(role.Role))
	if backstory := strings.TrimSpace(role.Backstory); backstory != "" {
		b.WriteString(" ")
		b.WriteString(backstory)
	}
	if goal := strings.TrimSpace(role.Goal); goal != "" {
		b.WriteString("\nYour personal goal is: ")
		b.WriteString(goal)
	}
	return b.String()
}

// UserPrompt renders the task instructions, the expected output and the
// context bundle, in that order.
func UserPrompt(inv Invocation) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(inv.Instructions))

	if expected := strings.TrimSpace(inv.ExpectedOutput); expected != "" {
		b.WriteString("\n\nThis is the expected criteria for your final answer: ")
		b.WriteString(expected)
	}
	if inv.JSONOutput {
		b.WriteString("\n\nRespond with a single JSON object and nothing else.")
	}
	if ctxText := strings.TrimSpace(inv.Context); ctxText != "" {
		b.WriteString("\n\nThis is the context you're working with:\n")
		b.WriteString(inv.Context)
	}
	return b.String()
}
