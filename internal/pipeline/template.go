package pipeline

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

// Keys the orchestrator adds to the run inputs before rendering templates.
const (
	KeyContext   = "context"
	KeyRetrieved = "retrieved"
)

func compileStage(t domain.TaskDescriptor) (*Stage, error) {
	s := &Stage{Descriptor: t}

	var err error
	if s.instructions, err = parseTemplate(t.Name, "instructions", t.Instructions); err != nil {
		return nil, err
	}
	if s.expectedOutput, err = parseTemplate(t.Name, "expected_output", t.ExpectedOutput); err != nil {
		return nil, err
	}
	if t.Retrieval != nil {
		query := t.Retrieval.Query
		if strings.TrimSpace(query) == "" {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfig, domain.ErrInvalidTaskGraph.Message,
				fmt.Errorf("task %q: retrieval query is required", t.Name))
		}
		if s.retrievalQuery, err = parseTemplate(t.Name, "retrieval.query", query); err != nil {
			return nil, err
		}
	}
	if t.HasSchema() {
		if s.schema, err = parseSchema(t.Name, t.OutputSchema); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func parseTemplate(task, field, text string) (*template.Template, error) {
	tmpl, err := template.New(task + "." + field).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfig, domain.ErrInvalidTemplate.Message,
			fmt.Errorf("task %q %s: %w", task, field, err))
	}
	return tmpl, nil
}

func render(tmpl *template.Template, data map[string]any) (string, error) {
	if tmpl == nil {
		return "", nil
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeConfig, domain.ErrInvalidTemplate.Message, err)
	}
	return b.String(), nil
}

// templateData copies inputs and adds the stage-specific keys.
func templateData(inputs map[string]any, bundle, retrieved string) map[string]any {
	data := make(map[string]any, len(inputs)+2)
	for k, v := range inputs {
		data[k] = v
	}
	data[KeyContext] = bundle
	data[KeyRetrieved] = retrieved
	return data
}

// formatPassages renders retrieved passages as a numbered list with their
// page references.
func formatPassages(results []domain.QueryResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%s, page %d)\n%s", i+1, r.Metadata.Source, r.Metadata.Page, strings.TrimSpace(r.Content))
	}
	return b.String()
}
