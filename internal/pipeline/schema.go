package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

func parseSchema(task string, raw json.RawMessage) (*jsonschema.Definition, error) {
	var def jsonschema.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfig, domain.ErrInvalidTaskGraph.Message,
			fmt.Errorf("task %q output_schema: %w", task, err))
	}
	if def.Type == "" {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfig, domain.ErrInvalidTaskGraph.Message,
			fmt.Errorf("task %q output_schema: type is required", task))
	}
	return &def, nil
}

// validateOutput reduces raw to its JSON document and checks it against def.
// It returns the extracted document and its decoded value.
func validateOutput(def *jsonschema.Definition, raw string) (string, any, error) {
	doc, ok := extractJSON(raw)
	if !ok {
		return "", nil, domain.NewDomainErrorWithCause(domain.ErrCodeSchema, domain.ErrSchemaMismatch.Message,
			fmt.Errorf("output is not a JSON document"))
	}

	var parsed any
	if err := jsonschema.VerifySchemaAndUnmarshal(*def, []byte(doc), &parsed); err != nil {
		return "", nil, domain.NewDomainErrorWithCause(domain.ErrCodeSchema, domain.ErrSchemaMismatch.Message, err)
	}
	return doc, parsed, nil
}

// extractJSON strips markdown code fences and any prose around the first
// JSON object or array in s.
func extractJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	if json.Valid([]byte(s)) && s != "" && (s[0] == '{' || s[0] == '[') {
		return s, true
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", false
	}
	doc := s[start : end+1]
	if !json.Valid([]byte(doc)) {
		return "", false
	}
	return doc, true
}
