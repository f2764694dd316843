package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Error(t *testing.T) {
	err := NewDomainError(ErrCodeLoad, "document could not be read")
	assert.Equal(t, "[LOAD_ERROR] document could not be read", err.Error())

	cause := errors.New("permission denied")
	wrapped := NewDomainErrorWithCause(ErrCodeLoad, "document could not be read", cause)
	assert.Equal(t, "[LOAD_ERROR] document could not be read: permission denied", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestDomainError_IsMatchesSentinelWithCause(t *testing.T) {
	err := NewDomainErrorWithCause(ErrCodeNotFound, ErrCollectionNotFound.Message, errors.New("no rows"))

	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.NotErrorIs(t, err, ErrCollectionAlreadyExists)
}

func TestPipelineError_WrapsCause(t *testing.T) {
	cause := NewDomainErrorWithCause(ErrCodeInvocation, ErrInvocationFailed.Message, errors.New("timeout"))
	err := fmt.Errorf("run failed: %w", NewPipelineError("urgency_assessment", cause))

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "urgency_assessment", pe.TaskName)
	assert.ErrorIs(t, err, ErrInvocationFailed)
	assert.Contains(t, err.Error(), `task "urgency_assessment" failed`)
	assert.Equal(t, ErrCodeInvocation, CodeOf(err))
}

func TestHasCode(t *testing.T) {
	schemaErr := NewDomainErrorWithCause(ErrCodeSchema, ErrSchemaMismatch.Message, errors.New("missing field"))

	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{"nil", nil, ErrCodeSchema, false},
		{"plain error", errors.New("boom"), ErrCodeSchema, false},
		{"direct", schemaErr, ErrCodeSchema, true},
		{"wrapped in pipeline error", NewPipelineError("t", schemaErr), ErrCodeSchema, true},
		{"other code", schemaErr, ErrCodeInvocation, false},
		{"joined", errors.Join(errors.New("x"), schemaErr), ErrCodeSchema, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasCode(tt.err, tt.code))
		})
	}
}
