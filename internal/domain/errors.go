package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches sentinel domain errors by code and message so wrapped copies
// created with NewDomainErrorWithCause still satisfy errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeLoad          = "LOAD_ERROR"
	ErrCodeConfig        = "CONFIG_ERROR"
	ErrCodeEmbedding     = "EMBEDDING_ERROR"
	ErrCodeInvocation    = "INVOCATION_ERROR"
	ErrCodeSchema        = "SCHEMA_ERROR"
	ErrCodeRetrieval     = "RETRIEVAL_ERROR"
	ErrCodePipeline      = "PIPELINE_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Configuration errors
var (
	ErrInvalidChunkParams   = NewDomainError(ErrCodeConfig, "chunk overlap must be non-negative and smaller than chunk size")
	ErrMissingRunInput      = NewDomainError(ErrCodeConfig, "missing required run input")
	ErrInvalidTaskGraph     = NewDomainError(ErrCodeConfig, "invalid task graph")
	ErrDependencyCycle      = NewDomainError(ErrCodeConfig, "task dependencies contain a cycle")
	ErrMissingCollection    = NewDomainError(ErrCodeConfig, "collection name is required")
	ErrInvalidMetric        = NewDomainError(ErrCodeConfig, "unsupported similarity metric")
	ErrInvalidTemplate      = NewDomainError(ErrCodeConfig, "instruction template could not be rendered")
	ErrInvalidCrewConfig    = NewDomainError(ErrCodeConfig, "invalid crew configuration")
	ErrMissingCapabilityKey = NewDomainError(ErrCodeConfig, "OPENAI_API_KEY is not set")
)

// Load errors
var (
	ErrDocumentUnreadable = NewDomainError(ErrCodeLoad, "document could not be read")
	ErrDocumentEmpty      = NewDomainError(ErrCodeLoad, "document contains no text")
)

// Capability errors
var (
	ErrEmbeddingFailed  = NewDomainError(ErrCodeEmbedding, "embedding request failed")
	ErrInvocationFailed = NewDomainError(ErrCodeInvocation, "reasoning capability call failed")
	ErrEmptyCompletion  = NewDomainError(ErrCodeInvocation, "reasoning capability returned no output")
	ErrSchemaMismatch   = NewDomainError(ErrCodeSchema, "stage output does not match its declared schema")
	ErrRetrievalFailed  = NewDomainError(ErrCodeRetrieval, "retrieval failed")
)

// Storage errors
var (
	ErrCollectionNotFound      = NewDomainError(ErrCodeNotFound, "collection not found")
	ErrCollectionAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "collection already exists")
	ErrStorageOperationFail    = NewDomainError(ErrCodeInternalError, "storage operation failed")
)

// PipelineError wraps the first fatal stage error of a run with the identity
// of the task that produced it.
type PipelineError struct {
	TaskName string
	Err      error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("[%s] task %q failed: %v", ErrCodePipeline, e.TaskName, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a PipelineError for the given task.
func NewPipelineError(taskName string, err error) *PipelineError {
	return &PipelineError{TaskName: taskName, Err: err}
}

// CodeOf returns the code of the outermost DomainError in err's chain, or
// the empty string if there is none.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// HasCode reports whether any DomainError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		if de, ok := err.(*DomainError); ok && de.Code == code {
			return true
		}
		switch x := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				if HasCode(inner, code) {
					return true
				}
			}
			return false
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		default:
			return false
		}
	}
	return false
}
