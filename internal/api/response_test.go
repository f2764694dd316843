package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusOK, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var result map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Equal(t, "value", result["key"])
}

func TestJSON_NilData(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusNoContent, nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Body.String())
}

func TestSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	Success(w, http.StatusCreated, map[string]string{"id": "123"})

	assert.Equal(t, http.StatusCreated, w.Code)

	var result SuccessResponse
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)

	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "123", data["id"])
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusBadRequest, "invalid input")

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var result ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Equal(t, "invalid input", result.Error)
}

func TestErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()

	ErrorWithDetails(w, http.StatusInternalServerError, "Crew execution failed.", "task \"legal_analysis\" failed")

	var result ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "Crew execution failed.", result.Error)
	assert.Contains(t, result.Details, "legal_analysis")
}

func TestRawJSON(t *testing.T) {
	w := httptest.NewRecorder()

	RawJSON(w, http.StatusOK, []byte(`{"urgency_level":"high"}`))

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, `{"urgency_level":"high"}`, w.Body.String())
}

func TestDomainErrorToHTTP(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, http.StatusOK},
		{"config error", domain.ErrMissingRunInput, http.StatusBadRequest},
		{"not found error", domain.ErrCollectionNotFound, http.StatusNotFound},
		{"already exists error", domain.ErrCollectionAlreadyExists, http.StatusConflict},
		{"load error", domain.ErrDocumentEmpty, http.StatusUnprocessableEntity},
		{"embedding error", domain.ErrEmbeddingFailed, http.StatusBadGateway},
		{"schema error", domain.ErrSchemaMismatch, http.StatusBadGateway},
		{"wrapped in pipeline error", domain.NewPipelineError("legal_analysis", domain.ErrInvocationFailed), http.StatusBadGateway},
		{"internal error", domain.NewDomainError(domain.ErrCodeInternalError, "internal"), http.StatusInternalServerError},
		{"unknown domain error", domain.NewDomainError("UNKNOWN", "unknown"), http.StatusInternalServerError},
		{"non-domain error", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DomainErrorToHTTP(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestHandleError(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, domain.ErrCollectionNotFound)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var result ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Contains(t, result.Error, "not found")
}

func TestHandleError_ServerErrorCarriesDetails(t *testing.T) {
	w := httptest.NewRecorder()

	HandleError(w, domain.NewDomainErrorWithCause(domain.ErrCodeEmbedding, domain.ErrEmbeddingFailed.Message, assert.AnError))

	assert.Equal(t, http.StatusBadGateway, w.Code)

	var result ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "Bad Gateway", result.Error)
	assert.Contains(t, result.Details, "embedding request failed")
}
