package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/tenantpal/internal/agent"
	"github.com/cloo-solutions/tenantpal/internal/api/handlers"
	"github.com/cloo-solutions/tenantpal/internal/crew"
	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/pipeline"
)

const report = `{"issue_summary":"entry without notice","legal_analysis":"24h notice required",` +
	`"draft_message":"Dear landlord","urgency_level":"medium","next_steps":["write to landlord"]}`

type stubInvoker struct{}

func (stubInvoker) Invoke(_ context.Context, role domain.RoleConfig, _ agent.Invocation) (string, error) {
	if role.Role == "Report Compiler" {
		return report, nil
	}
	return role.Role + " notes", nil
}

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Query(ctx context.Context, collection, text string, k int) ([]domain.QueryResult, error) {
	args := m.Called(ctx, collection, text, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.QueryResult), args.Error(1)
}

func (m *MockSearchService) Collections(ctx context.Context) ([]domain.Collection, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Collection), args.Error(1)
}

func setupRouter(t *testing.T) (http.Handler, *MockSearchService) {
	t.Helper()
	def, err := crew.Default()
	require.NoError(t, err)
	plan, err := def.Plan()
	require.NoError(t, err)

	searchSvc := new(MockSearchService)
	runner := pipeline.NewRunner(pipeline.NewOrchestrator(stubInvoker{}, nil, pipeline.Config{}, nil), plan)

	return NewRouter(RouterConfig{
		CrewHandler:   handlers.NewCrewHandler(runner),
		SearchHandler: handlers.NewSearchHandler(searchSvc, "california_tenant_guide", 4),
	}), searchSvc
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_RunCrew(t *testing.T) {
	router, _ := setupRouter(t)

	body := `{"renter_issue_description":"Landlord entered without notice","lease_document":"lease text"}`
	req := httptest.NewRequest(http.MethodPost, "/api/run-crew", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, report, w.Body.String())
}

func TestRouter_RunCrew_MissingFields(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/run-crew", strings.NewReader(`{"lease_document":"lease"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing required input fields."}`, w.Body.String())
}

func TestRouter_Search(t *testing.T) {
	router, searchSvc := setupRouter(t)
	searchSvc.On("Query", mock.Anything, "california_tenant_guide", "repairs", 4).Return([]domain.QueryResult{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"repairs"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	searchSvc.AssertExpectations(t)
}

func TestRouter_Metrics(t *testing.T) {
	router, _ := setupRouter(t)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tenantpal_http_requests_total")
}

func TestRouter_UnknownRoute(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RejectsNonJSONBody(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/run-crew", strings.NewReader("renter_issue_description=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}
