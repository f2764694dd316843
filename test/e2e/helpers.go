//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/cloo-solutions/tenantpal/internal/agent"
	"github.com/cloo-solutions/tenantpal/internal/api/handlers"
	"github.com/cloo-solutions/tenantpal/internal/crew"
	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/loader"
	"github.com/cloo-solutions/tenantpal/internal/openai"
	"github.com/cloo-solutions/tenantpal/internal/pipeline"
	"github.com/cloo-solutions/tenantpal/internal/repository"
	"github.com/cloo-solutions/tenantpal/internal/server"
	"github.com/cloo-solutions/tenantpal/internal/service"
	"github.com/cloo-solutions/tenantpal/internal/storage"
	"github.com/cloo-solutions/tenantpal/internal/testutil"
)

const (
	testBucket     = "tenantpal-e2e"
	testCollection = "california_tenant_guide"
	testDimensions = 32
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	Logger       *zap.Logger
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	Index        *repository.CollectionRepository
	S3Client     *storage.S3Client
	Model        *FakeModel
	Client       *openai.Client
	ServerURL    string
	ServerCloser func()
	HTTPClient   *http.Client
}

// SetupE2EEnv starts pgvector, RustFS, a fake model endpoint and the API server.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC)
	s3Client := s3C.NewS3Client(ctx, t, testBucket)

	model := NewFakeModel()
	client := openai.NewClientWithConfig(openai.Config{
		APIKey:              "test-key",
		BaseURL:             model.URL() + "/v1",
		EmbeddingDimensions: testDimensions,
	})

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		Logger:     log,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		Index:      repository.NewCollectionRepository(pool),
		S3Client:   s3Client,
		Model:      model,
		Client:     client,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.startServer()
	return env
}

func (e *E2ETestEnv) startServer() {
	def, err := crew.Default()
	if err != nil {
		e.T.Fatalf("failed to load crew: %v", err)
	}
	def.WithCollection(testCollection)
	plan, err := def.Plan()
	if err != nil {
		e.T.Fatalf("failed to build plan: %v", err)
	}

	retrieval := service.NewRetrievalService(e.Index, e.Client)
	orch := pipeline.NewOrchestrator(agent.New(e.Client, e.Client.DefaultModel()), retrieval, pipeline.Config{}, e.Logger)

	router := server.NewRouter(server.RouterConfig{
		Logger:        e.Logger,
		CrewHandler:   handlers.NewCrewHandler(pipeline.NewRunner(orch, plan)),
		SearchHandler: handlers.NewSearchHandler(retrieval, testCollection, 3),
	})

	srv := httptest.NewServer(router)
	e.ServerURL = srv.URL
	e.ServerCloser = srv.Close
}

// Cleanup stops the servers. Containers and the pool are released by t.Cleanup.
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Model != nil {
		e.Model.Close()
	}
}

// UploadDocument stores a text document in the test bucket and returns its s3 URI.
func (e *E2ETestEnv) UploadDocument(key, content string) string {
	if err := e.S3Client.PutObject(e.Ctx, testBucket, key, "text/plain", []byte(content)); err != nil {
		e.T.Fatalf("failed to upload %s: %v", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", testBucket, key)
}

// Ingest runs the ingestion service against the pgvector index.
func (e *E2ETestEnv) Ingest(documentURI string) (*domain.IngestResult, error) {
	ingestor := service.NewIngestor(e.Index, loader.New(e.S3Client, e.Logger), e.Client, 8, e.Logger)
	return ingestor.Ingest(e.Ctx, service.IngestRequest{
		DocumentPath: documentURI,
		Collection:   testCollection,
		ChunkSize:    300,
		ChunkOverlap: 50,
		Metric:       domain.MetricCosine,
	})
}

// APIResponse is the envelope used by the search endpoints.
type APIResponse struct {
	Status int
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
	Body   []byte          `json:"-"`
	Header http.Header     `json:"-"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{Status: resp.StatusCode, Body: respBody, Header: resp.Header}
	if len(respBody) > 0 {
		_ = json.Unmarshal(respBody, apiResp)
	}
	return apiResp, nil
}

// FakeModel serves the embeddings and chat completions endpoints.
// Embeddings are deterministic bag-of-words hashes so lexical overlap
// translates into cosine similarity.
type FakeModel struct {
	srv *httptest.Server

	mu    sync.Mutex
	roles []string
}

func NewFakeModel() *FakeModel {
	m := &FakeModel{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", m.embeddings)
	mux.HandleFunc("/v1/chat/completions", m.chat)
	m.srv = httptest.NewServer(mux)
	return m
}

func (m *FakeModel) URL() string { return m.srv.URL }

func (m *FakeModel) Close() { m.srv.Close() }

// Roles returns the personas that were invoked, in call order.
func (m *FakeModel) Roles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.roles...)
}

func embed(text string) []float32 {
	v := make([]float32, testDimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if len(word) < 4 {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		v[h.Sum32()%testDimensions]++
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}

func (m *FakeModel) embeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data := make([]map[string]any, len(req.Input))
	for i, text := range req.Input {
		data[i] = map[string]any{"object": "embedding", "index": i, "embedding": embed(text)}
	}
	writeJSON(w, map[string]any{"object": "list", "model": "fake-embedding", "data": data})
}

func (m *FakeModel) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) < 2 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	system, user := req.Messages[0].Content, req.Messages[1].Content

	var role, content string
	switch {
	case strings.HasPrefix(system, "You are Legal Explainer."):
		role = "Legal Explainer"
		content = "The landlord must repair heating within a reasonable time."
		if strings.Contains(user, "habitable") {
			content += " The guide confirms units must be habitable."
		}
	case strings.HasPrefix(system, "You are Conflict Coach."):
		role = "Conflict Coach"
		content = "Dear landlord, please repair the heater by Friday."
	case strings.HasPrefix(system, "You are Urgency Filter."):
		role = "Urgency Filter"
		content = "High urgency: no heat in winter."
	case strings.HasPrefix(system, "You are Report Compiler."):
		role = "Report Compiler"
		report, _ := json.Marshal(map[string]any{
			"issue_summary":          "No heat in the unit.",
			"legal_analysis":         "The landlord must repair heating.",
			"rights_and_obligations": []string{"Right to a habitable unit"},
			"draft_message":          "Dear landlord, please repair the heater by Friday.",
			"urgency_level":          "high",
			"urgency_rationale":      "No heat in winter.",
			"next_steps":             []string{"Send the message", "Document the issue"},
			"disclaimer":             "This is not legal advice.",
		})
		content = string(report)
	default:
		http.Error(w, "unknown persona", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.roles = append(m.roles, role)
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "fake-chat",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
