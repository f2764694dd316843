package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

// MockVectorIndex mocks the vector index
type MockVectorIndex struct {
	mock.Mock
}

func (m *MockVectorIndex) CollectionExists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockVectorIndex) CreateIfAbsent(ctx context.Context, spec domain.CollectionSpec, chunks []domain.Chunk) (*domain.CreateOutcome, error) {
	args := m.Called(ctx, spec, chunks)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CreateOutcome), args.Error(1)
}

func (m *MockVectorIndex) Query(ctx context.Context, name string, embedding []float32, k int) ([]domain.QueryResult, error) {
	args := m.Called(ctx, name, embedding, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.QueryResult), args.Error(1)
}

func (m *MockVectorIndex) GetCollection(ctx context.Context, name string) (*domain.Collection, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Collection), args.Error(1)
}

func (m *MockVectorIndex) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Collection), args.Error(1)
}

func (m *MockVectorIndex) DeleteCollection(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockVectorIndex) Close() error {
	return m.Called().Error(0)
}

// MockEmbeddingClient mocks the capability handle's embedding side
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if fn, ok := args.Get(0).(func(context.Context, []string) [][]float32); ok {
		return fn(ctx, texts), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbeddingClient) Dimensions() int {
	return m.Called().Int(0)
}

// MockDocumentLoader mocks document loading
type MockDocumentLoader struct {
	mock.Mock
}

func (m *MockDocumentLoader) Load(ctx context.Context, path string) ([]domain.Document, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Document), args.Error(1)
}

// unitVectors returns n distinct 3-dim vectors
func unitVectors(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i + 1), 0, 0}
	}
	return out
}
