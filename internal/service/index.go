package service

import (
	"context"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

// VectorIndex is a persistent, collection-partitioned store of chunks and
// their embeddings.
type VectorIndex interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	// CreateIfAbsent creates the collection and writes all chunks in one
	// atomic step. If the name is taken nothing is written and the outcome
	// reports AlreadyExisted.
	CreateIfAbsent(ctx context.Context, spec domain.CollectionSpec, chunks []domain.Chunk) (*domain.CreateOutcome, error)
	Query(ctx context.Context, name string, embedding []float32, k int) ([]domain.QueryResult, error)
	GetCollection(ctx context.Context, name string) (*domain.Collection, error)
	ListCollections(ctx context.Context) ([]domain.Collection, error)
	DeleteCollection(ctx context.Context, name string) error
	Close() error
}

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// DocumentLoader turns a document path into page-level documents.
type DocumentLoader interface {
	Load(ctx context.Context, path string) ([]domain.Document, error)
}
