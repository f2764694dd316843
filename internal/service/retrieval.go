package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

// DefaultRetrievalK is the number of passages returned when k is not set.
const DefaultRetrievalK = 4

// RetrievalService embeds query text and ranks collection chunks against it.
type RetrievalService struct {
	index  VectorIndex
	client EmbeddingClient
}

// NewRetrievalService creates a new RetrievalService instance
func NewRetrievalService(index VectorIndex, client EmbeddingClient) *RetrievalService {
	return &RetrievalService{index: index, client: client}
}

// Query returns up to k passages from collection, most similar first.
// A missing collection is reported as NOT_FOUND; embedding failures as
// EMBEDDING_ERROR.
func (s *RetrievalService) Query(ctx context.Context, collection, text string, k int) ([]domain.QueryResult, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, domain.ErrMissingCollection
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeConfig, "query text is required")
	}
	if k <= 0 {
		k = DefaultRetrievalK
	}

	embedding, err := s.client.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbedding, domain.ErrEmbeddingFailed.Message, err)
	}

	results, err := s.index.Query(ctx, collection, embedding, k)
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			return nil, err
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrieval, domain.ErrRetrievalFailed.Message,
			fmt.Errorf("collection %q: %w", collection, err))
	}
	return results, nil
}

// Collections lists the collections held by the index.
func (s *RetrievalService) Collections(ctx context.Context) ([]domain.Collection, error) {
	return s.index.ListCollections(ctx)
}
