package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/metrics"
	"github.com/cloo-solutions/tenantpal/internal/telemetry"
)

// DefaultEmbeddingBatchSize bounds how many chunks go into one embedding call.
const DefaultEmbeddingBatchSize = 64

// IngestRequest holds the parameters of one ingestion.
type IngestRequest struct {
	DocumentPath string
	Collection   string
	ChunkSize    int
	ChunkOverlap int
	Metric       domain.SimilarityMetric
}

// Ingestor loads, chunks, embeds and stores a document as a named collection.
// Ingesting into a collection that already exists is a no-op.
type Ingestor struct {
	index     VectorIndex
	loader    DocumentLoader
	client    EmbeddingClient
	batchSize int
	logger    *zap.Logger
}

// NewIngestor creates a new Ingestor instance
func NewIngestor(index VectorIndex, loader DocumentLoader, client EmbeddingClient, batchSize int, logger *zap.Logger) *Ingestor {
	if batchSize <= 0 {
		batchSize = DefaultEmbeddingBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		index:     index,
		loader:    loader,
		client:    client,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Ingest runs one ingestion. It returns a Skipped result when the collection
// already exists, whether found by the probe or by losing the creation race.
func (s *Ingestor) Ingest(ctx context.Context, req IngestRequest) (result *domain.IngestResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest", telemetry.SpanAttributes{
		Collection: req.Collection,
		Operation:  "ingest",
	})
	defer func() {
		span.Finish(err)
		switch {
		case err != nil:
			metrics.ObserveIngest("error", 0)
		case result.Skipped():
			metrics.ObserveIngest("skipped", 0)
		default:
			metrics.ObserveIngest("created", result.ChunkCount)
		}
	}()

	chunkCfg := ChunkConfig{Size: req.ChunkSize, Overlap: req.ChunkOverlap}
	chunker, err := NewChunker(chunkCfg)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Collection) == "" {
		return nil, domain.ErrMissingCollection
	}
	metric, err := domain.ParseSimilarityMetric(string(req.Metric))
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("collection", req.Collection), zap.String("document", req.DocumentPath))

	exists, err := s.index.CollectionExists(ctx, req.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to probe collection: %w", err)
	}
	if exists {
		log.Info("collection already ingested, skipping")
		return skipped(req.Collection), nil
	}

	docs, err := s.loader.Load(ctx, req.DocumentPath)
	if err != nil {
		return nil, err
	}
	log.Info("document loaded", zap.Int("pages", len(docs)))

	chunks := chunker.ChunkDocuments(docs)
	if len(chunks) == 0 {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeLoad, domain.ErrDocumentEmpty.Message,
			fmt.Errorf("no text in %s", req.DocumentPath))
	}
	log.Info("document chunked", zap.Int("chunks", len(chunks)))

	if err := s.embedChunks(ctx, chunks, log); err != nil {
		return nil, err
	}

	outcome, err := s.index.CreateIfAbsent(ctx, domain.CollectionSpec{
		Name:       req.Collection,
		Metric:     metric,
		Dimensions: s.client.Dimensions(),
		Source:     req.DocumentPath,
	}, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to store collection: %w", err)
	}
	if outcome.AlreadyExisted {
		log.Info("collection created concurrently, skipping")
		return skipped(req.Collection), nil
	}

	log.Info("collection created", zap.Int("chunks", len(chunks)))
	return &domain.IngestResult{
		Status:     domain.IngestStatusCreated,
		Collection: req.Collection,
		PageCount:  countPages(docs),
		ChunkCount: len(chunks),
	}, nil
}

func (s *Ingestor) embedChunks(ctx context.Context, chunks []domain.Chunk, log *zap.Logger) error {
	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Content)
		}

		vectors, err := s.client.GenerateEmbeddings(ctx, texts)
		if err != nil {
			return domain.NewDomainErrorWithCause(domain.ErrCodeEmbedding, domain.ErrEmbeddingFailed.Message,
				fmt.Errorf("batch %d-%d: %w", start, end, err))
		}
		if len(vectors) != len(texts) {
			return domain.NewDomainErrorWithCause(domain.ErrCodeEmbedding, domain.ErrEmbeddingFailed.Message,
				fmt.Errorf("batch %d-%d: got %d vectors", start, end, len(vectors)))
		}
		for i, v := range vectors {
			chunks[start+i].Embedding = v
		}
		log.Debug("embedded batch", zap.Int("from", start), zap.Int("to", end))
	}
	return nil
}

func skipped(collection string) *domain.IngestResult {
	return &domain.IngestResult{
		Status:     domain.IngestStatusSkipped,
		Reason:     domain.SkipReasonAlreadyIngested,
		Collection: collection,
	}
}

func countPages(docs []domain.Document) int {
	n := 0
	for _, d := range docs {
		if !d.IsBlank() {
			n++
		}
	}
	return n
}
