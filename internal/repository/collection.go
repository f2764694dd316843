package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

// CollectionRepository is the pgvector-backed vector index.
type CollectionRepository struct {
	pool *pgxpool.Pool
	db   dbtx
	tx   *TxRunner
}

func NewCollectionRepository(pool *pgxpool.Pool) *CollectionRepository {
	return &CollectionRepository{pool: pool, db: pool, tx: NewTxRunner(pool)}
}

// Close releases the connection pool.
func (r *CollectionRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func (r *CollectionRepository) CollectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM collections WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking collection: %w", err)
	}
	return exists, nil
}

// CreateIfAbsent claims the collection name and writes every chunk inside one
// transaction. ON CONFLICT DO NOTHING makes a concurrent attempt on the same
// name wait for the first to finish and then observe it as existing.
func (r *CollectionRepository) CreateIfAbsent(ctx context.Context, spec domain.CollectionSpec, chunks []domain.Chunk) (*domain.CreateOutcome, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, domain.ErrMissingCollection
	}
	metric, err := domain.ParseSimilarityMetric(string(spec.Metric))
	if err != nil {
		return nil, err
	}
	dims := spec.Dimensions
	if dims <= 0 && len(chunks) > 0 {
		dims = len(chunks[0].Embedding)
	}
	for _, ch := range chunks {
		if len(ch.Embedding) != dims {
			return nil, fmt.Errorf("chunk %d has %d dimensions, collection expects %d", ch.ChunkIndex, len(ch.Embedding), dims)
		}
	}

	col := &domain.Collection{
		ID:         uuid.NewString(),
		Name:       spec.Name,
		Metric:     metric,
		Dimensions: dims,
		Source:     spec.Source,
		ChunkCount: len(chunks),
		CreatedAt:  time.Now().UTC(),
	}

	outcome := &domain.CreateOutcome{}
	err = r.tx.WithTx(ctx, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `
			INSERT INTO collections (id, name, metric, dimensions, source, chunk_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (name) DO NOTHING
			RETURNING id`,
			col.ID, col.Name, string(col.Metric), col.Dimensions, col.Source, col.ChunkCount, col.CreatedAt,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			outcome.AlreadyExisted = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("inserting collection: %w", err)
		}

		batch := &pgx.Batch{}
		for _, ch := range chunks {
			chunkID := ch.ID
			if chunkID == "" {
				chunkID = uuid.NewString()
			}
			batch.Queue(`
				INSERT INTO collection_chunks
					(id, collection_id, chunk_index, source, page, content, start_offset, end_offset, embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (collection_id, chunk_index) DO UPDATE SET
					source = EXCLUDED.source,
					page = EXCLUDED.page,
					content = EXCLUDED.content,
					start_offset = EXCLUDED.start_offset,
					end_offset = EXCLUDED.end_offset,
					embedding = EXCLUDED.embedding`,
				chunkID, id, ch.ChunkIndex, ch.Source, ch.Page, ch.Content, ch.Start, ch.End,
				pgvector.NewVector(ch.Embedding),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting chunks: %w", err)
		}

		outcome.Created = true
		outcome.Collection = col
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (r *CollectionRepository) GetCollection(ctx context.Context, name string) (*domain.Collection, error) {
	var (
		col    domain.Collection
		metric string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, name, metric, dimensions, source, chunk_count, created_at
		FROM collections WHERE name = $1`, name,
	).Scan(&col.ID, &col.Name, &metric, &col.Dimensions, &col.Source, &col.ChunkCount, &col.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("getting collection: %w", err)
	}
	col.Metric = domain.SimilarityMetric(metric)
	return &col, nil
}

func (r *CollectionRepository) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, metric, dimensions, source, chunk_count, created_at
		FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var out []domain.Collection
	for rows.Next() {
		var (
			col    domain.Collection
			metric string
		)
		if err := rows.Scan(&col.ID, &col.Name, &metric, &col.Dimensions, &col.Source, &col.ChunkCount, &col.CreatedAt); err != nil {
			return nil, err
		}
		col.Metric = domain.SimilarityMetric(metric)
		out = append(out, col)
	}
	return out, rows.Err()
}

func (r *CollectionRepository) DeleteCollection(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM collections WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(name)
	}
	return nil
}

// scoreExpr maps a metric to its pgvector distance operator and the
// expression turning that distance into a larger-is-closer score.
func scoreExpr(metric domain.SimilarityMetric) (order, score string) {
	switch metric {
	case domain.MetricL2:
		return "embedding <-> $2", "1.0 / (1.0 + (embedding <-> $2))"
	case domain.MetricInnerProduct:
		return "embedding <#> $2", "(embedding <#> $2) * -1"
	default:
		return "embedding <=> $2", "1.0 - (embedding <=> $2)"
	}
}

func (r *CollectionRepository) Query(ctx context.Context, name string, embedding []float32, k int) ([]domain.QueryResult, error) {
	col, err := r.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(embedding) != col.Dimensions {
		return nil, fmt.Errorf("query embedding has %d dimensions, collection %q expects %d", len(embedding), name, col.Dimensions)
	}
	if k <= 0 {
		return []domain.QueryResult{}, nil
	}

	order, score := scoreExpr(col.Metric)
	query := fmt.Sprintf(`
		SELECT content, source, page, chunk_index, %s AS score
		FROM collection_chunks
		WHERE collection_id = $1
		ORDER BY %s, chunk_index
		LIMIT $3`, score, order)

	rows, err := r.db.Query(ctx, query, col.ID, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	results := make([]domain.QueryResult, 0, k)
	for rows.Next() {
		var res domain.QueryResult
		if err := rows.Scan(&res.Content, &res.Metadata.Source, &res.Metadata.Page, &res.Metadata.ChunkIndex, &res.Score); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func notFound(name string) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeNotFound, domain.ErrCollectionNotFound.Message,
		fmt.Errorf("collection %q", name))
}
