// Package localstore implements the vector index on a single SQLite file.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/localstore/migrations"
)

// DBFileName is the index file created inside the storage directory.
const DBFileName = "index.db"

// Index is a file-backed vector index. Writers serialize on SQLite's
// immediate transaction lock; readers run concurrently under WAL.
type Index struct {
	db   *sql.DB
	path string
}

// Open creates or opens the index in dataDir.
func Open(dataDir string) (*Index, error) {
	if dataDir == "" {
		return nil, domain.NewDomainError(domain.ErrCodeConfig, "storage path is required")
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	idx := &Index{db: db, path: dbPath}
	if err := idx.migrate(context.Background(), migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return idx, nil
}

// Close closes the database connection.
func (s *Index) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Index) Path() string {
	return s.path
}

func (s *Index) migrate(ctx context.Context, fsys fs.FS) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// CollectionExists reports whether a collection with the given name exists.
func (s *Index) CollectionExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM collections WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking collection: %w", err)
	}
	return true, nil
}

// CreateIfAbsent inserts the collection row and all of its chunks in a single
// transaction. If the name is already taken it writes nothing.
func (s *Index) CreateIfAbsent(ctx context.Context, spec domain.CollectionSpec, chunks []domain.Chunk) (*domain.CreateOutcome, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	col := &domain.Collection{
		ID:         uuid.NewString(),
		Name:       spec.Name,
		Metric:     metric,
		Dimensions: dims,
		Source:     spec.Source,
		ChunkCount: len(chunks),
		CreatedAt:  time.Now().UTC(),
	}

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO collections (id, name, metric, dimensions, source, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, col.ID, col.Name, string(col.Metric), col.Dimensions, col.Source, col.ChunkCount, col.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("inserting collection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("inserting collection: %w", err)
	}
	if n == 0 {
		return &domain.CreateOutcome{AlreadyExisted: true}, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO collection_chunks (id, collection_id, chunk_index, source, page, content, start_offset, end_offset, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection_id, chunk_index) DO UPDATE SET
			source = excluded.source,
			page = excluded.page,
			content = excluded.content,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			embedding = excluded.embedding
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		id := ch.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, col.ID, ch.ChunkIndex, ch.Source, ch.Page, ch.Content,
			ch.Start, ch.End, float32SliceToBytes(ch.Embedding)); err != nil {
			return nil, fmt.Errorf("inserting chunk %d: %w", ch.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing collection: %w", err)
	}
	return &domain.CreateOutcome{Created: true, Collection: col}, nil
}

// GetCollection returns a collection by name.
func (s *Index) GetCollection(ctx context.Context, name string) (*domain.Collection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, metric, dimensions, source, chunk_count, created_at
		FROM collections WHERE name = ?
	`, name)
	col, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("getting collection: %w", err)
	}
	return col, nil
}

// ListCollections returns all collections ordered by name.
func (s *Index) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, metric, dimensions, source, chunk_count, created_at
		FROM collections ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var out []domain.Collection
	for rows.Next() {
		col, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		out = append(out, *col)
	}
	return out, rows.Err()
}

// DeleteCollection removes a collection and its chunks.
func (s *Index) DeleteCollection(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	if n == 0 {
		return notFound(name)
	}
	return nil
}

// Query ranks the collection's chunks against embedding and returns the top k.
func (s *Index) Query(ctx context.Context, name string, embedding []float32, k int) ([]domain.QueryResult, error) {
	col, err := s.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(embedding) != col.Dimensions {
		return nil, fmt.Errorf("query embedding has %d dimensions, collection %q expects %d", len(embedding), name, col.Dimensions)
	}
	if k <= 0 {
		return []domain.QueryResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_index, source, page, content, embedding
		FROM collection_chunks WHERE collection_id = ?
		ORDER BY chunk_index
	`, col.ID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	results := make([]domain.QueryResult, 0)
	for rows.Next() {
		var (
			r    domain.QueryResult
			blob []byte
		)
		if err := rows.Scan(&r.Metadata.ChunkIndex, &r.Metadata.Source, &r.Metadata.Page, &r.Content, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		r.Score, err = score(col.Metric, embedding, bytesToFloat32Slice(blob))
		if err != nil {
			return nil, fmt.Errorf("scoring chunk %d: %w", r.Metadata.ChunkIndex, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCollection(row scanner) (*domain.Collection, error) {
	var (
		col       domain.Collection
		metric    string
		createdAt string
	)
	if err := row.Scan(&col.ID, &col.Name, &metric, &col.Dimensions, &col.Source, &col.ChunkCount, &createdAt); err != nil {
		return nil, err
	}
	col.Metric = domain.SimilarityMetric(metric)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		col.CreatedAt = t
	}
	return &col, nil
}

func notFound(name string) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeNotFound, domain.ErrCollectionNotFound.Message,
		fmt.Errorf("collection %q", name))
}
