//go:build integration

package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/testutil"
)

func chunksFor(vectors ...[]float32) []domain.Chunk {
	chunks := make([]domain.Chunk, len(vectors))
	for i, v := range vectors {
		chunks[i] = domain.Chunk{
			Source:     "guide.pdf",
			Page:       1,
			ChunkIndex: i,
			Start:      i * 10,
			End:        i*10 + 10,
			Content:    fmt.Sprintf("chunk %d", i),
			Embedding:  v,
		}
	}
	return chunks
}

func TestCollectionRepository_CreateQueryDelete(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pc)
	repo := NewCollectionRepository(pool)
	defer repo.Close()

	exists, err := repo.CollectionExists(ctx, "guide")
	require.NoError(t, err)
	assert.False(t, exists)

	outcome, err := repo.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "guide", Dimensions: 2, Source: "guide.pdf"},
		chunksFor([]float32{1, 0}, []float32{0, 1}, []float32{0.7, 0.7}))
	require.NoError(t, err)
	assert.True(t, outcome.Created)

	col, err := repo.GetCollection(ctx, "guide")
	require.NoError(t, err)
	assert.Equal(t, 3, col.ChunkCount)
	assert.Equal(t, domain.MetricCosine, col.Metric)

	results, err := repo.Query(ctx, "guide", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "chunk 0", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.Equal(t, "chunk 2", results[1].Content)

	again, err := repo.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "guide", Dimensions: 2}, chunksFor([]float32{1, 1}))
	require.NoError(t, err)
	assert.True(t, again.AlreadyExisted)

	col, err = repo.GetCollection(ctx, "guide")
	require.NoError(t, err)
	assert.Equal(t, 3, col.ChunkCount)

	require.NoError(t, repo.DeleteCollection(ctx, "guide"))
	_, err = repo.Query(ctx, "guide", []float32{1, 0}, 2)
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestCollectionRepository_ConcurrentCreateIsAtomic(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pc)
	repo := NewCollectionRepository(pool)
	defer repo.Close()

	const attempts = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := repo.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "guide", Dimensions: 2},
				chunksFor([]float32{1, 0}, []float32{0, 1}))
			if !assert.NoError(t, err) {
				return
			}
			if outcome.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM collection_chunks`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestCollectionRepository_MetricOrdering(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pc)
	repo := NewCollectionRepository(pool)
	defer repo.Close()

	vectors := [][]float32{{1, 0}, {0, 0.5}, {3, 3}}

	_, err := repo.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "l2", Metric: domain.MetricL2, Dimensions: 2}, chunksFor(vectors...))
	require.NoError(t, err)
	_, err = repo.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "ip", Metric: domain.MetricInnerProduct, Dimensions: 2}, chunksFor(vectors...))
	require.NoError(t, err)

	l2, err := repo.Query(ctx, "l2", []float32{4, 4}, 3)
	require.NoError(t, err)
	assert.Equal(t, "chunk 2", l2[0].Content)

	ip, err := repo.Query(ctx, "ip", []float32{0, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk 2", "chunk 1", "chunk 0"}, []string{ip[0].Content, ip[1].Content, ip[2].Content})
	assert.InDelta(t, 3.0, ip[0].Score, 1e-5)

	require.NoError(t, testutil.TruncateAll(ctx, pool))
	cols, err := repo.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestMigrate_AppliesEmbeddedMigrations(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)

	require.NoError(t, Migrate(pc.ConnectionString(), nil))
	require.NoError(t, Migrate(pc.ConnectionString(), nil))
}
