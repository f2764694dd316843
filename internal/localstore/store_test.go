package localstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

func setupTestIndex(t *testing.T) *Index {
	t.Helper()

	idx, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, idx.Close()) })
	return idx
}

func testChunks(vectors ...[]float32) []domain.Chunk {
	chunks := make([]domain.Chunk, len(vectors))
	for i, v := range vectors {
		chunks[i] = domain.Chunk{
			Source:     "guide.pdf",
			Page:       i + 1,
			ChunkIndex: i,
			Start:      i * 10,
			End:        i*10 + 10,
			Content:    fmt.Sprintf("chunk %d", i),
			Embedding:  v,
		}
	}
	return chunks
}

func TestIndex_CreateIfAbsent_CreatesAndReports(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	outcome, err := idx.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "guide", Dimensions: 2, Source: "guide.pdf"},
		testChunks([]float32{1, 0}, []float32{0, 1}))

	require.NoError(t, err)
	assert.True(t, outcome.Created)
	assert.False(t, outcome.AlreadyExisted)
	require.NotNil(t, outcome.Collection)
	assert.Equal(t, domain.MetricCosine, outcome.Collection.Metric)

	exists, err := idx.CollectionExists(ctx, "guide")
	require.NoError(t, err)
	assert.True(t, exists)

	col, err := idx.GetCollection(ctx, "guide")
	require.NoError(t, err)
	assert.Equal(t, 2, col.ChunkCount)
	assert.Equal(t, 2, col.Dimensions)
	assert.Equal(t, "guide.pdf", col.Source)
	assert.False(t, col.CreatedAt.IsZero())
}

func TestIndex_CreateIfAbsent_ExistingNameWritesNothing(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	_, err := idx.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "guide", Dimensions: 2},
		testChunks([]float32{1, 0}))
	require.NoError(t, err)

	outcome, err := idx.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "guide", Dimensions: 2},
		testChunks([]float32{0, 1}, []float32{1, 1}, []float32{1, 0}))
	require.NoError(t, err)
	assert.True(t, outcome.AlreadyExisted)
	assert.False(t, outcome.Created)

	col, err := idx.GetCollection(ctx, "guide")
	require.NoError(t, err)
	assert.Equal(t, 1, col.ChunkCount)

	results, err := idx.Query(ctx, "guide", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestIndex_CreateIfAbsent_ConcurrentAttemptsCreateOnce(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	const attempts = 5
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		existing int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := idx.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "guide", Dimensions: 2},
				testChunks([]float32{1, 0}, []float32{0, 1}))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if outcome.Created {
				created++
			}
			if outcome.AlreadyExisted {
				existing++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, attempts-1, existing)

	results, err := idx.Query(ctx, "guide", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestIndex_CreateIfAbsent_DimensionMismatchWritesNothing(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	_, err := idx.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "guide", Dimensions: 2},
		testChunks([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Error(t, err)

	exists, err := idx.CollectionExists(ctx, "guide")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIndex_CreateIfAbsent_InvalidMetric(t *testing.T) {
	idx := setupTestIndex(t)

	_, err := idx.CreateIfAbsent(context.Background(), domain.CollectionSpec{Name: "guide", Metric: "manhattan"}, nil)

	assert.ErrorIs(t, err, domain.ErrInvalidMetric)
}

func TestIndex_Query_OrdersByMetric(t *testing.T) {
	cases := []struct {
		metric domain.SimilarityMetric
		query  []float32
		want   []string
	}{
		{domain.MetricCosine, []float32{1, 0}, []string{"chunk 0", "chunk 2", "chunk 1"}},
		{domain.MetricL2, []float32{4, 4}, []string{"chunk 2", "chunk 0", "chunk 1"}},
		{domain.MetricInnerProduct, []float32{0, 1}, []string{"chunk 2", "chunk 1", "chunk 0"}},
	}

	for _, tc := range cases {
		t.Run(string(tc.metric), func(t *testing.T) {
			idx := setupTestIndex(t)
			ctx := context.Background()

			_, err := idx.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "guide", Metric: tc.metric, Dimensions: 2},
				testChunks([]float32{1, 0}, []float32{0, 0.5}, []float32{3, 3}))
			require.NoError(t, err)

			results, err := idx.Query(ctx, "guide", tc.query, 3)
			require.NoError(t, err)
			require.Len(t, results, 3)

			got := make([]string, len(results))
			for i, r := range results {
				got[i] = r.Content
			}
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
			assert.GreaterOrEqual(t, results[1].Score, results[2].Score)
		})
	}
}

func TestIndex_Query_ReturnsMetadataAndLimitsK(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	_, err := idx.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "guide", Dimensions: 2},
		testChunks([]float32{1, 0}, []float32{0.9, 0.1}, []float32{0, 1}))
	require.NoError(t, err)

	results, err := idx.Query(ctx, "guide", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chunk 0", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, domain.ChunkMetadata{Source: "guide.pdf", Page: 1, ChunkIndex: 0}, results[0].Metadata)
}

func TestIndex_Query_MissingCollection(t *testing.T) {
	idx := setupTestIndex(t)

	_, err := idx.Query(context.Background(), "absent", []float32{1, 0}, 3)

	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
	assert.Equal(t, domain.ErrCodeNotFound, domain.CodeOf(err))
}

func TestIndex_Query_WrongDimensions(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	_, err := idx.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "guide", Dimensions: 2}, testChunks([]float32{1, 0}))
	require.NoError(t, err)

	_, err = idx.Query(ctx, "guide", []float32{1, 0, 0}, 3)
	assert.Error(t, err)
}

func TestIndex_ListAndDelete(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	for _, name := range []string{"b_guide", "a_guide"} {
		_, err := idx.CreateIfAbsent(ctx, domain.CollectionSpec{Name: name, Dimensions: 2}, testChunks([]float32{1, 0}))
		require.NoError(t, err)
	}

	cols, err := idx.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "a_guide", cols[0].Name)

	require.NoError(t, idx.DeleteCollection(ctx, "a_guide"))
	exists, err := idx.CollectionExists(ctx, "a_guide")
	require.NoError(t, err)
	assert.False(t, exists)

	err = idx.DeleteCollection(ctx, "a_guide")
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)

	outcome, err := idx.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "a_guide", Dimensions: 2}, testChunks([]float32{0, 1}))
	require.NoError(t, err)
	assert.True(t, outcome.Created)
}

func TestOpen_ReopensExistingIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := Open(dir)
	require.NoError(t, err)
	_, err = idx.CreateIfAbsent(ctx, domain.CollectionSpec{Name: "guide", Dimensions: 2}, testChunks([]float32{1, 0}))
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	exists, err := reopened.CollectionExists(ctx, "guide")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFloat32Blob_RoundTrip(t *testing.T) {
	v := []float32{0, -1.5, 3.25, 1e-7}
	assert.Equal(t, v, bytesToFloat32Slice(float32SliceToBytes(v)))
}
