package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/service"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// MockIngester is a mock implementation of Ingester
type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) Ingest(ctx context.Context, req service.IngestRequest) (*domain.IngestResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestResult), args.Error(1)
}

func startWorker(ctx context.Context, w *Worker) *sync.WaitGroup {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Start(ctx)
	}()
	return &wg
}

func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(false, nil)

	worker := NewWorker(mockProcessor, 20*time.Millisecond, zap.NewNop())
	wg := startWorker(context.Background(), worker)

	time.Sleep(70 * time.Millisecond)
	worker.Stop()
	wg.Wait()

	assert.GreaterOrEqual(t, len(mockProcessor.Calls), 2)
}

func TestWorker_ProcessesImmediately(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(true, nil).Once()

	worker := NewWorker(mockProcessor, time.Hour, zap.NewNop())
	startWorker(context.Background(), worker)

	select {
	case <-worker.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not finish")
	}
	mockProcessor.AssertNumberOfCalls(t, "ProcessJobs", 1)

	worker.Stop()
}

func TestWorker_RetriesUntilDone(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(false, errors.New("transient")).Twice()
	mockProcessor.On("ProcessJobs", mock.Anything).Return(true, nil).Once()

	worker := NewWorker(mockProcessor, 10*time.Millisecond, nil)
	wg := startWorker(context.Background(), worker)
	wg.Wait()

	mockProcessor.AssertNumberOfCalls(t, "ProcessJobs", 3)
}

func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(false, nil)

	worker := NewWorker(mockProcessor, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	wg := startWorker(ctx, worker)

	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func ingestRequest() service.IngestRequest {
	return service.IngestRequest{DocumentPath: "guide.pdf", Collection: "guide", ChunkSize: 1000, ChunkOverlap: 200}
}

func TestIngestJob_Success(t *testing.T) {
	ingester := new(MockIngester)
	created := &domain.IngestResult{Status: domain.IngestStatusCreated, Collection: "guide", ChunkCount: 12}
	ingester.On("Ingest", mock.Anything, ingestRequest()).Return(created, nil)

	job := NewIngestJob(ingester, ingestRequest(), 3, nil)
	done, err := job.ProcessJobs(context.Background())

	require.NoError(t, err)
	assert.True(t, done)
	assert.Same(t, created, job.Result())
	assert.Equal(t, 1, job.Attempts())
}

func TestIngestJob_RetriesTransientErrors(t *testing.T) {
	ingester := new(MockIngester)
	transient := domain.NewDomainErrorWithCause(domain.ErrCodeEmbedding, domain.ErrEmbeddingFailed.Message, errors.New("503"))
	ingester.On("Ingest", mock.Anything, mock.Anything).Return(nil, transient)

	job := NewIngestJob(ingester, ingestRequest(), 2, zap.NewNop())

	done, err := job.ProcessJobs(context.Background())
	assert.Error(t, err)
	assert.False(t, done)

	done, err = job.ProcessJobs(context.Background())
	assert.Error(t, err)
	assert.True(t, done, "gives up after max attempts")
	assert.Nil(t, job.Result())
}

func TestIngestJob_ConfigErrorIsFinal(t *testing.T) {
	ingester := new(MockIngester)
	ingester.On("Ingest", mock.Anything, mock.Anything).Return(nil, domain.ErrInvalidChunkParams)

	job := NewIngestJob(ingester, ingestRequest(), 0, zap.NewNop())
	done, err := job.ProcessJobs(context.Background())

	assert.ErrorIs(t, err, domain.ErrInvalidChunkParams)
	assert.True(t, done)
}

func TestIngestJob_WithWorker(t *testing.T) {
	ingester := new(MockIngester)
	ingester.On("Ingest", mock.Anything, mock.Anything).
		Return(nil, domain.NewDomainErrorWithCause(domain.ErrCodeLoad, domain.ErrDocumentUnreadable.Message, errors.New("timeout"))).Once()
	ingester.On("Ingest", mock.Anything, mock.Anything).
		Return(&domain.IngestResult{Status: domain.IngestStatusSkipped, Collection: "guide"}, nil).Once()

	job := NewIngestJob(ingester, ingestRequest(), 5, zap.NewNop())
	worker := NewWorker(job, 10*time.Millisecond, zap.NewNop())
	startWorker(context.Background(), worker).Wait()

	assert.Equal(t, 2, job.Attempts())
	require.NotNil(t, job.Result())
	assert.True(t, job.Result().Skipped())
}
