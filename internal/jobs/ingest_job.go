package jobs

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cloo-solutions/tenantpal/internal/domain"
	"github.com/cloo-solutions/tenantpal/internal/service"
)

// Ingester runs one ingestion.
type Ingester interface {
	Ingest(ctx context.Context, req service.IngestRequest) (*domain.IngestResult, error)
}

// IngestJob makes sure a collection exists, retrying transient failures
// until maxAttempts is reached. Configuration errors are final.
type IngestJob struct {
	ingester    Ingester
	req         service.IngestRequest
	maxAttempts int
	logger      *zap.Logger

	mu       sync.Mutex
	attempts int
	result   *domain.IngestResult
}

// NewIngestJob creates the job. maxAttempts <= 0 retries forever.
func NewIngestJob(ingester Ingester, req service.IngestRequest, maxAttempts int, logger *zap.Logger) *IngestJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestJob{ingester: ingester, req: req, maxAttempts: maxAttempts, logger: logger}
}

func (j *IngestJob) ProcessJobs(ctx context.Context) (bool, error) {
	j.mu.Lock()
	j.attempts++
	attempt := j.attempts
	j.mu.Unlock()

	log := j.logger.With(zap.String("collection", j.req.Collection), zap.Int("attempt", attempt))

	result, err := j.ingester.Ingest(ctx, j.req)
	if err != nil {
		if domain.HasCode(err, domain.ErrCodeConfig) {
			return true, err
		}
		if j.maxAttempts > 0 && attempt >= j.maxAttempts {
			log.Error("giving up on ingestion")
			return true, err
		}
		return false, err
	}

	j.mu.Lock()
	j.result = result
	j.mu.Unlock()

	log.Info("background ingestion complete",
		zap.String("status", string(result.Status)),
		zap.Int("chunks", result.ChunkCount))
	return true, nil
}

// Result returns the successful ingestion result, or nil.
func (j *IngestJob) Result() *domain.IngestResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Attempts returns how many times the job has run.
func (j *IngestJob) Attempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts
}
