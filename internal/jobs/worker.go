// Package jobs runs background work on a polling loop.
package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobProcessor defines the interface for processing jobs. done reports that
// nothing is left to do and the worker can exit.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) (done bool, err error)
}

// Worker represents a background job worker
type Worker struct {
	processor    JobProcessor
	pollInterval time.Duration
	logger       *zap.Logger
	stopChan     chan struct{}
	doneChan     chan struct{}
	stopOnce     sync.Once
}

// NewWorker creates a new Worker instance
func NewWorker(processor JobProcessor, pollInterval time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		processor:    processor,
		pollInterval: pollInterval,
		logger:       logger,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start processes once immediately and then on every tick until the
// processor is done, the context is canceled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	w.logger.Info("worker started", zap.Duration("poll_interval", w.pollInterval))
	if w.process(ctx) {
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped: context cancelled")
			return
		case <-w.stopChan:
			w.logger.Info("worker stopped: stop signal received")
			return
		case <-ticker.C:
			if w.process(ctx) {
				return
			}
		}
	}
}

func (w *Worker) process(ctx context.Context) bool {
	done, err := w.processor.ProcessJobs(ctx)
	if err != nil {
		w.logger.Error("error processing jobs", zap.Error(err), zap.Bool("done", done))
	}
	if done {
		w.logger.Info("worker finished")
	}
	return done
}

// Done is closed when Start returns.
func (w *Worker) Done() <-chan struct{} {
	return w.doneChan
}

// Stop signals the worker and waits for Start to return. It must only be
// called after Start.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
}
