// Package resilience guards the reasoning capability with a circuit breaker
// and a request rate limit. Neither retries a failed call.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

// Completer issues one chat completion.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

// Config controls which guards are active.
type Config struct {
	BreakerEnabled    bool
	RequestsPerMinute int
	// Breaker tuning; zero values use the defaults below.
	BreakerInterval time.Duration
	BreakerTimeout  time.Duration
}

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("reasoning capability circuit is open")

// Guarded wraps a Completer with the configured guards.
type Guarded struct {
	next    Completer
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// Wrap returns next unchanged when no guard is enabled.
func Wrap(next Completer, cfg Config, logger *zap.Logger) Completer {
	if !cfg.BreakerEnabled && cfg.RequestsPerMinute <= 0 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Guarded{next: next}

	if cfg.BreakerEnabled {
		interval := cfg.BreakerInterval
		if interval <= 0 {
			interval = 10 * time.Second
		}
		timeout := cfg.BreakerTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ReasoningCapability",
			MaxRequests: 1,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	if cfg.RequestsPerMinute > 0 {
		burst := max(1, cfg.RequestsPerMinute/10)
		g.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}

	return g
}

// Complete waits for the limiter, then calls through the breaker.
func (g *Guarded) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	if g.breaker == nil {
		return g.next.Complete(ctx, req)
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return "", err
	}
	return out.(string), nil
}
