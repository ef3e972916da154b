package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

// OrderOp is one logical upstream order call.
type OrderOp func(ctx context.Context) ([]*domain.Order, error)

// Retrier makes a single upstream call resilient to transient failures.
//
// Classification:
//   - success: returned as-is, a nil list becomes an empty one
//   - malformed payload, not found, bad request: empty result, no retry
//   - rate limited: retried after Retry-After if the upstream sent one,
//     otherwise after the current backoff
//   - anything else: retried with exponential backoff and jitter
//
// Once MaxRetries retries are used the last error is returned.
type Retrier struct {
	maxRetries   int
	initialDelay time.Duration
	minDelay     time.Duration
	jitter       float64
	sleep        SleepFunc
	random       func() float64
	logger       *slog.Logger
}

// RetrierConfig holds configuration for a Retrier.
type RetrierConfig struct {
	MaxRetries   int           // Retries after the first attempt (default: 3)
	InitialDelay time.Duration // First backoff delay, doubled per retry (default: 1s)
	MinDelay     time.Duration // Floor applied to jittered delays (default: 1s)
	Jitter       float64       // Fractional jitter applied to backoff (default: 0.2)
	Sleep        SleepFunc
	Random       func() float64 // Returns values in [0,1) (default: math/rand)
	Logger       *slog.Logger
}

// NewRetrier creates a new retry executor.
func NewRetrier(cfg RetrierConfig) *Retrier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = 3
	}

	initialDelay := cfg.InitialDelay
	if initialDelay <= 0 {
		initialDelay = time.Second
	}

	minDelay := cfg.MinDelay
	if minDelay <= 0 {
		minDelay = time.Second
	}

	jitter := cfg.Jitter
	if jitter <= 0 || jitter >= 1 {
		jitter = 0.2
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	random := cfg.Random
	if random == nil {
		random = rand.Float64
	}

	return &Retrier{
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		minDelay:     minDelay,
		jitter:       jitter,
		sleep:        sleep,
		random:       random,
		logger:       logger,
	}
}

// Execute runs op, retrying transient failures.
func (r *Retrier) Execute(ctx context.Context, op OrderOp) ([]*domain.Order, error) {
	delay := r.initialDelay

	for attempt := 0; ; attempt++ {
		orders, err := op(ctx)
		if err == nil {
			if orders == nil {
				return []*domain.Order{}, nil
			}
			return orders, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if errors.Is(err, domain.ErrMalformedResponse) {
			r.logger.Warn("malformed upstream payload, treating as empty", "error", err)
			return []*domain.Order{}, nil
		}
		if domain.IsPermanent(err) {
			r.logger.Warn("permanent upstream error, treating as empty", "error", err)
			return []*domain.Order{}, nil
		}
		if !domain.IsRetryable(err) {
			return nil, fmt.Errorf("upstream call rejected: %w", err)
		}

		if attempt >= r.maxRetries {
			return nil, fmt.Errorf("upstream call failed after %d attempts: %w", attempt+1, err)
		}

		wait := r.backoff(delay)
		if errors.Is(err, domain.ErrRateLimited) {
			if retryAfter, ok := domain.RetryAfter(err); ok {
				wait = retryAfter
			}
		}

		r.logger.Warn("upstream call failed, retrying",
			"attempt", attempt+1,
			"max_retries", r.maxRetries,
			"delay", wait,
			"error", err,
		)

		if err := r.sleep(ctx, wait); err != nil {
			return nil, err
		}
		delay *= 2
	}
}

// backoff applies ±jitter to d and floors the result at minDelay.
func (r *Retrier) backoff(d time.Duration) time.Duration {
	factor := 1 + r.jitter*(2*r.random()-1)
	wait := time.Duration(float64(d) * factor)
	if wait < r.minDelay {
		wait = r.minDelay
	}
	return wait
}
