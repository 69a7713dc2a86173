package diag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// retryMiddleware implements retry with exponential backoff and full jitter,
// respecting server Retry-After guidance when a ServiceError carries it.
type retryMiddleware struct {
	config RetryConfig
	logger *slog.Logger
}

// NewRetryMiddleware creates retry middleware with the given configuration.
func NewRetryMiddleware(cfg RetryConfig, logger *slog.Logger) (Middleware, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("retry: maxAttempts must be > 0, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialInterval <= 0 {
		return nil, fmt.Errorf("retry: initialInterval must be > 0, got %v", cfg.InitialInterval)
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		return nil, fmt.Errorf("retry: maxInterval %v < initialInterval %v", cfg.MaxInterval, cfg.InitialInterval)
	}
	if cfg.Multiplier < 1.0 {
		return nil, fmt.Errorf("retry: multiplier must be >= 1.0, got %f", cfg.Multiplier)
	}
	if logger == nil {
		logger = slog.Default()
	}
	rm := &retryMiddleware{config: cfg, logger: logger.With("component", "retry")}
	return rm.middleware, nil
}

func (r *retryMiddleware) middleware(next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		var lastErr error

		for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
			if attempt > 0 {
				delay := r.backoff(attempt, lastErr)
				r.logger.Debug("retrying diagnostic request",
					"attempt", attempt+1,
					"max_attempts", r.config.MaxAttempts,
					"delay", delay,
					"last_error", lastErr)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, fmt.Errorf("retry wait cancelled: %w", ctx.Err())
				}
			}

			resp, err := next.Handle(ctx, req)
			if err == nil {
				return resp, nil
			}
			lastErr = err

			if !IsRetryable(err) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("context ended during retries: %w", ctx.Err())
			}
		}

		return nil, fmt.Errorf("%w after %d attempts: %w",
			ErrMaxRetriesExceeded, r.config.MaxAttempts, lastErr)
	})
}

// backoff computes the wait before the given attempt. Server Retry-After
// guidance overrides the computed schedule.
func (r *retryMiddleware) backoff(attempt int, lastErr error) time.Duration {
	var se *ServiceError
	if errors.As(lastErr, &se) && se.RetryAfter > 0 {
		return time.Duration(se.RetryAfter) * time.Second
	}

	d := r.config.InitialInterval
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * r.config.Multiplier)
		if d >= r.config.MaxInterval {
			d = r.config.MaxInterval
			break
		}
	}
	if r.config.UseJitter {
		// Full jitter spreads concurrent retries across [0, d).
		d = time.Duration(rand.Int63n(int64(d) + 1))
	}
	return d
}
