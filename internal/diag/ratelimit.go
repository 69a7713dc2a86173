package diag

import (
	"context"

	"golang.org/x/time/rate"
)

// NewRateLimitMiddleware creates a local token-bucket limit on outbound
// diagnostic calls. The bucket allows controlled bursts while holding the
// average rate; an exhausted bucket fails the request immediately rather
// than queueing, because the degradation chain provides the slow path.
func NewRateLimitMiddleware(cfg RateLimitConfig) Middleware {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next.Handle(ctx, req)
		})
	}
}
