package diag

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pasturelab/vettriage/internal/metrics"
)

// Client is the public surface of the diagnostic service client.
type Client interface {
	// Diagnose sends a diagnostic request and returns the raw model reply.
	// The returned error is classifiable with IsRetryable.
	Diagnose(ctx context.Context, req *Request) (*Response, error)
}

type client struct {
	handler Handler
}

// New assembles a Client from cfg. The rate limiter sits inside retry so
// every attempt consumes a token, while the circuit breaker sits outside
// retry so an exhausted retry cycle counts as a single failure against the
// circuit. Logging is outermost and sees the final outcome of each call.
func New(cfg *Config, logger *slog.Logger, m metrics.Metrics) (Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("diagnostic client config: endpoint is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNoOp()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	core := &httpHandler{
		client:  httpClient,
		adapter: newServiceAdapter(cfg),
		timeout: cfg.HTTPTimeout,
	}

	retryMW, err := NewRetryMiddleware(cfg.Retry, logger)
	if err != nil {
		return nil, err
	}

	attemptHandler := Chain(core, NewRateLimitMiddleware(cfg.RateLimit))
	handler := Chain(retryMW(attemptHandler),
		NewLoggingMiddleware(logger, m, cfg.RedactPrompts),
		NewBreakerMiddleware(cfg.Breaker, logger),
	)
	return &client{handler: handler}, nil
}

func (c *client) Diagnose(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil diagnostic request")
	}
	if len(req.Messages) == 0 {
		return nil, ErrEmptyContent
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	return c.handler.Handle(ctx, req)
}
