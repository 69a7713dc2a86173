package diag

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pasturelab/vettriage/internal/metrics"
)

// NewLoggingMiddleware wraps the pipeline with structured request lifecycle
// logging and metrics. Message content is redacted when configured; token
// and latency accounting is always recorded.
func NewLoggingMiddleware(logger *slog.Logger, m metrics.Metrics, redactPrompts bool) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNoOp()
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			requestID := req.IdempotencyKey
			if requestID == "" {
				requestID = uuid.New().String()
			}

			attrs := []any{
				"request_id", requestID,
				"task", string(req.Task),
				"priority", string(req.Priority),
				"messages", len(req.Messages),
			}
			if !redactPrompts && len(req.Messages) > 0 {
				attrs = append(attrs, "first_message", req.Messages[len(req.Messages)-1].Content)
			}
			logger.Debug("diagnostic request started", attrs...)

			start := time.Now()
			resp, err := next.Handle(ctx, req)
			elapsed := time.Since(start)

			tags := map[string]string{"task": string(req.Task)}
			m.RecordHistogram("diag_request_seconds", tags, elapsed.Seconds())

			if err != nil {
				m.IncrementCounter("diag_requests_total", map[string]string{
					"task": string(req.Task), "outcome": "error",
				}, 1)
				logger.Warn("diagnostic request failed",
					"request_id", requestID,
					"task", string(req.Task),
					"elapsed_ms", elapsed.Milliseconds(),
					"error", err)
				return nil, err
			}

			m.IncrementCounter("diag_requests_total", map[string]string{
				"task": string(req.Task), "outcome": "ok",
			}, 1)
			logger.Info("diagnostic request completed",
				"request_id", requestID,
				"task", string(req.Task),
				"model", resp.Model,
				"elapsed_ms", elapsed.Milliseconds(),
				"prompt_tokens", resp.Usage.PromptTokens,
				"completion_tokens", resp.Usage.CompletionTokens,
				"cost_cents", int64(resp.Usage.CostCents))
			return resp, nil
		})
	}
}
