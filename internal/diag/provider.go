package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pasturelab/vettriage/internal/domain"
)

// serviceAdapter speaks the diagnostic service's wire format: role-tagged
// messages in, a content payload with model id and token/cost accounting out.
type serviceAdapter struct {
	endpoint string
	apiKey   string
	model    string
}

func newServiceAdapter(cfg *Config) *serviceAdapter {
	return &serviceAdapter{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
	}
}

// build constructs the HTTP request for the diagnostic call.
func (a *serviceAdapter) build(ctx context.Context, req *Request) (*http.Request, error) {
	messages := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, map[string]string{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}

	body := map[string]any{
		"model":    a.model,
		"task":     string(req.Task),
		"priority": string(req.Priority),
		"messages": messages,
	}
	if len(req.ImageRefs) > 0 {
		body["image_refs"] = req.ImageRefs
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal diagnostic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.endpoint+"/v1/diagnose", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create diagnostic request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	return httpReq, nil
}

// parse extracts the normalized response from the service reply.
func (a *serviceAdapter) parse(httpResp *http.Response) (*Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read diagnostic response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseServiceError(httpResp, body)
	}

	var resp struct {
		Content string `json:"content"`
		Model   string `json:"model"`
		Usage   struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
			CostCents        int64 `json:"cost_cents"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode diagnostic response: %w", err)
	}
	if resp.Content == "" {
		return nil, ErrEmptyContent
	}

	return &Response{
		Content: resp.Content,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			CostCents:        domain.Cents(resp.Usage.CostCents),
		},
	}, nil
}

func parseServiceError(httpResp *http.Response, body []byte) error {
	se := &ServiceError{
		StatusCode: httpResp.StatusCode,
		Type:       classifyStatus(httpResp.StatusCode),
		Message:    http.StatusText(httpResp.StatusCode),
	}

	var payload struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		se.Message = payload.Error.Message
		se.Code = payload.Error.Code
	}

	if ra := httpResp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			se.RetryAfter = secs
		}
	}
	return se
}

// httpHandler is the core handler that performs the actual HTTP call.
type httpHandler struct {
	client  *http.Client
	adapter *serviceAdapter
	timeout time.Duration
}

// Handle implements Handler with a single HTTP round trip.
func (h *httpHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	reqCtx := ctx
	timeout := h.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := h.adapter.build(reqCtx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := h.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("diagnostic HTTP request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	resp, err := h.adapter.parse(httpResp)
	if err != nil {
		return nil, err
	}
	resp.Usage.LatencyMs = latency.Milliseconds()
	return resp, nil
}
