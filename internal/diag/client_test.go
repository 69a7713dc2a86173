package diag_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasturelab/vettriage/internal/diag"
)

func testConfig(endpoint string) *diag.Config {
	cfg := diag.DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.APIKey = "test-key"
	cfg.Model = "vet-diag-1"
	cfg.HTTPTimeout = 5 * time.Second
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = 5 * time.Millisecond
	cfg.Retry.UseJitter = false
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000
	return cfg
}

func okPayload(content string) string {
	return fmt.Sprintf(`{"content":%q,"model":"vet-diag-1","usage":{"prompt_tokens":120,"completion_tokens":80,"cost_cents":3}}`, content)
}

func simpleRequest() *diag.Request {
	return &diag.Request{
		Task: diag.TaskLiveDiagnosis,
		Messages: []diag.Message{
			{Role: diag.RoleSystem, Content: "You are a livestock veterinarian."},
			{Role: diag.RoleUser, Content: "Symptoms: coughing, reduced feed intake."},
		},
	}
}

func TestClientDiagnose(t *testing.T) {
	t.Run("success returns normalized response", func(t *testing.T) {
		var gotAuth, gotIdem string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotIdem = r.Header.Get("Idempotency-Key")
			assert.Equal(t, "/v1/diagnose", r.URL.Path)
			fmt.Fprint(w, okPayload(`{"findings":[]}`))
		}))
		defer srv.Close()

		client, err := diag.New(testConfig(srv.URL), slog.Default(), nil)
		require.NoError(t, err)

		req := simpleRequest()
		req.IdempotencyKey = "job-123:1"
		resp, err := client.Diagnose(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, `{"findings":[]}`, resp.Content)
		assert.Equal(t, "vet-diag-1", resp.Model)
		assert.EqualValues(t, 120, resp.Usage.PromptTokens)
		assert.EqualValues(t, 3, resp.Usage.CostCents)
		assert.Equal(t, "Bearer test-key", gotAuth)
		assert.Equal(t, "job-123:1", gotIdem)
	})

	t.Run("retries transient failures until success", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, okPayload("recovered"))
		}))
		defer srv.Close()

		client, err := diag.New(testConfig(srv.URL), slog.Default(), nil)
		require.NoError(t, err)

		resp, err := client.Diagnose(context.Background(), simpleRequest())
		require.NoError(t, err)
		assert.Equal(t, "recovered", resp.Content)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("exhausted retries surface ErrMaxRetriesExceeded", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		cfg := testConfig(srv.URL)
		cfg.Retry.MaxAttempts = 3
		client, err := diag.New(cfg, slog.Default(), nil)
		require.NoError(t, err)

		_, err = client.Diagnose(context.Background(), simpleRequest())
		require.Error(t, err)
		assert.ErrorIs(t, err, diag.ErrMaxRetriesExceeded)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("non-retryable errors fail immediately", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"bad key","code":"invalid_api_key"}}`)
		}))
		defer srv.Close()

		client, err := diag.New(testConfig(srv.URL), slog.Default(), nil)
		require.NoError(t, err)

		_, err = client.Diagnose(context.Background(), simpleRequest())
		require.Error(t, err)

		var se *diag.ServiceError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
		assert.Equal(t, diag.ErrorTypeAuth, se.Type)
		assert.Equal(t, "bad key", se.Message)
		assert.False(t, se.IsRetryable())
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("empty message list rejected without a network call", func(t *testing.T) {
		client, err := diag.New(testConfig("http://127.0.0.1:0"), slog.Default(), nil)
		require.NoError(t, err)

		_, err = client.Diagnose(context.Background(), &diag.Request{Task: diag.TaskLiveDiagnosis})
		assert.ErrorIs(t, err, diag.ErrEmptyContent)
	})

	t.Run("missing endpoint rejected at construction", func(t *testing.T) {
		cfg := diag.DefaultConfig()
		_, err := diag.New(cfg, slog.Default(), nil)
		assert.Error(t, err)
	})
}

func TestRetryMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		cfg     diag.RetryConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     diag.RetryConfig{MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: 10 * time.Second, Multiplier: 2},
			wantErr: false,
		},
		{
			name:    "zero attempts",
			cfg:     diag.RetryConfig{MaxAttempts: 0, InitialInterval: time.Second, MaxInterval: 10 * time.Second, Multiplier: 2},
			wantErr: true,
		},
		{
			name:    "max below initial",
			cfg:     diag.RetryConfig{MaxAttempts: 3, InitialInterval: 10 * time.Second, MaxInterval: time.Second, Multiplier: 2},
			wantErr: true,
		},
		{
			name:    "multiplier below one",
			cfg:     diag.RetryConfig{MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: 10 * time.Second, Multiplier: 0.5},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := diag.NewRetryMiddleware(tt.cfg, slog.Default())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("server retry-after overrides backoff", func(t *testing.T) {
		mw, err := diag.NewRetryMiddleware(diag.RetryConfig{
			MaxAttempts:     2,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			Multiplier:      1,
		}, slog.Default())
		require.NoError(t, err)

		var calls atomic.Int32
		handler := mw(diag.HandlerFunc(func(ctx context.Context, req *diag.Request) (*diag.Response, error) {
			if calls.Add(1) == 1 {
				return nil, &diag.ServiceError{
					StatusCode: http.StatusTooManyRequests,
					Type:       diag.ErrorTypeRateLimit,
					RetryAfter: 1,
				}
			}
			return &diag.Response{Content: "ok"}, nil
		}))

		start := time.Now()
		resp, err := handler.Handle(context.Background(), simpleRequest())
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Content)
		assert.GreaterOrEqual(t, time.Since(start), time.Second)
	})
}

func TestBreakerMiddleware(t *testing.T) {
	failing := diag.HandlerFunc(func(ctx context.Context, req *diag.Request) (*diag.Response, error) {
		return nil, &diag.ServiceError{StatusCode: http.StatusInternalServerError, Type: diag.ErrorTypeService}
	})

	t.Run("opens after consecutive failures", func(t *testing.T) {
		mw := diag.NewBreakerMiddleware(diag.BreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			OpenTimeout:      time.Minute,
		}, slog.Default())
		handler := mw(failing)

		ctx := context.Background()
		req := simpleRequest()
		for i := 0; i < 2; i++ {
			_, err := handler.Handle(ctx, req)
			var se *diag.ServiceError
			require.ErrorAs(t, err, &se)
		}

		_, err := handler.Handle(ctx, req)
		assert.ErrorIs(t, err, diag.ErrCircuitOpen)
	})

	t.Run("non-retryable failures do not trip the breaker", func(t *testing.T) {
		mw := diag.NewBreakerMiddleware(diag.BreakerConfig{
			FailureThreshold: 1,
			SuccessThreshold: 1,
			OpenTimeout:      time.Minute,
		}, slog.Default())
		handler := mw(diag.HandlerFunc(func(ctx context.Context, req *diag.Request) (*diag.Response, error) {
			return nil, &diag.ServiceError{StatusCode: http.StatusUnauthorized, Type: diag.ErrorTypeAuth}
		}))

		ctx := context.Background()
		req := simpleRequest()
		for i := 0; i < 3; i++ {
			_, err := handler.Handle(ctx, req)
			require.NotErrorIs(t, err, diag.ErrCircuitOpen)
		}
	})

	t.Run("half-open success closes the circuit", func(t *testing.T) {
		mw := diag.NewBreakerMiddleware(diag.BreakerConfig{
			FailureThreshold: 1,
			SuccessThreshold: 1,
			OpenTimeout:      10 * time.Millisecond,
		}, slog.Default())

		var fail atomic.Bool
		fail.Store(true)
		handler := mw(diag.HandlerFunc(func(ctx context.Context, req *diag.Request) (*diag.Response, error) {
			if fail.Load() {
				return nil, &diag.ServiceError{StatusCode: http.StatusInternalServerError, Type: diag.ErrorTypeService}
			}
			return &diag.Response{Content: "ok"}, nil
		}))

		ctx := context.Background()
		req := simpleRequest()

		_, err := handler.Handle(ctx, req)
		require.Error(t, err)
		_, err = handler.Handle(ctx, req)
		require.ErrorIs(t, err, diag.ErrCircuitOpen)

		fail.Store(false)
		time.Sleep(20 * time.Millisecond)

		resp, err := handler.Handle(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Content)

		// Still closed on the next call.
		_, err = handler.Handle(ctx, req)
		assert.NoError(t, err)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	mw := diag.NewRateLimitMiddleware(diag.RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	handler := mw(diag.HandlerFunc(func(ctx context.Context, req *diag.Request) (*diag.Response, error) {
		return &diag.Response{Content: "ok"}, nil
	}))

	ctx := context.Background()
	req := simpleRequest()
	for i := 0; i < 2; i++ {
		_, err := handler.Handle(ctx, req)
		require.NoError(t, err)
	}

	_, err := handler.Handle(ctx, req)
	assert.ErrorIs(t, err, diag.ErrRateLimited)
	assert.False(t, diag.IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"service error 503", &diag.ServiceError{Type: diag.ErrorTypeService}, true},
		{"timeout", &diag.ServiceError{Type: diag.ErrorTypeTimeout}, true},
		{"remote rate limit", &diag.ServiceError{Type: diag.ErrorTypeRateLimit}, true},
		{"auth", &diag.ServiceError{Type: diag.ErrorTypeAuth}, false},
		{"quota", &diag.ServiceError{Type: diag.ErrorTypeQuota}, false},
		{"validation", &diag.ServiceError{Type: diag.ErrorTypeValidation}, false},
		{"circuit open", diag.ErrCircuitOpen, false},
		{"local rate limit", diag.ErrRateLimited, false},
		{"bare transport error", errors.New("connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, diag.IsRetryable(tt.err))
		})
	}
}
