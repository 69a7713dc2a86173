package diag

import (
	"net/http"
	"time"
)

// Config holds the diagnostic client configuration. Injected at
// construction; there is no process-wide singleton.
type Config struct {
	// Endpoint is the diagnostic service base URL.
	Endpoint string `json:"endpoint"`

	// APIKey authenticates to the service. Not serialized.
	APIKey string `json:"-"`

	// Model selects the remote diagnostic model.
	Model string `json:"model"`

	// HTTPTimeout bounds a single HTTP round trip.
	HTTPTimeout time.Duration `json:"http_timeout"`

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client `json:"-"`

	Retry     RetryConfig     `json:"retry"`
	Breaker   BreakerConfig   `json:"breaker"`
	RateLimit RateLimitConfig `json:"rate_limit"`

	// RedactPrompts suppresses message content in logs.
	RedactPrompts bool `json:"redact_prompts"`
}

// RetryConfig controls the retry middleware.
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts"`
	InitialInterval time.Duration `json:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval"`
	Multiplier      float64       `json:"multiplier"`
	UseJitter       bool          `json:"use_jitter"`
}

// BreakerConfig controls the circuit breaker middleware.
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	OpenTimeout      time.Duration `json:"open_timeout"`
}

// RateLimitConfig controls the local token-bucket rate limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// DefaultConfig returns production-ready defaults. The endpoint, key, and
// model still need to be set by the caller.
func DefaultConfig() *Config {
	return &Config{
		HTTPTimeout: 60 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Second,
			MaxInterval:     10 * time.Second,
			Multiplier:      2.0,
			UseJitter:       true,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			OpenTimeout:      30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
	}
}
