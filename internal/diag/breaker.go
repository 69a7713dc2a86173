package diag

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CircuitState is the breaker's state machine position.
type CircuitState int32

const (
	// StateClosed allows requests through.
	StateClosed CircuitState = iota
	// StateOpen blocks all requests until the open timeout elapses.
	StateOpen
	// StateHalfOpen allows limited probes to test recovery.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// circuitBreaker is a single-process breaker guarding the diagnostic
// service. Consecutive failures open it; after the open timeout a probe is
// admitted, and consecutive probe successes close it again. The degradation
// chain absorbs open-circuit errors the same way it absorbs any other remote
// failure, so a fast-failing breaker just moves jobs to the fallback tier
// sooner.
type circuitBreaker struct {
	mu sync.Mutex

	config BreakerConfig
	logger *slog.Logger

	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreakerMiddleware creates circuit breaker middleware.
func NewBreakerMiddleware(cfg BreakerConfig, logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	cb := &circuitBreaker{
		config: cfg,
		logger: logger.With("component", "circuit_breaker"),
		state:  StateClosed,
	}
	return cb.middleware
}

func (cb *circuitBreaker) middleware(next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if !cb.allow() {
			return nil, ErrCircuitOpen
		}

		resp, err := next.Handle(ctx, req)
		if err != nil && IsRetryable(err) {
			cb.recordFailure()
			return nil, err
		}
		if err != nil {
			// Non-retryable errors (auth, validation) say nothing about
			// service health; don't trip the breaker on them.
			return nil, err
		}
		cb.recordSuccess()
		return resp, nil
	})
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.OpenTimeout {
			cb.transition(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.transition(StateOpen)
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateOpen:
		// Already open; a straggler failure changes nothing.
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	case StateOpen:
		// Success while open means an in-flight request finished late.
	}
}

// transition moves the breaker and resets counters. Callers hold the lock.
func (cb *circuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if to == StateOpen {
		cb.openedAt = time.Now()
	}
	cb.logger.Info("circuit breaker transition", "from", from.String(), "to", to.String())
}
