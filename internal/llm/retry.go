package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// RetryConfig configures retry/backoff and circuit-breaking around the
// chat-completions HTTP call.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Timeout           time.Duration

	CircuitBreakerEnabled bool
	FailureThreshold      int
	SuccessThreshold      int
	OpenTimeout           time.Duration

	MaxConcurrentCalls int
}

// DefaultRetryConfig returns sane production defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            3,
		InitialBackoff:        1 * time.Second,
		MaxBackoff:            30 * time.Second,
		BackoffMultiplier:     2.0,
		Timeout:               60 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
		MaxConcurrentCalls:    3,
	}
}

// CircuitState is one of Closed, Open, HalfOpen.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned by Allow when the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker prevents cascading failures by fast-failing once a
// provider's error rate crosses FailureThreshold.
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
	}
}

// Allow reports whether a call should proceed, transitioning Open→HalfOpen
// once OpenTimeout has elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.openTimeout {
			cb.state = CircuitHalfOpen
			cb.successCount = 0
			return nil
		}
		return ErrCircuitOpen
	case CircuitHalfOpen:
		return nil
	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess clears failures in Closed state, or counts toward closing
// in HalfOpen state.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

// RecordFailure counts toward opening in Closed state, or reopens
// immediately from HalfOpen.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.state = CircuitOpen
			cb.successCount = 0
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.successCount = 0
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// retryWithBackoff runs fn with exponential backoff and circuit-breaker
// gating, cancellable by ctx at every suspension point.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, cb *CircuitBreaker, operation string, fn func(context.Context) error) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if cb != nil {
			if err := cb.Allow(); err != nil {
				return fmt.Errorf("%s failed: %w", operation, err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if cb != nil {
				cb.RecordSuccess()
			}
			return nil
		}

		lastErr = err

		if cb != nil && isRetriableError(err) {
			cb.RecordFailure()
		}

		if !isRetriableError(err) {
			return err
		}

		if attempt == cfg.MaxRetries {
			break
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%s failed: context canceled: %w", operation, ctx.Err())
		}

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("%s failed: context canceled during backoff: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, cfg.MaxRetries+1, lastErr)
}

// isRetriableError classifies errors by string match: rate limits and
// 5xx/network errors are transient, 4xx client errors are not.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()

	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		return true
	}

	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "network") {
		return true
	}

	if strings.Contains(errStr, "400") || strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") || strings.Contains(errStr, "404") {
		return false
	}

	return false
}
