package discovery

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff for discovery attempts.
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	JitterFraction    float64       `json:"jitter_fraction"`
}

// DefaultRetryConfig returns the default retry configuration: three attempts
// with doubling delay from one second, capped at thirty seconds, plus up to
// 10% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// RetryPolicy implements exponential backoff with jitter for retryable
// discovery failures. The delay computation is a pure function of the
// attempt number so it can be tested without I/O.
type RetryPolicy struct {
	config RetryConfig
	rand   *rand.Rand
}

// NewRetryPolicy creates a retry policy, filling zero config values with
// defaults.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}
	if config.JitterFraction < 0 || config.JitterFraction > 1 {
		config.JitterFraction = def.JitterFraction
	}
	return &RetryPolicy{
		config: config,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// BaseDelay returns the backoff delay for the given zero-based attempt
// number, without jitter: min(initial * multiplier^attempt, maxDelay).
func (p *RetryPolicy) BaseDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempt))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// NextDelay returns the backoff delay for the given zero-based attempt
// number with jitter applied.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	base := p.BaseDelay(attempt)
	if p.config.JitterFraction == 0 {
		return base
	}
	jitter := time.Duration(p.rand.Float64() * p.config.JitterFraction * float64(base))
	return base + jitter
}

// MaxAttempts returns the configured attempt bound.
func (p *RetryPolicy) MaxAttempts() int {
	return p.config.MaxAttempts
}

// ShouldRetry reports whether another attempt should be made after a failure
// on the given one-based attempt count. Terminal error classes are never
// retried.
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}
	if attempts >= p.config.MaxAttempts {
		return false
	}
	return TypeOf(err).Retryable()
}

// AttemptFunc is one unit of retryable work. The one-based attempt number is
// passed in for logging and history recording.
type AttemptFunc func(ctx context.Context, attempt int) error

// Retry runs fn under the policy, sleeping the backoff delay between
// attempts. It is independent of the HTTP client; any retryable operation
// can use it. The last error is returned when attempts are exhausted or the
// failure class is terminal.
func (p *RetryPolicy) Retry(ctx context.Context, fn AttemptFunc) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if !p.ShouldRetry(attempt, lastErr) {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return NewError(TimeoutError, "discovery cancelled while backing off", ctx.Err())
		case <-time.After(p.NextDelay(attempt - 1)):
		}
	}
}
