package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()
	assert.Equal(t, 3, config.MaxAttempts)
	assert.Equal(t, 1*time.Second, config.InitialDelay)
	assert.Equal(t, 30*time.Second, config.MaxDelay)
	assert.Equal(t, 2.0, config.BackoffMultiplier)
	assert.Equal(t, 0.1, config.JitterFraction)
}

func TestBaseDelayExponentialAndCapped(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      1 * time.Second,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	})

	assert.Equal(t, 1*time.Second, policy.BaseDelay(0))
	assert.Equal(t, 2*time.Second, policy.BaseDelay(1))
	assert.Equal(t, 4*time.Second, policy.BaseDelay(2))
	assert.Equal(t, 5*time.Second, policy.BaseDelay(3), "delay is capped at MaxDelay")
	assert.Equal(t, 5*time.Second, policy.BaseDelay(10))
}

func TestBaseDelayMonotonic(t *testing.T) {
	policy := NewRetryPolicy(DefaultRetryConfig())
	prev := time.Duration(0)
	for attempt := 0; attempt < 8; attempt++ {
		d := policy.BaseDelay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		prev = d
	}
}

func TestNextDelayJitterBounds(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	})

	for i := 0; i < 100; i++ {
		d := policy.NextDelay(1)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 2200*time.Millisecond)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterFraction:    0,
	})

	var attempts int
	err := policy.Retry(context.Background(), func(ctx context.Context, attempt int) error {
		attempts = attempt
		if attempt < 3 {
			return NewError(NetworkError, "transient", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "fails k < maxAttempts times then succeeds on attempt k+1")
}

func TestRetryExhaustsAttempts(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterFraction:    0,
	})

	var attempts int
	err := policy.Retry(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return NewError(ServerError, "still down", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, ServerError, TypeOf(err))
}

func TestRetryTerminalClassesNotRetried(t *testing.T) {
	policy := NewRetryPolicy(DefaultRetryConfig())

	for _, class := range []ErrorType{AuthenticationError, ConfigurationError} {
		var attempts int
		err := policy.Retry(context.Background(), func(ctx context.Context, attempt int) error {
			attempts++
			return NewError(class, "terminal", nil)
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts, "%s must terminate after exactly one attempt", class)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      10 * time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := policy.Retry(ctx, func(ctx context.Context, attempt int) error {
		return NewError(NetworkError, "down", nil)
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "cancellation interrupts the backoff sleep")
	assert.Equal(t, TimeoutError, TypeOf(err))
}

func TestErrorTypeClassification(t *testing.T) {
	assert.Equal(t, AuthenticationError, classifyStatus(401))
	assert.Equal(t, AuthenticationError, classifyStatus(403))
	assert.Equal(t, ServerError, classifyStatus(500))
	assert.Equal(t, ServerError, classifyStatus(503))
	assert.Equal(t, ValidationError, classifyStatus(422))
	assert.Equal(t, TimeoutError, classifyStatus(408))

	assert.Equal(t, TimeoutError, TypeOf(context.DeadlineExceeded))
	assert.Equal(t, UnknownError, TypeOf(assert.AnError))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
}

func TestErrorTypeStatusStrings(t *testing.T) {
	assert.Equal(t, "connection_error", NetworkError.StatusString())
	assert.Equal(t, "timeout", TimeoutError.StatusString())
	assert.Equal(t, "auth_error", AuthenticationError.StatusString())
	assert.Equal(t, "validation_error", ValidationError.StatusString())
	assert.Equal(t, "error", ServerError.StatusString())
	assert.Equal(t, "error", UnknownError.StatusString())
}

func TestRetryableClasses(t *testing.T) {
	assert.True(t, NetworkError.Retryable())
	assert.True(t, TimeoutError.Retryable())
	assert.True(t, ServerError.Retryable())
	assert.True(t, ValidationError.Retryable())
	assert.True(t, UnknownError.Retryable())
	assert.False(t, AuthenticationError.Retryable())
	assert.False(t, ConfigurationError.Retryable())
}
