package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	r := New(&Config{})

	assert.Equal(t, time.Second, r.config.InitialInterval)
	assert.Equal(t, 30*time.Second, r.config.MaxInterval)
	assert.Equal(t, 2.0, r.config.Multiplier)
}

func TestRetrier_Do_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	result := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, result.Err)
	assert.Equal(t, 3, result.Attempts)
}

func TestRetrier_Do_MaxRetriesExceeded(t *testing.T) {
	boom := errors.New("boom")
	result := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		return Retryable(boom)
	})

	assert.ErrorIs(t, result.Err, ErrMaxRetriesExceeded)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, boom, result.LastError)
}

func TestRetrier_Do_PermanentStops(t *testing.T) {
	boom := errors.New("bad input")
	attempts := 0
	result := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		return Permanent(boom)
	})

	assert.Equal(t, boom, result.Err)
	assert.Equal(t, 1, attempts)
}

func TestRetrier_Do_ShouldRetryClassifies(t *testing.T) {
	conflict := errors.New("conflict")
	terminal := errors.New("terminal")

	cfg := fastConfig(5)
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, conflict) }

	attempts := 0
	result := Do(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return conflict
		}
		return terminal
	})

	assert.Equal(t, terminal, result.Err)
	assert.Equal(t, 2, attempts)
}

func TestRetrier_Do_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Do(ctx, fastConfig(3), func(ctx context.Context) error {
		t.Fatal("operation should not run")
		return nil
	})

	assert.ErrorIs(t, result.Err, ErrContextCanceled)
	assert.Equal(t, 1, result.Attempts)
}

func TestRetrier_CalculateInterval_Capped(t *testing.T) {
	r := New(&Config{InitialInterval: 10 * time.Millisecond, MaxInterval: 50 * time.Millisecond, Multiplier: 2})

	assert.Equal(t, 10*time.Millisecond, r.calculateInterval(0))
	assert.Equal(t, 40*time.Millisecond, r.calculateInterval(2))
	assert.Equal(t, 50*time.Millisecond, r.calculateInterval(5))
}

func TestRetrier_DoWithCallback(t *testing.T) {
	var seen []int
	attempts := 0
	New(fastConfig(3)).DoWithCallback(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("again")
		}
		return nil
	}, func(attempt int, err error, next time.Duration) {
		seen = append(seen, attempt)
	})

	assert.Equal(t, []int{1, 2}, seen)
}
