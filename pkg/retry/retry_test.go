package retry

import (
	"context"
	stderr "errors"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiercache/tiercache/pkg/errors"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		RetryableErrors: []errors.ErrorCode{
			errors.ErrCodeNetworkFetch,
		},
	}
}

func TestRetryer_Success(t *testing.T) {
	attempts := 0
	err := New(fastConfig(3)).Do(func() error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryer_RetryableError(t *testing.T) {
	attempts := 0
	err := New(fastConfig(3)).Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.NewError(errors.ErrCodeNetworkFetch, "timeout")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryer_NonRetryableError(t *testing.T) {
	attempts := 0
	err := New(fastConfig(3)).Do(func() error {
		attempts++
		return errors.NewError(errors.ErrCodeSerialization, "bad payload")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, errors.HasCode(err, errors.ErrCodeSerialization))
}

func TestRetryer_PlainErrorsAreNotRetried(t *testing.T) {
	attempts := 0
	err := New(fastConfig(3)).Do(func() error {
		attempts++
		return io.EOF
	})

	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, attempts)
}

func TestRetryer_Exhausted(t *testing.T) {
	var retries []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
	}

	cause := errors.NewError(errors.ErrCodeNetworkFetch, "down")
	err := New(cfg).Do(func() error { return cause })

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRetryExhausted))
	assert.True(t, stderr.Is(err, cause))
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetryer_ContextCanceledDuringBackoff(t *testing.T) {
	mock := clock.NewMock()
	cfg := fastConfig(5)
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour
	r := NewWithClock(cfg, mock)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- r.DoWithContext(ctx, func(context.Context) error {
			return errors.NewError(errors.ErrCodeNetworkFetch, "down")
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.HasCode(err, errors.ErrCodeOperationCanceled))
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestRetryer_DelayGrowsAndCaps(t *testing.T) {
	r := New(Config{MaxAttempts: 5, InitialDelay: 10 * time.Millisecond, MaxDelay: 35 * time.Millisecond, Multiplier: 2})

	assert.Equal(t, 10*time.Millisecond, r.delay(1))
	assert.Equal(t, 20*time.Millisecond, r.delay(2))
	assert.Equal(t, 35*time.Millisecond, r.delay(3))
}

func TestNew_AppliesDefaults(t *testing.T) {
	r := New(Config{})
	def := DefaultConfig()

	assert.Equal(t, def.MaxAttempts, r.Config().MaxAttempts)
	assert.Equal(t, def.InitialDelay, r.Config().InitialDelay)
	assert.Equal(t, def.Multiplier, r.Config().Multiplier)
}
