package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func always(error) bool { return true }

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	var retried []int
	err := Do(context.Background(), Policy{
		MaxRetries: 2,
		Retryable:  always,
		OnRetry:    func(attempt int, _ error) { retried = append(retried, attempt) },
	}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoStopsWhenRetriesExhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 1, Retryable: always}, func(context.Context) error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 2, calls)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Do(context.Background(), Policy{
		MaxRetries: 5,
		Retryable:  func(err error) bool { return errors.Is(err, errTransient) },
	}, func(context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursCancelledContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{
		MaxRetries: 3,
		Retryable:  always,
		Backoff:    func() Backoff { return Exponential(time.Hour, 2) },
	}, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestExponentialGrows(t *testing.T) {
	b := Exponential(time.Millisecond, 2)
	start := time.Now()
	require.NoError(t, b(context.Background()))
	require.NoError(t, b(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 3*time.Millisecond)
}
