package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harsh-BH/Intelligenter/internal/retry"
)

func TestDo_ExponentialDelaySequence(t *testing.T) {
	base := time.Millisecond
	var delays []time.Duration
	calls := 0
	boom := errors.New("upstream unavailable")

	err := retry.Do(context.Background(), retry.Policy{MaxRetries: 3, BaseDelay: base},
		func(ctx context.Context) error {
			calls++
			return boom
		},
		func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		},
	)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls, "initial attempt plus three retries")
	assert.Equal(t, []time.Duration{1 * base, 2 * base, 4 * base}, delays)
}

func TestDo_SucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond},
		func(ctx context.Context) error {
			calls++
			if calls < 2 {
				return errors.New("timeout")
			}
			return nil
		}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	denied := errors.New("forbidden")
	calls := 0
	err := retry.Do(context.Background(), retry.Policy{MaxRetries: 5, BaseDelay: time.Millisecond},
		func(ctx context.Context) error {
			calls++
			return retry.Permanent(denied)
		}, nil)

	require.ErrorIs(t, err, denied)
	assert.Equal(t, 1, calls)
}

func TestDo_MaxDelayCapsWait(t *testing.T) {
	var delays []time.Duration
	_ = retry.Do(context.Background(), retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		func(ctx context.Context) error { return errors.New("x") },
		func(_ int, _ error, d time.Duration) { delays = append(delays, d) })

	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry.Do(ctx, retry.Policy{MaxRetries: 3, BaseDelay: time.Hour},
		func(ctx context.Context) error {
			calls++
			cancel()
			return errors.New("x")
		}, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroRetriesRunsOnce(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), retry.Policy{}, func(ctx context.Context) error {
		calls++
		return errors.New("x")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
