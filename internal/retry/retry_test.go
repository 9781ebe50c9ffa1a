package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hailstorm-run/hailstorm/internal/herrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	r := New(Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientErrors(t *testing.T) {
	r := New(Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return herrors.TransientHost("flaky", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	r := New(Policy{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
	calls := 0
	sentinel := errors.New("boom")
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsBudget(t *testing.T) {
	r := New(Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return herrors.TransientHost("always fails", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestPollUntilTimesOutWithinBudget(t *testing.T) {
	start := time.Now()
	err := PollUntil(context.Background(), "never-true", 300*time.Millisecond, 100*time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.True(t, herrors.Is(err, herrors.KindTimeout))
	assert.Less(t, elapsed, 600*time.Millisecond)
}

func TestPollUntilSucceedsWhenPredicateTrue(t *testing.T) {
	count := 0
	err := PollUntil(context.Background(), "eventually-true", time.Second, 10*time.Millisecond, func(ctx context.Context) (bool, error) {
		count++
		return count >= 3, nil
	})
	require.NoError(t, err)
}
