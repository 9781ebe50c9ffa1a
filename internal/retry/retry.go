// Package retry models "blocking with retries" (spec §9 design notes) as a
// higher-order combinator: policies are data (max attempts, base/cap
// backoff, jitter, a retry-if classifier), not control flow wired by hand
// at every call site.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/hailstorm-run/hailstorm/internal/herrors"
)

// Policy holds retry configuration for one kind of operation.
type Policy struct {
	MaxAttempts  int           // total attempts including the first, e.g. 5 per spec §4.1
	InitialDelay time.Duration // base backoff, spec default 1s
	MaxDelay     time.Duration // cap, spec default 30s
	Multiplier   float64
	Jitter       bool
	JitterFactor float64

	// RetryIf decides whether an error should be retried. Defaults to
	// herrors.IsTransient when nil.
	RetryIf func(error) bool

	// OnRetry is invoked before each wait, for logging/telemetry.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// HostPolicy is the default policy for remote host operations (spec §4.1:
// default 5 tries, base 1s, cap 30s).
func HostPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		JitterFactor: 0.3,
		RetryIf:      herrors.IsTransient,
	}
}

// Runner executes functions under a fixed Policy.
type Runner struct {
	policy Policy
	rng    *rand.Rand
}

// New creates a Runner bound to policy.
func New(policy Policy) *Runner {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Runner{policy: policy, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Do runs fn, retrying per policy until it succeeds, a non-retryable error
// is returned, the attempt budget is exhausted, or ctx is cancelled.
func (r *Runner) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.shouldRetry(err) || attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.delayFor(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("attempt budget (%d) exhausted: %w", r.policy.MaxAttempts, lastErr)
}

// DoValue is Do for functions that also return a value.
func DoValue[T any](ctx context.Context, r *Runner, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = fn(ctx)
		return innerErr
	})
	return result, err
}

func (r *Runner) shouldRetry(err error) bool {
	if r.policy.RetryIf != nil {
		return r.policy.RetryIf(err)
	}
	return herrors.IsTransient(err)
}

func (r *Runner) delayFor(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter && r.policy.JitterFactor > 0 {
		delay += delay * r.policy.JitterFactor * (r.rng.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// PollUntil implements the "long-running poll loop" design note: it calls
// predicate on interval until it returns true, or returns herrors.Timeout
// once timeout elapses.
func PollUntil(ctx context.Context, label string, timeout, interval time.Duration, predicate func(ctx context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := predicate(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return herrors.Timeout(label, nil)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return herrors.Timeout(label, nil)
			}
		}
	}
}
