package wait

// wait.go provides a bounded polling primitive used to wait for
// subprocesses to become ready.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrTimeout is returned by Poll when the condition did not hold in time.
var ErrTimeout = errors.New("timed out waiting for condition")

var errNotYet = errors.New("condition not met")

// ConditionFunc reports whether the awaited condition holds. A non-nil
// error aborts polling.
type ConditionFunc func(ctx context.Context) (bool, error)

// Attempts returns how many times Poll evaluates a condition for the given
// interval and timeout. It is always at least one.
func Attempts(interval, timeout time.Duration) int {
	if interval <= 0 || timeout <= interval {
		return 1
	}
	return int(timeout / interval)
}

// Poll evaluates cond up to Attempts(interval, timeout) times, sleeping
// interval between evaluations. It returns nil as soon as cond holds,
// ErrTimeout once all attempts failed, or the context error on cancellation.
func Poll(ctx context.Context, interval, timeout time.Duration, cond ConditionFunc) error {
	attempts := Attempts(interval, timeout)

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		ok, err := cond(ctx)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if !ok {
			return struct{}{}, errNotYet
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxTries(uint(attempts)),
	)

	if errors.Is(err, errNotYet) {
		return fmt.Errorf("%w after %d attempts (%s)", ErrTimeout, attempts, timeout)
	}
	return err
}
