package db

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
)

// ConflictMessage is returned to callers once conflict retries are exhausted.
const ConflictMessage = "could not complete checkout due to a data conflict, please try again"

// RetryPolicy bounds RetryOnConflict.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	// OnRetry is invoked before each re-attempt with the 1-based attempt that failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy is three attempts with a 100ms linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond}
}

// linearBackoff waits base*attempt before attempt+1.
func linearBackoff(base time.Duration) retry.Backoff {
	var attempt int64
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * base, false
	})
}

// RetryOnConflict runs fn, re-running it only while it fails with a transient
// write conflict. Any other error is returned immediately. When every attempt
// conflicts the result is a CodeConflict error carrying the attempt errors.
func RetryOnConflict(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context, attempt int) error) error {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

	var (
		attempt   int
		conflicts error
	)
	backoff := retry.WithMaxRetries(uint64(policy.Attempts-1), linearBackoff(policy.BaseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx, attempt)
		if err == nil || !IsTransientConflict(err) {
			return err
		}
		conflicts = multierr.Append(conflicts, err)
		if attempt < policy.Attempts && policy.OnRetry != nil {
			policy.OnRetry(attempt, err)
		}
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}
	if IsTransientConflict(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, conflicts, ConflictMessage).
			WithDetails(map[string]any{"attempts": attempt})
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if conflicts != nil {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, multierr.Append(conflicts, err), ConflictMessage)
		}
	}
	return err
}
